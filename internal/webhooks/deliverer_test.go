package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign(t *testing.T) {
	body := []byte(`{"event":"issue.created","data":{"key":"TRK-1"}}`)
	secret := "0123456789abcdef"

	got := Sign(secret, body)
	assert.True(t, strings.HasPrefix(got, "sha256="))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), got)
}

func TestSignVariesWithSecretAndBody(t *testing.T) {
	body := []byte(`{"a":1}`)
	assert.NotEqual(t, Sign("secret-a", body), Sign("secret-b", body))
	assert.NotEqual(t, Sign("secret-a", body), Sign("secret-a", []byte(`{"a":2}`)))
}
