package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    *Error
		status int
	}{
		{Unauthenticated(), http.StatusUnauthorized},
		{Forbidden("editor"), http.StatusForbidden},
		{NotFound("project", "p1"), http.StatusNotFound},
		{Validation("title", "required"), http.StatusBadRequest},
		{Conflict("duplicate key"), http.StatusConflict},
		{RateLimited(30), http.StatusTooManyRequests},
		{Internal("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.err.HTTPStatus(), string(tt.err.Code))
	}
}

func TestStructuredFields(t *testing.T) {
	nf := NotFound("issue", "abc")
	assert.Equal(t, CodeNotFound, nf.Code)
	assert.Equal(t, "issue", nf.Resource)
	assert.Equal(t, "abc", nf.ID)

	fb := Forbidden("admin")
	assert.Equal(t, "admin", fb.RequiredRole)

	rl := RateLimited(42)
	assert.Equal(t, 42, rl.RetryAfter)

	va := Validation("name", "too long")
	assert.Equal(t, "name", va.Field)
	assert.Equal(t, "too long", va.Message)
}

func TestFrom(t *testing.T) {
	orig := Conflict("sprint already active")
	assert.Same(t, orig, From(orig))

	wrapped := fmt.Errorf("handler: %w", Forbidden("editor"))
	assert.Equal(t, CodeForbidden, From(wrapped).Code)

	unknown := From(errors.New("pq: connection refused"))
	assert.Equal(t, CodeInternal, unknown.Code)
	// Internal detail must not leak to the client.
	assert.Equal(t, "internal error", unknown.Message)
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NotFound("label", ""))
	assert.True(t, IsCode(err, CodeNotFound))
	assert.False(t, IsCode(err, CodeForbidden))
	assert.False(t, IsCode(errors.New("plain"), CodeInternal))
}
