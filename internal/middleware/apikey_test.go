package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/response"
)

type fakeValidator struct {
	keys map[string]*models.APIKey
}

func (v *fakeValidator) ValidateKey(_ context.Context, raw string) (*models.APIKey, error) {
	return v.keys[raw], nil
}

type fakeLimiter struct {
	allowed    bool
	retryAfter int
	lastKey    string
}

func (l *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, int, error) {
	l.lastKey = key
	return l.allowed, l.retryAfter, nil
}

type usageLog struct {
	method string
	path   string
	status int
}

type fakeUsage struct {
	logs []usageLog
}

func (u *fakeUsage) RecordUsage(_ context.Context, _ uuid.UUID, method, path string, status int) error {
	u.logs = append(u.logs, usageLog{method, path, status})
	return nil
}

func newTestKey(scopes ...string) *models.APIKey {
	return &models.APIKey{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Scopes:    scopes,
		RateLimit: 60,
		IsActive:  true,
	}
}

func apiKeyRouter(validator APIKeyValidator, limiter RateLimiter, usage UsageRecorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.Use(APIKey(validator, limiter, usage))
	v1.GET("/issues", RequireScope("issues:read"), func(c *gin.Context) {
		response.OK(c, gin.H{"user_id": c.MustGet(ContextUserID)})
	})
	return router
}

func doRequest(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/issues", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestAPIKeyAuthenticates(t *testing.T) {
	key := newTestKey("issues:read")
	validator := &fakeValidator{keys: map[string]*models.APIKey{"tl_good": key}}
	limiter := &fakeLimiter{allowed: true}
	usage := &fakeUsage{}
	router := apiKeyRouter(validator, limiter, usage)

	// Bearer form and bare key both work.
	assert.Equal(t, http.StatusOK, doRequest(router, "Bearer tl_good").Code)
	assert.Equal(t, http.StatusOK, doRequest(router, "tl_good").Code)

	assert.Equal(t, "apikey:"+key.ID.String(), limiter.lastKey)
	require.Len(t, usage.logs, 2)
	assert.Equal(t, http.StatusOK, usage.logs[0].status)
	assert.Equal(t, "/api/v1/issues", usage.logs[0].path)
}

func TestAPIKeyRejectsUnknown(t *testing.T) {
	validator := &fakeValidator{keys: map[string]*models.APIKey{}}
	router := apiKeyRouter(validator, &fakeLimiter{allowed: true}, &fakeUsage{})

	assert.Equal(t, http.StatusUnauthorized, doRequest(router, "Bearer tl_wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(router, "").Code)
}

func TestAPIKeyRateLimited(t *testing.T) {
	key := newTestKey("issues:read")
	validator := &fakeValidator{keys: map[string]*models.APIKey{"tl_good": key}}
	limiter := &fakeLimiter{allowed: false, retryAfter: 42}
	usage := &fakeUsage{}
	router := apiKeyRouter(validator, limiter, usage)

	w := doRequest(router, "Bearer tl_good")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var body response.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, apperror.CodeRateLimited, body.Error.Code)
	assert.Equal(t, 42, body.Error.RetryAfter)
	assert.Empty(t, usage.logs, "rejected requests are not usage-logged")
}

func TestRequireScopeDenies(t *testing.T) {
	key := newTestKey("projects:read") // lacks issues:read
	validator := &fakeValidator{keys: map[string]*models.APIKey{"tl_good": key}}
	router := apiKeyRouter(validator, &fakeLimiter{allowed: true}, &fakeUsage{})

	assert.Equal(t, http.StatusForbidden, doRequest(router, "Bearer tl_good").Code)
}

func TestHasScope(t *testing.T) {
	tests := []struct {
		granted  []string
		required string
		want     bool
	}{
		{[]string{"issues:read"}, "issues:read", true},
		{[]string{"issues:read"}, "issues:write", false},
		{[]string{"issues:*"}, "issues:write", true},
		{[]string{"issues:*"}, "projects:read", false},
		{[]string{"*"}, "anything:at-all", true},
		{nil, "issues:read", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HasScope(tt.granted, tt.required), tt.required)
	}
}
