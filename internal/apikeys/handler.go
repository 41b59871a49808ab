package apikeys

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trackline/backend/internal/access"
	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/response"
)

// Handler handles API key management endpoints. All routes require a JWT;
// keys manage only their owner's resources.
type Handler struct {
	repo    *Repository
	service *Service
}

// NewHandler creates an API keys handler.
func NewHandler(repo *Repository, service *Service) *Handler {
	return &Handler{repo: repo, service: service}
}

// CreateKeyRequest is the body for POST /apikeys.
type CreateKeyRequest struct {
	Name      string     `json:"name" binding:"required"`
	Scopes    []string   `json:"scopes" binding:"required"`
	ProjectID *uuid.UUID `json:"project_id"`
	RateLimit int        `json:"rate_limit"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func validScopes(scopes []string) bool {
	if len(scopes) == 0 {
		return false
	}
	for _, s := range scopes {
		if s == "" || strings.ContainsAny(s, " \t\n") {
			return false
		}
	}
	return true
}

// Create handles POST /apikeys. The plaintext key appears in this
// response and nowhere else.
func (h *Handler) Create(c *gin.Context) {
	userID := access.UserID(c)
	var body CreateKeyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("body", "name and scopes required"))
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" || len(body.Name) > 100 {
		response.Error(c, apperror.Validation("name", "must be 1-100 characters"))
		return
	}
	if !validScopes(body.Scopes) {
		response.Error(c, apperror.Validation("scopes", "at least one scope, no whitespace"))
		return
	}
	if body.ExpiresAt != nil && !body.ExpiresAt.After(time.Now()) {
		response.Error(c, apperror.Validation("expires_at", "must be in the future"))
		return
	}
	k, plaintext, err := h.service.Generate(c.Request.Context(), userID, body.Name, body.Scopes, body.ProjectID, body.RateLimit, body.ExpiresAt)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"api_key": k, "key": plaintext})
}

// List handles GET /apikeys. Only the caller's keys, hashes never leave
// the server.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.ListByUser(c.Request.Context(), access.UserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// loadOwnKey parses :keyId and enforces ownership. A foreign key reads as
// absent, not forbidden.
func (h *Handler) loadOwnKey(c *gin.Context) (*models.APIKey, bool) {
	keyID, err := uuid.Parse(c.Param("keyId"))
	if err != nil {
		response.Error(c, apperror.Validation("keyId", "invalid key id"))
		return nil, false
	}
	k, err := h.repo.GetByID(c.Request.Context(), keyID)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if k == nil || k.UserID != access.UserID(c) {
		response.Error(c, apperror.NotFound("api_key", keyID.String()))
		return nil, false
	}
	return k, true
}

// UpdateKeyRequest is the body for PATCH /apikeys/:keyId.
type UpdateKeyRequest struct {
	Scopes    []string `json:"scopes"`
	RateLimit *int     `json:"rate_limit"`
}

// Update handles PATCH /apikeys/:keyId.
func (h *Handler) Update(c *gin.Context) {
	k, ok := h.loadOwnKey(c)
	if !ok {
		return
	}
	var body UpdateKeyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("body", "invalid request body"))
		return
	}
	if body.Scopes != nil {
		if !validScopes(body.Scopes) {
			response.Error(c, apperror.Validation("scopes", "at least one scope, no whitespace"))
			return
		}
		k.Scopes = body.Scopes
	}
	if body.RateLimit != nil {
		if *body.RateLimit < 1 || *body.RateLimit > 10000 {
			response.Error(c, apperror.Validation("rate_limit", "must be between 1 and 10000"))
			return
		}
		k.RateLimit = *body.RateLimit
	}
	if err := h.repo.UpdateSettings(c.Request.Context(), k.ID, k.Scopes, k.RateLimit); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, k)
}

// Revoke handles DELETE /apikeys/:keyId.
func (h *Handler) Revoke(c *gin.Context) {
	k, ok := h.loadOwnKey(c)
	if !ok {
		return
	}
	if err := h.repo.Deactivate(c.Request.Context(), k.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Rotate handles POST /apikeys/:keyId/rotate. The replacement is created
// before the old key is deactivated.
func (h *Handler) Rotate(c *gin.Context) {
	k, ok := h.loadOwnKey(c)
	if !ok {
		return
	}
	if !k.IsActive {
		response.Error(c, apperror.Conflict("key is already revoked"))
		return
	}
	newKey, plaintext, err := h.service.Rotate(c.Request.Context(), k)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"api_key": newKey, "key": plaintext, "revoked": k.ID})
}

// Usage handles GET /apikeys/:keyId/usage.
func (h *Handler) Usage(c *gin.Context) {
	k, ok := h.loadOwnKey(c)
	if !ok {
		return
	}
	stats, err := h.repo.UsageStats(c.Request.Context(), k.ID, 30)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"key_id": k.ID, "days": 30, "usage": stats})
}
