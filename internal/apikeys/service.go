package apikeys

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/utils"
)

// KeyPrefix starts every issued key.
const KeyPrefix = "tl_"

// KeyStore is the persistence surface the service needs.
type KeyStore interface {
	Create(ctx context.Context, k *models.APIKey) error
	GetByHash(ctx context.Context, hash string) (*models.APIKey, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	TouchLastUsed(ctx context.Context, id uuid.UUID) error
}

// Service issues, validates and rotates API keys.
type Service struct {
	store            KeyStore
	defaultRateLimit int
}

// NewService creates an API key service.
func NewService(store KeyStore, defaultRateLimit int) *Service {
	if defaultRateLimit <= 0 {
		defaultRateLimit = 120
	}
	return &Service{store: store, defaultRateLimit: defaultRateLimit}
}

// Generate mints a key for the user and stores its hash. The returned
// plaintext is shown to the caller exactly once.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID, name string, scopes []string, projectID *uuid.UUID, rateLimit int, expiresAt *time.Time) (*models.APIKey, string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("generate key material: %w", err)
	}
	plaintext := KeyPrefix + hex.EncodeToString(raw)
	if rateLimit <= 0 {
		rateLimit = s.defaultRateLimit
	}
	k := &models.APIKey{
		UserID:    userID,
		Name:      name,
		KeyHash:   utils.HashToken(plaintext),
		KeyPrefix: plaintext[:7],
		Scopes:    scopes,
		ProjectID: projectID,
		RateLimit: rateLimit,
		ExpiresAt: expiresAt,
	}
	if err := s.store.Create(ctx, k); err != nil {
		return nil, "", err
	}
	return k, plaintext, nil
}

// ValidateKey resolves a presented plaintext key to its active record.
// Unknown, revoked and expired keys all fail the same way so key probing
// learns nothing.
func (s *Service) ValidateKey(ctx context.Context, rawKey string) (*models.APIKey, error) {
	k, err := s.store.GetByHash(ctx, utils.HashToken(rawKey))
	if err != nil {
		return nil, err
	}
	if k == nil || !k.IsActive {
		return nil, apperror.Unauthenticated()
	}
	if k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt) {
		return nil, apperror.Unauthenticated()
	}
	if err := s.store.TouchLastUsed(ctx, k.ID); err != nil {
		// Best effort; the key is still valid.
		return k, nil
	}
	return k, nil
}

// Rotate issues a replacement key with the same settings, then
// deactivates the old one. The new key exists before the old one dies, so
// a crash between the two steps leaves the caller with a working key.
func (s *Service) Rotate(ctx context.Context, old *models.APIKey) (*models.APIKey, string, error) {
	k, plaintext, err := s.Generate(ctx, old.UserID, old.Name, old.Scopes, old.ProjectID, old.RateLimit, old.ExpiresAt)
	if err != nil {
		return nil, "", err
	}
	if err := s.store.Deactivate(ctx, old.ID); err != nil {
		return nil, "", err
	}
	return k, plaintext, nil
}
