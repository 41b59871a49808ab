package apikeys

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/utils"
)

type fakeKeyStore struct {
	byHash map[string]*models.APIKey
	byID   map[uuid.UUID]*models.APIKey
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{
		byHash: make(map[string]*models.APIKey),
		byID:   make(map[uuid.UUID]*models.APIKey),
	}
}

func (f *fakeKeyStore) Create(_ context.Context, k *models.APIKey) error {
	k.ID = uuid.New()
	k.IsActive = true
	k.CreatedAt = time.Now()
	f.byHash[k.KeyHash] = k
	f.byID[k.ID] = k
	return nil
}

func (f *fakeKeyStore) GetByHash(_ context.Context, hash string) (*models.APIKey, error) {
	return f.byHash[hash], nil
}

func (f *fakeKeyStore) GetByID(_ context.Context, id uuid.UUID) (*models.APIKey, error) {
	return f.byID[id], nil
}

func (f *fakeKeyStore) Deactivate(_ context.Context, id uuid.UUID) error {
	if k, ok := f.byID[id]; ok {
		k.IsActive = false
	}
	return nil
}

func (f *fakeKeyStore) TouchLastUsed(_ context.Context, id uuid.UUID) error {
	now := time.Now()
	if k, ok := f.byID[id]; ok {
		k.LastUsedAt = &now
	}
	return nil
}

func TestGenerateStoresOnlyHash(t *testing.T) {
	store := newFakeKeyStore()
	svc := NewService(store, 120)
	ctx := context.Background()

	k, plaintext, err := svc.Generate(ctx, uuid.New(), "ci", []string{"issues:read"}, nil, 0, nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(plaintext, KeyPrefix))
	assert.Equal(t, plaintext[:7], k.KeyPrefix)
	assert.Equal(t, utils.HashToken(plaintext), k.KeyHash)
	assert.NotContains(t, k.KeyHash, plaintext)
	assert.Equal(t, 120, k.RateLimit)
}

func TestValidateKey(t *testing.T) {
	store := newFakeKeyStore()
	svc := NewService(store, 120)
	ctx := context.Background()

	_, plaintext, err := svc.Generate(ctx, uuid.New(), "ci", []string{"*"}, nil, 0, nil)
	require.NoError(t, err)

	k, err := svc.ValidateKey(ctx, plaintext)
	require.NoError(t, err)
	assert.NotNil(t, k.LastUsedAt)

	_, err = svc.ValidateKey(ctx, "tl_bogus")
	assert.True(t, apperror.IsCode(err, apperror.CodeUnauthenticated))
}

func TestValidateRejectsRevokedAndExpired(t *testing.T) {
	store := newFakeKeyStore()
	svc := NewService(store, 120)
	ctx := context.Background()

	revoked, plaintext, err := svc.Generate(ctx, uuid.New(), "old", []string{"*"}, nil, 0, nil)
	require.NoError(t, err)
	require.NoError(t, store.Deactivate(ctx, revoked.ID))
	_, err = svc.ValidateKey(ctx, plaintext)
	assert.True(t, apperror.IsCode(err, apperror.CodeUnauthenticated))

	past := time.Now().Add(-time.Hour)
	_, expiredPlain, err := svc.Generate(ctx, uuid.New(), "expired", []string{"*"}, nil, 0, &past)
	require.NoError(t, err)
	_, err = svc.ValidateKey(ctx, expiredPlain)
	assert.True(t, apperror.IsCode(err, apperror.CodeUnauthenticated))
}

func TestRotateCreatesNewBeforeDeactivatingOld(t *testing.T) {
	store := newFakeKeyStore()
	svc := NewService(store, 120)
	ctx := context.Background()

	old, oldPlain, err := svc.Generate(ctx, uuid.New(), "rotating", []string{"issues:*"}, nil, 60, nil)
	require.NoError(t, err)

	newKey, newPlain, err := svc.Rotate(ctx, old)
	require.NoError(t, err)
	assert.NotEqual(t, oldPlain, newPlain)
	assert.Equal(t, old.Scopes, newKey.Scopes)
	assert.Equal(t, old.RateLimit, newKey.RateLimit)

	_, err = svc.ValidateKey(ctx, oldPlain)
	assert.True(t, apperror.IsCode(err, apperror.CodeUnauthenticated))
	got, err := svc.ValidateKey(ctx, newPlain)
	require.NoError(t, err)
	assert.Equal(t, newKey.ID, got.ID)
}
