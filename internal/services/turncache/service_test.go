package turncache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/myworkflows/chat-service/internal/domain/models"
	rediscache "github.com/myworkflows/chat-service/internal/infrastructure/cache/redis"
	"github.com/myworkflows/chat-service/internal/mocks"
	"github.com/myworkflows/chat-service/internal/pkg/encryption"
	"github.com/myworkflows/chat-service/internal/services/turncache"
)

func newRedisService(t *testing.T) (*miniredis.Miniredis, turncache.Service) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := rediscache.NewClient(rediscache.Config{Host: mr.Host(), Port: mr.Port()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	key, err := encryption.GenerateKey()
	require.NoError(t, err)
	enc, err := encryption.NewAESEncryptor(key)
	require.NoError(t, err)

	svc, err := turncache.NewService(&turncache.Config{CacheClient: client, Encryptor: enc, TTL: time.Minute})
	require.NoError(t, err)
	return mr, svc
}

func sampleTurn(userID, key string) *models.TurnResult {
	return &models.TurnResult{
		IdempotencyKey:   key,
		UserID:           userID,
		WorkflowID:       "wf-1",
		ConversationID:   "conv-1",
		UserMessage:      &models.Message{ID: "m1", Role: models.RoleUser, Content: "hi"},
		AssistantMessage: &models.Message{ID: "m2", Role: models.RoleAssistant, Content: "hello"},
		CreditsUsed:      1,
	}
}

func TestNewService_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  *turncache.Config
	}{
		{name: "nil config", cfg: nil},
		{name: "no cache", cfg: &turncache.Config{Encryptor: encryption.NewNoOpEncryptor()}},
		{name: "no encryptor", cfg: &turncache.Config{CacheClient: &mocks.MockCacheClient{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := turncache.NewService(tt.cfg)
			assert.Error(t, err)
			assert.Nil(t, svc)
		})
	}
}

func TestSetThenGet_RoundTripsEncrypted(t *testing.T) {
	// Arrange
	mr, svc := newRedisService(t)
	ctx := context.Background()

	// Act
	require.NoError(t, svc.Set(ctx, sampleTurn("u1", "k1")))
	got, err := svc.Get(ctx, "u1", "k1")

	// Assert
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello", got.AssistantMessage.Content)
	assert.False(t, got.CompletedAt.IsZero())
	raw, err := mr.Get(turncache.BuildCacheKey("u1", "k1"))
	require.NoError(t, err)
	assert.NotContains(t, raw, "hello")
	assert.Equal(t, time.Minute, mr.TTL(turncache.BuildCacheKey("u1", "k1")))
}

func TestGet_IsScopedToUser(t *testing.T) {
	// Arrange
	_, svc := newRedisService(t)
	ctx := context.Background()
	require.NoError(t, svc.Set(ctx, sampleTurn("u1", "k1")))

	// Act
	got, err := svc.Get(ctx, "u2", "k1")

	// Assert
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGet_EmptyKey(t *testing.T) {
	// Arrange
	_, svc := newRedisService(t)

	// Act
	got, err := svc.Get(context.Background(), "u1", "")

	// Assert
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGet_UndecryptableEntryIsDropped(t *testing.T) {
	// Arrange
	cacheClient := &mocks.MockCacheClient{}
	enc := &mocks.MockEncryptor{}
	key := turncache.BuildCacheKey("u1", "k1")
	cacheClient.On("Get", mock.Anything, key).Return([]byte("garbage"), nil)
	cacheClient.On("Delete", mock.Anything, key).Return(true, nil)
	enc.On("Decrypt", "garbage").Return(nil, errors.New("cipher: message authentication failed"))
	svc, err := turncache.NewService(&turncache.Config{CacheClient: cacheClient, Encryptor: enc})
	require.NoError(t, err)

	// Act
	got, err := svc.Get(context.Background(), "u1", "k1")

	// Assert
	require.NoError(t, err)
	assert.Nil(t, got)
	cacheClient.AssertExpectations(t)
}

func TestGet_CacheError(t *testing.T) {
	// Arrange
	cacheClient := &mocks.MockCacheClient{}
	cacheClient.On("Get", mock.Anything, mock.Anything).Return(nil, errors.New("redis down"))
	svc, err := turncache.NewService(&turncache.Config{CacheClient: cacheClient, Encryptor: encryption.NewNoOpEncryptor()})
	require.NoError(t, err)

	// Act
	got, err := svc.Get(context.Background(), "u1", "k1")

	// Assert
	assert.Error(t, err)
	assert.Nil(t, got)
}

func TestSet_RequiresKey(t *testing.T) {
	// Arrange
	_, svc := newRedisService(t)

	// Act
	err := svc.Set(context.Background(), sampleTurn("u1", ""))

	// Assert
	assert.Error(t, err)
}

func TestPurgeUser(t *testing.T) {
	// Arrange
	_, svc := newRedisService(t)
	ctx := context.Background()
	require.NoError(t, svc.Set(ctx, sampleTurn("u1", "a")))
	require.NoError(t, svc.Set(ctx, sampleTurn("u1", "b")))
	require.NoError(t, svc.Set(ctx, sampleTurn("u2", "a")))

	// Act
	require.NoError(t, svc.PurgeUser(ctx, "u1"))

	// Assert
	gone, err := svc.Get(ctx, "u1", "a")
	require.NoError(t, err)
	kept, err := svc.Get(ctx, "u2", "a")
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.NotNil(t, kept)
}
