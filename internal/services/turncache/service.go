// Package turncache caches completed chat turns by idempotency key so a
// reconnecting client can fetch a result instead of replaying the turn.
package turncache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/myworkflows/chat-service/internal/core/cache"
	"github.com/myworkflows/chat-service/internal/domain/models"
	"github.com/myworkflows/chat-service/internal/pkg/encryption"
)

// DefaultTTL is the default lifetime of a cached turn.
const DefaultTTL = 10 * time.Minute

// Service stores and fetches turn results.
type Service interface {
	// Get returns the cached turn, or nil if not found.
	Get(ctx context.Context, userID, idempotencyKey string) (*models.TurnResult, error)

	// Set caches a turn under its idempotency key.
	Set(ctx context.Context, turn *models.TurnResult) error

	// PurgeUser drops every cached turn of a user.
	PurgeUser(ctx context.Context, userID string) error
}

type service struct {
	cacheClient cache.Client
	encryptor   encryption.Encryptor
	ttl         time.Duration
}

// Config holds the configuration for the turn cache.
type Config struct {
	CacheClient cache.Client
	Encryptor   encryption.Encryptor
	TTL         time.Duration
}

// NewService creates a new turn cache.
func NewService(cfg *Config) (Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.CacheClient == nil {
		return nil, fmt.Errorf("cache client is required")
	}
	if cfg.Encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}

	return &service{
		cacheClient: cfg.CacheClient,
		encryptor:   cfg.Encryptor,
		ttl:         ttl,
	}, nil
}

// BuildCacheKey generates the cache key of a turn.
func BuildCacheKey(userID, idempotencyKey string) string {
	return fmt.Sprintf("turn:%s:%s", userID, idempotencyKey)
}

// Get retrieves a turn. Entries that no longer decrypt or decode are
// dropped and reported as missing.
func (s *service) Get(ctx context.Context, userID, idempotencyKey string) (*models.TurnResult, error) {
	if idempotencyKey == "" {
		return nil, nil
	}
	key := BuildCacheKey(userID, idempotencyKey)

	encrypted, err := s.cacheClient.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get turn from cache: %w", err)
	}
	if encrypted == nil {
		return nil, nil
	}

	decrypted, err := s.encryptor.Decrypt(string(encrypted))
	if err != nil {
		_, _ = s.cacheClient.Delete(ctx, key)
		return nil, nil
	}

	var turn models.TurnResult
	if err := json.Unmarshal(decrypted, &turn); err != nil {
		_, _ = s.cacheClient.Delete(ctx, key)
		return nil, nil
	}
	return &turn, nil
}

// Set stores a turn.
func (s *service) Set(ctx context.Context, turn *models.TurnResult) error {
	if turn == nil {
		return fmt.Errorf("turn is required")
	}
	if turn.IdempotencyKey == "" || turn.UserID == "" {
		return fmt.Errorf("turn requires user ID and idempotency key")
	}
	if turn.CompletedAt.IsZero() {
		turn.CompletedAt = time.Now().UTC()
	}

	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	encrypted, err := s.encryptor.Encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt turn: %w", err)
	}

	key := BuildCacheKey(turn.UserID, turn.IdempotencyKey)
	if err := s.cacheClient.Set(ctx, key, []byte(encrypted), s.ttl); err != nil {
		return fmt.Errorf("failed to store turn in cache: %w", err)
	}
	return nil
}

// PurgeUser removes all cached turns of userID.
func (s *service) PurgeUser(ctx context.Context, userID string) error {
	if _, err := s.cacheClient.DeletePattern(ctx, BuildCacheKey(userID, "*")); err != nil {
		return fmt.Errorf("failed to purge turns: %w", err)
	}
	return nil
}
