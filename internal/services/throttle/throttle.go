// Package throttle limits inbound chat frames per user with a Redis fixed window.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/myworkflows/chat-service/internal/core/cache"
)

const (
	defaultPrefix = "throttle"
	redisTimeout  = 2 * time.Second
)

// Throttle counts messages per key in fixed windows.
// Cache failures fail open: this protects against abuse, it does not bill.
type Throttle struct {
	counter cache.Client
	limit   int
	window  time.Duration
	prefix  string
	now     func() time.Time
}

// New creates a Throttle allowing limit messages per window.
func New(counter cache.Client, limit int, window time.Duration) (*Throttle, error) {
	if counter == nil {
		return nil, errors.New("throttle requires a cache client")
	}
	if limit <= 0 || window <= 0 {
		return nil, errors.New("throttle requires positive limit and window")
	}
	return &Throttle{
		counter: counter,
		limit:   limit,
		window:  window,
		prefix:  defaultPrefix,
		now:     time.Now,
	}, nil
}

// Allow reports whether key is still within quota for the current window.
func (t *Throttle) Allow(ctx context.Context, key string) bool {
	if t == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}

	windowMs := t.window.Milliseconds()
	slot := t.now().UTC().UnixMilli() / windowMs
	counterKey := fmt.Sprintf("%s:%s:%d", t.prefix, key, slot)

	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	count, err := t.counter.Increment(ctx, counterKey, t.window)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("throttle unavailable, allowing message")
		return true
	}
	return count <= int64(t.limit)
}
