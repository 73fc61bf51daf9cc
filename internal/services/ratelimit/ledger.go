package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/myworkflows/chat-service/internal/domain/models"
)

// ErrNotFound is returned when a profile, plan config or usage row is missing.
var ErrNotFound = errors.New("ledger row not found")

// Ledger is the usage and credit store behind the Limiter.
type Ledger interface {
	PlanType(ctx context.Context, userID string) (models.PlanType, error)
	PlanConfig(ctx context.Context, plan models.PlanType) (*models.PlanConfig, error)
	Usage(ctx context.Context, userID string) (*models.UsageRecord, error)

	// IncrementFree counts one interaction, resetting the daily window
	// first when it has elapsed or was never set.
	IncrementFree(ctx context.Context, userID string, tokens int, now time.Time, window time.Duration) error

	// IncrementPaid adds credits and tokens to the monthly counters.
	IncrementPaid(ctx context.Context, userID string, credits, tokens int, now time.Time) error
}

// GormLedger implements Ledger with single-statement atomic updates.
type GormLedger struct {
	db *gorm.DB
}

// NewGormLedger creates a new GormLedger.
func NewGormLedger(db *gorm.DB) (*GormLedger, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &GormLedger{db: db}, nil
}

// PlanType returns the plan of a user.
func (l *GormLedger) PlanType(ctx context.Context, userID string) (models.PlanType, error) {
	var profile models.Profile
	if err := l.take(ctx, &profile, "id = ?", userID); err != nil {
		return "", err
	}
	return profile.PlanType, nil
}

// PlanConfig returns the limits of a plan.
func (l *GormLedger) PlanConfig(ctx context.Context, plan models.PlanType) (*models.PlanConfig, error) {
	var cfg models.PlanConfig
	if err := l.take(ctx, &cfg, "plan_type = ?", plan); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Usage returns the usage row of a user.
func (l *GormLedger) Usage(ctx context.Context, userID string) (*models.UsageRecord, error) {
	var usage models.UsageRecord
	if err := l.take(ctx, &usage, "user_id = ?", userID); err != nil {
		return nil, err
	}
	return &usage, nil
}

func (l *GormLedger) take(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	err := l.db.WithContext(ctx).Where(query, args...).Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}
	return nil
}

// IncrementFree applies the lazy daily reset and the increment in one UPDATE.
func (l *GormLedger) IncrementFree(ctx context.Context, userID string, tokens int, now time.Time, window time.Duration) error {
	const elapsed = "daily_reset_at IS NULL OR daily_reset_at < ?"
	nextReset := now.Add(window)

	result := l.db.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"daily_interactions": gorm.Expr("CASE WHEN "+elapsed+" THEN 1 ELSE daily_interactions + 1 END", now),
			"daily_reset_at":     gorm.Expr("CASE WHEN "+elapsed+" THEN ? ELSE daily_reset_at END", now, nextReset),
			"total_tokens_used":  gorm.Expr("total_tokens_used + ?", tokens),
			"updated_at":         now,
		})
	return rowsOrNotFound(result)
}

// IncrementPaid adds to the monthly credit counter in one UPDATE.
func (l *GormLedger) IncrementPaid(ctx context.Context, userID string, credits, tokens int, now time.Time) error {
	result := l.db.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"monthly_credits_used": gorm.Expr("monthly_credits_used + ?", credits),
			"total_tokens_used":    gorm.Expr("total_tokens_used + ?", tokens),
			"updated_at":           now,
		})
	return rowsOrNotFound(result)
}

func rowsOrNotFound(result *gorm.DB) error {
	if result.Error != nil {
		return fmt.Errorf("failed to update usage: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
