// Package ratelimit enforces per-user usage limits and records usage.
//
// Free plans are limited by daily interactions, paid plans by monthly
// credits. CheckLimits never mutates the ledger; RecordUsage is the only
// writer and is best effort.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/myworkflows/chat-service/internal/core/queue"
	"github.com/myworkflows/chat-service/internal/domain/models"
)

// DefaultDailyWindow is the length of the free plan interaction window.
const DefaultDailyWindow = 24 * time.Hour

// ActionChat is the usage log action recorded for chat turns.
const ActionChat = "chat"

// Decision is the outcome of CheckLimits.
type Decision struct {
	Allowed          bool
	Reason           string
	RemainingCredits int
	ResetAt          *time.Time
	PlanType         models.PlanType
}

// Usage describes one recorded action.
type Usage struct {
	CreditsUsed int
	TokensUsed  int
	Model       string
	Action      string
	Metadata    map[string]interface{}
}

// UsageLogSink receives audit entries.
type UsageLogSink interface {
	Add(ctx context.Context, entry *models.UsageLog) error
}

// Limiter checks and records usage.
type Limiter interface {
	CheckLimits(ctx context.Context, userID string, estimatedCost int) (*Decision, error)
	RecordUsage(ctx context.Context, userID string, usage Usage)
}

// DefaultSideEffectBuffer is the queue size used when SideEffectWorkers is set without a buffer.
const DefaultSideEffectBuffer = 256

// Config holds the collaborators of a Service.
type Config struct {
	Ledger      Ledger
	UsageLogs   UsageLogSink    // optional
	Publisher   queue.Publisher // optional
	UsageQueue  string
	DailyWindow time.Duration
	Logger      *zerolog.Logger
	Now         func() time.Time

	// SideEffectWorkers > 0 moves audit writes and event publishing to a
	// background pool. Zero runs them inline.
	SideEffectWorkers int
	SideEffectBuffer  int
}

// Service implements Limiter.
type Service struct {
	ledger      Ledger
	usageLogs   UsageLogSink
	publisher   queue.Publisher
	usageQueue  string
	dailyWindow time.Duration
	logger      zerolog.Logger
	now         func() time.Time
	async       *dispatcher
}

// NewService creates a new rate limiting service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if cfg.Publisher != nil && cfg.UsageQueue == "" {
		return nil, fmt.Errorf("usage queue is required when a publisher is set")
	}

	s := &Service{
		ledger:      cfg.Ledger,
		usageLogs:   cfg.UsageLogs,
		publisher:   cfg.Publisher,
		usageQueue:  cfg.UsageQueue,
		dailyWindow: cfg.DailyWindow,
		logger:      log.Logger,
		now:         cfg.Now,
	}
	if s.dailyWindow <= 0 {
		s.dailyWindow = DefaultDailyWindow
	}
	if cfg.Logger != nil {
		s.logger = *cfg.Logger
	}
	if s.now == nil {
		s.now = time.Now
	}
	if cfg.SideEffectWorkers > 0 && (s.usageLogs != nil || s.publisher != nil) {
		buffer := cfg.SideEffectBuffer
		if buffer <= 0 {
			buffer = DefaultSideEffectBuffer
		}
		s.async = newDispatcher(buffer, s.applySideEffect)
		s.async.start(cfg.SideEffectWorkers)
	}
	return s, nil
}

// Close flushes pending side effects. It is a no-op for inline services.
func (s *Service) Close() {
	if s.async != nil {
		s.async.stop()
	}
}

// CheckLimits decides whether userID may spend estimatedCost credits.
// Missing profile, plan config or usage rows are denials, not errors.
func (s *Service) CheckLimits(ctx context.Context, userID string, estimatedCost int) (*Decision, error) {
	plan, err := s.ledger.PlanType(ctx, userID)
	if err != nil {
		return denyOrError(err, models.ReasonUserNotFound)
	}

	cfg, err := s.ledger.PlanConfig(ctx, plan)
	if err != nil {
		return denyOrError(err, models.ReasonPlanConfigNotFound)
	}

	usage, err := s.ledger.Usage(ctx, userID)
	if err != nil {
		return denyOrError(err, models.ReasonUsageNotFound)
	}

	var d *Decision
	if plan.IsFree() {
		d = s.checkDaily(cfg, usage)
	} else {
		d = checkCredits(cfg, usage, estimatedCost)
	}
	d.PlanType = plan
	return d, nil
}

// checkDaily allows optimistically once the window has elapsed; the reset
// itself is applied by RecordUsage.
func (s *Service) checkDaily(cfg *models.PlanConfig, usage *models.UsageRecord) *Decision {
	limit := cfg.DailyInteractionsLimit
	if usage.DailyResetAt == nil || s.now().After(*usage.DailyResetAt) {
		return &Decision{Allowed: true, RemainingCredits: limit}
	}

	remaining := limit - usage.DailyInteractions
	if remaining < 0 {
		remaining = 0
	}
	if usage.DailyInteractions < limit {
		return &Decision{Allowed: true, RemainingCredits: remaining, ResetAt: usage.DailyResetAt}
	}
	return &Decision{
		Reason:           models.ReasonDailyLimitReached,
		RemainingCredits: remaining,
		ResetAt:          usage.DailyResetAt,
	}
}

func checkCredits(cfg *models.PlanConfig, usage *models.UsageRecord, cost int) *Decision {
	limit := usage.MonthlyCreditsLimit
	if limit == 0 {
		limit = cfg.MonthlyCredits
	}

	remaining := limit - usage.MonthlyCreditsUsed
	if remaining < 0 {
		remaining = 0
	}
	if usage.MonthlyCreditsUsed+cost <= limit {
		return &Decision{Allowed: true, RemainingCredits: remaining, ResetAt: usage.CreditsResetAt}
	}
	return &Decision{
		Reason:           models.ReasonInsufficientCredits,
		RemainingCredits: remaining,
		ResetAt:          usage.CreditsResetAt,
	}
}

func denyOrError(err error, reason string) (*Decision, error) {
	if errors.Is(err, ErrNotFound) {
		return &Decision{Reason: reason}, nil
	}
	return nil, err
}

// RecordUsage applies usage to the ledger, appends an audit entry and
// publishes a usage event. Failures are logged and never returned.
func (s *Service) RecordUsage(ctx context.Context, userID string, usage Usage) {
	logger := s.logger.With().Str("user_id", userID).Int("credits", usage.CreditsUsed).Logger()
	now := s.now().UTC()
	if usage.Action == "" {
		usage.Action = ActionChat
	}

	plan, err := s.ledger.PlanType(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to resolve plan for usage")
		return
	}

	if plan.IsFree() {
		err = s.ledger.IncrementFree(ctx, userID, usage.TokensUsed, now, s.dailyWindow)
	} else {
		err = s.ledger.IncrementPaid(ctx, userID, usage.CreditsUsed, usage.TokensUsed, now)
	}
	if err != nil {
		logger.Error().Err(err).Str("plan", string(plan)).Msg("failed to increment usage")
	}

	var job sideEffect
	if s.usageLogs != nil {
		job.entry = &models.UsageLog{
			ID:          uuid.NewString(),
			UserID:      userID,
			CreditsUsed: usage.CreditsUsed,
			TokensUsed:  usage.TokensUsed,
			Action:      usage.Action,
			Model:       usage.Model,
			Metadata:    usage.Metadata,
			CreatedAt:   now,
		}
	}
	if s.publisher != nil {
		job.event = &models.UsageEvent{
			EventID:     uuid.NewString(),
			UserID:      userID,
			PlanType:    plan,
			CreditsUsed: usage.CreditsUsed,
			TokensUsed:  usage.TokensUsed,
			Model:       usage.Model,
			Metadata:    usage.Metadata,
			OccurredAt:  now,
		}
	}
	if job.entry == nil && job.event == nil {
		return
	}

	if s.async == nil {
		s.applySideEffect(ctx, job)
		return
	}
	if !s.async.enqueue(job) {
		logger.Warn().Msg("usage side effect queue full, dropping audit entry")
	}
}

func (s *Service) applySideEffect(ctx context.Context, job sideEffect) {
	if job.entry != nil {
		if err := s.usageLogs.Add(ctx, job.entry); err != nil {
			s.logger.Warn().Err(err).Str("user_id", job.entry.UserID).Msg("failed to append usage log")
		}
	}
	if job.event != nil {
		if err := s.publisher.Publish(ctx, s.usageQueue, *job.event); err != nil {
			s.logger.Warn().Err(err).Str("user_id", job.event.UserID).Msg("failed to publish usage event")
		}
	}
}
