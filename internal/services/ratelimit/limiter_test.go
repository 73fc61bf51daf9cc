package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/myworkflows/chat-service/internal/domain/models"
	"github.com/myworkflows/chat-service/internal/mocks"
	"github.com/myworkflows/chat-service/internal/services/ratelimit"
	"github.com/myworkflows/chat-service/internal/testutils"
)

var fixedNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, db *gorm.DB, cfg ratelimit.Config) *ratelimit.Service {
	t.Helper()
	ledger, err := ratelimit.NewGormLedger(db)
	require.NoError(t, err)
	cfg.Ledger = ledger
	cfg.Now = func() time.Time { return fixedNow }
	svc, err := ratelimit.NewService(cfg)
	require.NoError(t, err)
	return svc
}

func ptr(t time.Time) *time.Time { return &t }

func TestNewService_Validation(t *testing.T) {
	_, err := ratelimit.NewService(ratelimit.Config{})
	assert.Error(t, err)

	_, err = ratelimit.NewService(ratelimit.Config{Ledger: &mocks.MockLedger{}, Publisher: &mocks.MockPublisher{}})
	assert.Error(t, err)
}

func TestCheckLimits_FreeBoundary(t *testing.T) {
	future := ptr(fixedNow.Add(time.Hour))
	past := ptr(fixedNow.Add(-time.Minute))

	tests := []struct {
		name          string
		used          int
		resetAt       *time.Time
		wantAllowed   bool
		wantRemaining int
	}{
		{name: "one below limit", used: 9, resetAt: future, wantAllowed: true, wantRemaining: 1},
		{name: "at limit", used: 10, resetAt: future, wantAllowed: false, wantRemaining: 0},
		{name: "over limit floors remaining", used: 12, resetAt: future, wantAllowed: false, wantRemaining: 0},
		{name: "window elapsed", used: 10, resetAt: past, wantAllowed: true, wantRemaining: 10},
		{name: "window never set", used: 10, resetAt: nil, wantAllowed: true, wantRemaining: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			db := testutils.NewTestDB(t)
			testutils.SeedFreeUser(t, db, "free-user", 10, tt.used, tt.resetAt)
			svc := newService(t, db, ratelimit.Config{})

			// Act
			d, err := svc.CheckLimits(context.Background(), "free-user", 1)

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tt.wantAllowed, d.Allowed)
			assert.Equal(t, tt.wantRemaining, d.RemainingCredits)
			assert.Equal(t, models.PlanFree, d.PlanType)
			if !tt.wantAllowed {
				assert.Equal(t, models.ReasonDailyLimitReached, d.Reason)
				require.NotNil(t, d.ResetAt)
				assert.True(t, d.ResetAt.Equal(*tt.resetAt))
			}
		})
	}
}

func TestCheckLimits_ProBoundary(t *testing.T) {
	resetAt := ptr(fixedNow.Add(10 * 24 * time.Hour))

	tests := []struct {
		name        string
		used        int
		cost        int
		wantAllowed bool
	}{
		{name: "exactly reaches limit", used: 95, cost: 5, wantAllowed: true},
		{name: "one over limit", used: 95, cost: 6, wantAllowed: false},
		{name: "already exhausted", used: 100, cost: 1, wantAllowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			db := testutils.NewTestDB(t)
			testutils.SeedProUser(t, db, "pro-user", 100, tt.used, resetAt)
			svc := newService(t, db, ratelimit.Config{})

			// Act
			d, err := svc.CheckLimits(context.Background(), "pro-user", tt.cost)

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tt.wantAllowed, d.Allowed)
			assert.Equal(t, 100-tt.used, d.RemainingCredits)
			if !tt.wantAllowed {
				assert.Equal(t, models.ReasonInsufficientCredits, d.Reason)
				require.NotNil(t, d.ResetAt)
			}
		})
	}
}

func TestCheckLimits_PaidFallsBackToPlanCredits(t *testing.T) {
	// Arrange
	db := testutils.NewTestDB(t)
	testutils.SeedProUser(t, db, "pro-user", 50, 40, nil)
	require.NoError(t, db.Model(&models.UsageRecord{}).Where("user_id = ?", "pro-user").
		Update("monthly_credits_limit", 0).Error)
	svc := newService(t, db, ratelimit.Config{})

	// Act
	d, err := svc.CheckLimits(context.Background(), "pro-user", 10)

	// Assert
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 10, d.RemainingCredits)
}

func TestCheckLimits_MissingRows(t *testing.T) {
	t.Run("no profile", func(t *testing.T) {
		// Arrange
		svc := newService(t, testutils.NewTestDB(t), ratelimit.Config{})

		// Act
		d, err := svc.CheckLimits(context.Background(), "ghost", 1)

		// Assert
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, models.ReasonUserNotFound, d.Reason)
	})

	t.Run("no plan config", func(t *testing.T) {
		// Arrange
		db := testutils.NewTestDB(t)
		require.NoError(t, db.Create(&models.Profile{ID: "u1", PlanType: models.PlanEnterprise}).Error)
		svc := newService(t, db, ratelimit.Config{})

		// Act
		d, err := svc.CheckLimits(context.Background(), "u1", 1)

		// Assert
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, models.ReasonPlanConfigNotFound, d.Reason)
	})

	t.Run("no usage row", func(t *testing.T) {
		// Arrange
		db := testutils.NewTestDB(t)
		testutils.SeedFreeUser(t, db, "u1", 10, 0, nil)
		require.NoError(t, db.Where("user_id = ?", "u1").Delete(&models.UsageRecord{}).Error)
		svc := newService(t, db, ratelimit.Config{})

		// Act
		d, err := svc.CheckLimits(context.Background(), "u1", 1)

		// Assert
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, models.ReasonUsageNotFound, d.Reason)
	})
}

func TestCheckLimits_LedgerErrorIsReturned(t *testing.T) {
	// Arrange
	ledger := &mocks.MockLedger{}
	ledger.On("PlanType", mock.Anything, "u1").Return(models.PlanType(""), errors.New("connection refused"))
	svc, err := ratelimit.NewService(ratelimit.Config{Ledger: ledger})
	require.NoError(t, err)

	// Act
	d, err := svc.CheckLimits(context.Background(), "u1", 1)

	// Assert
	assert.Error(t, err)
	assert.Nil(t, d)
}

func TestRecordUsage_FreeResetsElapsedWindow(t *testing.T) {
	// Arrange
	db := testutils.NewTestDB(t)
	testutils.SeedFreeUser(t, db, "u1", 10, 10, ptr(fixedNow.Add(-time.Hour)))
	svc := newService(t, db, ratelimit.Config{})

	// Act
	svc.RecordUsage(context.Background(), "u1", ratelimit.Usage{CreditsUsed: 1, TokensUsed: 42})

	// Assert
	var usage models.UsageRecord
	require.NoError(t, db.Take(&usage, "user_id = ?", "u1").Error)
	assert.Equal(t, 1, usage.DailyInteractions)
	assert.Equal(t, int64(42), usage.TotalTokensUsed)
	require.NotNil(t, usage.DailyResetAt)
	assert.True(t, usage.DailyResetAt.Equal(fixedNow.Add(24*time.Hour)))
}

func TestRecordUsage_FreeIncrementsWithinWindow(t *testing.T) {
	// Arrange
	db := testutils.NewTestDB(t)
	resetAt := fixedNow.Add(time.Hour)
	testutils.SeedFreeUser(t, db, "u1", 10, 3, &resetAt)
	svc := newService(t, db, ratelimit.Config{})

	// Act
	svc.RecordUsage(context.Background(), "u1", ratelimit.Usage{CreditsUsed: 1, TokensUsed: 5})
	svc.RecordUsage(context.Background(), "u1", ratelimit.Usage{CreditsUsed: 1, TokensUsed: 5})

	// Assert
	var usage models.UsageRecord
	require.NoError(t, db.Take(&usage, "user_id = ?", "u1").Error)
	assert.Equal(t, 5, usage.DailyInteractions)
	assert.Equal(t, int64(10), usage.TotalTokensUsed)
	assert.True(t, usage.DailyResetAt.Equal(resetAt))
}

func TestRecordUsage_PaidAddsCreditsAndLogs(t *testing.T) {
	// Arrange
	db := testutils.NewTestDB(t)
	testutils.SeedProUser(t, db, "u1", 100, 10, nil)
	logs := &mocks.MockUsageLogs{}
	publisher := &mocks.MockPublisher{}
	logs.On("Add", mock.Anything, mock.MatchedBy(func(e *models.UsageLog) bool {
		return e.UserID == "u1" && e.CreditsUsed == 7 && e.Action == ratelimit.ActionChat && e.Model == "openai/gpt-4o"
	})).Return(nil)
	publisher.On("Publish", mock.Anything, "usage.events", mock.MatchedBy(func(e models.UsageEvent) bool {
		return e.UserID == "u1" && e.PlanType == models.PlanPro && e.CreditsUsed == 7
	})).Return(nil)
	svc := newService(t, db, ratelimit.Config{UsageLogs: logs, Publisher: publisher, UsageQueue: "usage.events"})

	// Act
	svc.RecordUsage(context.Background(), "u1", ratelimit.Usage{CreditsUsed: 7, TokensUsed: 300, Model: "openai/gpt-4o"})

	// Assert
	var usage models.UsageRecord
	require.NoError(t, db.Take(&usage, "user_id = ?", "u1").Error)
	assert.Equal(t, 17, usage.MonthlyCreditsUsed)
	assert.Equal(t, int64(300), usage.TotalTokensUsed)
	logs.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestRecordUsage_FailuresAreSwallowed(t *testing.T) {
	// Arrange
	ledger := &mocks.MockLedger{}
	logs := &mocks.MockUsageLogs{}
	publisher := &mocks.MockPublisher{}
	ledger.On("PlanType", mock.Anything, "u1").Return(models.PlanPro, nil)
	ledger.On("IncrementPaid", mock.Anything, "u1", 2, 10, mock.Anything).Return(errors.New("deadlock"))
	logs.On("Add", mock.Anything, mock.Anything).Return(errors.New("mongo down"))
	publisher.On("Publish", mock.Anything, "q", mock.Anything).Return(errors.New("broker down"))
	svc, err := ratelimit.NewService(ratelimit.Config{Ledger: ledger, UsageLogs: logs, Publisher: publisher, UsageQueue: "q"})
	require.NoError(t, err)

	// Act
	assert.NotPanics(t, func() {
		svc.RecordUsage(context.Background(), "u1", ratelimit.Usage{CreditsUsed: 2, TokensUsed: 10})
	})

	// Assert
	ledger.AssertExpectations(t)
	logs.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestRecordUsage_UnknownUserStopsEarly(t *testing.T) {
	// Arrange
	ledger := &mocks.MockLedger{}
	logs := &mocks.MockUsageLogs{}
	ledger.On("PlanType", mock.Anything, "ghost").Return(models.PlanType(""), ratelimit.ErrNotFound)
	svc, err := ratelimit.NewService(ratelimit.Config{Ledger: ledger, UsageLogs: logs})
	require.NoError(t, err)

	// Act
	svc.RecordUsage(context.Background(), "ghost", ratelimit.Usage{CreditsUsed: 1})

	// Assert
	ledger.AssertNotCalled(t, "IncrementFree", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	logs.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
}

func TestRecordUsage_SideEffectsRunInBackground(t *testing.T) {
	// Arrange
	db := testutils.NewTestDB(t)
	testutils.SeedProUser(t, db, "u1", 100, 0, nil)
	logs := &mocks.MockUsageLogs{}
	publisher := &mocks.MockPublisher{}
	logs.On("Add", mock.Anything, mock.Anything).Return(nil).Times(3)
	publisher.On("Publish", mock.Anything, "usage.events", mock.Anything).Return(nil).Times(3)
	svc := newService(t, db, ratelimit.Config{
		UsageLogs:         logs,
		Publisher:         publisher,
		UsageQueue:        "usage.events",
		SideEffectWorkers: 2,
	})

	// Act
	for i := 0; i < 3; i++ {
		svc.RecordUsage(context.Background(), "u1", ratelimit.Usage{CreditsUsed: 1, TokensUsed: 10})
	}
	svc.Close()

	// Assert
	var usage models.UsageRecord
	require.NoError(t, db.Take(&usage, "user_id = ?", "u1").Error)
	assert.Equal(t, 3, usage.MonthlyCreditsUsed)
	logs.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestRecordUsage_AfterCloseDropsSideEffects(t *testing.T) {
	// Arrange
	db := testutils.NewTestDB(t)
	testutils.SeedProUser(t, db, "u1", 100, 0, nil)
	logs := &mocks.MockUsageLogs{}
	svc := newService(t, db, ratelimit.Config{UsageLogs: logs, SideEffectWorkers: 1})
	svc.Close()

	// Act
	svc.RecordUsage(context.Background(), "u1", ratelimit.Usage{CreditsUsed: 4})
	svc.Close()

	// Assert
	var usage models.UsageRecord
	require.NoError(t, db.Take(&usage, "user_id = ?", "u1").Error)
	assert.Equal(t, 4, usage.MonthlyCreditsUsed)
	logs.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
}
