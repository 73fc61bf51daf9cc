package testutils

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/myworkflows/chat-service/internal/domain/models"
	"github.com/myworkflows/chat-service/internal/infrastructure/sqldb"
)

// NewTestDB opens a private in-memory SQLite database with all tables migrated.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single connection serializes writers and keeps the memory database alive
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, sqldb.Migrate(db))
	return db
}

// SeedFreeUser creates a free-plan profile, plan config and usage row.
func SeedFreeUser(t *testing.T, db *gorm.DB, userID string, dailyLimit, used int, resetAt *time.Time) {
	t.Helper()
	require.NoError(t, db.Save(&models.PlanConfig{PlanType: models.PlanFree, DisplayName: "Free", DailyInteractionsLimit: dailyLimit}).Error)
	require.NoError(t, db.Create(&models.Profile{ID: userID, Email: userID + "@example.com", PlanType: models.PlanFree}).Error)
	require.NoError(t, db.Create(&models.UsageRecord{UserID: userID, DailyInteractions: used, DailyResetAt: resetAt}).Error)
}

// SeedProUser creates a pro-plan profile, plan config and usage row.
func SeedProUser(t *testing.T, db *gorm.DB, userID string, creditsLimit, used int, resetAt *time.Time) {
	t.Helper()
	require.NoError(t, db.Save(&models.PlanConfig{PlanType: models.PlanPro, DisplayName: "Pro", MonthlyCredits: creditsLimit}).Error)
	require.NoError(t, db.Create(&models.Profile{ID: userID, Email: userID + "@example.com", PlanType: models.PlanPro}).Error)
	require.NoError(t, db.Create(&models.UsageRecord{UserID: userID, MonthlyCreditsUsed: used, MonthlyCreditsLimit: creditsLimit, CreditsResetAt: resetAt}).Error)
}
