package docdb

import (
	"context"
	"time"

	"github.com/myworkflows/chat-service/internal/domain/models"
)

// UsageLogsCollection is the append-only audit trail of recorded usage.
type UsageLogsCollection interface {
	// Add appends an entry. ID and CreatedAt are filled in when empty.
	Add(ctx context.Context, entry *models.UsageLog) error

	// ListByUser returns the newest entries of a user first.
	ListByUser(ctx context.Context, userID string, limit int64) ([]*models.UsageLog, error)

	// CountByUserSince counts a user's entries created at or after since.
	CountByUserSince(ctx context.Context, userID string, since time.Time) (int64, error)
}
