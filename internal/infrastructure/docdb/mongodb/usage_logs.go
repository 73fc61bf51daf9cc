package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/myworkflows/chat-service/internal/core/docdb"
	"github.com/myworkflows/chat-service/internal/domain/models"
)

// UsageLogsCollectionName is the name of the usage audit log collection.
const UsageLogsCollectionName = "usage_logs"

// IndexCreator creates collection indexes.
type IndexCreator interface {
	CreateMany(ctx context.Context, indexes []mongo.IndexModel, opts ...*options.CreateIndexesOptions) ([]string, error)
}

// UsageLogsCollection implements docdb.UsageLogsCollection.
type UsageLogsCollection struct {
	collection docdb.Collection
	indexes    IndexCreator
}

// NewUsageLogsCollection creates a new usage logs collection wrapper.
// indexes may be nil when index management is not needed.
func NewUsageLogsCollection(collection docdb.Collection, indexes IndexCreator) *UsageLogsCollection {
	return &UsageLogsCollection{
		collection: collection,
		indexes:    indexes,
	}
}

// Add appends an entry.
func (c *UsageLogsCollection) Add(ctx context.Context, entry *models.UsageLog) error {
	if entry == nil {
		return fmt.Errorf("usage log entry is required")
	}
	if entry.UserID == "" {
		return fmt.Errorf("usage log user ID is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if _, err := c.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert usage log: %w", err)
	}
	return nil
}

// ListByUser returns the newest entries of a user first.
func (c *UsageLogsCollection) ListByUser(ctx context.Context, userID string, limit int64) ([]*models.UsageLog, error) {
	if limit <= 0 {
		limit = 20
	}

	cursor, err := c.collection.Find(ctx, bson.M{"userId": userID}, &docdb.FindOptions{
		Limit: limit,
		Sort:  bson.D{{Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list usage logs: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*models.UsageLog
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode usage logs: %w", err)
	}
	return entries, nil
}

// CountByUserSince counts a user's entries created at or after since.
func (c *UsageLogsCollection) CountByUserSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	count, err := c.collection.CountDocuments(ctx, bson.M{
		"userId":    userID,
		"createdAt": bson.M{"$gte": since},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count usage logs: %w", err)
	}
	return count, nil
}

// EnsureIndexes creates necessary indexes for the collection.
func (c *UsageLogsCollection) EnsureIndexes(ctx context.Context) error {
	if c.indexes == nil {
		return nil
	}
	_, err := c.indexes.CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("idx_user_created"),
		},
		{
			Keys:    bson.D{{Key: "action", Value: 1}},
			Options: options.Index().SetName("idx_action"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create usage log indexes: %w", err)
	}
	return nil
}
