package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/myworkflows/chat-service/internal/core/docdb"
	"github.com/myworkflows/chat-service/internal/domain/models"
)

// MockCollection is a mock implementation of docdb.Collection.
type MockCollection struct {
	mock.Mock
}

// InsertOne inserts a single document.
func (m *MockCollection) InsertOne(ctx context.Context, document interface{}) (interface{}, error) {
	args := m.Called(ctx, document)
	return args.Get(0), args.Error(1)
}

// Find finds multiple documents.
func (m *MockCollection) Find(ctx context.Context, filter interface{}, opts *docdb.FindOptions) (docdb.Cursor, error) {
	args := m.Called(ctx, filter, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(docdb.Cursor), args.Error(1)
}

// CountDocuments counts documents.
func (m *MockCollection) CountDocuments(ctx context.Context, filter interface{}) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

// MockCursor is a mock implementation of docdb.Cursor.
type MockCursor struct {
	mock.Mock
}

// All decodes all documents.
func (m *MockCursor) All(ctx context.Context, results interface{}) error {
	args := m.Called(ctx, results)
	return args.Error(0)
}

// Close closes the cursor.
func (m *MockCursor) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockDatabase is a mock implementation of docdb.Database.
type MockDatabase struct {
	mock.Mock
}

// Collection returns a collection.
func (m *MockDatabase) Collection(name string) docdb.Collection {
	args := m.Called(name)
	return args.Get(0).(docdb.Collection)
}

// MockUsageLogs is a mock implementation of docdb.UsageLogsCollection.
type MockUsageLogs struct {
	mock.Mock
}

// Add appends an entry.
func (m *MockUsageLogs) Add(ctx context.Context, entry *models.UsageLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// ListByUser lists a user's entries.
func (m *MockUsageLogs) ListByUser(ctx context.Context, userID string, limit int64) ([]*models.UsageLog, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.UsageLog), args.Error(1)
}

// CountByUserSince counts a user's entries since a point in time.
func (m *MockUsageLogs) CountByUserSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	args := m.Called(ctx, userID, since)
	return args.Get(0).(int64), args.Error(1)
}

// MockDocDBClient is a mock implementation of docdb.Client.
type MockDocDBClient struct {
	mock.Mock
	usageLogs *MockUsageLogs
	database  *MockDatabase
}

// NewMockDocDBClient creates a new MockDocDBClient.
func NewMockDocDBClient() *MockDocDBClient {
	return &MockDocDBClient{
		usageLogs: &MockUsageLogs{},
		database:  &MockDatabase{},
	}
}

// Database returns the database.
func (m *MockDocDBClient) Database() docdb.Database {
	return m.database
}

// UsageLogs returns the usage log collection.
func (m *MockDocDBClient) UsageLogs() docdb.UsageLogsCollection {
	return m.usageLogs
}

// GetUsageLogs returns the concrete mock for setting expectations.
func (m *MockDocDBClient) GetUsageLogs() *MockUsageLogs {
	return m.usageLogs
}

// EnsureIndexes creates indexes.
func (m *MockDocDBClient) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Ping checks the connection.
func (m *MockDocDBClient) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close closes the connection.
func (m *MockDocDBClient) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
