package session_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myworkflows/chat-service/internal/domain/models"
	"github.com/myworkflows/chat-service/internal/services/session"
)

func TestMemoryStore_AddGetRemove(t *testing.T) {
	// Arrange
	store := session.NewMemoryStore()
	s := &models.Session{ConnectionID: "conn-1", UserID: "user-1", ConnectedAt: time.Now()}

	// Act
	store.Add(s)
	got, ok := store.Get("conn-1")

	// Assert
	require.True(t, ok)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, 1, store.Count())

	store.Remove("conn-1")
	_, ok = store.Get("conn-1")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Count())
}

func TestMemoryStore_AddIgnoresEmptyConnectionID(t *testing.T) {
	store := session.NewMemoryStore()

	store.Add(nil)
	store.Add(&models.Session{UserID: "user-1"})

	assert.Equal(t, 0, store.Count())
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	// Arrange
	store := session.NewMemoryStore()
	store.Add(&models.Session{ConnectionID: "conn-1", BoundWorkflowID: "wf-1"})

	// Act
	got, _ := store.Get("conn-1")
	got.BoundWorkflowID = "wf-2"

	// Assert
	again, _ := store.Get("conn-1")
	assert.Equal(t, "wf-1", again.BoundWorkflowID)
}

func TestMemoryStore_Update(t *testing.T) {
	// Arrange
	store := session.NewMemoryStore()
	store.Add(&models.Session{ConnectionID: "conn-1"})

	// Act
	updated := store.Update("conn-1", func(s *models.Session) {
		s.BoundWorkflowID = "wf-1"
		s.ChatSessionID = "chat-1"
	})
	missing := store.Update("conn-x", func(s *models.Session) {
		t.Fatal("must not be called for unknown connection")
	})

	// Assert
	assert.True(t, updated)
	assert.False(t, missing)
	got, _ := store.Get("conn-1")
	assert.Equal(t, "wf-1", got.BoundWorkflowID)
	assert.Equal(t, "chat-1", got.ChatSessionID)
}

func TestMemoryStore_ConcurrentConnections(t *testing.T) {
	store := session.NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("conn-%d", i)
			store.Add(&models.Session{ConnectionID: id})
			store.Update(id, func(s *models.Session) { s.BoundWorkflowID = id })
			if i%2 == 0 {
				store.Remove(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, store.Count())
}
