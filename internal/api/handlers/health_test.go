package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/myworkflows/chat-service/internal/api/dto"
	"github.com/myworkflows/chat-service/internal/api/handlers"
	"github.com/myworkflows/chat-service/internal/mocks"
	"github.com/myworkflows/chat-service/internal/testutils"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		cache      handlers.Pinger
		docdb      handlers.Pinger
		database   handlers.Pinger
		wantStatus int
		want       map[string]string
	}{
		{
			name:       "all healthy",
			cache:      pinger{},
			docdb:      pinger{},
			database:   pinger{},
			wantStatus: http.StatusOK,
			want:       map[string]string{"cache": "healthy", "docdb": "healthy", "database": "healthy"},
		},
		{
			name:       "cache down",
			cache:      pinger{err: errors.New("refused")},
			docdb:      pinger{},
			database:   pinger{},
			wantStatus: http.StatusServiceUnavailable,
			want:       map[string]string{"cache": "unhealthy", "docdb": "healthy", "database": "healthy"},
		},
		{
			name:       "docdb disabled",
			cache:      pinger{},
			database:   pinger{},
			wantStatus: http.StatusOK,
			want:       map[string]string{"cache": "healthy", "docdb": "disabled", "database": "healthy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			h := handlers.NewHealthHandler(tt.cache, tt.docdb, tt.database)
			r := testutils.SetupTestRouter()
			r.GET("/health", h.Health)

			// Act
			w := testutils.PerformRequest(r, http.MethodGet, "/health", nil, nil)

			// Assert
			testutils.AssertStatusCode(t, tt.wantStatus, w)
			var resp dto.HealthResponse
			testutils.ParseJSONResponse(t, w, &resp)
			assert.Equal(t, tt.want, resp.Components)
		})
	}
}

func TestReadyAndLive(t *testing.T) {
	h := handlers.NewHealthHandler(pinger{}, pinger{}, pinger{err: errors.New("down")})
	r := testutils.SetupTestRouter()
	r.GET("/ready", h.Ready)
	r.GET("/live", h.Live)

	ready := testutils.PerformRequest(r, http.MethodGet, "/ready", nil, nil)
	live := testutils.PerformRequest(r, http.MethodGet, "/live", nil, nil)

	assert.Equal(t, http.StatusServiceUnavailable, ready.Code)
	assert.Contains(t, ready.Body.String(), "database unavailable")
	assert.Equal(t, http.StatusOK, live.Code)
}

func TestHealth_DocDBClientUnreachable(t *testing.T) {
	// Arrange
	docDB := mocks.NewMockDocDBClient()
	docDB.On("Ping", mock.Anything).Return(errors.New("server selection timeout"))
	h := handlers.NewHealthHandler(pinger{}, docDB, pinger{})
	r := testutils.SetupTestRouter()
	r.GET("/health", h.Health)

	// Act
	w := testutils.PerformRequest(r, http.MethodGet, "/health", nil, nil)

	// Assert
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"docdb":"unhealthy"`)
	docDB.AssertExpectations(t)
}
