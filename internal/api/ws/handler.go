// Package ws serves the chat WebSocket endpoint.
package ws

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/myworkflows/chat-service/internal/domain/models"
	"github.com/myworkflows/chat-service/internal/services/bridge"
	"github.com/myworkflows/chat-service/internal/services/conversation"
	"github.com/myworkflows/chat-service/internal/services/identity"
	"github.com/myworkflows/chat-service/internal/services/session"
	"github.com/myworkflows/chat-service/internal/services/turncache"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultPingInterval    = 30 * time.Second
	DefaultPongWait        = 60 * time.Second
	DefaultWriteWait       = 10 * time.Second
	DefaultMaxMessageBytes = 64 * 1024
)

// Throttler limits inbound messages per user.
type Throttler interface {
	Allow(ctx context.Context, key string) bool
}

// Config holds the collaborators and tuning of a Handler.
type Config struct {
	Verifier          identity.Verifier
	Sessions          session.Store
	Store             conversation.Store
	Bridge            bridge.Processor
	TurnCache         turncache.Service // optional
	Throttle          Throttler         // optional
	PingInterval      time.Duration
	PongWait          time.Duration
	WriteWait         time.Duration
	MaxMessageBytes   int64
	HistoryLimit      int
	GeneralWorkflowID string
	AllowedOrigins    []string // empty allows any origin
	Logger            *zerolog.Logger
}

// Handler upgrades authenticated requests and runs one connection per socket.
type Handler struct {
	verifier     identity.Verifier
	sessions     session.Store
	store        conversation.Store
	bridge       bridge.Processor
	turnCache    turncache.Service
	throttle     Throttler
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	pongWait     time.Duration
	writeWait    time.Duration
	maxMessage   int64
	historyLimit int
	generalID    string
	newID        func() (string, error)
	logger       zerolog.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Verifier == nil {
		return nil, errors.New("token verifier is required")
	}
	if cfg.Sessions == nil || cfg.Store == nil || cfg.Bridge == nil {
		return nil, errors.New("session store, conversation store and bridge are required")
	}

	h := &Handler{
		verifier:     cfg.Verifier,
		sessions:     cfg.Sessions,
		store:        cfg.Store,
		bridge:       cfg.Bridge,
		turnCache:    cfg.TurnCache,
		throttle:     cfg.Throttle,
		pingInterval: cfg.PingInterval,
		pongWait:     cfg.PongWait,
		writeWait:    cfg.WriteWait,
		maxMessage:   cfg.MaxMessageBytes,
		historyLimit: cfg.HistoryLimit,
		generalID:    cfg.GeneralWorkflowID,
		newID:        newConnectionID,
		logger:       log.Logger,
	}
	if h.pingInterval <= 0 {
		h.pingInterval = DefaultPingInterval
	}
	if h.pongWait <= 0 {
		h.pongWait = DefaultPongWait
	}
	if h.writeWait <= 0 {
		h.writeWait = DefaultWriteWait
	}
	if h.maxMessage <= 0 {
		h.maxMessage = DefaultMaxMessageBytes
	}
	if h.historyLimit <= 0 {
		h.historyLimit = conversation.DefaultListLimit
	}
	if h.generalID == "" {
		h.generalID = bridge.DefaultGeneralWorkflowID
	}
	if cfg.Logger != nil {
		h.logger = *cfg.Logger
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h, nil
}

// SetIDGenerator replaces the connection id source.
func (h *Handler) SetIDGenerator(fn func() (string, error)) {
	h.newID = fn
}

// Handle mounts the handler on a gin route.
//
// @Summary      Chat WebSocket
// @Description  Upgrades to a WebSocket carrying the chat protocol. The access token is read from the Authorization header or the token query parameter.
// @Tags         chat
// @Param        token  query  string  false  "Access token"
// @Success      101
// @Router       /ws [get]
func (h *Handler) Handle(c *gin.Context) {
	h.ServeHTTP(c.Writer, c.Request)
}

// ServeHTTP verifies the token, upgrades and serves the connection until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := identity.TokenFromRequest(r)
	userID, authErr := h.verifier.VerifySubject(token)

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	if authErr != nil {
		h.logger.Info().Err(authErr).Str("remote_addr", r.RemoteAddr).Msg("rejecting unauthenticated websocket")
		h.reject(wsConn, websocket.ClosePolicyViolation, "Unauthorized")
		return
	}

	connID, err := h.newID()
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to allocate connection id")
		h.reject(wsConn, websocket.CloseInternalServerErr, "Internal error")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{
		h:      h,
		ws:     wsConn,
		id:     connID,
		userID: userID,
		ctx:    ctx,
		cancel: cancel,
		logger: h.logger.With().Str("connection_id", connID).Str("user_id", userID).Logger(),
	}

	h.sessions.Add(&models.Session{
		ConnectionID: connID,
		UserID:       userID,
		AuthToken:    token,
		ConnectedAt:  time.Now().UTC(),
	})
	c.logger.Info().Int("open_sessions", h.sessions.Count()).Msg("websocket connected")

	c.run()
}

func (h *Handler) reject(wsConn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(h.writeWait)
	if err := wsConn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline); err != nil {
		h.logger.Debug().Err(err).Msg("failed to send close frame")
	}
	_ = wsConn.Close()
}

func newConnectionID() (string, error) {
	id, err := ulid.New(ulid.Now(), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	_, wildcard := set["*"]
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || wildcard {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
