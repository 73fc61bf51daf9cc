package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/myworkflows/chat-service/internal/api/dto"
	"github.com/myworkflows/chat-service/internal/api/middleware"
	domainerrors "github.com/myworkflows/chat-service/internal/domain/errors"
	"github.com/myworkflows/chat-service/internal/domain/models"
	"github.com/myworkflows/chat-service/internal/pkg/tokens"
	"github.com/myworkflows/chat-service/internal/services/ratelimit"
)

// RecentUsageLimit is the number of audit entries returned by GET /usage.
const RecentUsageLimit int64 = 10

// UsageHistory reads the usage audit log.
type UsageHistory interface {
	ListByUser(ctx context.Context, userID string, limit int64) ([]*models.UsageLog, error)
	CountByUserSince(ctx context.Context, userID string, since time.Time) (int64, error)
}

// UsageHandler reports the caller's allowance.
type UsageHandler struct {
	limiter    ratelimit.Limiter
	history    UsageHistory
	upgradeURL string
}

// NewUsageHandler creates a new UsageHandler. history may be nil.
func NewUsageHandler(limiter ratelimit.Limiter, history UsageHistory, upgradeURL string) *UsageHandler {
	return &UsageHandler{limiter: limiter, history: history, upgradeURL: upgradeURL}
}

// GetUsage handles GET /usage
// @Summary Current usage
// @Description Reports whether the caller can afford the cheapest chat turn right now, plus recent audit entries when the audit log is configured
// @Tags Usage
// @Produce json
// @Success 200 {object} dto.UsageResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/usage [get]
func (h *UsageHandler) GetUsage(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)

	decision, err := h.limiter.CheckLimits(ctx, userID, tokens.MinCredits)
	if err != nil {
		middleware.HandleError(c, domainerrors.NewInternalError("failed to check usage", err))
		return
	}

	resp := dto.UsageResponse{
		Allowed:          decision.Allowed,
		PlanType:         decision.PlanType,
		Reason:           decision.Reason,
		RemainingCredits: decision.RemainingCredits,
		ResetAt:          decision.ResetAt,
	}
	if !decision.Allowed {
		resp.UpgradeURL = h.upgradeURL
	}
	h.attachHistory(c, userID, &resp)
	c.JSON(http.StatusOK, resp)
}

// attachHistory adds audit log data. The audit log is best effort, so a
// failed read leaves the fields empty.
func (h *UsageHandler) attachHistory(c *gin.Context, userID string, resp *dto.UsageResponse) {
	if h.history == nil {
		return
	}
	ctx := c.Request.Context()
	logger := middleware.GetRequestLogger(c)

	recent, err := h.history.ListByUser(ctx, userID, RecentUsageLimit)
	if err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("failed to list usage logs")
		return
	}
	count, err := h.history.CountByUserSince(ctx, userID, time.Now().Add(-24*time.Hour))
	if err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("failed to count usage logs")
		return
	}
	resp.Recent = recent
	resp.ActionsLast24h = &count
}
