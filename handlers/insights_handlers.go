package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-kratos/kratos/v2/log"

	"gamestore/api/insights"
	"gamestore/api/models"
	"gamestore/api/store"
	"gamestore/api/telemetry"
)

const (
	sessionInsightsCache = "session_insights"
	recentItemsCache     = "recent_items"
)

type SessionReader interface {
	GetSession(ctx context.Context, sessionID string) (*models.SessionAggregate, error)
}

type RecentItemsReader interface {
	GetRecent(ctx context.Context, userID int64, count int) ([]int64, error)
}

// InsightsHandlers serves the real-time views kept in Redis.
type InsightsHandlers struct {
	Sessions    SessionReader
	RecentItems RecentItemsReader
	recentCount int
	cache       *telemetry.CacheMetrics
	log         *log.Helper
}

// NewInsightsHandlers wires the Redis readers. cache may be nil.
func NewInsightsHandlers(sessions SessionReader, recent RecentItemsReader, recentCount int, cache *telemetry.CacheMetrics, logger log.Logger) *InsightsHandlers {
	if recentCount <= 0 {
		recentCount = store.DefaultRecentItemsWindow
	}
	return &InsightsHandlers{
		Sessions:    sessions,
		RecentItems: recent,
		recentCount: recentCount,
		cache:       cache,
		log:         log.NewHelper(log.With(logger, "module", "handlers/insights")),
	}
}

func (h *InsightsHandlers) GetSessionInsights(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("session_id")

	agg, err := h.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			h.cache.Miss(ctx, sessionInsightsCache)
			c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("Session with ID %s not found", sessionID)})
			return
		}
		h.log.WithContext(ctx).Errorw("msg", "failed to read session", "session_id", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to retrieve session insights"})
		return
	}
	h.cache.Hit(ctx, sessionInsightsCache)

	c.JSON(http.StatusOK, insights.Project(*agg))
}

func (h *InsightsHandlers) GetLastGamesViewed(c *gin.Context) {
	ctx := c.Request.Context()
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "user_id query parameter must be a positive integer"})
		return
	}

	games, err := h.RecentItems.GetRecent(ctx, userID, h.recentCount)
	if err != nil {
		if errors.Is(err, store.ErrNoRecentItems) {
			h.cache.Miss(ctx, recentItemsCache)
			c.Status(http.StatusNoContent)
			return
		}
		h.log.WithContext(ctx).Errorw("msg", "failed to read last viewed games", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to retrieve last viewed games"})
		return
	}
	h.cache.Hit(ctx, recentItemsCache)

	c.JSON(http.StatusOK, models.Response[models.LastViewedGames]{
		Status:  "success",
		Message: "Last viewed games retrieved successfully",
		Data:    &models.LastViewedGames{LastViewedGames: games},
	})
}
