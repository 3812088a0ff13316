package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kratos/kratos/v2/log"

	"gamestore/api/models"
	"gamestore/api/utils"
)

const statsQueryTimeout = 10 * time.Second

// StatsReader answers the aggregate queries over recorded events.
type StatsReader interface {
	GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventTypeFilter string) ([]models.EventTypeCountByTime, error)
	GetAverageTimeSpent(ctx context.Context, eventTypeFilter string, start, end time.Time) (float64, error)
	GetUniqueUsersOverTime(ctx context.Context, interval string, start, end time.Time) ([]models.EventTypeCountByTime, error)
	GetTopReferrers(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopReferrerResult, error)
	GetCustomerInsights(ctx context.Context, userID int64, now time.Time) (*models.CustomerInsights, error)
}

type StatsHandlers struct {
	Stats StatsReader
	now   func() time.Time
	log   *log.Helper
}

func NewStatsHandlers(stats StatsReader, logger log.Logger) *StatsHandlers {
	return &StatsHandlers{
		Stats: stats,
		now:   time.Now,
		log:   log.NewHelper(log.With(logger, "module", "handlers/stats")),
	}
}

// timeRange reads start/end, writing a 400 and returning false when either
// is malformed.
func (h *StatsHandlers) timeRange(c *gin.Context) (time.Time, time.Time, bool) {
	start, end, err := utils.ParseTimeRange(c.Query("start"), c.Query("end"), h.now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func (h *StatsHandlers) interval(c *gin.Context) (string, bool) {
	interval := c.Query("interval")
	if interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter is required (e.g., 'Day', 'Hour')"})
		return "", false
	}
	if !utils.IsValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval must be one of Minute, Hour, Day, Week, Month, Quarter, Year"})
		return "", false
	}
	return interval, true
}

func eventTypeFilter(c *gin.Context) string {
	return strings.ToUpper(strings.TrimSpace(c.Query("eventType")))
}

func (h *StatsHandlers) GetEventCountsOverTime(c *gin.Context) {
	interval, ok := h.interval(c)
	if !ok {
		return
	}
	start, end, ok := h.timeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), statsQueryTimeout)
	defer cancel()

	results, err := h.Stats.GetEventCountsOverTime(ctx, interval, start, end, eventTypeFilter(c))
	if err != nil {
		h.log.WithContext(ctx).Errorw("msg", "failed to get event counts over time", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve event statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetAverageTimeSpent(c *gin.Context) {
	start, end, ok := h.timeRange(c)
	if !ok {
		return
	}
	filter := eventTypeFilter(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), statsQueryTimeout)
	defer cancel()

	avg, err := h.Stats.GetAverageTimeSpent(ctx, filter, start, end)
	if err != nil {
		h.log.WithContext(ctx).Errorw("msg", "failed to get average time spent", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve average time spent statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"eventType":               filter,
		"startDate":               start.Format(time.RFC3339),
		"endDate":                 end.Format(time.RFC3339),
		"averageTimeSpentSeconds": avg,
	})
}

func (h *StatsHandlers) GetUniqueUsersOverTime(c *gin.Context) {
	interval, ok := h.interval(c)
	if !ok {
		return
	}
	start, end, ok := h.timeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), statsQueryTimeout)
	defer cancel()

	results, err := h.Stats.GetUniqueUsersOverTime(ctx, interval, start, end)
	if err != nil {
		h.log.WithContext(ctx).Errorw("msg", "failed to get unique users over time", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve unique user statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetTopReferrers(c *gin.Context) {
	start, end, ok := h.timeRange(c)
	if !ok {
		return
	}

	var limit uint64 = 10
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be a positive integer."})
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), statsQueryTimeout)
	defer cancel()

	results, err := h.Stats.GetTopReferrers(ctx, start, end, limit)
	if err != nil {
		h.log.WithContext(ctx).Errorw("msg", "failed to get top referrers", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve top referrer statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetCustomerInsights(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter must be a positive integer"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), statsQueryTimeout)
	defer cancel()

	result, err := h.Stats.GetCustomerInsights(ctx, userID, h.now())
	if err != nil {
		h.log.WithContext(ctx).Errorw("msg", "failed to get customer insights", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve customer insights"})
		return
	}
	c.JSON(http.StatusOK, result)
}
