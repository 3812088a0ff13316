package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamestore/api/models"
)

type fakeStats struct {
	interval   string
	start, end time.Time
	eventType  string
	limit      uint64
	userID     int64
	err        error
}

func (f *fakeStats) GetEventCountsOverTime(_ context.Context, interval string, start, end time.Time, eventType string) ([]models.EventTypeCountByTime, error) {
	f.interval, f.start, f.end, f.eventType = interval, start, end, eventType
	return []models.EventTypeCountByTime{{Time: start, Count: 3}}, f.err
}

func (f *fakeStats) GetAverageTimeSpent(_ context.Context, eventType string, start, end time.Time) (float64, error) {
	f.eventType, f.start, f.end = eventType, start, end
	return 42.5, f.err
}

func (f *fakeStats) GetUniqueUsersOverTime(_ context.Context, interval string, start, end time.Time) ([]models.EventTypeCountByTime, error) {
	f.interval, f.start, f.end = interval, start, end
	return []models.EventTypeCountByTime{}, f.err
}

func (f *fakeStats) GetTopReferrers(_ context.Context, start, end time.Time, limit uint64) ([]models.TopReferrerResult, error) {
	f.start, f.end, f.limit = start, end, limit
	return []models.TopReferrerResult{{ReferrerPage: "/home", Count: 9}}, f.err
}

func (f *fakeStats) GetCustomerInsights(_ context.Context, userID int64, _ time.Time) (*models.CustomerInsights, error) {
	f.userID = userID
	if f.err != nil {
		return nil, f.err
	}
	return &models.CustomerInsights{UserID: userID, RecentInterests: []models.GameInterest{}, EngagementScore: 30}, nil
}

var statsNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newStatsRouter(stats StatsReader) *gin.Engine {
	h := NewStatsHandlers(stats, discard)
	h.now = func() time.Time { return statsNow }
	r := gin.New()
	g := r.Group("/api/v1/stats")
	g.GET("/event-counts", h.GetEventCountsOverTime)
	g.GET("/average-time-spent", h.GetAverageTimeSpent)
	g.GET("/unique-users", h.GetUniqueUsersOverTime)
	g.GET("/top-referrers", h.GetTopReferrers)
	r.GET("/api/v1/customer/insights", h.GetCustomerInsights)
	return r
}

func TestEventCountsDefaultsToLastWeek(t *testing.T) {
	stats := &fakeStats{}
	rec := get(newStatsRouter(stats), "/api/v1/stats/event-counts?interval=Day&eventType=view")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Day", stats.interval)
	assert.Equal(t, "VIEW", stats.eventType)
	assert.Equal(t, statsNow.Add(-7*24*time.Hour), stats.start)
	assert.Equal(t, statsNow, stats.end)
}

func TestEventCountsRejectsBadInterval(t *testing.T) {
	r := newStatsRouter(&fakeStats{})
	assert.Equal(t, http.StatusBadRequest, get(r, "/api/v1/stats/event-counts").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, "/api/v1/stats/event-counts?interval=Fortnight").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, "/api/v1/stats/unique-users?interval=day").Code)
}

func TestStatsRejectBadTimeRange(t *testing.T) {
	r := newStatsRouter(&fakeStats{})
	assert.Equal(t, http.StatusBadRequest, get(r, "/api/v1/stats/average-time-spent?start=yesterday").Code)
	assert.Equal(t, http.StatusBadRequest,
		get(r, "/api/v1/stats/average-time-spent?start=2024-03-02T00:00:00Z&end=2024-03-01T00:00:00Z").Code)
}

func TestAverageTimeSpent(t *testing.T) {
	stats := &fakeStats{}
	rec := get(newStatsRouter(stats), "/api/v1/stats/average-time-spent?start=2024-03-01T00:00:00Z&end=2024-03-02T00:00:00Z")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"eventType": "",
		"startDate": "2024-03-01T00:00:00Z",
		"endDate": "2024-03-02T00:00:00Z",
		"averageTimeSpentSeconds": 42.5
	}`, rec.Body.String())
}

func TestTopReferrersLimit(t *testing.T) {
	stats := &fakeStats{}
	r := newStatsRouter(stats)

	rec := get(r, "/api/v1/stats/top-referrers?limit=3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(3), stats.limit)
	assert.JSONEq(t, `[{"referrer_page":"/home","count":9}]`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, get(r, "/api/v1/stats/top-referrers?limit=0").Code)
}

func TestCustomerInsights(t *testing.T) {
	stats := &fakeStats{}
	r := newStatsRouter(stats)

	rec := get(r, "/api/v1/customer/insights?user_id=7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), stats.userID)
	assert.JSONEq(t, `{"user_id":7,"avg_viewing_time":0,"recent_interests":[],"engagement_score":30}`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, get(r, "/api/v1/customer/insights").Code)
}

func TestStatsStoreFailure(t *testing.T) {
	r := newStatsRouter(&fakeStats{err: errors.New("clickhouse unavailable")})

	rec := get(r, "/api/v1/stats/unique-users?interval=Hour")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "clickhouse unavailable")
}
