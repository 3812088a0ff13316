package insights

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamestore/api/models"
)

func session(pageViews int64, duration time.Duration) models.SessionAggregate {
	start := models.NewNaiveTime(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))
	return models.SessionAggregate{
		UserID:       123,
		SessionID:    "s1",
		StartTime:    start,
		LastActivity: models.NewNaiveTime(start.Add(duration)),
		PageViews:    pageViews,
	}
}

func TestEngagementTiers(t *testing.T) {
	cases := []struct {
		name      string
		pageViews int64
		duration  time.Duration
		want      models.EngagementLevel
	}{
		{"quiet session", 3, 5 * time.Minute, models.EngagementLow},
		{"medium by views", 5, 5 * time.Minute, models.EngagementMedium},
		{"high by views", 10, 5 * time.Minute, models.EngagementHigh},
		{"high by duration alone", 2, 25 * time.Minute, models.EngagementHigh},
		{"medium by duration alone", 0, 10 * time.Minute, models.EngagementMedium},
		{"just under medium", 4, 9*time.Minute + 59*time.Second, models.EngagementLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := Project(session(tc.pageViews, tc.duration))
			assert.Equal(t, tc.want, report.EngagementLevel)
		})
	}
}

func TestAverageTimePerPage(t *testing.T) {
	agg := session(0, time.Minute)
	agg.TotalTimeSpent = 90
	require.Nil(t, Project(agg).AvgTimePerPage)

	agg.PageViews = 4
	avg := Project(agg).AvgTimePerPage
	require.NotNil(t, avg)
	require.InDelta(t, 22.5, *avg, 1e-9)
}

func TestDurationMinutes(t *testing.T) {
	report := Project(session(1, 90*time.Second))
	require.InDelta(t, 1.5, report.DurationMinutes, 1e-9)

	missing := session(1, time.Minute)
	missing.StartTime = models.NaiveTime{}
	require.Zero(t, Project(missing).DurationMinutes)

	backwards := session(1, -5*time.Minute)
	require.Zero(t, Project(backwards).DurationMinutes)
}

func TestProjectCopiesAggregateFields(t *testing.T) {
	agg := session(2, time.Minute)
	agg.GamesViewed = []int64{1, 2, 3}
	agg.EventCounts = map[string]int64{"VIEW": 2, "CLICK": 1}

	report := Project(agg)
	require.Equal(t, "s1", report.SessionID)
	require.EqualValues(t, 123, report.UserID)
	require.Equal(t, 3, report.UniqueGamesViewed)
	require.Equal(t, agg.EventCounts, report.EventBreakdown)

	report.EventBreakdown["VIEW"] = 99
	require.EqualValues(t, 2, agg.EventCounts["VIEW"])

	require.NotNil(t, Project(models.SessionAggregate{}).EventBreakdown)
}

func TestEngagementScore(t *testing.T) {
	require.Equal(t, 0, EngagementScore(0))
	require.Equal(t, 30, EngagementScore(3))
	require.Equal(t, 100, EngagementScore(10))
	require.Equal(t, 100, EngagementScore(250))
}

func TestEngagementCutoffUsesUTCWallClock(t *testing.T) {
	local := time.FixedZone("UTC+5", 5*60*60)
	now := time.Date(2025, 6, 8, 15, 0, 0, 0, local)

	cutoff := EngagementCutoff(now)

	require.Equal(t, time.UTC, cutoff.Location())
	require.Equal(t, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), cutoff)
}
