// Package insights derives analytics reports from stored session aggregates.
// Everything here is pure: no I/O, no clocks.
package insights

import (
	"maps"
	"time"

	"gamestore/api/models"
)

// Engagement thresholds. A session reaches a tier when either its page
// views or its duration meets the tier's bound.
const (
	MediumPageViews       = 5
	MediumDurationMinutes = 10
	HighPageViews         = 10
	HighDurationMinutes   = 20
)

// Customer engagement score parameters.
const (
	EngagementWindow          = 7 * 24 * time.Hour
	engagementScoreMultiplier = 10
	engagementScoreMax        = 100
)

// Project builds the insights report for one session aggregate.
func Project(agg models.SessionAggregate) models.SessionInsights {
	duration := DurationMinutes(agg.StartTime, agg.LastActivity)

	var avg *float64
	if agg.PageViews > 0 {
		v := float64(agg.TotalTimeSpent) / float64(agg.PageViews)
		avg = &v
	}

	breakdown := maps.Clone(agg.EventCounts)
	if breakdown == nil {
		breakdown = map[string]int64{}
	}

	return models.SessionInsights{
		SessionID:         agg.SessionID,
		UserID:            agg.UserID,
		StartTime:         agg.StartTime,
		LastActivity:      agg.LastActivity,
		DurationMinutes:   duration,
		PageViews:         agg.PageViews,
		UniqueGamesViewed: len(agg.GamesViewed),
		AvgTimePerPage:    avg,
		EventBreakdown:    breakdown,
		EngagementLevel:   Engagement(agg.PageViews, duration),
	}
}

// DurationMinutes is last minus start in minutes. Missing timestamps and
// out-of-order pairs yield 0.
func DurationMinutes(start, last models.NaiveTime) float64 {
	if start.IsZero() || last.IsZero() {
		return 0
	}
	d := last.Sub(start.Time)
	if d <= 0 {
		return 0
	}
	return d.Seconds() / 60
}

func Engagement(pageViews int64, durationMinutes float64) models.EngagementLevel {
	switch {
	case pageViews >= HighPageViews || durationMinutes >= HighDurationMinutes:
		return models.EngagementHigh
	case pageViews >= MediumPageViews || durationMinutes >= MediumDurationMinutes:
		return models.EngagementMedium
	default:
		return models.EngagementLow
	}
}

// EngagementCutoff is the start of the trailing engagement window. Event
// timestamps are naive and read as UTC wall-clock time, so the cutoff is
// taken on the same clock regardless of the server's zone.
func EngagementCutoff(now time.Time) time.Time {
	return now.UTC().Add(-EngagementWindow)
}

// EngagementScore maps the number of events in the trailing window onto 0-100.
func EngagementScore(recentEvents uint64) int {
	if recentEvents >= engagementScoreMax/engagementScoreMultiplier {
		return engagementScoreMax
	}
	return int(recentEvents) * engagementScoreMultiplier
}
