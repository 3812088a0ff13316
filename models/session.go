package models

// SessionAggregate is the rolling per-session record kept in Redis.
type SessionAggregate struct {
	UserID         int64            `json:"user_id"`
	SessionID      string           `json:"session_id"`
	StartTime      NaiveTime        `json:"start_time"`
	LastActivity   NaiveTime        `json:"last_activity"`
	PageViews      int64            `json:"page_views"`
	GamesViewed    []int64          `json:"games_viewed"`
	TotalTimeSpent int64            `json:"total_time_spent"`
	EventCounts    map[string]int64 `json:"event_counts"`
	ReferrerPages  []string         `json:"referrer_pages"`
}

type EngagementLevel string

const (
	EngagementLow    EngagementLevel = "Low"
	EngagementMedium EngagementLevel = "Medium"
	EngagementHigh   EngagementLevel = "High"
)

// SessionInsights is the derived report served by the session insights
// endpoint. AvgTimePerPage is nil when the session has no page views.
type SessionInsights struct {
	SessionID         string           `json:"session_id"`
	UserID            int64            `json:"user_id"`
	StartTime         NaiveTime        `json:"start_time"`
	LastActivity      NaiveTime        `json:"last_activity"`
	DurationMinutes   float64          `json:"duration_minutes"`
	PageViews         int64            `json:"page_views"`
	UniqueGamesViewed int              `json:"unique_games_viewed"`
	AvgTimePerPage    *float64         `json:"avg_time_per_page"`
	EventBreakdown    map[string]int64 `json:"event_breakdown"`
	EngagementLevel   EngagementLevel  `json:"engagement_level"`
}
