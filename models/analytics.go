package models

import "time"

type TopReferrerResult struct {
	ReferrerPage string `json:"referrer_page"`
	Count        uint64 `json:"count"`
}

type EventTypeCountByTime struct {
	Time      time.Time `json:"time"`
	EventType *string   `json:"event_type,omitempty"`
	Count     uint64    `json:"count"`
}

type GameInterest struct {
	GameID     int64     `json:"game_id"`
	ViewCount  uint64    `json:"view_count"`
	LastViewed time.Time `json:"last_viewed"`
}

// CustomerInsights summarises one user's recorded activity.
type CustomerInsights struct {
	UserID          int64          `json:"user_id"`
	AvgViewingTime  int64          `json:"avg_viewing_time"`
	RecentInterests []GameInterest `json:"recent_interests"`
	EngagementScore int            `json:"engagement_score"`
}

type LastViewedGames struct {
	LastViewedGames []int64 `json:"last_viewed_games"`
}

// Response is the status/message/data envelope used by the lookup endpoints.
type Response[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    *T     `json:"data,omitempty"`
}
