package models

import (
	"strings"
)

// ViewEventType is the only event type that counts as a page view.
const ViewEventType = "VIEW"

// MaxTimeSpentSeconds bounds time_spent on a single event to one day.
const MaxTimeSpentSeconds = 86400

// Event is one user activity event accepted by the ingest endpoint.
type Event struct {
	UserID       int64     `json:"user_id" binding:"required,gt=0"`
	GameID       *int64    `json:"game_id,omitempty" binding:"omitempty,gt=0"`
	EventType    string    `json:"event_type" binding:"required,max=64"`
	SessionID    string    `json:"session_id" binding:"required,max=255"`
	TimeSpent    *int64    `json:"time_spent,omitempty" binding:"omitempty,gte=0,lte=86400"`
	Timestamp    NaiveTime `json:"timestamp"`
	ReferrerPage string    `json:"referrer_page,omitempty" binding:"max=2048"`
}

// Normalize trims free-form fields and upper-cases the event type so that
// "view" and "VIEW" land in the same bucket.
func (e *Event) Normalize() {
	e.EventType = strings.ToUpper(strings.TrimSpace(e.EventType))
	e.SessionID = strings.TrimSpace(e.SessionID)
	e.ReferrerPage = strings.TrimSpace(e.ReferrerPage)
}

func (e *Event) IsView() bool {
	return e.EventType == ViewEventType
}

// IngestedEvent is an Event stamped with the identifiers assigned at
// acceptance time; it is what the durable recorders persist.
type IngestedEvent struct {
	RequestID string
	Event
}

// IngestionResponse is returned synchronously by the ingest endpoint.
type IngestionResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}
