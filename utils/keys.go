package utils

import "fmt"

const (
	sessionInsightsPrefix = "session:insights:"
	lastViewedPrefix      = "last_viewed:"
)

// SessionKey is the Redis hash holding the rolling aggregate of a session.
func SessionKey(sessionID string) string {
	return sessionInsightsPrefix + sessionID
}

// LastViewedKey is the Redis list holding a user's recently viewed games.
func LastViewedKey(userID int64) string {
	return fmt.Sprintf("%s%d", lastViewedPrefix, userID)
}
