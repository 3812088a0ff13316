package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gamestore/api/models"
)

func TestKeys(t *testing.T) {
	require.Equal(t, "session:insights:abc", SessionKey("abc"))
	require.Equal(t, "last_viewed:42", LastViewedKey(42))
}

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, err := m.GenerateJWT(&models.User{ID: 7, Email: "a@b.c"})
	require.NoError(t, err)

	claims, err := m.ValidateJWT(token)
	require.NoError(t, err)
	require.EqualValues(t, 7, claims.UserID)
	require.Equal(t, "a@b.c", claims.Email)

	_, err = NewJWTManager("other", time.Hour).ValidateJWT(token)
	require.Error(t, err)
}

func TestJWTExpired(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	m.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err := m.GenerateJWT(&models.User{ID: 1})
	require.NoError(t, err)

	_, err = m.ValidateJWT(token)
	require.Error(t, err)
}

func TestJWTWithoutSecret(t *testing.T) {
	_, err := NewJWTManager("", time.Hour).GenerateJWT(&models.User{ID: 1})
	require.Error(t, err)
}

func TestParseTimeRange(t *testing.T) {
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	start, end, err := ParseTimeRange("", "", now)
	require.NoError(t, err)
	require.Equal(t, now.Add(-7*24*time.Hour), start)
	require.Equal(t, now, end)

	start, _, err = ParseTimeRange("2025-01-01T00:00:00Z", "", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), start)

	_, _, err = ParseTimeRange("yesterday", "", now)
	require.Error(t, err)

	_, _, err = ParseTimeRange("2025-01-09T00:00:00Z", "2025-01-08T00:00:00Z", now)
	require.Error(t, err)
}
