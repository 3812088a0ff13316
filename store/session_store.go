package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"

	"gamestore/api/models"
	"gamestore/api/utils"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionContention is returned when concurrent writers kept
	// invalidating the optimistic transaction on a session key.
	ErrSessionContention = errors.New("session update contention")
)

const (
	DefaultSessionTTL  = 24 * time.Hour
	MaxGamesViewed     = 10
	defaultMaxAttempts = 5
)

// Hash fields of a session aggregate.
const (
	fieldUserID         = "user_id"
	fieldSessionID      = "session_id"
	fieldStartTime      = "start_time"
	fieldLastActivity   = "last_activity"
	fieldPageViews      = "page_views"
	fieldGamesViewed    = "games_viewed"
	fieldTotalTimeSpent = "total_time_spent"
	fieldEventCounts    = "event_counts"
	fieldReferrerPages  = "referrer_pages"
)

// SessionStore maintains the rolling per-session aggregate in Redis.
//
// Each update reads the composite fields under WATCH and submits the whole
// write set in one MULTI/EXEC. A concurrent write to the same session
// aborts the transaction and the update is recomputed from fresh state, so
// increments and list updates are not lost.
type SessionStore struct {
	rdb         redis.UniversalClient
	ttl         time.Duration
	maxAttempts int
	log         *log.Helper

	// afterRead runs between the WATCHed reads and EXEC when set.
	afterRead func(ctx context.Context, key string)
}

func NewSessionStore(rdb redis.UniversalClient, ttl time.Duration, logger log.Logger) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		rdb:         rdb,
		ttl:         ttl,
		maxAttempts: defaultMaxAttempts,
		log:         log.NewHelper(log.With(logger, "module", "store/session")),
	}
}

// ApplyEvent folds one event into the aggregate of event.SessionID and
// refreshes the key's expiry.
func (s *SessionStore) ApplyEvent(ctx context.Context, event *models.Event) error {
	if event == nil || event.SessionID == "" || event.EventType == "" {
		return fmt.Errorf("apply event: event with session id and event type is required")
	}
	key := utils.SessionKey(event.SessionID)

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			return s.applyInTx(ctx, tx, key, event)
		}, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("failed to update session %s: %w", event.SessionID, err)
		}
		s.log.WithContext(ctx).Debugw("msg", "session update raced, retrying", "session_id", event.SessionID, "attempt", attempt)
	}
	s.log.WithContext(ctx).Warnw("msg", "session update abandoned under contention",
		"session_id", event.SessionID, "event_type", event.EventType, "attempts", s.maxAttempts)
	return fmt.Errorf("%w: session %s after %d attempts", ErrSessionContention, event.SessionID, s.maxAttempts)
}

func (s *SessionStore) applyInTx(ctx context.Context, tx *redis.Tx, key string, event *models.Event) error {
	exists, err := tx.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	isNew := exists == 0

	counts := map[string]int64{}
	var games []int64
	var referrers []string
	var pageViews, totalTimeSpent int64
	if !isNew {
		vals, err := tx.HMGet(ctx, key,
			fieldEventCounts, fieldGamesViewed, fieldReferrerPages, fieldPageViews, fieldTotalTimeSpent,
		).Result()
		if err != nil {
			return err
		}
		counts = s.decodeCounts(ctx, event.SessionID, vals[0])
		games = s.decodeGames(ctx, event.SessionID, vals[1])
		referrers = s.decodeReferrers(ctx, event.SessionID, vals[2])
		pageViews = s.decodeCounter(ctx, event.SessionID, fieldPageViews, vals[3])
		totalTimeSpent = s.decodeCounter(ctx, event.SessionID, fieldTotalTimeSpent, vals[4])
	}
	if s.afterRead != nil {
		s.afterRead(ctx, key)
	}

	// Counters are written as absolute values: a corrupt stored value has
	// already degraded to 0, and WATCH guards against lost increments.
	if event.IsView() {
		pageViews = addSaturating(pageViews, 1)
	}
	if event.TimeSpent != nil && *event.TimeSpent > 0 {
		totalTimeSpent = addSaturating(totalTimeSpent, *event.TimeSpent)
	}

	counts[event.EventType]++
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("encode event counts: %w", err)
	}

	gamesChanged := false
	if event.IsView() && event.GameID != nil {
		games, gamesChanged = appendBounded(games, *event.GameID, MaxGamesViewed)
	}
	referrersChanged := false
	if event.ReferrerPage != "" && !slices.Contains(referrers, event.ReferrerPage) {
		referrers = append(referrers, event.ReferrerPage)
		referrersChanged = true
	}

	ts := event.Timestamp.String()

	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if isNew {
			pipe.HSet(ctx, key,
				fieldUserID, strconv.FormatInt(event.UserID, 10),
				fieldSessionID, event.SessionID,
				fieldGamesViewed, "[]",
				fieldReferrerPages, "[]",
			)
		}
		pipe.HSetNX(ctx, key, fieldStartTime, ts)
		pipe.HSet(ctx, key,
			fieldLastActivity, ts,
			fieldEventCounts, string(countsJSON),
			fieldPageViews, strconv.FormatInt(pageViews, 10),
			fieldTotalTimeSpent, strconv.FormatInt(totalTimeSpent, 10),
		)
		if gamesChanged {
			pipe.HSet(ctx, key, fieldGamesViewed, encodeJSON(games))
		}
		if referrersChanged {
			pipe.HSet(ctx, key, fieldReferrerPages, encodeJSON(referrers))
		}
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

// GetSession returns the current aggregate or ErrSessionNotFound when the
// key never existed or has expired.
func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (*models.SessionAggregate, error) {
	fields, err := s.rdb.HGetAll(ctx, utils.SessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}
	if len(fields) == 0 {
		return nil, ErrSessionNotFound
	}

	agg := &models.SessionAggregate{
		SessionID:      sessionID,
		UserID:         s.decodeInt(ctx, sessionID, fieldUserID, fields[fieldUserID]),
		StartTime:      s.decodeTime(ctx, sessionID, fieldStartTime, fields[fieldStartTime]),
		LastActivity:   s.decodeTime(ctx, sessionID, fieldLastActivity, fields[fieldLastActivity]),
		PageViews:      s.decodeCounter(ctx, sessionID, fieldPageViews, fields[fieldPageViews]),
		TotalTimeSpent: s.decodeCounter(ctx, sessionID, fieldTotalTimeSpent, fields[fieldTotalTimeSpent]),
		EventCounts:    s.decodeCounts(ctx, sessionID, fields[fieldEventCounts]),
		GamesViewed:    s.decodeGames(ctx, sessionID, fields[fieldGamesViewed]),
		ReferrerPages:  s.decodeReferrers(ctx, sessionID, fields[fieldReferrerPages]),
	}
	if agg.GamesViewed == nil {
		agg.GamesViewed = []int64{}
	}
	if agg.ReferrerPages == nil {
		agg.ReferrerPages = []string{}
	}
	return agg, nil
}

// appendBounded appends id unless already present and keeps only the last
// limit entries.
func appendBounded(list []int64, id int64, limit int) ([]int64, bool) {
	if slices.Contains(list, id) {
		return list, false
	}
	list = append(list, id)
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	return list, true
}

// addSaturating adds two non-negative counters, pinning at MaxInt64
// instead of wrapping.
func addSaturating(a, b int64) int64 {
	if b > math.MaxInt64-a {
		return math.MaxInt64
	}
	return a + b
}

func encodeJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// Corrupt sub-fields degrade to their empty value; the rest of the update
// still applies.

func (s *SessionStore) decodeCounts(ctx context.Context, sessionID string, raw any) map[string]int64 {
	counts := map[string]int64{}
	if str, ok := raw.(string); ok && str != "" {
		if err := json.Unmarshal([]byte(str), &counts); err != nil {
			s.warnCorrupt(ctx, sessionID, fieldEventCounts, err)
			return map[string]int64{}
		}
	}
	return counts
}

func (s *SessionStore) decodeGames(ctx context.Context, sessionID string, raw any) []int64 {
	var games []int64
	if str, ok := raw.(string); ok && str != "" {
		if err := json.Unmarshal([]byte(str), &games); err != nil {
			s.warnCorrupt(ctx, sessionID, fieldGamesViewed, err)
			return nil
		}
	}
	return games
}

func (s *SessionStore) decodeReferrers(ctx context.Context, sessionID string, raw any) []string {
	var pages []string
	if str, ok := raw.(string); ok && str != "" {
		if err := json.Unmarshal([]byte(str), &pages); err != nil {
			s.warnCorrupt(ctx, sessionID, fieldReferrerPages, err)
			return nil
		}
	}
	return pages
}

func (s *SessionStore) decodeInt(ctx context.Context, sessionID, field, raw string) int64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.warnCorrupt(ctx, sessionID, field, err)
		return 0
	}
	return v
}

// decodeCounter reads a non-negative counter from either an HMGET value or
// an HGETALL string. Unparseable or negative values degrade to 0.
func (s *SessionStore) decodeCounter(ctx context.Context, sessionID, field string, raw any) int64 {
	str, _ := raw.(string)
	v := s.decodeInt(ctx, sessionID, field, str)
	if v < 0 {
		s.warnCorrupt(ctx, sessionID, field, fmt.Errorf("negative counter %d", v))
		return 0
	}
	return v
}

func (s *SessionStore) decodeTime(ctx context.Context, sessionID, field, raw string) models.NaiveTime {
	if raw == "" {
		return models.NaiveTime{}
	}
	t, err := models.ParseNaiveTime(raw)
	if err != nil {
		s.warnCorrupt(ctx, sessionID, field, err)
		return models.NaiveTime{}
	}
	return t
}

func (s *SessionStore) warnCorrupt(ctx context.Context, sessionID, field string, err error) {
	s.log.WithContext(ctx).Warnw("msg", "corrupt session field, using empty default", "session_id", sessionID, "field", field, "error", err)
}
