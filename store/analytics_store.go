package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"gamestore/api/database"
	"gamestore/api/insights"
	"gamestore/api/models"
	"gamestore/api/utils"
)

const analyticsEventsSchema = `
CREATE TABLE IF NOT EXISTS analytics_events (
	event_id String,
	event_type LowCardinality(String),
	user_id Int64,
	game_id Nullable(Int64),
	session_id String,
	timestamp DateTime64(6),
	referrer_page String,
	time_spent Nullable(Int64)
) ENGINE = MergeTree
ORDER BY (user_id, timestamp)
`

const recentInterestsLimit = 5

// AnalyticsStore writes ingested events to ClickHouse and serves the
// aggregate statistics built on them.
type AnalyticsStore struct {
	DB  *database.ClickHouseClient
	log *log.Helper
}

func NewAnalyticsStore(chClient *database.ClickHouseClient, logger log.Logger) *AnalyticsStore {
	return &AnalyticsStore{
		DB:  chClient,
		log: log.NewHelper(log.With(logger, "module", "store/analytics")),
	}
}

func (s *AnalyticsStore) Name() string {
	return "clickhouse"
}

func (s *AnalyticsStore) EnsureSchema(ctx context.Context) error {
	if err := s.DB.Conn.Exec(ctx, analyticsEventsSchema); err != nil {
		return fmt.Errorf("failed to create analytics_events table: %w", err)
	}
	return nil
}

func (s *AnalyticsStore) RecordEvent(ctx context.Context, event *models.IngestedEvent) error {
	return s.InsertAnalyticsEvents(ctx, []models.IngestedEvent{*event})
}

func (s *AnalyticsStore) InsertAnalyticsEvents(ctx context.Context, events []models.IngestedEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO analytics_events (
			event_id, event_type, user_id, game_id, session_id, timestamp, referrer_page, time_spent
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, event := range events {
		err := batch.Append(
			event.RequestID,
			event.EventType,
			event.UserID,
			event.GameID,
			event.SessionID,
			event.Timestamp.Time,
			event.ReferrerPage,
			event.TimeSpent,
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append event %s to batch: %w", event.RequestID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	s.log.WithContext(ctx).Debugw("msg", "inserted analytics events", "count", len(events))
	return nil
}

func (s *AnalyticsStore) GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventTypeFilter string) ([]models.EventTypeCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	args := []interface{}{start, end}
	selectCols := fmt.Sprintf("toStartOf%s(timestamp) AS time_bucket, count() AS total_events", interval)
	groupByCols := "time_bucket"
	whereClause := "WHERE timestamp >= ? AND timestamp <= ?"
	orderByCols := "time_bucket ASC"
	isFilteringByType := eventTypeFilter != ""

	if isFilteringByType {
		selectCols += ", event_type"
		groupByCols += ", event_type"
		whereClause += " AND event_type = ?"
		args = append(args, eventTypeFilter)
		orderByCols += ", event_type ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM analytics_events
		%s
		GROUP BY %s
		ORDER BY %s
	`, selectCols, whereClause, groupByCols, orderByCols)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts over time: %w", err)
	}
	defer rows.Close()

	results := []models.EventTypeCountByTime{}
	for rows.Next() {
		var (
			timeBucket  time.Time
			count       uint64
			eventTypeDB string
			current     models.EventTypeCountByTime
		)
		if isFilteringByType {
			if err := rows.Scan(&timeBucket, &count, &eventTypeDB); err != nil {
				return nil, fmt.Errorf("failed to scan event counts row: %w", err)
			}
			current.EventType = &eventTypeDB
		} else if err := rows.Scan(&timeBucket, &count); err != nil {
			return nil, fmt.Errorf("failed to scan event counts row: %w", err)
		}
		current.Time = timeBucket
		current.Count = count
		results = append(results, current)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during event counts over time query: %w", err)
	}
	return results, nil
}

// GetAverageTimeSpent averages the reported time_spent (seconds) of events
// in the window. Events without a time_spent are ignored; no data yields 0.
func (s *AnalyticsStore) GetAverageTimeSpent(ctx context.Context, eventTypeFilter string, start, end time.Time) (float64, error) {
	query := `SELECT avg(time_spent) FROM analytics_events WHERE timestamp >= ? AND timestamp <= ?`
	args := []interface{}{start, end}
	if eventTypeFilter != "" {
		query += ` AND event_type = ?`
		args = append(args, eventTypeFilter)
	}

	var avg float64
	if err := s.DB.Conn.QueryRow(ctx, query, args...).Scan(&avg); err != nil {
		return 0, fmt.Errorf("failed to query average time spent: %w", err)
	}
	// avg() over no rows is NaN, which JSON cannot carry.
	if math.IsNaN(avg) {
		return 0, nil
	}
	return avg, nil
}

func (s *AnalyticsStore) GetUniqueUsersOverTime(ctx context.Context, interval string, start, end time.Time) ([]models.EventTypeCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	query := fmt.Sprintf(`
		SELECT toStartOf%s(timestamp) AS time_bucket, uniq(user_id) AS unique_users
		FROM analytics_events
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY time_bucket
		ORDER BY time_bucket ASC
	`, interval)

	rows, err := s.DB.Conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query unique users over time: %w", err)
	}
	defer rows.Close()

	results := []models.EventTypeCountByTime{}
	for rows.Next() {
		var timeBucket time.Time
		var uniqueUsers uint64
		if err := rows.Scan(&timeBucket, &uniqueUsers); err != nil {
			return nil, fmt.Errorf("failed to scan unique users row: %w", err)
		}
		results = append(results, models.EventTypeCountByTime{Time: timeBucket, Count: uniqueUsers})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for unique users: %w", err)
	}
	return results, nil
}

func (s *AnalyticsStore) GetTopReferrers(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopReferrerResult, error) {
	if limit == 0 {
		limit = 10
	}

	rows, err := s.DB.Conn.Query(ctx, `
		SELECT referrer_page, count() AS hits
		FROM analytics_events
		WHERE referrer_page != '' AND timestamp >= ? AND timestamp <= ?
		GROUP BY referrer_page
		ORDER BY hits DESC
		LIMIT ?
	`, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top referrers: %w", err)
	}
	defer rows.Close()

	results := []models.TopReferrerResult{}
	for rows.Next() {
		var r models.TopReferrerResult
		if err := rows.Scan(&r.ReferrerPage, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan top referrers row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top referrers: %w", err)
	}
	return results, nil
}

// GetCustomerInsights summarises a user's history: recently viewed games,
// average viewing time and an engagement score over the trailing window.
func (s *AnalyticsStore) GetCustomerInsights(ctx context.Context, userID int64, now time.Time) (*models.CustomerInsights, error) {
	result := &models.CustomerInsights{UserID: userID, RecentInterests: []models.GameInterest{}}

	rows, err := s.DB.Conn.Query(ctx, `
		SELECT assumeNotNull(game_id) AS gid, count() AS views, max(timestamp) AS last_viewed
		FROM analytics_events
		WHERE user_id = ? AND event_type = ? AND game_id IS NOT NULL
		GROUP BY gid
		ORDER BY last_viewed DESC
		LIMIT ?
	`, userID, models.ViewEventType, recentInterestsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent interests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var gi models.GameInterest
		if err := rows.Scan(&gi.GameID, &gi.ViewCount, &gi.LastViewed); err != nil {
			return nil, fmt.Errorf("failed to scan recent interest row: %w", err)
		}
		result.RecentInterests = append(result.RecentInterests, gi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for recent interests: %w", err)
	}

	var avg float64
	if err := s.DB.Conn.QueryRow(ctx, `
		SELECT avg(time_spent) FROM analytics_events WHERE user_id = ? AND event_type = ?
	`, userID, models.ViewEventType).Scan(&avg); err != nil {
		return nil, fmt.Errorf("failed to query average viewing time: %w", err)
	}
	if !math.IsNaN(avg) {
		result.AvgViewingTime = int64(avg)
	}

	var recent uint64
	if err := s.DB.Conn.QueryRow(ctx, `
		SELECT count() FROM analytics_events WHERE user_id = ? AND timestamp >= ?
	`, userID, insights.EngagementCutoff(now)).Scan(&recent); err != nil {
		return nil, fmt.Errorf("failed to query recent activity: %w", err)
	}
	result.EngagementScore = insights.EngagementScore(recent)

	return result, nil
}
