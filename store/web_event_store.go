package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"

	"gamestore/api/models"
)

const webEventsSchema = `
CREATE TABLE IF NOT EXISTS web_events (
	id BIGSERIAL PRIMARY KEY,
	request_id UUID NOT NULL,
	user_id BIGINT NOT NULL,
	game_id BIGINT,
	event_type VARCHAR(64) NOT NULL,
	session_id VARCHAR(255) NOT NULL,
	time_spent BIGINT,
	referrer_page TEXT,
	timestamp TIMESTAMP NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_web_events_user_id ON web_events(user_id);
CREATE INDEX IF NOT EXISTS idx_web_events_session_id ON web_events(session_id);
CREATE INDEX IF NOT EXISTS idx_web_events_timestamp ON web_events(timestamp);
`

// WebEventStore is the append-only durable record of ingested events.
type WebEventStore struct {
	db  *sql.DB
	log *log.Helper
}

func NewWebEventStore(db *sql.DB, logger log.Logger) *WebEventStore {
	return &WebEventStore{db: db, log: log.NewHelper(log.With(logger, "module", "store/web_events"))}
}

func (s *WebEventStore) Name() string {
	return "postgres"
}

func (s *WebEventStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, webEventsSchema); err != nil {
		return fmt.Errorf("failed to create web_events table: %w", err)
	}
	return nil
}

// RecordEvent inserts one event inside its own transaction; any failure
// rolls the transaction back.
func (s *WebEventStore) RecordEvent(ctx context.Context, event *models.IngestedEvent) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin web event transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.log.WithContext(ctx).Warnw("msg", "rollback web event insert failed", "request_id", event.RequestID, "error", rbErr)
			}
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO web_events (
			request_id, user_id, game_id, event_type, session_id, time_spent, referrer_page, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		event.RequestID,
		event.UserID,
		nullInt64(event.GameID),
		event.EventType,
		event.SessionID,
		nullInt64(event.TimeSpent),
		nullString(event.ReferrerPage),
		event.Timestamp.Time,
	)
	if err != nil {
		return fmt.Errorf("failed to insert web event: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit web event: %w", err)
	}
	return nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
