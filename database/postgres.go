package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	_ "github.com/lib/pq"
)

type DBClient struct {
	DB  *sql.DB
	log *log.Helper
}

type PostgresOptions struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

func NewPostgresDB(ctx context.Context, opts PostgresOptions, logger log.Logger) (*DBClient, error) {
	helper := log.NewHelper(log.With(logger, "module", "database/postgres"))
	if opts.URL == "" {
		return nil, fmt.Errorf("postgres connection string is empty")
	}

	db, err := sql.Open("postgres", opts.URL)
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database (ping failed): %w", err)
	}

	helper.Info("connected to PostgreSQL")
	return &DBClient{DB: db, log: helper}, nil
}

func (c *DBClient) Close() {
	if c.DB == nil {
		return
	}
	if err := c.DB.Close(); err != nil {
		c.log.Errorw("msg", "error closing database connection", "error", err)
		return
	}
	c.log.Info("PostgreSQL connection closed")
}
