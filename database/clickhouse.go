package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-kratos/kratos/v2/log"

	"gamestore/api/config"
)

type ClickHouseClient struct {
	Conn clickhouse.Conn
	log  *log.Helper
}

func NewClickHouseDB(ctx context.Context, cfg config.ClickHouseConfig, logger log.Logger) (*ClickHouseClient, error) {
	helper := log.NewHelper(log.With(logger, "module", "database/clickhouse"))
	if cfg.Host == "" || cfg.NativePort == 0 || cfg.DBName == "" {
		return nil, fmt.Errorf("CLICKHOUSE_HOST, CLICKHOUSE_NATIVE_PORT, or CLICKHOUSE_DB_NAME is not set")
	}

	options := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.NativePort)},
		Auth: clickhouse.Auth{
			Database: cfg.DBName,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "gamestore-api", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: time.Second * 5,
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse via Native TCP: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	helper.Infow("msg", "connected to ClickHouse", "addr", options.Addr[0], "database", cfg.DBName)
	return &ClickHouseClient{Conn: conn, log: helper}, nil
}

func (c *ClickHouseClient) Close() {
	if c == nil || c.Conn == nil {
		return
	}
	if err := c.Conn.Close(); err != nil {
		c.log.Errorw("msg", "error closing ClickHouse connection", "error", err)
		return
	}
	c.log.Info("ClickHouse connection closed")
}
