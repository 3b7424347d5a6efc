package database

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"schemacanvas/internal/config"
)

// DSN builds a postgres:// URL for one database on the configured server.
func DSN(cfg config.PostgresConfig, database string) string {
	userInfo := url.UserPassword(cfg.User, cfg.Password)
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s@%s:%s/%s?sslmode=%s",
		userInfo.String(),
		cfg.Host,
		cfg.Port,
		url.PathEscape(database),
		url.QueryEscape(sslmode),
	)
}

// Connect opens a pool for one database and pings it.
func Connect(ctx context.Context, cfg config.PostgresConfig, database string) (*pgxpool.Pool, error) {
	if database == "" {
		return nil, fmt.Errorf("database name is required")
	}
	log.Printf("connecting to database: postgres://%s:***@%s:%s/%s", cfg.User, cfg.Host, cfg.Port, database)
	return Open(ctx, DSN(cfg, database), cfg.MaxConns, cfg.MinConns)
}

// Open creates a pool from a DSN and pings it.
func Open(ctx context.Context, dsn string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	if minConns > 0 && minConns <= poolCfg.MaxConns {
		poolCfg.MinConns = minConns
	}
	poolCfg.MaxConnLifetime = 5 * time.Minute
	poolCfg.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
