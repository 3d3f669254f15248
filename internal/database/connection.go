package database

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/BradenHooton/warden/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultQueryTimeout = 5 * time.Second
	connectTimeout      = 10 * time.Second
	healthCheckTimeout  = 2 * time.Second
)

// DB is the Postgres pool shared by the repositories. Every store call runs
// under queryTimeout on the client, and the same bound is sent to the server
// as statement_timeout when the pool is opened through Open.
type DB struct {
	Pool         *pgxpool.Pool
	logger       *slog.Logger
	queryTimeout time.Duration
}

// Open builds the pool from cfg and pings it before returning
func Open(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	pc, err := newPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool for %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	db := NewFromPool(pool, cfg.QueryTimeout, logger)
	logger.Info("connected to postgres",
		slog.String("host", cfg.Host),
		slog.String("database", cfg.Name),
		slog.Int("max_conns", int(pc.MaxConns)),
		slog.Duration("query_timeout", db.queryTimeout))
	return db, nil
}

func newPoolConfig(cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 && cfg.MinConns <= pc.MaxConns {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	// a statement outliving the client deadline is cancelled by the server
	// too and surfaces as 57014
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	pc.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(timeout.Milliseconds(), 10)

	return pc, nil
}

// NewFromPool wraps a pool opened elsewhere. A non-positive queryTimeout
// falls back to five seconds.
func NewFromPool(pool *pgxpool.Pool, queryTimeout time.Duration, logger *slog.Logger) *DB {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &DB{Pool: pool, logger: logger, queryTimeout: queryTimeout}
}

// Close logs the final pool usage and releases every connection
func (db *DB) Close() {
	stat := db.Pool.Stat()
	db.logger.Info("closing postgres pool",
		slog.Int("total_conns", int(stat.TotalConns())),
		slog.Int("acquired_conns", int(stat.AcquiredConns())),
		slog.Int64("acquire_count", stat.AcquireCount()))
	db.Pool.Close()
}

// HealthCheck pings the server within the shorter of two seconds and the
// query timeout
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, min(healthCheckTimeout, db.queryTimeout))
	defer cancel()

	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
