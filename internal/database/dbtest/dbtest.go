//go:build integration

// Package dbtest starts a disposable PostgreSQL container for integration tests
package dbtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/warden/internal/database"
)

// TestDB manages a PostgreSQL testcontainer with the schema applied
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	DB        *database.DB
}

// Setup creates a PostgreSQL testcontainer, runs migrations and registers
// teardown with t.Cleanup
func Setup(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("warden"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	goose.SetLogger(log.New(io.Discard, "", 0))
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()
	if err := database.RunMigrations(ctx, sqlDB, "up"); err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &TestDB{
		Container: container,
		Pool:      pool,
		DB:        database.NewFromPool(pool, 5*time.Second, logger),
	}
}

// Truncate empties every table for test isolation
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()
	for _, table := range []string{"otp_codes", "refresh_tokens", "accounts"} {
		if _, err := tdb.Pool.Exec(context.Background(), fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			t.Fatalf("failed to truncate table %s: %v", table, err)
		}
	}
}
