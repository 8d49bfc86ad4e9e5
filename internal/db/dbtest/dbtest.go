// Package dbtest connects repository integration tests to a real Postgres.
// Tests are skipped unless DB_HOST_TEST is set.
package dbtest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/config"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/db"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Open returns a migrated pool, or nil when no test database is configured.
// Intended for TestMain.
func Open() (*pgxpool.Pool, error) {
	host := os.Getenv("DB_HOST_TEST")
	if host == "" {
		return nil, nil
	}

	cfg := config.PostgresConfig{
		Host:     host,
		Port:     envOr("DB_PORT_TEST", "5432"),
		User:     envOr("DB_USER_TEST", "postgres"),
		Password: envOr("DB_PASSWORD_TEST", "123456"),
		DBName:   envOr("DB_NAME_TEST", "ecommerce_db"),
		SSLMode:  envOr("DB_SSLMODE_TEST", "disable"),
		MaxConns: 10,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg, err := db.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	if err := db.ApplyMigrations(pg.Pool, cfg); err != nil {
		pg.Close()
		return nil, err
	}

	log.Info().Str("host", host).Msg("Test database ready")
	return pg.Pool, nil
}

// Require skips the test when pool is nil.
func Require(tb testing.TB, pool *pgxpool.Pool) {
	tb.Helper()
	if pool == nil {
		tb.Skip("DB_HOST_TEST not set, skipping integration test")
	}
}

// Truncate empties the shop tables.
func Truncate(tb testing.TB, pool *pgxpool.Pool) {
	tb.Helper()
	tables := []string{"outbox", "refunds", "payments", "order_items", "orders", "cart_items", "carts", "stock_movements", "products"}
	_, err := pool.Exec(context.Background(), "TRUNCATE TABLE "+strings.Join(tables, ", ")+" RESTART IDENTITY CASCADE")
	if err != nil {
		tb.Fatalf("failed to truncate tables: %v", err)
	}
}
