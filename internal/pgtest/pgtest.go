// Package pgtest connects integration tests to a disposable PostgreSQL
// database. Tests are skipped when no server is reachable.
//
// Set TABLESMITH_TEST_PG_HOST (default localhost), TABLESMITH_TEST_PG_PORT
// (default 5432), TABLESMITH_TEST_PG_DATABASE (default tablesmith_test),
// TABLESMITH_TEST_PG_USER (default postgres) and TABLESMITH_TEST_PG_PASSWORD
// (default postgres) to configure.
package pgtest

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tablesmith/tablesmith/internal/catalog"
	"github.com/tablesmith/tablesmith/internal/config"
)

// Config returns the test database settings from the environment.
func Config() *config.DatabaseConfig {
	port, err := strconv.Atoi(os.Getenv("TABLESMITH_TEST_PG_PORT"))
	if err != nil || port == 0 {
		port = 5432
	}
	return &config.DatabaseConfig{
		Host:           env("TABLESMITH_TEST_PG_HOST", "localhost"),
		Port:           port,
		Database:       env("TABLESMITH_TEST_PG_DATABASE", "tablesmith_test"),
		Username:       env("TABLESMITH_TEST_PG_USER", "postgres"),
		Password:       env("TABLESMITH_TEST_PG_PASSWORD", "postgres"),
		Schema:         "public",
		MaxConnections: 4,
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Pool connects to the test database, runs setup, and closes the pool when
// the test ends. The test is skipped if the server cannot be reached.
func Pool(t *testing.T, setup ...string) *pgxpool.Pool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	pool, err := catalog.Connect(ctx, Config())
	if err != nil {
		t.Skipf("skipping: cannot connect to PostgreSQL: %v", err)
	}
	t.Cleanup(pool.Close)

	Exec(t, pool, setup...)
	return pool
}

// Exec runs statements outside any transaction, failing the test on error.
func Exec(t *testing.T, pool *pgxpool.Pool, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		if _, err := pool.Exec(context.Background(), stmt); err != nil {
			t.Fatalf("setup statement failed: %s: %v", stmt, err)
		}
	}
}
