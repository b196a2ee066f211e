// Package testutil holds Postgres and Redis fixtures plus request builders shared by tests.
// Infrastructure-backed tests skip when the service is unreachable unless
// TEST_REQUIRE_DB, TEST_REQUIRE_REDIS or TEST_REQUIRE_INFRA is set.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/target/mmk-jobs/internal/migrate"
)

// TestingTB covers *testing.T and *testing.B.
type TestingTB interface {
	Helper()
	Skip(args ...any)
	Skipf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// TestDBConfig holds the connection settings of the test database.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultTestDBConfig reads TEST_DB_* variables. The port defaults to 55432, the
// docker-compose test profile; CI sets TEST_DB_PORT=5432.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     envOr("TEST_DB_HOST", "localhost"),
		Port:     envOr("TEST_DB_PORT", "55432"),
		User:     envOr("TEST_DB_USER", "mmkjobs"),
		Password: envOr("TEST_DB_PASSWORD", "mmkjobs"),
		DBName:   envOr("TEST_DB_NAME", "mmkjobs"),
		SSLMode:  envOr("DB_SSL_MODE", "disable"),
	}
}

// DSN renders the config as a postgres URL. A non-empty schema is set as search_path.
func (c TestDBConfig) DSN(schema string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	if schema != "" {
		q.Set("search_path", schema+",public")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// SkipIfNoTestDB skips (or fails, when required) if the test database cannot be pinged.
func SkipIfNoTestDB(t TestingTB) {
	t.Helper()
	db, err := sql.Open("pgx", DefaultTestDBConfig().DSN(""))
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = db.PingContext(ctx)
		cancel()
		closeQuietly(t, "probe db", db)
	}
	if err != nil {
		if requireDB() {
			t.Fatal("test database not available:", err)
		}
		t.Skip("test database not available:", err)
	}
}

// SetupTestDB opens the shared test database, applies migrations and empties background_jobs.
func SetupTestDB(t TestingTB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	db := openPinged(t, DefaultTestDBConfig().DSN(""))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := migrate.Run(ctx, db); err != nil {
		closeQuietly(t, "test db", db)
		t.Fatal("run migrations:", err)
	}
	CleanupTestDB(t, db)
	return db
}

// CleanupTestDB deletes every job row.
func CleanupTestDB(t TestingTB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "DELETE FROM background_jobs"); err != nil {
		t.Fatalf("clean background_jobs: %v", err)
	}
}

// SetupEphemeralSchemaDB migrates a fresh schema for one test and drops it on cleanup.
func SetupEphemeralSchemaDB(t TestingTB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	cfg := DefaultTestDBConfig()
	admin := openPinged(t, cfg.DSN(""))
	schema := schemaName()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
		closeQuietly(t, "admin db", admin)
		t.Fatalf("create schema %s: %v", schema, err)
	}

	db := openPinged(t, cfg.DSN(schema))
	db.SetMaxOpenConns(10)
	onCleanup(t, func() {
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dropCancel()
		closeQuietly(t, "schema db", db)
		if _, err := admin.ExecContext(dropCtx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		closeQuietly(t, "admin db", admin)
	})
	t.Logf("using ephemeral schema %s", schema)

	if err := migrate.Run(ctx, db); err != nil {
		t.Fatal("run migrations in ephemeral schema:", err)
	}
	return db
}

// WithAutoDB runs fn against a per-test schema when TEST_DB_EPHEMERAL is truthy and
// against the shared, emptied test database otherwise.
func WithAutoDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	if envBool("TEST_DB_EPHEMERAL") {
		fn(SetupEphemeralSchemaDB(t))
		return
	}
	db := SetupTestDB(t)
	defer func() {
		CleanupTestDB(t, db)
		closeQuietly(t, "test db", db)
	}()
	fn(db)
}

func openPinged(t TestingTB, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatal("open test db:", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		closeQuietly(t, "test db", db)
		t.Fatal("ping test db (is docker-compose up?):", err)
	}
	return db
}

func schemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("t_%d", time.Now().UnixNano())
	}
	return "t_" + hex.EncodeToString(b)
}

func onCleanup(t TestingTB, fn func()) {
	if tc, ok := any(t).(interface{ Cleanup(func()) }); ok {
		tc.Cleanup(fn)
	}
}

func closeQuietly(t TestingTB, name string, c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		t.Logf("close %s: %v", name, err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

func requireDB() bool    { return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") }
func requireRedis() bool { return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") }

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// IntPtr returns a pointer to i.
func IntPtr(i int) *int { return &i }
