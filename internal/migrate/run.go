// Package migrate applies the embedded SQL schema migrations.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// lockID is the session-level advisory lock held while migrating, so that
// replicas starting together apply each file once.
const lockID int64 = 7_291_001

const createVersionsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Migration is one embedded file and whether it has been applied.
type Migration struct {
	Version string
	Applied bool
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Run applies every pending migration in file-name order, each in its own
// transaction. It is idempotent and safe to call from several processes.
func Run(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createVersionsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, lockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		// ctx may already be done; the lock must still be released before the conn returns to the pool.
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, lockID); err != nil {
			slog.Default().Warn("release migration lock failed", "error", err)
		}
	}()

	pending, err := plan(ctx, conn)
	if err != nil {
		return err
	}
	for _, version := range pending {
		if err := apply(ctx, conn, version); err != nil {
			return err
		}
	}
	return nil
}

// Status lists every embedded migration in apply order.
func Status(ctx context.Context, db *sql.DB) ([]Migration, error) {
	if _, err := db.ExecContext(ctx, createVersionsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	versions, err := embeddedVersions()
	if err != nil {
		return nil, err
	}
	done, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, len(versions))
	for i, v := range versions {
		out[i] = Migration{Version: v, Applied: done[v]}
	}
	return out, nil
}

// plan returns the embedded versions not yet recorded as applied.
func plan(ctx context.Context, q queryer) ([]string, error) {
	versions, err := embeddedVersions()
	if err != nil {
		return nil, err
	}
	done, err := appliedVersions(ctx, q)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(versions, func(v string) bool { return done[v] }), nil
}

func embeddedVersions() ([]string, error) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	versions := make([]string, len(names))
	for i, name := range names {
		versions[i] = strings.TrimSuffix(path.Base(name), ".sql")
	}
	slices.Sort(versions)
	return versions, nil
}

func appliedVersions(ctx context.Context, q queryer) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		done[v] = true
	}
	return done, rows.Err()
}

func apply(ctx context.Context, conn *sql.Conn, version string) (err error) {
	body, err := migrationsFS.ReadFile("migrations/" + version + ".sql")
	if err != nil {
		return fmt.Errorf("read migration %s: %w", version, err)
	}
	slog.Default().InfoContext(ctx, "applying migration", "component", "migrations", "version", version)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("exec migration %s: %w", version, err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}
