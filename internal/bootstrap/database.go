package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/target/mmk-jobs/config"
	"github.com/target/mmk-jobs/internal/migrate"
)

const (
	pingTimeout     = 5 * time.Second
	applicationName = "mmk-jobs"
)

// DatabaseConfig bundles what ConnectDB and ConnectRedis need; each reads
// only its own half.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

// postgresDSN renders cfg as a postgres:// URL with escaped credentials.
func postgresDSN(cfg config.DBConfig) string {
	q := url.Values{"sslmode": {cfg.SSLMode}}
	return (&url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}).String()
}

// connConfig parses the DSN into a pgx config tagged with the application name.
func connConfig(cfg config.DBConfig) (*pgx.ConnConfig, error) {
	cc, err := pgx.ParseConfig(postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if cc.RuntimeParams == nil {
		cc.RuntimeParams = map[string]string{}
	}
	cc.RuntimeParams["application_name"] = applicationName
	return cc, nil
}

// ConnectDB opens a database/sql pool over pgx, sizes it from the config and
// pings it. The pool is closed again if the ping fails.
func ConnectDB(cfg DatabaseConfig) (*sql.DB, error) {
	cc, err := connConfig(cfg.DBConfig)
	if err != nil {
		return nil, err
	}
	db := stdlib.OpenDB(*cc)
	db.SetMaxOpenConns(cfg.DBConfig.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DBConfig.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConfig.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping database %s: %w", cc.Host, err), db.Close())
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("database connected",
			"host", cc.Host,
			"port", cc.Port,
			"database", cc.Database,
			"max_open_conns", cfg.DBConfig.MaxOpenConns,
		)
	}
	return db, nil
}

// RunMigrations brings the background_jobs schema up to date.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	start := time.Now()
	if err := migrate.Run(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "database migrations applied", "elapsed", time.Since(start))
	}
	return nil
}
