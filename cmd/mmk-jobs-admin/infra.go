package main

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-jobs/config"
	"github.com/target/mmk-jobs/internal/bootstrap"
	"github.com/target/mmk-jobs/internal/data"
)

// need selects the backends a command talks to.
type need uint8

const (
	needDB need = 1 << iota
	needRedis
)

var errRedisNotConfigured = errors.New("redis is not configured; set REDIS_ENABLED and REDIS_URI")

// infra holds the connections opened for one command.
type infra struct {
	db    *sql.DB
	redis redis.UniversalClient
}

// openInfra connects to each backend in n. On failure anything already
// opened is closed again.
func openInfra(cmdCtx *commandContext, n need) (*infra, error) {
	in := &infra{}
	if n&needDB != 0 {
		db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cmdCtx.Config.Postgres, Logger: cmdCtx.Logger})
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		in.db = db
	}
	if n&needRedis != 0 {
		cfg := cmdCtx.Config.Redis
		if !cfg.Enabled || !hasRedisConfig(&cfg) {
			return nil, errors.Join(errRedisNotConfigured, in.Close())
		}
		client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{RedisConfig: cfg, Logger: cmdCtx.Logger})
		if err != nil {
			return nil, errors.Join(fmt.Errorf("connect redis: %w", err), in.Close())
		}
		in.redis = client
	}
	return in, nil
}

// jobRepo builds the job store over the open database.
func (in *infra) jobRepo(cmdCtx *commandContext) *data.JobRepo {
	return data.NewJobRepo(in.db, data.RepoConfig{
		MaxResultBytes:  cmdCtx.Config.Jobs.MaxResultBytes,
		ErrorMessageMax: cmdCtx.Config.Jobs.ErrorMessageMax,
		Logger:          cmdCtx.Logger,
	})
}

// Close closes every open connection. It is safe on a nil or empty infra.
func (in *infra) Close() error {
	if in == nil {
		return nil
	}
	var errs []error
	if in.db != nil {
		if err := in.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
		in.db = nil
	}
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		in.redis = nil
	}
	return errors.Join(errs...)
}

// closeQuietly closes in and logs, for use in defers.
func (in *infra) closeQuietly(cmdCtx *commandContext) {
	if err := in.Close(); err != nil {
		cmdCtx.Logger.Warn("closing connections failed", "error", err)
	}
}

func hasRedisConfig(cfg *config.RedisConfig) bool {
	switch {
	case cfg == nil:
		return false
	case cfg.UseCluster:
		return len(cfg.ClusterNodes) > 0 || cfg.URI != ""
	case cfg.UseSentinel:
		return len(cfg.SentinelNodes) > 0
	default:
		return cfg.URI != ""
	}
}
