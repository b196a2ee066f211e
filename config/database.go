package config

import (
	"strings"
	"time"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"mmkjobs"`
	Password string `env:"PASSWORD"                envDefault:"mmkjobs"`
	Name     string `env:"NAME"                    envDefault:"mmkjobs"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
	// Pool sizing. Every running job holds at most one connection at a time.
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"     envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"     envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME"  envDefault:"5m"`
}

// Sanitize keeps the pool usable.
func (d *DBConfig) Sanitize() {
	d.Host = strings.TrimSpace(d.Host)
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.MaxOpenConns < 2 {
		d.MaxOpenConns = 2
	}
	if d.MaxIdleConns < 0 {
		d.MaxIdleConns = 0
	}
	if d.MaxIdleConns > d.MaxOpenConns {
		d.MaxIdleConns = d.MaxOpenConns
	}
	if d.ConnMaxLifetime < 0 {
		d.ConnMaxLifetime = 0
	}
}

// RedisConfig contains Redis configuration. Redis backs the progress cache and
// lifecycle events; leaving it disabled falls back to store-only progress.
type RedisConfig struct {
	Enabled            bool     `env:"ENABLED"              envDefault:"true"`
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelPort       string   `env:"SENTINEL_PORT"        envDefault:"26379"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// Sanitize trims connection strings.
func (r *RedisConfig) Sanitize() {
	r.URI = strings.TrimSpace(r.URI)
	if r.URI == "" && !r.UseSentinel && !r.UseCluster {
		r.Enabled = false
	}
}
