package config

import (
	"strings"
	"time"
)

// CollectorConfig configures the client for the upstream reporting API.
type CollectorConfig struct {
	BaseURL  string `env:"COLLECTOR_BASE_URL"  envDefault:"http://localhost:9090"`
	APIToken string `env:"COLLECTOR_API_TOKEN"`

	// SubUnitTimeout bounds the fetch of a single channel.
	SubUnitTimeout time.Duration `env:"COLLECTOR_SUB_UNIT_TIMEOUT" envDefault:"5m"`

	// MaxConsecutiveFailures aborts an attempt after this many channel failures in a row.
	MaxConsecutiveFailures int `env:"COLLECTOR_MAX_CONSECUTIVE_FAILURES" envDefault:"5"`

	RequestsPerSecond float64       `env:"COLLECTOR_REQUESTS_PER_SECOND" envDefault:"5"`
	Burst             int           `env:"COLLECTOR_BURST"               envDefault:"5"`
	HTTPTimeout       time.Duration `env:"COLLECTOR_HTTP_TIMEOUT"        envDefault:"30s"`
}

// Sanitize applies guardrails to collector configuration values.
func (c *CollectorConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.APIToken = strings.TrimSpace(c.APIToken)
	if c.SubUnitTimeout <= 0 {
		c.SubUnitTimeout = 5 * time.Minute
	}
	if c.MaxConsecutiveFailures < 1 {
		c.MaxConsecutiveFailures = 5
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 5
	}
	if c.Burst < 1 {
		c.Burst = 1
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
}
