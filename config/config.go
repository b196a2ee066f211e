// Package config declares the process configuration. Every field is read from
// the environment with github.com/caarlos0/env; callers run Sanitize after
// parsing so that out-of-range values are clamped instead of rejected.
package config

// AppConfig is the full configuration of an mmk-jobs process.
type AppConfig struct {
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	HTTP     HTTPConfig

	// Services is a comma-separated subset of http, orchestrator and reaper.
	Services string `env:"SERVICES" envDefault:"http,orchestrator"`

	Jobs          JobsConfig
	Collector     CollectorConfig
	Reaper        ReaperConfig
	Observability ObservabilityConfig
	Log           LogConfig
}

type sanitizer interface{ Sanitize() }

// Sanitize clamps every sub-config.
func (c *AppConfig) Sanitize() {
	for _, s := range []sanitizer{
		&c.Postgres, &c.Redis, &c.HTTP, &c.Jobs, &c.Collector,
		&c.Reaper, &c.Observability, &c.Log,
	} {
		s.Sanitize()
	}
}

// GetEnabledServices parses Services.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// Enabled reports whether mode is listed in Services. An unparsable list
// enables nothing.
func (c *AppConfig) Enabled(mode ServiceMode) bool {
	enabled, err := c.GetEnabledServices()
	return err == nil && enabled[mode]
}
