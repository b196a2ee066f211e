package config

import "time"

// JobsConfig bounds how the orchestrator runs jobs.
type JobsConfig struct {
	// MaxConcurrent is the number of jobs one process runs at once.
	MaxConcurrent int `env:"JOBS_MAX_CONCURRENT" envDefault:"3"`

	// MaxRetries is the total number of attempts for a job failing with retryable errors.
	MaxRetries int `env:"JOBS_MAX_RETRIES" envDefault:"3"`

	// RetryBaseDelay is doubled for every retry (2s, 4s, ...).
	RetryBaseDelay time.Duration `env:"JOBS_RETRY_BASE_DELAY" envDefault:"2s"`

	// MaxRows bounds the rows a single job may collect.
	MaxRows int `env:"JOBS_MAX_ROWS" envDefault:"50000"`

	// MaxResultBytes is the largest serialized result persisted in result_data.
	MaxResultBytes int `env:"JOBS_MAX_RESULT_BYTES" envDefault:"1048576"`

	// ErrorMessageMax bounds the stored error_message length in characters.
	ErrorMessageMax int `env:"JOBS_ERROR_MESSAGE_MAX" envDefault:"500"`

	// RecoverOnStartup runs the recovery pass when the orchestrator service starts.
	RecoverOnStartup bool `env:"JOBS_RECOVER_ON_STARTUP" envDefault:"true"`

	// QueueSweepInterval is how often queued jobs are re-checked for a free slot.
	QueueSweepInterval time.Duration `env:"JOBS_QUEUE_SWEEP_INTERVAL" envDefault:"30s"`

	// ProgressCacheTTL is how long a progress snapshot lives in Redis.
	ProgressCacheTTL time.Duration `env:"JOBS_PROGRESS_CACHE_TTL" envDefault:"1h"`
}

// Sanitize applies guardrails to job configuration values.
func (j *JobsConfig) Sanitize() {
	if j.MaxConcurrent < 1 {
		j.MaxConcurrent = 1
	}
	if j.MaxRetries < 1 {
		j.MaxRetries = 1
	}
	if j.RetryBaseDelay <= 0 {
		j.RetryBaseDelay = 2 * time.Second
	}
	if j.MaxRows < 1 {
		j.MaxRows = 50000
	}
	if j.MaxResultBytes < 1024 {
		j.MaxResultBytes = 1024
	}
	if j.ErrorMessageMax < 50 {
		j.ErrorMessageMax = 50
	}
	if j.QueueSweepInterval < time.Second {
		j.QueueSweepInterval = time.Second
	}
	if j.ProgressCacheTTL < time.Minute {
		j.ProgressCacheTTL = time.Minute
	}
}
