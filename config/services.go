package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode names one of the loops a process can run.
type ServiceMode string

const (
	// ServiceModeHTTP serves the job API.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeOrchestrator runs startup recovery and the queue sweep, and executes jobs.
	ServiceModeOrchestrator ServiceMode = "orchestrator"
	// ServiceModeReaper deletes expired terminal jobs.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns every service mode in canonical order.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeOrchestrator, ServiceModeReaper}
}

func validServiceNames() string {
	modes := ValidServiceModes()
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

// ParseServices parses a comma-separated SERVICES value. Blank entries are
// skipped and duplicates collapse; an unknown name is an error.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	if strings.TrimSpace(servicesStr) == "" {
		return map[ServiceMode]bool{}, errors.New("at least one service must be specified")
	}

	known := make(map[ServiceMode]bool)
	for _, m := range ValidServiceModes() {
		known[m] = true
	}

	services := make(map[ServiceMode]bool)
	for _, part := range strings.Split(servicesStr, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		mode := ServiceMode(name)
		if !known[mode] {
			return nil, fmt.Errorf("invalid service name: %q (valid options: %s)", name, validServiceNames())
		}
		services[mode] = true
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}
	return services, nil
}

// ReaperConfig controls retention of completed and failed jobs.
type ReaperConfig struct {
	// Interval between reaper passes.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// CompletedMaxAge is how long completed jobs (and their results) are kept.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"`

	// FailedMaxAge is how long failed jobs are kept for inspection and retry.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"168h"`

	// BatchSize bounds the rows removed per DELETE statement.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

const (
	minReaperInterval = time.Minute
	minReaperMaxAge   = time.Hour
	maxReaperBatch    = 10000
)

// Sanitize clamps the reaper settings to workable bounds.
func (r *ReaperConfig) Sanitize() {
	r.Interval = max(r.Interval, minReaperInterval)
	r.CompletedMaxAge = max(r.CompletedMaxAge, minReaperMaxAge)
	r.FailedMaxAge = max(r.FailedMaxAge, minReaperMaxAge)
	r.BatchSize = min(max(r.BatchSize, 1), maxReaperBatch)
}
