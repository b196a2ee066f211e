package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Health statuses, from best to worst.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

const healthCheckTimeout = 3 * time.Second

// ComponentHealth is the result of checking one dependency.
type ComponentHealth struct {
	Status   string         `json:"status"`
	Healthy  bool           `json:"healthy"`
	Critical bool           `json:"critical"`
	Error    string         `json:"error,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// HealthReport is the detailed health of the orchestrator and its dependencies.
type HealthReport struct {
	Status          string                     `json:"status"`
	Timestamp       time.Time                  `json:"timestamp"`
	Components      map[string]ComponentHealth `json:"components"`
	Issues          []string                   `json:"issues"`
	RecoveryActions []string                   `json:"recovery_actions"`
	RecoveryResult  any                        `json:"recovery_result,omitempty"`
}

// Health checks the store, the progress cache, and the job queue. Orphaned running jobs
// trigger recovery when it has not run in this process yet.
func (s *JobService) Health(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Timestamp:       s.orch.now(),
		Components:      make(map[string]ComponentHealth, 3),
		Issues:          []string{},
		RecoveryActions: []string{},
	}

	var dbHealth, cacheHealth ComponentHealth
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dbHealth = s.checkComponent(gctx, true, func(c context.Context) error {
			_, err := s.store.GetRunningJobsCount(c)
			return err
		})
		return nil
	})
	if s.cache != nil {
		g.Go(func() error {
			cacheHealth = s.checkComponent(gctx, false, s.cache.Health)
			return nil
		})
	}
	_ = g.Wait()

	report.Components["database"] = dbHealth
	if !dbHealth.Healthy {
		report.Issues = append(report.Issues, "Database connection failed")
	}
	if s.cache != nil {
		report.Components["cache"] = cacheHealth
		if !cacheHealth.Healthy {
			report.Issues = append(report.Issues, "Progress cache unavailable")
		}
	}

	report.Components["job_queue"] = s.checkQueue(ctx, report)
	report.Status = overallStatus(report)
	return report
}

func (s *JobService) checkComponent(ctx context.Context, critical bool, check func(context.Context) error) ComponentHealth {
	cctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := check(cctx); err != nil {
		return ComponentHealth{Status: HealthUnhealthy, Critical: critical, Error: err.Error()}
	}
	return ComponentHealth{Status: HealthHealthy, Healthy: true, Critical: critical}
}

func (s *JobService) checkQueue(ctx context.Context, report *HealthReport) ComponentHealth {
	st := s.manager.Status()
	comp := ComponentHealth{
		Status:  HealthHealthy,
		Healthy: true,
		Details: map[string]any{
			"running_jobs":   st.RunningCount,
			"max_concurrent": st.MaxConcurrent,
			"can_start_new":  st.CanStart,
			"recovered":      st.Recovered,
		},
	}

	stale, err := s.store.GetStaleRunningJobs(ctx)
	if err != nil {
		comp.Status = HealthDegraded
		comp.Healthy = false
		comp.Error = err.Error()
		report.Issues = append(report.Issues, "Could not check for orphaned jobs")
		return comp
	}

	orphaned := 0
	for _, j := range stale {
		if !s.manager.IsRunning(j.ID) {
			orphaned++
		}
	}
	comp.Details["orphaned_jobs"] = orphaned
	if orphaned == 0 {
		return comp
	}

	comp.Status = HealthDegraded
	report.Issues = append(report.Issues, fmt.Sprintf("Found %d orphaned jobs", orphaned))

	if s.recovery.Recovered() {
		report.RecoveryResult = map[string]any{"triggered": false, "reason": "Already recovered"}
		return comp
	}
	res := s.recovery.Recover(ctx)
	report.RecoveryActions = append(report.RecoveryActions,
		fmt.Sprintf("Recovered %d orphaned jobs", res.StaleJobsMarkedFailed))
	report.RecoveryResult = res
	comp.Details["recovered"] = true
	return comp
}

func overallStatus(report *HealthReport) string {
	for _, c := range report.Components {
		if c.Critical && !c.Healthy {
			return HealthUnhealthy
		}
	}
	if len(report.Issues) > 0 {
		return HealthDegraded
	}
	return HealthHealthy
}
