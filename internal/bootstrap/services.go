package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-jobs/config"
	"github.com/target/mmk-jobs/internal/adapters/collector"
	"github.com/target/mmk-jobs/internal/core"
	"github.com/target/mmk-jobs/internal/data"
	domainjob "github.com/target/mmk-jobs/internal/domain/job"
	"github.com/target/mmk-jobs/internal/observability/notify/slack"
	"github.com/target/mmk-jobs/internal/observability/statsd"
	"github.com/target/mmk-jobs/internal/service"
	"github.com/target/mmk-jobs/internal/service/failurenotifier"
)

// ServiceContainer holds the services shared by the HTTP API and the background runners.
type ServiceContainer struct {
	Jobs          *service.JobService
	Orchestrator  *service.Orchestrator
	Recovery      *service.RecoveryCoordinator
	JobRepo       *data.JobRepo
	Cache         core.ProgressCache // nil when Redis is disabled
	Observability ObservabilityContainer
}

// ObservabilityContainer groups metrics and notification dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.MetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.NotificationsConfig
}

// sink returns the metrics sink as an interface, keeping a nil client a nil Sink.
//
//nolint:ireturn // statsd.Sink is the dependency type consumers accept.
func (o ObservabilityContainer) sink() statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink
}

// ServiceDeps contains dependencies for creating services.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient // Optional
	Logger      *slog.Logger
	// Source overrides the upstream reporting API client, mainly for tests.
	Source collector.Source
}

func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:    true,
			Address:    cfg.Metrics.StatsdAddress,
			Prefix:     cfg.Metrics.Prefix,
			Logger:     obsLogger,
			GlobalTags: cfg.Metrics.GlobalTags(),
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(obsLogger, cfg.Notifications),
		NotifierConfig:  cfg.Notifications,
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.NotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}
	notifierLogger := baseLogger.With("component", "failure_notifier")

	if !cfg.Enabled || !cfg.Slack.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{Logger: notifierLogger})
	}

	client, err := slack.NewClient(slack.Config{
		WebhookURL:   cfg.Slack.WebhookURL,
		Channel:      cfg.Slack.Channel,
		Username:     cfg.Slack.Username,
		Timeout:      cfg.Timeout,
		RetryLimit:   cfg.RetryLimit,
		JobURLPrefix: cfg.Slack.JobURLPrefix,
	})
	if err != nil {
		baseLogger.Error("failed to initialise slack notifier", "error", err)
		return failurenotifier.NewService(failurenotifier.Options{Logger: notifierLogger})
	}
	return failurenotifier.NewService(failurenotifier.Options{
		Logger:  notifierLogger,
		Sinks:   []failurenotifier.SinkRegistration{{Name: "slack", Sink: client}},
		Timeout: cfg.Timeout * time.Duration(cfg.RetryLimit+1),
	})
}

//nolint:ireturn // nil means the progress cache is disabled.
func buildProgressCache(client redis.UniversalClient, cfg config.JobsConfig) (core.ProgressCache, error) {
	if client == nil {
		return nil, nil
	}
	cache, err := core.NewProgressCacheService(core.ProgressCacheServiceOptions{
		Cache:  data.NewRedisCacheRepo(client),
		Config: core.ProgressCacheConfig{TTL: cfg.ProgressCacheTTL},
	})
	if err != nil {
		return nil, fmt.Errorf("create progress cache: %w", err)
	}
	return cache, nil
}

//nolint:ireturn // the source is swappable in tests.
func buildSource(deps *ServiceDeps, cfg config.CollectorConfig, logger *slog.Logger) (collector.Source, error) {
	if deps.Source != nil {
		return deps.Source, nil
	}
	client, err := collector.NewClient(collector.ClientOptions{
		BaseURL:           cfg.BaseURL,
		Token:             cfg.APIToken,
		Timeout:           cfg.HTTPTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create collector client: %w", err)
	}
	return client, nil
}

// NewServices wires the job store, progress cache, work functions and orchestrator.
// The process owns exactly one JobManager; it is created here and injected everywhere.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil {
		return ServiceContainer{}, errors.New("service deps are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var cfg config.AppConfig
	if deps.Config != nil {
		cfg = *deps.Config
	}

	observability := buildObservability(logger, cfg.Observability)
	jobRepo := data.NewJobRepo(deps.DB, data.RepoConfig{
		MaxResultBytes:  cfg.Jobs.MaxResultBytes,
		ErrorMessageMax: cfg.Jobs.ErrorMessageMax,
		Logger:          logger,
	})

	cache, err := buildProgressCache(deps.RedisClient, cfg.Jobs)
	if err != nil {
		return ServiceContainer{}, err
	}

	source, err := buildSource(deps, cfg.Collector, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	work, err := collector.NewWork(collector.WorkOptions{
		Source:                 source,
		SubUnitTimeout:         cfg.Collector.SubUnitTimeout,
		MaxConsecutiveFailures: cfg.Collector.MaxConsecutiveFailures,
		Logger:                 logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create collector work: %w", err)
	}

	policy, err := domainjob.NewRetryPolicy(cfg.Jobs.MaxRetries, cfg.Jobs.RetryBaseDelay)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create retry policy: %w", err)
	}

	orch, err := service.NewOrchestrator(service.OrchestratorOptions{
		Store:    jobRepo,
		Manager:  service.NewJobManager(cfg.Jobs.MaxConcurrent),
		Registry: work.Registry(),
		Cache:    cache,
		Notifier: observability.FailureNotifier,
		Metrics:  observability.sink(),
		Logger:   logger,
		Policy:   policy,
		MaxRows:  cfg.Jobs.MaxRows,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create orchestrator: %w", err)
	}

	recovery, err := service.NewRecoveryCoordinator(service.RecoveryCoordinatorOptions{
		Orchestrator: orch,
		Metrics:      observability.sink(),
		Logger:       logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create recovery coordinator: %w", err)
	}

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Store:        jobRepo,
		Orchestrator: orch,
		Recovery:     recovery,
		Cache:        cache,
		Logger:       logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create job service: %w", err)
	}

	return ServiceContainer{
		Jobs:          jobs,
		Orchestrator:  orch,
		Recovery:      recovery,
		JobRepo:       jobRepo,
		Cache:         cache,
		Observability: observability,
	}, nil
}
