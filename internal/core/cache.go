package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/target/mmk-jobs/internal/domain/model"
)

// CacheRepository defines the interface for caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Publish sends payload to every subscriber of channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

const (
	progressKeyPrefix = "mmk-jobs:progress:"
	// EventsChannel carries JSON-encoded model.JobEvent values.
	EventsChannel = "mmk-jobs:events"
)

// ProgressCacheService implements ProgressCache on top of a CacheRepository.
type ProgressCacheService struct {
	cache CacheRepository
	ttl   time.Duration
}

// ProgressCacheConfig holds configuration for progress caching.
type ProgressCacheConfig struct {
	TTL time.Duration `json:"ttl"`
}

// DefaultProgressCacheConfig returns a ProgressCacheConfig with sensible defaults.
func DefaultProgressCacheConfig() ProgressCacheConfig {
	return ProgressCacheConfig{TTL: time.Hour}
}

// ProgressCacheServiceOptions bundles dependencies for NewProgressCacheService.
type ProgressCacheServiceOptions struct {
	Cache  CacheRepository
	Config ProgressCacheConfig
}

var _ ProgressCache = (*ProgressCacheService)(nil)

// NewProgressCacheService creates a new ProgressCacheService.
func NewProgressCacheService(opts ProgressCacheServiceOptions) (*ProgressCacheService, error) {
	if opts.Cache == nil {
		return nil, errors.New("cache repository is required")
	}
	ttl := opts.Config.TTL
	if ttl <= 0 {
		ttl = DefaultProgressCacheConfig().TTL
	}
	return &ProgressCacheService{cache: opts.Cache, ttl: ttl}, nil
}

// SetProgress stores the latest snapshot for a job.
func (s *ProgressCacheService) SetProgress(ctx context.Context, snap model.ProgressSnapshot) error {
	if snap.JobID == "" {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal progress snapshot: %w", err)
	}
	return s.cache.Set(ctx, progressKey(snap.JobID), data, s.ttl)
}

// GetProgress returns the cached snapshot for jobID, or nil when absent.
func (s *ProgressCacheService) GetProgress(ctx context.Context, jobID string) (*model.ProgressSnapshot, error) {
	if jobID == "" {
		return nil, nil
	}
	data, err := s.cache.Get(ctx, progressKey(jobID))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var snap model.ProgressSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal progress snapshot: %w", err)
	}
	return &snap, nil
}

// PublishEvent publishes a lifecycle event on EventsChannel.
func (s *ProgressCacheService) PublishEvent(ctx context.Context, evt model.JobEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}
	return s.cache.Publish(ctx, EventsChannel, data)
}

// Forget drops the cached snapshot, e.g. after the job is deleted.
func (s *ProgressCacheService) Forget(ctx context.Context, jobID string) error {
	if jobID == "" {
		return nil
	}
	_, err := s.cache.Delete(ctx, progressKey(jobID))
	return err
}

// Health checks the underlying cache.
func (s *ProgressCacheService) Health(ctx context.Context) error {
	return s.cache.Health(ctx)
}

func progressKey(jobID string) string {
	return progressKeyPrefix + jobID
}
