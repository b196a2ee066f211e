// Package mocks provides mock implementations for testing the orchestrator.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the core ports.
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockJobStore(ctrl)
//	store.EXPECT().GetStaleRunningJobs(gomock.Any()).Return(nil, nil)
package mocks

// Generate mock for JobStore interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_store_mock.go github.com/target/mmk-jobs/internal/core JobStore

// Generate mock for ProgressCache interface from internal/core package.
// This creates MockProgressCache with methods: SetProgress, GetProgress, PublishEvent, Forget, Health
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=progress_cache_mock.go github.com/target/mmk-jobs/internal/core ProgressCache
