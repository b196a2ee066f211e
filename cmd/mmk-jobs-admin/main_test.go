package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobs/config"
	"github.com/target/mmk-jobs/internal/domain/model"
	"github.com/target/mmk-jobs/internal/migrate"
)

func TestCommands(t *testing.T) {
	var names []string
	for _, cmd := range commands() {
		assert.NotEmpty(t, cmd.description, cmd.name)
		assert.NotNil(t, cmd.run, cmd.name)
		names = append(names, cmd.name)
	}
	assert.Equal(t, []string{"migrate", "stats", "stale", "recover", "cleanup", "watch"}, names)

	_, ok := findCommand("cleanup")
	assert.True(t, ok)
	_, ok = findCommand("scheduler")
	assert.False(t, ok)
}

func TestRun_ExitCodes(t *testing.T) {
	okConfig := func() (config.AppConfig, error) { return config.AppConfig{}, nil }
	badConfig := func() (config.AppConfig, error) { return config.AppConfig{}, errors.New("bad env") }

	tests := []struct {
		name       string
		args       []string
		load       func() (config.AppConfig, error)
		want       int
		wantStderr string
	}{
		{name: "no command", load: okConfig, want: exitUsage, wantStderr: "Usage: mmk-jobs-admin"},
		{name: "help", args: []string{"help"}, load: okConfig, want: exitUsage, wantStderr: "cleanup"},
		{name: "unknown", args: []string{"scheduler"}, load: okConfig, want: exitUsage, wantStderr: `unknown command "scheduler"`},
		{name: "config error", args: []string{"stats"}, load: badConfig, want: exitError},
		{name: "bad flag", args: []string{"migrate", "--timeout", "0s"}, load: okConfig, want: exitError},
		{name: "recover without force", args: []string{"recover"}, load: okConfig, want: exitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			got := run(context.Background(), tt.args, &stdout, &stderr, testLogger(), tt.load)
			assert.Equal(t, tt.want, got)
			if tt.wantStderr != "" {
				assert.Contains(t, stderr.String(), tt.wantStderr)
			}
		})
	}
}

func TestParseMigrateFlags(t *testing.T) {
	opts, err := parseMigrateFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationTimeout, opts.Timeout)
	assert.False(t, opts.Status)

	opts, err = parseMigrateFlags([]string{"--status", "--timeout", "30s"})
	require.NoError(t, err)
	assert.True(t, opts.Status)
	assert.Equal(t, 30*time.Second, opts.Timeout)

	_, err = parseMigrateFlags([]string{"--timeout", "0s"})
	require.Error(t, err)
}

func TestParseRecoverFlags(t *testing.T) {
	_, err := parseRecoverFlags(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	opts, err := parseRecoverFlags([]string{"--dry-run"})
	require.NoError(t, err)
	assert.True(t, opts.DryRun)

	opts, err = parseRecoverFlags([]string{"--force"})
	require.NoError(t, err)
	assert.True(t, opts.Force)
}

func TestParseWatchFlags(t *testing.T) {
	opts, err := parseWatchFlags([]string{"--job-id", "abc"})
	require.NoError(t, err)
	assert.Equal(t, "abc", opts.JobID)
}

func TestHasRedisConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.RedisConfig
		want bool
	}{
		{name: "nil", cfg: nil, want: false},
		{name: "direct", cfg: &config.RedisConfig{URI: "localhost:6379"}, want: true},
		{name: "direct empty", cfg: &config.RedisConfig{}, want: false},
		{name: "sentinel", cfg: &config.RedisConfig{UseSentinel: true, SentinelNodes: []string{"a:26379"}}, want: true},
		{name: "cluster", cfg: &config.RedisConfig{UseCluster: true, ClusterNodes: []string{"a:7000"}}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasRedisConfig(tt.cfg))
		})
	}
}

func TestOpenInfra(t *testing.T) {
	cmdCtx := &commandContext{Ctx: context.Background(), Logger: testLogger()}

	in, err := openInfra(cmdCtx, 0)
	require.NoError(t, err)
	assert.Nil(t, in.db)
	assert.Nil(t, in.redis)
	require.NoError(t, in.Close())

	cmdCtx.Config.Redis = config.RedisConfig{Enabled: false, URI: "localhost:6379"}
	_, err = openInfra(cmdCtx, needRedis)
	require.ErrorIs(t, err, errRedisNotConfigured)

	var nilInfra *infra
	require.NoError(t, nilInfra.Close())
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	err := printStats(&buf, model.JobStats{
		model.JobStatusRunning:   2,
		model.JobStatusCompleted: 5,
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Regexp(t, `running\s+2`, out)
	assert.Regexp(t, `completed\s+5`, out)
	assert.Regexp(t, `failed\s+0`, out)
	assert.Regexp(t, `total\s+7`, out)
}

func TestPrintStaleJobs(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	started := now.Add(-90 * time.Second)

	var buf bytes.Buffer
	require.NoError(t, printStaleJobs(&buf, nil, now))
	assert.Equal(t, "no running jobs\n", buf.String())

	buf.Reset()
	err := printStaleJobs(&buf, []*model.Job{
		{ID: "job-1", SessionID: "s1", Type: model.JobTypeTopTen, Progress: 40, StartedAt: &started},
		{ID: "job-2", SessionID: "s2", Type: model.JobTypeSpotlist},
	}, now)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "RUNNING FOR")
	assert.Regexp(t, `job-1\s+s1\s+top_ten\s+40%\s+1m30s`, out)
	assert.Regexp(t, `job-2\s+s2\s+spotlist\s+0%\s+-`, out)
}

func TestPrintMigrationStatus(t *testing.T) {
	var buf bytes.Buffer
	err := printMigrationStatus(&buf, []migrate.Migration{
		{Version: "001_background_jobs", Applied: true},
		{Version: "002_job_indexes", Applied: false},
	})
	require.NoError(t, err)
	assert.Regexp(t, `001_background_jobs\s+yes`, buf.String())
	assert.Regexp(t, `002_job_indexes\s+no`, buf.String())
}

func TestPrintEvent(t *testing.T) {
	var buf bytes.Buffer
	err := printEvent(&buf, model.JobEvent{
		Type:      model.JobEventFailed,
		JobID:     "job-9",
		JobType:   model.JobTypeSpotlist,
		Status:    model.JobStatusFailed,
		Attempt:   3,
		Message:   "upstream down",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t,
		"2026-03-01T12:00:00Z  failed    job=job-9 type=spotlist status=failed attempt=3 message=\"upstream down\"\n",
		buf.String())
}
