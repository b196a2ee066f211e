package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobs/internal/observability/notify"
)

func fieldTexts(b block) []string {
	out := make([]string, len(b.Fields))
	for i, f := range b.Fields {
		out[i] = f.Text
	}
	return out
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)

	_, err = NewClient(Config{WebhookURL: "not a url"})
	require.Error(t, err)

	c, err := NewClient(Config{WebhookURL: "https://hooks.slack.com/services/T/B/X", RetryLimit: -3})
	require.NoError(t, err)
	assert.Equal(t, defaultUsername, c.username)
	assert.Zero(t, c.retries)
}

func TestBuildMessage(t *testing.T) {
	c, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/T/B/X",
		Channel:    "#reports",
		Username:   "bot",
	})
	require.NoError(t, err)

	occurred := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	msg := c.buildMessage(notify.JobFailure{
		JobID:      "123",
		JobType:    "spotlist",
		JobName:    "Weekly spots",
		SessionID:  "session-1",
		Attempts:   3,
		Error:      "Max retries exceeded. Last error: upstream <503>",
		ErrorClass: "job_retryable",
		OccurredAt: occurred,
		Metadata:   map[string]string{"region": "eu", "channel": "RTL"},
	})

	assert.Equal(t, "bot", msg.Username)
	assert.Equal(t, "#reports", msg.Channel)
	assert.Equal(t, "Background job failed: Weekly spots (spotlist)", msg.Text)

	require.Len(t, msg.Blocks, 4)
	assert.Equal(t, "header", msg.Blocks[0].Type)
	assert.Equal(t, msg.Text, msg.Blocks[0].Text.Text)

	assert.Equal(t, []string{
		"*Job*\nWeekly spots `123`",
		"*Type*\nspotlist",
		"*Severity*\ncritical",
		"*Session*\nsession-1",
		"*Attempts*\n3",
		"*Error class*\njob_retryable",
	}, fieldTexts(msg.Blocks[1]))

	assert.Equal(t, "```Max retries exceeded. Last error: upstream &lt;503&gt;```", msg.Blocks[2].Text.Text)

	require.Len(t, msg.Blocks[3].Elements, 1)
	assert.Equal(t, "channel: RTL | region: eu | 2026-05-04T09:30:00Z", msg.Blocks[3].Elements[0].Text)
}

func TestBuildMessage_OmitsEmptyFields(t *testing.T) {
	c, err := NewClient(Config{WebhookURL: "https://hooks.slack.com/services/T/B/X"})
	require.NoError(t, err)

	msg := c.buildMessage(notify.JobFailure{JobID: "job-1", Severity: notify.SeverityWarning})
	require.Len(t, msg.Blocks, 3)
	assert.Equal(t, []string{"*Job*\n`job-1`", "*Severity*\nwarning"}, fieldTexts(msg.Blocks[1]))
	assert.Empty(t, msg.Channel)
}

func TestJobRef(t *testing.T) {
	tests := []struct {
		name   string
		jobID  string
		job    string
		prefix string
		want   string
	}{
		{name: "id with link", jobID: "job-1", prefix: "https://reports.example/jobs", want: "<https://reports.example/jobs/job-1|job-1>"},
		{name: "name with link", jobID: "job-2", job: "Weekly", prefix: "https://reports.example/jobs/", want: "<https://reports.example/jobs/job-2|Weekly>"},
		{name: "bad prefix", jobID: "job-3", job: "Weekly", prefix: "not a url", want: "Weekly `job-3`"},
		{name: "id only", jobID: "job-4", want: "`job-4`"},
		{name: "escaped name", jobID: "job-5", job: "A & <B>", want: "A &amp; &lt;B&gt; `job-5`"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(Config{WebhookURL: "https://hooks.slack.com/services/T/B/X", JobURLPrefix: tt.prefix})
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.jobRef(tt.jobID, tt.job))
		})
	}
}

func TestSendJobFailure_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return
		}
		var body message
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, body.Blocks)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 1})
	require.NoError(t, err)

	require.NoError(t, c.SendJobFailure(context.Background(), notify.JobFailure{JobID: "job-1"}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendJobFailure_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 3})
	require.NoError(t, err)

	err = c.SendJobFailure(context.Background(), notify.JobFailure{JobID: "job-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_payload")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSendJobFailure_ContextCanceledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = c.SendJobFailure(ctx, notify.JobFailure{JobID: "job-1"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackoff(t *testing.T) {
	c := &Client{}
	assert.Equal(t, baseBackoff, c.backoff(1, nil))
	assert.Equal(t, 2*baseBackoff, c.backoff(2, nil))
	assert.Equal(t, maxBackoff, c.backoff(10, nil))
	assert.Equal(t, 2*time.Second, c.backoff(1, &deliveryError{status: 429, retryAfter: 2 * time.Second}))
	assert.Equal(t, maxBackoff, c.backoff(1, &deliveryError{status: 429, retryAfter: time.Minute}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 2))
	assert.True(t, strings.HasPrefix(truncate(strings.Repeat("ü", 10), 3), "üüü"))
}
