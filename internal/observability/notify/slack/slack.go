// Package slack posts job failure notifications to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/target/mmk-jobs/internal/observability/notify"
)

const (
	defaultUsername = "mmk-jobs"
	maxErrorRunes   = 2000
	maxHeaderRunes  = 150
	baseBackoff     = 200 * time.Millisecond
	maxBackoff      = 5 * time.Second
)

// Config configures a Client.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// JobURLPrefix turns job ids into links, e.g. https://reports.example.com/jobs
	JobURLPrefix string
}

// Client delivers job failures to a Slack incoming webhook.
type Client struct {
	webhookURL string
	channel    string
	username   string
	retries    int
	jobLink    *url.URL
	hc         *http.Client
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	webhook := strings.TrimSpace(cfg.WebhookURL)
	if webhook == "" {
		return nil, errors.New("slack webhook url is required")
	}
	if u, err := url.Parse(webhook); err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid slack webhook url %q", webhook)
	}

	hc := cfg.Client
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = defaultUsername
	}

	return &Client{
		webhookURL: webhook,
		channel:    strings.TrimSpace(cfg.Channel),
		username:   username,
		retries:    max(cfg.RetryLimit, 0),
		jobLink:    parseJobLink(cfg.JobURLPrefix),
		hc:         hc,
	}, nil
}

func parseJobLink(prefix string) *url.URL {
	u, err := url.Parse(strings.TrimSpace(prefix))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	return u
}

// deliveryError is a non-2xx webhook response.
type deliveryError struct {
	status     int
	body       string
	retryAfter time.Duration
}

func (e *deliveryError) Error() string {
	return fmt.Sprintf("slack webhook returned %d: %s", e.status, e.body)
}

func (e *deliveryError) retryable() bool {
	return e.status == http.StatusTooManyRequests || e.status >= http.StatusInternalServerError
}

// SendJobFailure posts the failure, retrying throttled, 5xx and transport
// failures up to RetryLimit times. Other 4xx responses are returned at once.
func (c *Client) SendJobFailure(ctx context.Context, failure notify.JobFailure) error {
	body, err := json.Marshal(c.buildMessage(failure))
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.backoff(attempt, lastErr)); err != nil {
				return err
			}
		}
		lastErr = c.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		var de *deliveryError
		if errors.As(lastErr, &de) && !de.retryable() {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) backoff(attempt int, lastErr error) time.Duration {
	var de *deliveryError
	if errors.As(lastErr, &de) && de.retryAfter > 0 {
		return min(de.retryAfter, maxBackoff)
	}
	return min(baseBackoff<<(attempt-1), maxBackoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	de := &deliveryError{status: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		de.retryAfter = time.Duration(secs) * time.Second
	}
	return de
}

type message struct {
	Text     string  `json:"text"`
	Username string  `json:"username,omitempty"`
	Channel  string  `json:"channel,omitempty"`
	Blocks   []block `json:"blocks"`
}

type block struct {
	Type     string       `json:"type"`
	Text     *textObject  `json:"text,omitempty"`
	Fields   []textObject `json:"fields,omitempty"`
	Elements []textObject `json:"elements,omitempty"`
}

type textObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func mrkdwn(s string) textObject { return textObject{Type: "mrkdwn", Text: s} }

// buildMessage renders a failure as Block Kit with a plain-text fallback.
func (c *Client) buildMessage(f notify.JobFailure) message {
	occurred := f.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	severity := f.Severity
	if severity == "" {
		severity = notify.SeverityCritical
	}

	title := "Background job failed: " + f.Label()
	if f.JobType != "" {
		title += " (" + f.JobType + ")"
	}

	var fields []textObject
	addField := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			fields = append(fields, mrkdwn("*"+label+"*\n"+value))
		}
	}
	addField("Job", c.jobRef(f.JobID, f.JobName))
	addField("Type", escape(f.JobType))
	addField("Severity", string(severity))
	addField("Session", escape(f.SessionID))
	if f.Attempts > 0 {
		addField("Attempts", strconv.Itoa(f.Attempts))
	}
	addField("Error class", escape(f.ErrorClass))

	blocks := []block{
		{Type: "header", Text: &textObject{Type: "plain_text", Text: truncate(title, maxHeaderRunes)}},
		{Type: "section", Fields: fields},
	}
	if f.Error != "" {
		blocks = append(blocks, block{Type: "section", Text: &textObject{
			Type: "mrkdwn",
			Text: "```" + escape(truncate(f.Error, maxErrorRunes)) + "```",
		}})
	}
	blocks = append(blocks, block{Type: "context", Elements: c.contextLine(f.Metadata, occurred)})

	return message{Text: title, Username: c.username, Channel: c.channel, Blocks: blocks}
}

func (c *Client) contextLine(metadata map[string]string, occurred time.Time) []textObject {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, escape(k)+": "+escape(metadata[k]))
	}
	parts = append(parts, occurred.UTC().Format(time.RFC3339))
	return []textObject{mrkdwn(strings.Join(parts, " | "))}
}

// jobRef links the job when JobURLPrefix is configured and falls back to
// inline code otherwise.
func (c *Client) jobRef(jobID, jobName string) string {
	id := escape(strings.TrimSpace(jobID))
	name := escape(strings.TrimSpace(jobName))
	if id == "" {
		return name
	}
	if c.jobLink != nil {
		label := id
		if name != "" {
			label = name
		}
		return fmt.Sprintf("<%s|%s>", c.jobLink.JoinPath(strings.TrimSpace(jobID)).String(), label)
	}
	if name != "" {
		return fmt.Sprintf("%s `%s`", name, id)
	}
	return "`" + id + "`"
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string { return slackEscaper.Replace(s) }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
