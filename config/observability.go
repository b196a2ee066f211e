package config

import (
	"maps"
	"strings"
	"time"
)

// ObservabilityConfig covers StatsD metrics and failure notifications.
type ObservabilityConfig struct {
	Metrics       MetricsConfig       `envPrefix:"OBSERVABILITY_METRICS_"`
	Notifications NotificationsConfig `envPrefix:"OBSERVABILITY_NOTIFICATIONS_"`
}

// Sanitize sanitizes both halves.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// MetricsConfig points the statsd client at an agent.
type MetricsConfig struct {
	Enabled       bool   `env:"ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string `env:"PREFIX"         envDefault:"mmk_jobs"`
	// Tags are attached to every metric, e.g. "env:prod,region:us-east".
	Tags map[string]string `env:"TAGS" envKeyValSeparator:":"`
}

// Sanitize trims the address and prefix and drops blank tag keys. Metrics are
// switched off when no address remains.
func (c *MetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	c.Enabled = c.Enabled && c.StatsdAddress != ""

	if len(c.Tags) == 0 {
		return
	}
	tags := make(map[string]string, len(c.Tags))
	for k, v := range c.Tags {
		if k = strings.TrimSpace(k); k != "" {
			tags[k] = strings.TrimSpace(v)
		}
	}
	c.Tags = tags
}

// IsEnabled reports whether a statsd client should be built.
func (c *MetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// GlobalTags returns a copy of Tags safe to hand to the client.
func (c *MetricsConfig) GlobalTags() map[string]string {
	return maps.Clone(c.Tags)
}

// NotificationsConfig controls alerts for jobs that fail for good.
type NotificationsConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"false"`
	// Timeout applies to a single webhook attempt.
	Timeout    time.Duration `env:"TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"RETRY_LIMIT" envDefault:"3"`
	Slack      SlackConfig   `envPrefix:"SLACK_"`
}

const (
	defaultNotifyTimeout = 5 * time.Second
	defaultSlackUsername = "mmk-jobs"
)

// Sanitize clamps timeouts and retries and disables Slack unless notifications
// are on and a webhook is set.
func (c *NotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = defaultNotifyTimeout
	}
	c.RetryLimit = max(c.RetryLimit, 0)

	c.Slack.WebhookURL = strings.TrimSpace(c.Slack.WebhookURL)
	c.Slack.Channel = strings.TrimSpace(c.Slack.Channel)
	c.Slack.JobURLPrefix = strings.TrimRight(strings.TrimSpace(c.Slack.JobURLPrefix), "/")
	if c.Slack.Username = strings.TrimSpace(c.Slack.Username); c.Slack.Username == "" {
		c.Slack.Username = defaultSlackUsername
	}
	c.Slack.Enabled = c.Slack.Enabled && c.Enabled && c.Slack.WebhookURL != ""
}

// SlackConfig is the incoming-webhook destination.
type SlackConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME"    envDefault:"mmk-jobs"`
	// JobURLPrefix turns job ids in messages into links.
	JobURLPrefix string `env:"JOB_URL_PREFIX"`
}
