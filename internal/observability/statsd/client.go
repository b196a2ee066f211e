// Package statsd emits DogStatsD-style metrics over UDP.
package statsd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Sink is the metric surface the orchestrator, recovery and reaper emit through.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Config describes the agent to send to.
type Config struct {
	Enabled    bool
	Address    string // host:port of the agent
	Prefix     string
	GlobalTags map[string]string
	Logger     *slog.Logger
}

const (
	kindCount  = "c"
	kindGauge  = "g"
	kindTiming = "ms"

	dialTimeout = 5 * time.Second
)

// Client sends one datagram per metric. Methods are safe for concurrent use,
// and a nil, disabled or closed Client silently drops metrics.
type Client struct {
	format lineFormat
	logger *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

var _ Sink = (*Client)(nil)

// NewClient returns a Client, dialing the agent when cfg is enabled and has
// an address.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		format: newLineFormat(cfg.Prefix, cfg.GlobalTags),
		logger: logger.With("component", "statsd"),
	}

	addr := strings.TrimSpace(cfg.Address)
	if !cfg.Enabled || addr == "" {
		return c, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial statsd agent %s: %w", addr, err)
	}
	c.conn = conn
	return c, nil
}

// Enabled reports whether metrics are actually sent.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.emit(name, strconv.FormatInt(value, 10), kindCount, tags)
}

func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.emit(name, formatFloat(value), kindGauge, tags)
}

// Timing sends value in fractional milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	c.emit(name, formatFloat(float64(value)/float64(time.Millisecond)), kindTiming, tags)
}

// Close drops the socket; later metrics are discarded.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Client) emit(name, value, kind string, tags map[string]string) {
	if c == nil {
		return
	}
	line, ok := c.format.line(name, value, kind, tags)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	// UDP writes only fail locally (e.g. no route); a lost metric is not worth more than a debug line.
	if _, err := c.conn.Write([]byte(line)); err != nil {
		c.logger.Debug("statsd write failed", "metric", name, "error", err)
	}
}
