// Package collector gathers spot data from the upstream reporting API and exposes the
// work functions that run spotlist and top_ten jobs.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/target/mmk-jobs/internal/domain/job"
	"github.com/target/mmk-jobs/internal/domain/model"
)

const maxErrorBodyBytes = 512

// Channel is one selectable channel of the reporting API.
type Channel struct {
	ID      string `json:"value"`
	Caption string `json:"caption"`
}

// Source is the subset of the reporting API the work functions need.
type Source interface {
	Channels(ctx context.Context) ([]Channel, error)
	Spots(ctx context.Context, channelID, from, to string) ([]model.Row, error)
}

// StatusError reports a non-2xx response from the reporting API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.Code)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.Code, e.Body)
}

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL           string        // Required
	Token             string        // Optional bearer token
	HTTPClient        *http.Client  // Optional; defaults to a client with Timeout
	Timeout           time.Duration // Used when HTTPClient is nil; defaults to 30s
	RequestsPerSecond float64       // <= 0 disables pacing
	Burst             int
	Logger            *slog.Logger
}

// Client is a rate-limited JSON client for the reporting API.
type Client struct {
	base    *url.URL
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ Source = (*Client)(nil)

// NewClient validates opts and constructs a Client.
func NewClient(opts ClientOptions) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("collector base URL is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse collector base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("collector base URL must be http or https, got %q", base.Scheme)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		base:    base,
		token:   opts.Token,
		http:    hc,
		limiter: limiter,
		logger:  logger.With("component", "collector_client"),
	}, nil
}

// Channels lists the channels available to the API token.
func (c *Client) Channels(ctx context.Context) ([]Channel, error) {
	var out []Channel
	if err := c.getJSON(ctx, "/channels", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Spots returns the flattened spot rows aired on channelID between from and to (inclusive).
func (c *Client) Spots(ctx context.Context, channelID, from, to string) ([]model.Row, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)

	var rep Report
	if err := c.getJSON(ctx, "/channels/"+url.PathEscape(channelID)+"/spots", q, &rep); err != nil {
		return nil, err
	}
	return FlattenReport(rep), nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, dst any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	u := c.base.JoinPath(path)
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return job.Fatal(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
			return ctxErr
		}
		return job.Retryable(fmt.Errorf("send request: %w", err))
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.DebugContext(ctx, "close response body", "error", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return classifyStatus(&StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))})
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return job.Fatal(fmt.Errorf("decode %s response: %w", path, err))
	}
	return nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return job.Retryable(fmt.Errorf("rate limiter: %w", err))
	}
	return nil
}

// classifyStatus marks throttling and server errors retryable; other statuses are fatal.
func classifyStatus(se *StatusError) error {
	if se.Code == http.StatusTooManyRequests || se.Code >= http.StatusInternalServerError {
		return job.Retryable(se)
	}
	return job.Fatal(se)
}

// IsAuthError reports whether err is an upstream 401 or 403.
func IsAuthError(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden
	}
	return false
}
