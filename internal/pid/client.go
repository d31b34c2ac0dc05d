// Package pid fetches persistent identifiers from the PID web service.
//
// The service answers GET requests with a JSON list:
//
//	[{"id": "j96059k22s", "number": 1}]
package pid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/your-org/essencelink/internal/metrics"
	"github.com/your-org/essencelink/pkg/retry"
)

// ErrUnavailable marks failures worth another attempt.
var ErrUnavailable = errors.New("pid service unavailable")

// Config holds PID client settings.
type Config struct {
	URL        string
	HTTPClient *http.Client
	Retry      retry.Config
	Logger     *zap.Logger
}

// Client fetches PIDs.
type Client struct {
	url    string
	http   *http.Client
	retry  retry.Config
	logger *zap.Logger
}

// New constructs a Client.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	r := cfg.Retry
	r.Logger = cfg.Logger
	r.OnRetry = func(int, time.Duration, error) { metrics.RecordRetry("get_pid") }
	return &Client{url: cfg.URL, http: cfg.HTTPClient, retry: r, logger: cfg.Logger}
}

type pidEntry struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
}

// GetPID returns a fresh PID. Transport failures, unreadable bodies and empty
// answers are retried with backoff; after the last attempt the error wraps a
// retry.ExhaustedError.
func (c *Client) GetPID(ctx context.Context) (string, error) {
	isUnavailable := func(err error) bool { return errors.Is(err, ErrUnavailable) }
	return retry.DoValue(ctx, c.retry, isUnavailable, c.fetch)
}

func (c *Client) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("build pid request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var entries []pidEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return "", fmt.Errorf("%w: decode body: %v", ErrUnavailable, err)
	}
	if len(entries) == 0 || entries[0].ID == "" {
		return "", fmt.Errorf("%w: no pid in response", ErrUnavailable)
	}
	c.logger.Debug("received pid", zap.String("pid", entries[0].ID))
	return entries[0].ID, nil
}
