// Package mediahaven is a small typed client for the MediaHaven REST API.
//
// The client authenticates with the OAuth password grant and caches the
// bearer token. A 401 on any call refreshes the token once and repeats the
// call once; a second 401 is returned as a BackendError.
package mediahaven

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/your-org/essencelink/internal/metrics"
)

const acceptHeader = "application/vnd.mediahaven.v2+json"

// Config holds connection settings.
type Config struct {
	Host     string
	Username string
	Password string
	PageSize int
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to MediaHaven. It is not safe for concurrent use: the cached
// token is shared by all calls, which the single-threaded consumer relies on.
type Client struct {
	host     string
	username string
	password string
	pageSize int
	http     *http.Client
	logger   *zap.Logger

	token string
}

// New constructs a Client.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &Client{
		host:     strings.TrimRight(cfg.Host, "/"),
		username: cfg.Username,
		password: cfg.Password,
		pageSize: cfg.PageSize,
		http:     cfg.HTTPClient,
		logger:   cfg.Logger,
	}
}

type tokenInfo struct {
	AccessToken string `json:"access_token"`
}

func (c *Client) refreshToken(ctx context.Context) error {
	form := url.Values{"grant_type": {"password"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/oauth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordBackendRequest("token", 0)
		return &ConnectivityError{Op: "token", Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ConnectivityError{Op: "token", Err: err}
	}
	metrics.RecordBackendRequest("token", resp.StatusCode)
	if resp.StatusCode != http.StatusCreated {
		return &BackendError{Op: "token", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var ti tokenInfo
	if err := json.Unmarshal(body, &ti); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if ti.AccessToken == "" {
		return &BackendError{Op: "token", StatusCode: resp.StatusCode, Body: "empty access_token"}
	}
	c.token = ti.AccessToken
	c.logger.Debug("acquired mediahaven token")
	return nil
}

type requestFunc func(ctx context.Context) (*http.Request, error)

// do sends an authenticated request and returns status and body. Non-2xx
// statuses become a BackendError.
func (c *Client) do(ctx context.Context, op string, build requestFunc) (int, []byte, error) {
	if c.token == "" {
		if err := c.refreshToken(ctx); err != nil {
			return 0, nil, err
		}
	}

	status, body, err := c.send(ctx, op, build)
	if err != nil {
		return 0, nil, err
	}
	if status == http.StatusUnauthorized {
		c.logger.Debug("mediahaven token rejected, re-authenticating", zap.String("operation", op))
		if err := c.refreshToken(ctx); err != nil {
			return 0, nil, err
		}
		status, body, err = c.send(ctx, op, build)
		if err != nil {
			return 0, nil, err
		}
	}
	if status < 200 || status > 299 {
		return status, body, &BackendError{Op: op, StatusCode: status, Body: string(body)}
	}
	return status, body, nil
}

func (c *Client) send(ctx context.Context, op string, build requestFunc) (int, []byte, error) {
	req, err := build(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", acceptHeader)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordBackendRequest(op, 0)
		return 0, nil, &ConnectivityError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &ConnectivityError{Op: op, Err: err}
	}
	metrics.RecordBackendRequest(op, resp.StatusCode)
	return resp.StatusCode, body, nil
}

// Search returns the records matching every clause of q.
func (c *Client) Search(ctx context.Context, q Query) (*ResultSet, error) {
	params := url.Values{
		"q":           {q.String()},
		"startIndex":  {"0"},
		"nrOfResults": {strconv.Itoa(c.pageSize)},
	}
	_, body, err := c.do(ctx, "search", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/media/?"+params.Encode(), nil)
	})
	if err != nil {
		return nil, err
	}
	var rs ResultSet
	if err := json.Unmarshal(body, &rs); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &rs, nil
}

// CreateFragment creates a full-length fragment under parentID.
func (c *Client) CreateFragment(ctx context.Context, parentID, title string) (*Record, error) {
	fields := [][2]string{
		{"fragmentStartFrames", "0"},
		{"fragmentEndFrames", "0"},
		{"title", title},
	}
	_, body, err := c.do(ctx, "create_fragment", func(ctx context.Context) (*http.Request, error) {
		return multipartRequest(ctx, http.MethodPost, c.host+"/media/"+url.PathEscape(parentID)+"/fragments", fields)
	})
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode create fragment response: %w", err)
	}
	return &rec, nil
}

// UpdateFragment posts a metadata sidecar. Only 204 counts as applied.
func (c *Client) UpdateFragment(ctx context.Context, fragmentID string, sidecar []byte, reason string) (bool, error) {
	fields := [][2]string{
		{"metadata", string(sidecar)},
		{"reason", reason},
	}
	status, _, err := c.do(ctx, "update_fragment", func(ctx context.Context) (*http.Request, error) {
		return multipartRequest(ctx, http.MethodPost, c.host+"/media/"+url.PathEscape(fragmentID), fields)
	})
	if err != nil {
		return false, err
	}
	return status == http.StatusNoContent, nil
}

// DeleteFragment deletes a fragment. Only 204 counts as deleted.
func (c *Client) DeleteFragment(ctx context.Context, fragmentID string) (bool, error) {
	status, _, err := c.do(ctx, "delete_fragment", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodDelete, c.host+"/media/"+url.PathEscape(fragmentID), nil)
	})
	if err != nil {
		return false, err
	}
	return status == http.StatusNoContent, nil
}

func multipartRequest(ctx context.Context, method, target string, fields [][2]string) (*http.Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, nil
}
