// Package api provides the authenticated request/response client for
// the EdgeLink management API. Requests carry the current session
// token as a bearer credential; failures are classified as transient
// or permanent so callers can decide whether to retry.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/edgelink-io/edgelink-go/pkg/auth"
)

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 30 * time.Second

// Client errors.
var (
	// ErrTransient indicates a failure that is safe to retry, such as
	// a network error or a 5xx response.
	ErrTransient = errors.New("transient api failure")

	// ErrPermanent indicates a failure that retrying cannot fix, such
	// as a 4xx response.
	ErrPermanent = errors.New("permanent api failure")
)

// StatusError is a non-success API response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Body)
}

// Unwrap classifies the status into the transient/permanent taxonomy.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Code >= 500:
		return ErrTransient
	case e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout:
		return ErrTransient
	default:
		return ErrPermanent
	}
}

// Client is an authenticated JSON API client.
type Client struct {
	baseURL string
	http    *http.Client
	auth    *auth.Client
	logger  *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates an API client rooted at baseURL.
// The auth client supplies and refreshes the bearer token.
func NewClient(baseURL string, authClient *auth.Client, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
		auth:    authClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs an authenticated GET and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post performs an authenticated POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

// Put performs an authenticated PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPut, path, in, out)
}

// Delete performs an authenticated DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// do runs one request. A 401 invalidates the session and the request
// is retried once with a fresh token.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	err := c.doOnce(ctx, method, path, in, out)

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusUnauthorized {
		c.auth.Invalidate()
		if c.logger != nil {
			c.logger.Debug("session rejected, retrying with fresh token",
				"method", method, "path", path)
		}
		return c.doOnce(ctx, method, path, in, out)
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, method, path string, in, out any) error {
	session, err := c.auth.Session(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain session: %w", err)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: failed to encode request body: %v", ErrPermanent, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	req.Header.Set("Authorization", "Bearer "+session.Token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.logger != nil {
		c.logger.Debug("api request", "method", method, "path", path)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := &StatusError{Code: resp.StatusCode, Body: string(text)}
		if c.logger != nil {
			c.logger.Error("api request failed",
				"method", method,
				"path", path,
				"status", resp.StatusCode)
		}
		return statusErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", ErrPermanent, err)
		}
	}
	return nil
}
