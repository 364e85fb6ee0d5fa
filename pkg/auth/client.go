package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/edgelink-io/edgelink-go/pkg/identity"
	"github.com/edgelink-io/edgelink-go/pkg/retry"
)

// Default handshake parameters.
const (
	// DefaultRefreshMargin is how long before expiry a refresh starts.
	DefaultRefreshMargin = 5 * time.Minute

	// DefaultMaxHandshakeAttempts bounds transient handshake retries.
	DefaultMaxHandshakeAttempts = 5
)

// Challenge is a server-issued nonce the device must sign.
type Challenge struct {
	Nonce     []byte
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HandshakeRequest is the signed answer to a challenge.
type HandshakeRequest struct {
	DeviceID  string
	PublicKey []byte
	Nonce     []byte
	Signature []byte
}

// HandshakeResponse is the server's reply to a successful handshake.
type HandshakeResponse struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Endpoint abstracts the remote challenge and handshake endpoints.
type Endpoint interface {
	// RequestChallenge requests a fresh challenge for the device.
	RequestChallenge(ctx context.Context, deviceID string) (*Challenge, error)

	// Handshake submits a signed challenge answer.
	Handshake(ctx context.Context, req *HandshakeRequest) (*HandshakeResponse, error)
}

// Client performs the handshake and owns the current session.
type Client struct {
	endpoint Endpoint
	creds    *identity.Manager
	cell     *Cell
	policy   *retry.Policy

	refreshMargin time.Duration
	maxAttempts   int

	sf     singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithRefreshMargin sets how long before expiry a refresh is triggered.
func WithRefreshMargin(margin time.Duration) ClientOption {
	return func(c *Client) { c.refreshMargin = margin }
}

// WithRetryPolicy sets the backoff policy for transient handshake
// failures.
func WithRetryPolicy(policy *retry.Policy) ClientOption {
	return func(c *Client) { c.policy = policy }
}

// WithMaxAttempts bounds the transient retry loop per handshake.
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) { c.maxAttempts = n }
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates an auth client for the given credentials.
func NewClient(endpoint Endpoint, creds *identity.Manager, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:      endpoint,
		creds:         creds,
		cell:          NewCell(),
		policy:        retry.NewPolicy(),
		refreshMargin: DefaultRefreshMargin,
		maxAttempts:   DefaultMaxHandshakeAttempts,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DeviceID returns the device identifier of the underlying credentials.
func (c *Client) DeviceID() string {
	return c.creds.DeviceID()
}

// SessionCell returns the shared session cell.
// Consumers read snapshots from it rather than holding a Session.
func (c *Client) SessionCell() *Cell {
	return c.cell
}

// Session returns a valid session, refreshing if the current one is
// missing, expired, or inside the refresh margin.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	if s := c.cell.Get(); !s.NeedsRefresh(c.now(), c.refreshMargin) {
		return s, nil
	}
	return c.Refresh(ctx)
}

// Refresh performs a handshake and installs the new session.
//
// Single-flight: concurrent callers wait on the same in-flight
// handshake and share its outcome.
func (c *Client) Refresh(ctx context.Context) (*Session, error) {
	v, err, _ := c.sf.Do("refresh", func() (any, error) {
		// A concurrent caller may have already refreshed while we
		// waited for the flight slot.
		if s := c.cell.Get(); !s.NeedsRefresh(c.now(), c.refreshMargin) {
			return s, nil
		}

		s, err := c.handshake(ctx)
		if err != nil {
			return nil, err
		}
		c.cell.Set(s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Invalidate drops the current session.
// Called when the remote side rejects the session token.
func (c *Client) Invalidate() {
	c.cell.Clear()
	if c.logger != nil {
		c.logger.Debug("session invalidated", "deviceID", c.creds.DeviceID())
	}
}

// RefreshAt returns when the given session becomes due for a
// proactive refresh.
func (c *Client) RefreshAt(s *Session) time.Time {
	return s.ExpiresAt.Add(-c.refreshMargin)
}

// handshake runs one full challenge/sign/submit exchange, retrying
// transient failures with backoff. Fatal failures abort immediately.
func (c *Client) handshake(ctx context.Context) (*Session, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.policy.Delay(attempt - 1)
			if c.logger != nil {
				c.logger.Debug("retrying handshake",
					"deviceID", c.creds.DeviceID(),
					"attempt", attempt,
					"delay", delay)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		s, err := c.attemptHandshake(ctx)
		if err == nil {
			if c.logger != nil {
				c.logger.Info("session established",
					"deviceID", c.creds.DeviceID(),
					"expiresAt", s.ExpiresAt)
			}
			return s, nil
		}
		if IsFatal(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("handshake failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// attemptHandshake runs a single challenge/response exchange.
func (c *Client) attemptHandshake(ctx context.Context) (*Session, error) {
	id := c.creds.Identity()

	challenge, err := c.endpoint.RequestChallenge(ctx, id.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("challenge request failed: %w", err)
	}
	if !c.now().Before(challenge.ExpiresAt) {
		return nil, ErrChallengeExpired
	}

	msg := signedChallengeMessage(challenge.Nonce, id.DeviceID, challenge.IssuedAt)
	sig, err := c.creds.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to sign challenge: %w", err)
	}

	resp, err := c.endpoint.Handshake(ctx, &HandshakeRequest{
		DeviceID:  id.DeviceID,
		PublicKey: id.PublicKey,
		Nonce:     challenge.Nonce,
		Signature: sig,
	})
	if err != nil {
		return nil, err
	}

	issuedAt := resp.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = c.now()
	}
	return newSession(resp.Token, challenge.Nonce, issuedAt, resp.ExpiresAt)
}
