package sdk

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/edgelink-io/edgelink-go/pkg/api"
	"github.com/edgelink-io/edgelink-go/pkg/auth"
	"github.com/edgelink-io/edgelink-go/pkg/channel"
	"github.com/edgelink-io/edgelink-go/pkg/config"
	"github.com/edgelink-io/edgelink-go/pkg/device"
	"github.com/edgelink-io/edgelink-go/pkg/identity"
	"github.com/edgelink-io/edgelink-go/pkg/persistence"
	"github.com/edgelink-io/edgelink-go/pkg/retry"
	"github.com/edgelink-io/edgelink-go/pkg/transport"
	"github.com/edgelink-io/edgelink-go/pkg/webhook"
)

// ErrRealtimeDisabled is returned by Connect when no realtime address
// is configured.
var ErrRealtimeDisabled = errors.New("realtime channel not configured")

// Client is the assembled device SDK.
type Client struct {
	cfg    *config.Config
	creds  *identity.Manager
	auth   *auth.Client
	api    *api.Client
	policy *retry.Policy

	devices  *device.Manager
	webhooks *webhook.Registry
	channel  *channel.Channel
	store    *persistence.DeviceStateStore

	logger *slog.Logger
}

type options struct {
	logger    *slog.Logger
	tlsConfig *tls.Config
	endpoint  auth.Endpoint
	dialer    channel.Dialer
}

// Option customizes a Client.
type Option func(*options)

// WithLogger sets the logger used by all SDK components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTLSConfig sets the TLS configuration for the realtime channel.
func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(o *options) { o.tlsConfig = tlsConfig }
}

// WithAuthEndpoint overrides the challenge/handshake endpoint.
// Intended for tests and non-HTTP control planes.
func WithAuthEndpoint(endpoint auth.Endpoint) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// WithDialer overrides the realtime transport dialer.
// Intended for tests.
func WithDialer(dialer channel.Dialer) Option {
	return func(o *options) { o.dialer = dialer }
}

// New assembles a client from the given configuration.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	policy := retry.NewPolicyWithConfig(retry.PolicyConfig{
		Initial:    cfg.Backoff.Initial.Std(),
		Max:        cfg.Backoff.Max.Std(),
		Multiplier: cfg.Backoff.Multiplier,
		Jitter:     cfg.Backoff.Jitter,
	})

	var keyStore identity.KeyStore
	switch {
	case cfg.PrivateKeyPath != "":
		keyStore = identity.NewFileKeyStore(cfg.PrivateKeyPath)
	case cfg.PrivateKeyBase64 == "" && cfg.StatePath != "":
		keyStore = identity.NewFileKeyStore(filepath.Join(cfg.StatePath, "identity.pem"))
	}

	creds, err := identity.NewManager(identity.Config{
		DeviceID:  cfg.DeviceID,
		KeyBase64: cfg.PrivateKeyBase64,
		Store:     keyStore,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize device identity: %w", err)
	}

	endpoint := o.endpoint
	if endpoint == nil {
		endpoint = auth.NewHTTPEndpoint(cfg.APIURL, &http.Client{Timeout: cfg.RequestTimeout.Std()})
	}

	authOpts := []auth.ClientOption{
		auth.WithRefreshMargin(cfg.RefreshMargin.Std()),
		auth.WithRetryPolicy(policy),
	}
	if o.logger != nil {
		authOpts = append(authOpts, auth.WithLogger(o.logger))
	}
	authClient := auth.NewClient(endpoint, creds, authOpts...)

	apiOpts := []api.Option{api.WithTimeout(cfg.RequestTimeout.Std())}
	if o.logger != nil {
		apiOpts = append(apiOpts, api.WithLogger(o.logger))
	}
	apiClient := api.NewClient(cfg.APIURL, authClient, apiOpts...)

	c := &Client{
		cfg:      cfg,
		creds:    creds,
		auth:     authClient,
		api:      apiClient,
		policy:   policy,
		devices:  device.NewManager(apiClient),
		webhooks: webhook.NewRegistry(apiClient),
		logger:   o.logger,
	}
	if o.logger != nil {
		c.devices.SetLogger(o.logger)
		c.webhooks.SetLogger(o.logger)
	}

	if cfg.RealtimeAddress != "" {
		dialer := o.dialer
		if dialer == nil {
			dialer = channel.NetDialer{Dialer: transport.NewDialer(transport.DialerConfig{
				TLSConfig: o.tlsConfig,
			})}
		}
		c.channel = channel.New(channel.Config{
			Address:    cfg.RealtimeAddress,
			BufferSize: cfg.BufferSize,
			Heartbeat: transport.HeartbeatConfig{
				PingInterval:   cfg.Heartbeat.PingInterval.Std(),
				PongTimeout:    cfg.Heartbeat.PongTimeout.Std(),
				MaxMissedPongs: cfg.Heartbeat.MaxMissedPongs,
			},
			AuthTimeout: cfg.AuthTimeout.Std(),
			RetryPolicy: policy,
		}, authClient, dialer)
		if o.logger != nil {
			c.channel.SetLogger(o.logger)
		}
	}

	if cfg.StatePath != "" {
		c.store = persistence.NewDeviceStateStore(filepath.Join(cfg.StatePath, "state.json"))
	}

	return c, nil
}

// DeviceID returns the device identifier.
func (c *Client) DeviceID() string {
	return c.creds.DeviceID()
}

// Identity returns the device's public identity.
func (c *Client) Identity() identity.Identity {
	return c.creds.Identity()
}

// Session returns a valid session, performing a handshake if needed.
func (c *Client) Session(ctx context.Context) (*auth.Session, error) {
	return c.auth.Session(ctx)
}

// Auth returns the session authentication client.
func (c *Client) Auth() *auth.Client {
	return c.auth
}

// API returns the authenticated management API client.
func (c *Client) API() *api.Client {
	return c.api
}

// Devices returns the device management wrapper.
func (c *Client) Devices() *device.Manager {
	return c.devices
}

// Webhooks returns the webhook registration wrapper.
func (c *Client) Webhooks() *webhook.Registry {
	return c.webhooks
}

// Channel returns the realtime channel, or nil when no realtime
// address is configured.
func (c *Client) Channel() *channel.Channel {
	return c.channel
}

// NewDispatcher creates a webhook dispatcher sharing the client's
// retry policy. A zero config uses the dispatcher defaults.
func (c *Client) NewDispatcher(cfg webhook.Config, sender webhook.Sender) *webhook.Dispatcher {
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = c.policy
	}
	d := webhook.NewDispatcher(cfg, sender)
	if c.logger != nil {
		d.SetLogger(c.logger)
	}
	return d
}

// Connect opens the realtime channel.
func (c *Client) Connect() error {
	if c.channel == nil {
		return ErrRealtimeDisabled
	}
	return c.channel.Open()
}

// SendData publishes a data point on the realtime channel.
// While disconnected the data point is buffered.
func (c *Client) SendData(data *device.Data) error {
	if c.channel == nil {
		return ErrRealtimeDisabled
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode data point: %w", err)
	}
	return c.channel.Send(payload)
}

// SaveState persists the current session window and device ID.
// The derived signing key is never written; a restarted process
// performs a fresh handshake to rebuild its channel credentials.
func (c *Client) SaveState() error {
	if c.store == nil {
		return nil
	}

	state := &persistence.DeviceState{DeviceID: c.creds.DeviceID()}
	if s := c.auth.SessionCell().Get(); s != nil && s.Valid(time.Now()) {
		state.Session = &persistence.SessionState{
			Token:     s.Token,
			IssuedAt:  s.IssuedAt,
			ExpiresAt: s.ExpiresAt,
		}
	}
	return c.store.Save(state)
}

// Close shuts down the realtime channel and persists state.
func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if err := c.SaveState(); err != nil {
		if c.logger != nil {
			c.logger.Warn("failed to persist state on close", "error", err)
		}
		return err
	}
	return nil
}
