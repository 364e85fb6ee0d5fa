// Package config loads and validates EdgeLink client configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration defaults.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultAuthTimeout    = 10 * time.Second
	DefaultRefreshMargin  = 5 * time.Minute
	DefaultBufferSize     = 256
)

// Config errors.
var (
	ErrMissingAPIURL = errors.New("api_url is required")
	ErrKeyConflict   = errors.New("private_key_path and private_key_base64 are mutually exclusive")
)

// HeartbeatConfig configures realtime channel liveness probing.
type HeartbeatConfig struct {
	// PingInterval is the interval between liveness probes.
	PingInterval Duration `yaml:"ping_interval"`

	// PongTimeout is how long to wait for a probe acknowledgement.
	PongTimeout Duration `yaml:"pong_timeout"`

	// MaxMissedPongs is the missed-probe budget before reconnecting.
	MaxMissedPongs int `yaml:"max_missed_pongs"`
}

// BackoffConfig configures reconnection and retry delays.
type BackoffConfig struct {
	// Initial is the delay before the first retry.
	Initial Duration `yaml:"initial"`

	// Max caps the delay growth.
	Max Duration `yaml:"max"`

	// Multiplier is the per-attempt growth factor.
	Multiplier float64 `yaml:"multiplier"`

	// Jitter is the maximum random fraction added to each delay.
	Jitter float64 `yaml:"jitter"`
}

// Config is the client configuration.
type Config struct {
	// APIURL is the base URL of the management API. Required.
	APIURL string `yaml:"api_url"`

	// RealtimeAddress is the host:port of the realtime endpoint.
	// Empty disables the realtime channel.
	RealtimeAddress string `yaml:"realtime_address"`

	// DeviceID identifies this device. Empty generates a random ID.
	DeviceID string `yaml:"device_id"`

	// PrivateKeyPath is the path of the PEM private key file.
	PrivateKeyPath string `yaml:"private_key_path"`

	// PrivateKeyBase64 is the raw private key, base64 encoded.
	// Mutually exclusive with PrivateKeyPath.
	PrivateKeyBase64 string `yaml:"private_key_base64"`

	// StatePath is the directory for persisted state. Empty disables
	// persistence across restarts.
	StatePath string `yaml:"state_path"`

	// RequestTimeout bounds a single API request.
	RequestTimeout Duration `yaml:"request_timeout"`

	// AuthTimeout bounds the realtime handshake acknowledgement wait.
	AuthTimeout Duration `yaml:"auth_timeout"`

	// RefreshMargin is how long before expiry sessions refresh.
	RefreshMargin Duration `yaml:"refresh_margin"`

	// BufferSize is the realtime outbound buffer capacity.
	BufferSize int `yaml:"buffer_size"`

	// Heartbeat configures realtime liveness probing.
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	// Backoff configures retry delays for the channel and dispatcher.
	Backoff BackoffConfig `yaml:"backoff"`
}

// New creates a config for the given API URL with defaults applied.
func New(apiURL string) *Config {
	cfg := &Config{APIURL: apiURL}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return ErrMissingAPIURL
	}
	if c.PrivateKeyPath != "" && c.PrivateKeyBase64 != "" {
		return ErrKeyConflict
	}
	return nil
}

// applyDefaults fills zero values with the documented defaults.
func (c *Config) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = Duration(DefaultRequestTimeout)
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = Duration(DefaultAuthTimeout)
	}
	if c.RefreshMargin <= 0 {
		c.RefreshMargin = Duration(DefaultRefreshMargin)
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
}
