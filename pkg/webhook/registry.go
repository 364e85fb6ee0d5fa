package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/edgelink-io/edgelink-go/pkg/api"
)

// EventType names a class of device events a webhook subscribes to.
type EventType string

// Webhook event types.
const (
	EventDataUpdate   EventType = "data_update"
	EventStatusChange EventType = "status_change"
	EventAlert        EventType = "alert"
	EventConfigChange EventType = "config_change"
)

// Registration is a webhook registered with the remote API.
type Registration struct {
	ID       string      `json:"id,omitempty"`
	URL      string      `json:"url"`
	DeviceID string      `json:"device_id"`
	Secret   string      `json:"secret,omitempty"`
	Events   []EventType `json:"events"`
}

// Registry manages webhook registrations on the remote API.
type Registry struct {
	api    *api.Client
	logger *slog.Logger
}

// NewRegistry creates a registry over the given API client.
func NewRegistry(client *api.Client) *Registry {
	return &Registry{api: client}
}

// SetLogger sets the registry's logger.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.logger = logger
}

// Register creates a webhook for the device. The returned registration
// carries the server-assigned ID and signing secret.
func (r *Registry) Register(ctx context.Context, targetURL, deviceID string, events []EventType) (*Registration, error) {
	req := &Registration{
		URL:      targetURL,
		DeviceID: deviceID,
		Events:   events,
	}

	var created Registration
	if err := r.api.Post(ctx, "/webhooks", req, &created); err != nil {
		return nil, fmt.Errorf("failed to register webhook: %w", err)
	}
	if r.logger != nil {
		r.logger.Info("webhook registered",
			"webhookID", created.ID,
			"deviceID", deviceID,
			"url", targetURL)
	}
	return &created, nil
}

// List returns all webhooks registered for the device.
func (r *Registry) List(ctx context.Context, deviceID string) ([]Registration, error) {
	var webhooks []Registration
	path := "/webhooks?device_id=" + url.QueryEscape(deviceID)
	if err := r.api.Get(ctx, path, &webhooks); err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	return webhooks, nil
}

// Delete removes a webhook registration.
func (r *Registry) Delete(ctx context.Context, webhookID string) error {
	if err := r.api.Delete(ctx, "/webhooks/"+url.PathEscape(webhookID)); err != nil {
		return fmt.Errorf("failed to delete webhook %s: %w", webhookID, err)
	}
	if r.logger != nil {
		r.logger.Info("webhook deleted", "webhookID", webhookID)
	}
	return nil
}

// Test asks the server to deliver a test event to the webhook.
func (r *Registry) Test(ctx context.Context, webhookID string) error {
	path := "/webhooks/" + url.PathEscape(webhookID) + "/test"
	if err := r.api.Post(ctx, path, struct{}{}, nil); err != nil {
		return fmt.Errorf("failed to test webhook %s: %w", webhookID, err)
	}
	return nil
}

// Signature computes the hex-encoded HMAC-SHA256 of a payload under
// the webhook secret. Receivers recompute it to authenticate
// deliveries.
func Signature(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a payload signature in constant time.
func VerifySignature(secret string, payload []byte, signature string) bool {
	expected, err := hex.DecodeString(Signature(secret, payload))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}
