package device

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/edgelink-io/edgelink-go/pkg/api"
)

// RegistrationResponse is the server's reply to a device registration.
type RegistrationResponse struct {
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
	APIKey   string `json:"api_key,omitempty"`
}

// UpdateRequest carries a partial device metadata update.
// Nil fields are left unchanged.
type UpdateRequest struct {
	Name            *string            `json:"name,omitempty"`
	Metadata        *map[string]string `json:"metadata,omitempty"`
	FirmwareVersion *string            `json:"firmware_version,omitempty"`
}

// Manager performs device CRUD against the management API.
type Manager struct {
	api    *api.Client
	logger *slog.Logger
}

// NewManager creates a device manager over the given API client.
func NewManager(client *api.Client) *Manager {
	return &Manager{api: client}
}

// SetLogger sets the manager's logger.
func (m *Manager) SetLogger(logger *slog.Logger) {
	m.logger = logger
}

// Register registers the device with the management API.
func (m *Manager) Register(ctx context.Context, deviceID string, info *Info) (*RegistrationResponse, error) {
	req := struct {
		DeviceID string `json:"device_id"`
		*Info
	}{DeviceID: deviceID, Info: info}

	var resp RegistrationResponse
	if err := m.api.Post(ctx, "/devices", &req, &resp); err != nil {
		return nil, fmt.Errorf("failed to register device %s: %w", deviceID, err)
	}
	if m.logger != nil {
		m.logger.Info("device registered", "deviceID", deviceID, "name", info.Name)
	}
	return &resp, nil
}

// Update applies a partial metadata update and returns the resulting
// device info.
func (m *Manager) Update(ctx context.Context, deviceID string, update *UpdateRequest) (*Info, error) {
	var info Info
	path := "/devices/" + url.PathEscape(deviceID)
	if err := m.api.Put(ctx, path, update, &info); err != nil {
		return nil, fmt.Errorf("failed to update device %s: %w", deviceID, err)
	}
	return &info, nil
}

// ReportStatus reports the device's current status.
func (m *Manager) ReportStatus(ctx context.Context, deviceID string, status Status) error {
	req := struct {
		Status    Status `json:"status"`
		Timestamp int64  `json:"timestamp"`
	}{Status: status, Timestamp: time.Now().Unix()}

	path := "/devices/" + url.PathEscape(deviceID) + "/status"
	if err := m.api.Put(ctx, path, &req, nil); err != nil {
		return fmt.Errorf("failed to report status for device %s: %w", deviceID, err)
	}
	if m.logger != nil {
		m.logger.Debug("device status reported", "deviceID", deviceID, "status", status)
	}
	return nil
}

// List returns registered devices, paged by limit and offset.
// Zero values omit the corresponding query parameter.
func (m *Manager) List(ctx context.Context, limit, offset int) ([]Info, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}

	path := "/devices"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var devices []Info
	if err := m.api.Get(ctx, path, &devices); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}
