// Package device provides device metadata models and the management
// API wrapper for registering devices and reporting data.
package device

import (
	"time"
)

// Status is the operational state a device reports.
type Status string

// Device statuses.
const (
	StatusOnline      Status = "online"
	StatusOffline     Status = "offline"
	StatusMaintenance Status = "maintenance"
	StatusError       Status = "error"
)

// AlertLevel grades the severity of a device notification.
type AlertLevel string

// Alert levels, ordered by severity.
const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertError    AlertLevel = "error"
	AlertCritical AlertLevel = "critical"
)

// Info describes a device to the management API.
type Info struct {
	DeviceType      string            `json:"device_type"`
	Name            string            `json:"name"`
	FirmwareVersion string            `json:"firmware_version"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Data is one reported data point.
type Data struct {
	Timestamp  int64          `json:"timestamp"`
	Status     Status         `json:"status"`
	Readings   map[string]any `json:"readings"`
	AlertLevel AlertLevel     `json:"alert_level,omitempty"`
}

// NewData creates a data point stamped with the current time.
func NewData(status Status) *Data {
	return &Data{
		Timestamp: time.Now().Unix(),
		Status:    status,
		Readings:  make(map[string]any),
	}
}

// WithReading adds a sensor reading and returns the data point for
// chaining.
func (d *Data) WithReading(name string, value any) *Data {
	d.Readings[name] = value
	return d
}

// WithAlertLevel sets the alert level and returns the data point for
// chaining.
func (d *Data) WithAlertLevel(level AlertLevel) *Data {
	d.AlertLevel = level
	return d
}
