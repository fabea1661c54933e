// FilePath: internal/models/models.config.go
package models

import "time"

// VirtualDeviceConfig is one user's virtual-device setup: which
// physical device records play the fish and plant roles, whether
// streaming is enabled, and the current open session per kind.
type VirtualDeviceConfig struct {
	ID              string         `json:"id" db:"id"`
	UserID          string         `json:"user_id" db:"user_id"`
	FishDeviceID    *string        `json:"fish_device_id,omitempty" db:"fish_device_id"`
	PlantDeviceID   *string        `json:"plant_device_id,omitempty" db:"plant_device_id"`
	FishSessionID   *string        `json:"fish_session_id,omitempty" db:"fish_session_id"`
	PlantSessionID  *string        `json:"plant_session_id,omitempty" db:"plant_session_id"`
	Enabled         bool           `json:"enabled" db:"enabled"`
	DatasetVariant  DatasetVariant `json:"dataset_variant" db:"dataset_variant"`
	SpeedMultiplier float64        `json:"speed_multiplier" db:"speed_multiplier"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// DeviceIDFor returns the configured device reference for a kind.
func (c *VirtualDeviceConfig) DeviceIDFor(kind DeviceKind) *string {
	if kind == KindFish {
		return c.FishDeviceID
	}
	return c.PlantDeviceID
}

// SessionIDFor returns the current session reference for a kind.
func (c *VirtualDeviceConfig) SessionIDFor(kind DeviceKind) *string {
	if kind == KindFish {
		return c.FishSessionID
	}
	return c.PlantSessionID
}

// Multiplier returns the effective speed multiplier, defaulting to 1:1
// replay for unset or nonsensical values.
func (c *VirtualDeviceConfig) Multiplier() float64 {
	if c.SpeedMultiplier < 1 {
		return 1
	}
	return c.SpeedMultiplier
}

// KindStatus bundles one kind's device, session, and derived progress.
type KindStatus struct {
	Kind     DeviceKind        `json:"kind"`
	Device   *Device           `json:"device,omitempty"`
	Session  *StreamingSession `json:"session,omitempty"`
	Progress *SessionProgress  `json:"progress,omitempty"`
}

// ConfigStatus is the aggregate view of one user's virtual-device
// setup as returned by the configuration endpoint.
type ConfigStatus struct {
	Config *VirtualDeviceConfig `json:"config"`
	Kinds  []KindStatus         `json:"kinds"`
}

// Device is a registered (physical or virtual) sensor device. The API
// key authenticates the device against the ingestion boundary and is
// only readable by its owner or system roles.
type Device struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	Name      string     `json:"name" db:"name"`
	Kind      DeviceKind `json:"kind" db:"kind"`
	MAC       string     `json:"mac" db:"mac"`
	APIKey    string     `json:"api_key,omitempty" db:"api_key" readxs:"owner,system,superadmin" writexs:"system,superadmin"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}
