package config

import "time"

// Registry represents the entire user configuration file.
// This stores user-defined metadata for DACs and application preferences.
type Registry struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by device MAC address
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device represents user-defined metadata for a single DAC.
// This is keyed by the device's MAC address in the Registry.
type Device struct {
	Nickname       string    `yaml:"nickname,omitempty"`        // User-friendly name
	LastIP         string    `yaml:"last_ip,omitempty"`         // Last known IP address
	LastSeen       time.Time `yaml:"last_seen,omitempty"`       // Last discovery/connection time
	BufferCapacity uint16    `yaml:"buffer_capacity,omitempty"` // Reported ring buffer size
	MaxPointRate   uint32    `yaml:"max_point_rate,omitempty"`  // Reported maximum point rate
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	AutoDiscover     bool   `yaml:"auto_discover"`      // Enable automatic beacon discovery on startup
	DiscoverTimeout  int    `yaml:"discover_timeout"`   // Beacon discovery timeout in seconds
	DefaultPointRate uint32 `yaml:"default_point_rate"` // Point rate used when none is given
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version: 1,
		Devices: make(map[string]*Device),
		Preferences: &Preferences{
			AutoDiscover:     true,
			DiscoverTimeout:  10,
			DefaultPointRate: 30000,
		},
	}
}

// GetDevice retrieves device metadata by MAC address.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(mac string) *Device {
	return r.Devices[mac]
}

// EnsureDevice ensures a device entry exists in the registry.
// If the device doesn't exist, creates a new entry with default values.
// Returns the device entry (existing or newly created).
func (r *Registry) EnsureDevice(mac string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}

	if device, exists := r.Devices[mac]; exists {
		return device
	}

	device := &Device{}
	r.Devices[mac] = device
	return device
}

// UpdateDeviceLastSeen updates the last seen timestamp and IP for a device.
func (r *Registry) UpdateDeviceLastSeen(mac, ip string) {
	device := r.EnsureDevice(mac)
	device.LastSeen = time.Now()
	device.LastIP = ip
}

// SetNickname sets or updates the nickname for a device.
func (r *Registry) SetNickname(mac, nickname string) {
	device := r.EnsureDevice(mac)
	device.Nickname = nickname
}

// RecordCapabilities stores the capabilities a device reported in its
// discovery beacon.
func (r *Registry) RecordCapabilities(mac string, bufferCapacity uint16, maxPointRate uint32) {
	device := r.EnsureDevice(mac)
	device.BufferCapacity = bufferCapacity
	device.MaxPointRate = maxPointRate
}
