// Package config provides user configuration management for the lumen
// toolkit.
//
// This package manages a YAML-based configuration file that stores
// user-defined metadata for DACs (nicknames, last known addresses,
// reported capabilities) and application preferences such as the default
// point rate. The configuration follows OS-specific conventions for
// storage location.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/lumen/config.yaml or $HOME/.config/lumen/config.yaml
//   - macOS: $HOME/.config/lumen/config.yaml
//   - Windows: %LOCALAPPDATA%\lumen\config.yaml
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry.UpdateDeviceLastSeen("aa:bb:cc:dd:ee:ff", "192.168.1.50")
//	registry.SetNickname("aa:bb:cc:dd:ee:ff", "Stage Left")
//
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// Saves are atomic (write to a temp file, then rename) so a crash never
// leaves a half-written config behind.
package config
