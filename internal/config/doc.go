// Package config manages the matrixctl YAML configuration file.
//
// The file holds the target switcher (device.host, device.port) and
// application preferences such as the discovery wait and the control server
// address. It is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/matrixctl/config.yaml or $HOME/.config/matrixctl/config.yaml
//   - macOS: $HOME/.config/matrixctl/config.yaml
//   - Windows: %LOCALAPPDATA%\matrixctl\config.yaml
//
// # Usage Example
//
//	registry, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := registry.Set("device.host", "192.168.1.50"); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Save changes atomically
//	if err := registry.Save(""); err != nil {
//	    log.Fatal(err)
//	}
//
// Writes go to a temporary file that is renamed over the old one, under a
// package mutex.
package config
