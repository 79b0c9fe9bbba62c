package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/mixma5ter/matrixctl/internal/protocol"
)

// CurrentVersion is the only config file version understood
const CurrentVersion = 1

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Registry represents the entire user configuration file.
type Registry struct {
	Version     int           `yaml:"version"`
	Device      *ModuleConfig `yaml:"device"`
	Preferences *Preferences  `yaml:"preferences,omitempty"`
}

// ModuleConfig is the target switcher for one session. A change tears down
// and recreates the transport.
type ModuleConfig struct {
	Host string `yaml:"host,omitempty"` // Target IPv4 address; empty means discover only
	Port int    `yaml:"port"`           // UDP control port
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	DiscoverTimeout int    `yaml:"discover_timeout"`       // Seconds to collect discovery replies
	ListenAddr      string `yaml:"listen_addr,omitempty"`  // Local bind address for the UDP socket
	StaleAfter      int    `yaml:"stale_after"`            // Seconds before a silent device is pruned; 0 keeps devices forever
	ServeAddr       string `yaml:"serve_addr,omitempty"`   // Listen address for the control server
	MDNSService     string `yaml:"mdns_service,omitempty"` // mDNS service browsed for candidate hosts
	MDNSFilter      string `yaml:"mdns_filter,omitempty"`  // Keep only mDNS instances whose name contains this
}

// DefaultModuleConfig returns the config used when none is stored
func DefaultModuleConfig() ModuleConfig {
	return ModuleConfig{Port: protocol.DefaultPort}
}

// DefaultPreferences returns the preferences used when none are stored
func DefaultPreferences() *Preferences {
	return &Preferences{
		DiscoverTimeout: 3,
		ListenAddr:      "0.0.0.0:0",
		StaleAfter:      0,
		ServeAddr:       "127.0.0.1:8080",
		MDNSService:     "_http._tcp",
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	device := DefaultModuleConfig()
	return &Registry{
		Version:     CurrentVersion,
		Device:      &device,
		Preferences: DefaultPreferences(),
	}
}

// Validate checks that Host is empty or an IPv4 literal and Port is a usable
// UDP port.
func (c ModuleConfig) Validate() error {
	if c.Host != "" {
		ip := net.ParseIP(c.Host)
		if ip == nil || ip.To4() == nil {
			return fmt.Errorf("%w: host %q is not an IPv4 address", ErrInvalidConfig, c.Host)
		}
	}
	if !protocol.ValidPort(c.Port) {
		return fmt.Errorf("%w: port %d out of range %d-%d",
			ErrInvalidConfig, c.Port, protocol.MinPort, protocol.MaxPort)
	}
	return nil
}

// String renders the config for logs
func (c ModuleConfig) String() string {
	host := c.Host
	if host == "" {
		host = "<unset>"
	}
	return fmt.Sprintf("%s port %d", host, c.Port)
}

// DiscoverTimeoutDuration returns the discovery wait as a duration, falling
// back to the default for non-positive values.
func (p *Preferences) DiscoverTimeoutDuration() time.Duration {
	if p == nil || p.DiscoverTimeout <= 0 {
		return time.Duration(DefaultPreferences().DiscoverTimeout) * time.Second
	}
	return time.Duration(p.DiscoverTimeout) * time.Second
}

// StaleAfterDuration returns the prune threshold; zero disables pruning.
func (p *Preferences) StaleAfterDuration() time.Duration {
	if p == nil || p.StaleAfter <= 0 {
		return 0
	}
	return time.Duration(p.StaleAfter) * time.Second
}

// Keys lists the settable keys in display order
var Keys = []string{
	"device.host",
	"device.port",
	"preferences.discover_timeout",
	"preferences.listen_addr",
	"preferences.stale_after",
	"preferences.serve_addr",
	"preferences.mdns_service",
	"preferences.mdns_filter",
}

// Get returns the string form of a settable key
func (r *Registry) Get(key string) (string, error) {
	r.ensureDefaults()

	switch key {
	case "device.host":
		return r.Device.Host, nil
	case "device.port":
		return strconv.Itoa(r.Device.Port), nil
	case "preferences.discover_timeout":
		return strconv.Itoa(r.Preferences.DiscoverTimeout), nil
	case "preferences.listen_addr":
		return r.Preferences.ListenAddr, nil
	case "preferences.stale_after":
		return strconv.Itoa(r.Preferences.StaleAfter), nil
	case "preferences.serve_addr":
		return r.Preferences.ServeAddr, nil
	case "preferences.mdns_service":
		return r.Preferences.MDNSService, nil
	case "preferences.mdns_filter":
		return r.Preferences.MDNSFilter, nil
	default:
		return "", fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(Keys, ", "))
	}
}

// Set parses value into key. Device changes are validated before they are
// applied.
func (r *Registry) Set(key, value string) error {
	r.ensureDefaults()

	switch key {
	case "device.host":
		next := *r.Device
		next.Host = strings.TrimSpace(value)
		if err := next.Validate(); err != nil {
			return err
		}
		*r.Device = next
	case "device.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: port %q is not a number", ErrInvalidConfig, value)
		}
		next := *r.Device
		next.Port = port
		if err := next.Validate(); err != nil {
			return err
		}
		*r.Device = next
	case "preferences.discover_timeout":
		n, err := parseSeconds(value)
		if err != nil {
			return err
		}
		r.Preferences.DiscoverTimeout = n
	case "preferences.stale_after":
		n, err := parseSeconds(value)
		if err != nil {
			return err
		}
		r.Preferences.StaleAfter = n
	case "preferences.listen_addr":
		if _, _, err := net.SplitHostPort(value); err != nil {
			return fmt.Errorf("%w: listen_addr: %v", ErrInvalidConfig, err)
		}
		r.Preferences.ListenAddr = value
	case "preferences.serve_addr":
		if _, _, err := net.SplitHostPort(value); err != nil {
			return fmt.Errorf("%w: serve_addr: %v", ErrInvalidConfig, err)
		}
		r.Preferences.ServeAddr = value
	case "preferences.mdns_service":
		r.Preferences.MDNSService = value
	case "preferences.mdns_filter":
		r.Preferences.MDNSFilter = strings.TrimSpace(value)
	default:
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(Keys, ", "))
	}
	return nil
}

// ensureDefaults fills sections missing from an older or hand-edited file
func (r *Registry) ensureDefaults() {
	if r.Device == nil {
		device := DefaultModuleConfig()
		r.Device = &device
	}
	if r.Preferences == nil {
		r.Preferences = DefaultPreferences()
	}
}

func parseSeconds(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q is not a non-negative number of seconds", ErrInvalidConfig, value)
	}
	return n, nil
}
