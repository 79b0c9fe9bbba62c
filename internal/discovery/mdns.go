package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// DefaultMDNSService is browsed when no service type is configured.
	// Switchers with a web UI commonly advertise it.
	DefaultMDNSService = "_http._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultBrowseTimeout is how long a browse collects answers
	DefaultBrowseTimeout = 3 * time.Second
)

// Candidate is an mDNS-advertised host that may be a switcher. It becomes a
// DeviceRecord only if it answers a unicast discovery probe.
type Candidate struct {
	// Instance is the advertised service instance name
	Instance string

	// Hostname is the mDNS hostname (e.g., "matrix-01.local.")
	Hostname string

	// IP is the first IPv4 address of the host
	IP string

	// Port is the advertised service port; not used for the UDP probe
	Port int

	// Metadata contains the TXT record key/value pairs
	Metadata map[string]string
}

// String returns a human-readable string representation of the candidate
func (c *Candidate) String() string {
	return fmt.Sprintf("%s (%s) at %s", c.Instance, c.Hostname, c.IP)
}

// MDNSBrowser finds probe candidates on networks that filter broadcast
type MDNSBrowser struct {
	// Service is the DNS-SD service type to browse
	Service string

	// Timeout is the maximum time to collect answers
	Timeout time.Duration

	// InstanceFilter, when set, keeps only instances whose name contains it
	// (case-insensitive)
	InstanceFilter string
}

// NewMDNSBrowser creates a browser with default settings
func NewMDNSBrowser() *MDNSBrowser {
	return &MDNSBrowser{
		Service: DefaultMDNSService,
		Timeout: DefaultBrowseTimeout,
	}
}

// Browse collects IPv4 candidates until the timeout or ctx ends.
// Each IP is reported once.
func (b *MDNSBrowser) Browse(ctx context.Context) ([]*Candidate, error) {
	service := b.Service
	if service == "" {
		service = DefaultMDNSService
	}
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)

	var (
		mu         sync.Mutex
		candidates []*Candidate
		seen       = make(map[string]bool)
	)

	go func() {
		for entry := range entries {
			candidate := b.parseServiceEntry(entry)
			if candidate == nil {
				continue
			}
			mu.Lock()
			if !seen[candidate.IP] {
				seen[candidate.IP] = true
				candidates = append(candidates, candidate)
			}
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, service, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	result := make([]*Candidate, len(candidates))
	copy(result, candidates)
	return result, nil
}

// parseServiceEntry converts a zeroconf entry into a Candidate.
// Returns nil for entries without IPv4 or rejected by the instance filter.
func (b *MDNSBrowser) parseServiceEntry(entry *zeroconf.ServiceEntry) *Candidate {
	if entry == nil || len(entry.AddrIPv4) == 0 {
		return nil
	}

	if b.InstanceFilter != "" &&
		!strings.Contains(strings.ToLower(entry.Instance), strings.ToLower(b.InstanceFilter)) {
		return nil
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	return &Candidate{
		Instance: entry.Instance,
		Hostname: entry.HostName,
		IP:       entry.AddrIPv4[0].String(),
		Port:     entry.Port,
		Metadata: metadata,
	}
}
