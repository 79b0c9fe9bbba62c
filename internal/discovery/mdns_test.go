package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestMDNSBrowser_parseServiceEntry(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		entry   *zeroconf.ServiceEntry
		wantNil bool
		wantIP  string
	}{
		{
			name: "IPv4 host",
			entry: func() *zeroconf.ServiceEntry {
				e := zeroconf.NewServiceEntry("Matrix Switcher", "_http._tcp", "local.")
				e.HostName = "matrix-01.local."
				e.Port = 80
				e.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.50")}
				return e
			}(),
			wantIP: "192.168.1.50",
		},
		{
			name: "first IPv4 wins",
			entry: func() *zeroconf.ServiceEntry {
				e := zeroconf.NewServiceEntry("multi", "_http._tcp", "local.")
				e.AddrIPv4 = []net.IP{net.ParseIP("10.0.0.5"), net.ParseIP("10.0.0.6")}
				return e
			}(),
			wantIP: "10.0.0.5",
		},
		{
			name: "IPv6 only is not probed",
			entry: func() *zeroconf.ServiceEntry {
				e := zeroconf.NewServiceEntry("v6", "_http._tcp", "local.")
				e.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
				return e
			}(),
			wantNil: true,
		},
		{
			name:   "filter match is case-insensitive",
			filter: "MATRIX",
			entry: func() *zeroconf.ServiceEntry {
				e := zeroconf.NewServiceEntry("HD Matrix 4x4", "_http._tcp", "local.")
				e.AddrIPv4 = []net.IP{net.ParseIP("10.0.0.7")}
				return e
			}(),
			wantIP: "10.0.0.7",
		},
		{
			name:   "filter rejects other instances",
			filter: "matrix",
			entry: func() *zeroconf.ServiceEntry {
				e := zeroconf.NewServiceEntry("Office Printer", "_http._tcp", "local.")
				e.AddrIPv4 = []net.IP{net.ParseIP("10.0.0.8")}
				return e
			}(),
			wantNil: true,
		},
		{
			name:    "nil entry",
			entry:   nil,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			browser := NewMDNSBrowser()
			browser.InstanceFilter = tt.filter

			candidate := browser.parseServiceEntry(tt.entry)
			if tt.wantNil {
				if candidate != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", candidate)
				}
				return
			}
			if candidate == nil {
				t.Fatal("parseServiceEntry() = nil, want candidate")
			}
			if candidate.IP != tt.wantIP {
				t.Errorf("candidate.IP = %v, want %v", candidate.IP, tt.wantIP)
			}
			if candidate.Instance != tt.entry.Instance {
				t.Errorf("candidate.Instance = %v, want %v", candidate.Instance, tt.entry.Instance)
			}
		})
	}
}

func TestMDNSBrowser_parseServiceEntry_Metadata(t *testing.T) {
	browser := NewMDNSBrowser()

	entry := zeroconf.NewServiceEntry("Matrix", "_http._tcp", "local.")
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.50")}
	entry.Text = []string{"model=HDM44", "fw=2.1", "flag"}

	candidate := browser.parseServiceEntry(entry)
	if candidate == nil {
		t.Fatal("parseServiceEntry() = nil, want candidate")
	}

	expected := map[string]string{
		"model": "HDM44",
		"fw":    "2.1",
		"flag":  "",
	}
	if len(candidate.Metadata) != len(expected) {
		t.Errorf("candidate.Metadata has %d entries, want %d", len(candidate.Metadata), len(expected))
	}
	for key, want := range expected {
		if got, ok := candidate.Metadata[key]; !ok || got != want {
			t.Errorf("candidate.Metadata[%q] = %q, want %q", key, got, want)
		}
	}
}

func TestNewMDNSBrowser(t *testing.T) {
	browser := NewMDNSBrowser()

	if browser.Service != DefaultMDNSService {
		t.Errorf("browser.Service = %v, want %v", browser.Service, DefaultMDNSService)
	}
	if browser.Timeout != DefaultBrowseTimeout {
		t.Errorf("browser.Timeout = %v, want %v", browser.Timeout, DefaultBrowseTimeout)
	}
}
