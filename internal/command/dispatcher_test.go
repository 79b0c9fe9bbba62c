package command

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/mixma5ter/matrixctl/internal/config"
	"github.com/mixma5ter/matrixctl/internal/protocol"
)

type sent struct {
	packet []byte
	host   string
	port   int
}

type fakeSender struct {
	mu      sync.Mutex
	open    bool
	sendErr error
	sent    []sent
}

func (f *fakeSender) Send(packet []byte, host string, port int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sent{packet: bytes.Clone(packet), host: host, port: port})
	return nil
}

func (f *fakeSender) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func newTestDispatcher(open bool, cfg config.ModuleConfig) (*Dispatcher, *fakeSender) {
	sender := &fakeSender{open: open}
	return NewDispatcher(sender, cfg, zap.NewNop()), sender
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name     string
		open     bool
		hex      string
		addr     string
		port     int
		wantType protocol.ErrorType
		wantErr  bool
		wantSent []byte
	}{
		{
			name:     "valid command",
			open:     true,
			hex:      "a5 6c 01 02",
			addr:     "10.0.0.5",
			port:     7000,
			wantSent: []byte{0xa5, 0x6c, 0x01, 0x02},
		},
		{
			name:     "transport closed",
			open:     false,
			hex:      "a56c",
			addr:     "10.0.0.5",
			port:     7000,
			wantErr:  true,
			wantType: protocol.ErrTypeTransportUnavailable,
		},
		{
			name:     "closed wins over missing target",
			open:     false,
			hex:      "zz",
			addr:     "",
			port:     0,
			wantErr:  true,
			wantType: protocol.ErrTypeTransportUnavailable,
		},
		{
			name:     "empty address",
			open:     true,
			hex:      "a56c",
			addr:     "",
			port:     7000,
			wantErr:  true,
			wantType: protocol.ErrTypeMissingTarget,
		},
		{
			name:     "invalid port",
			open:     true,
			hex:      "a56c",
			addr:     "10.0.0.5",
			port:     0,
			wantErr:  true,
			wantType: protocol.ErrTypeMissingTarget,
		},
		{
			name:     "missing target wins over malformed",
			open:     true,
			hex:      "abc",
			addr:     " ",
			port:     7000,
			wantErr:  true,
			wantType: protocol.ErrTypeMissingTarget,
		},
		{
			name:     "odd length",
			open:     true,
			hex:      "abc",
			addr:     "10.0.0.5",
			port:     7000,
			wantErr:  true,
			wantType: protocol.ErrTypeMalformedPacket,
		},
		{
			name:     "non hex",
			open:     true,
			hex:      "zz",
			addr:     "10.0.0.5",
			port:     7000,
			wantErr:  true,
			wantType: protocol.ErrTypeMalformedPacket,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, sender := newTestDispatcher(tt.open, config.DefaultModuleConfig())
			err := d.Dispatch(tt.hex, tt.addr, tt.port)

			if (err != nil) != tt.wantErr {
				t.Fatalf("Dispatch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if got, _ := protocol.TypeOf(err); got != tt.wantType {
					t.Errorf("Dispatch() error type = %v, want %v", got, tt.wantType)
				}
				if len(sender.sent) != 0 {
					t.Errorf("Dispatch() sent %d datagrams, want 0", len(sender.sent))
				}
				return
			}

			if len(sender.sent) != 1 {
				t.Fatalf("Dispatch() sent %d datagrams, want 1", len(sender.sent))
			}
			got := sender.sent[0]
			if !bytes.Equal(got.packet, tt.wantSent) || got.host != tt.addr || got.port != tt.port {
				t.Errorf("Dispatch() sent %x to %s:%d, want %x to %s:%d",
					got.packet, got.host, got.port, tt.wantSent, tt.addr, tt.port)
			}
		})
	}
}

func TestDiscover(t *testing.T) {
	d, sender := newTestDispatcher(true, config.ModuleConfig{Port: 7000})

	if err := d.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("Discover() sent %d datagrams, want 1", len(sender.sent))
	}
	got := sender.sent[0]
	if protocol.EncodeToString(got.packet) != "a56c140081ff01000000000000000000ffa503ae" {
		t.Errorf("Discover() packet = %x, want discovery probe", got.packet)
	}
	if got.host != "255.255.255.255" || got.port != 7000 {
		t.Errorf("Discover() target = %s:%d, want 255.255.255.255:7000", got.host, got.port)
	}
}

func TestDiscoverTransportClosed(t *testing.T) {
	d, sender := newTestDispatcher(false, config.ModuleConfig{Port: 7000})

	err := d.Discover()
	if !errors.Is(err, protocol.ErrTransportUnavailable) {
		t.Errorf("Discover() error = %v, want ErrTransportUnavailable", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("Discover() sent %d datagrams, want 0", len(sender.sent))
	}
}

func TestProbe(t *testing.T) {
	d, sender := newTestDispatcher(true, config.ModuleConfig{Port: 7001})

	if err := d.Probe("10.0.0.9"); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if got := sender.sent[0]; got.host != "10.0.0.9" || got.port != 7001 {
		t.Errorf("Probe() target = %s:%d, want 10.0.0.9:7001", got.host, got.port)
	}

	if err := d.Probe(""); !errors.Is(err, protocol.ErrMissingTarget) {
		t.Errorf("Probe(\"\") error = %v, want ErrMissingTarget", err)
	}
}

func TestSendHex(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.ModuleConfig
		hex      string
		override string
		wantHost string
		wantType protocol.ErrorType
		wantErr  bool
	}{
		{
			name:     "configured host",
			cfg:      config.ModuleConfig{Host: "192.168.1.50", Port: 7000},
			hex:      "0102",
			wantHost: "192.168.1.50",
		},
		{
			name:     "override wins",
			cfg:      config.ModuleConfig{Host: "192.168.1.50", Port: 7000},
			hex:      "0102",
			override: "10.0.0.5",
			wantHost: "10.0.0.5",
		},
		{
			name:     "no host and no override",
			cfg:      config.ModuleConfig{Port: 7000},
			hex:      "0102",
			wantErr:  true,
			wantType: protocol.ErrTypeMissingTarget,
		},
		{
			name:     "empty command",
			cfg:      config.ModuleConfig{Host: "192.168.1.50", Port: 7000},
			hex:      "   ",
			wantErr:  true,
			wantType: protocol.ErrTypeMalformedPacket,
		},
		{
			name:     "bad port in config",
			cfg:      config.ModuleConfig{Host: "192.168.1.50", Port: 0},
			hex:      "0102",
			wantErr:  true,
			wantType: protocol.ErrTypeMissingTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, sender := newTestDispatcher(true, tt.cfg)
			err := d.SendHex(tt.hex, tt.override)

			if (err != nil) != tt.wantErr {
				t.Fatalf("SendHex() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if got, _ := protocol.TypeOf(err); got != tt.wantType {
					t.Errorf("SendHex() error type = %v, want %v", got, tt.wantType)
				}
				if len(sender.sent) != 0 {
					t.Errorf("SendHex() sent %d datagrams, want 0", len(sender.sent))
				}
				return
			}

			if len(sender.sent) != 1 {
				t.Fatalf("SendHex() sent %d datagrams, want 1", len(sender.sent))
			}
			if got := sender.sent[0]; got.host != tt.wantHost || got.port != tt.cfg.Port {
				t.Errorf("SendHex() target = %s:%d, want %s:%d", got.host, got.port, tt.wantHost, tt.cfg.Port)
			}
		})
	}
}

func TestSendFailurePropagates(t *testing.T) {
	d, sender := newTestDispatcher(true, config.ModuleConfig{Host: "10.0.0.5", Port: 7000})
	sender.sendErr = protocol.NewError(protocol.ErrTypeSendFailure, "network is unreachable", nil)

	err := d.SendHex("0102", "")
	if !errors.Is(err, protocol.ErrSendFailure) {
		t.Errorf("SendHex() error = %v, want ErrSendFailure", err)
	}
}
