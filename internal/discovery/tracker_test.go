package discovery

import (
	"sync"
	"testing"
	"time"

	"github.com/mixma5ter/matrixctl/internal/protocol"
	"github.com/mixma5ter/matrixctl/internal/transport"
)

func reply(extra ...byte) []byte {
	return append(protocol.DiscoveryReplyPrefix(), extra...)
}

func TestTracker_Observe(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		wantKind protocol.ReplyKind
	}{
		{
			name:     "discovery response",
			payload:  reply(0x01, 0x02),
			wantKind: protocol.ReplyDiscovery,
		},
		{
			name:     "bare prefix",
			payload:  reply(),
			wantKind: protocol.ReplyDiscovery,
		},
		{
			name:     "echo of our own probe",
			payload:  protocol.DiscoveryProbe(),
			wantKind: protocol.ReplyUnclassified,
		},
		{
			name:     "unrelated packet",
			payload:  []byte{0xDE, 0xAD, 0xBE, 0xEF},
			wantKind: protocol.ReplyUnclassified,
		},
		{
			name:     "empty",
			payload:  nil,
			wantKind: protocol.ReplyUnclassified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker()
			record, kind := tracker.Observe(transport.Datagram{
				Payload: tt.payload,
				Addr:    "10.0.0.5",
				Port:    7000,
			})

			if kind != tt.wantKind {
				t.Fatalf("Observe() kind = %v, want %v", kind, tt.wantKind)
			}

			wantLen := 0
			if kind == protocol.ReplyDiscovery {
				wantLen = 1
				if record.Address != "10.0.0.5" {
					t.Errorf("record.Address = %q, want 10.0.0.5", record.Address)
				}
			}
			if tracker.Len() != wantLen {
				t.Errorf("Len() = %d, want %d", tracker.Len(), wantLen)
			}
		})
	}
}

func TestTracker_Record(t *testing.T) {
	tracker := NewTracker()
	record := tracker.Record("10.0.0.5", 7000, reply(0x01, 0x02))

	if record.Address != "10.0.0.5" || record.Port != 7000 {
		t.Errorf("Record() = %s:%d, want 10.0.0.5:7000", record.Address, record.Port)
	}
	if record.Responses != 1 {
		t.Errorf("Responses = %d, want 1", record.Responses)
	}
	if !record.FirstSeen.Equal(record.LastSeen) {
		t.Errorf("FirstSeen = %v, LastSeen = %v, want equal on first reply", record.FirstSeen, record.LastSeen)
	}
}

func TestTracker_LastSeenNotBeforeProbe(t *testing.T) {
	tracker := NewTracker()

	probeSent := time.Now()
	tracker.Observe(transport.Datagram{Payload: reply(), Addr: "10.0.0.5", Port: 7000})

	record, ok := tracker.Get("10.0.0.5")
	if !ok {
		t.Fatal("Get() found no record after a discovery reply")
	}
	if record.LastSeen.Before(probeSent) {
		t.Errorf("LastSeen = %v, want >= probe time %v", record.LastSeen, probeSent)
	}
}

func TestTracker_Idempotent(t *testing.T) {
	tracker := NewTracker()

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return clock }

	first := tracker.Record("10.0.0.5", 7000, reply(0x01))

	clock = clock.Add(5 * time.Second)
	second := tracker.Record("10.0.0.5", 7001, reply(0x02))

	if tracker.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after repeated replies", tracker.Len())
	}
	if !second.LastSeen.After(first.LastSeen) {
		t.Errorf("LastSeen not updated: first %v, second %v", first.LastSeen, second.LastSeen)
	}
	if !second.FirstSeen.Equal(first.FirstSeen) {
		t.Errorf("FirstSeen changed: %v -> %v", first.FirstSeen, second.FirstSeen)
	}
	if second.Responses != 2 {
		t.Errorf("Responses = %d, want 2", second.Responses)
	}
	if second.Port != 7001 {
		t.Errorf("Port = %d, want 7001", second.Port)
	}
	if second.ReplyHex() != protocol.DiscoveryReplyPrefixHex+"02" {
		t.Errorf("ReplyHex() = %s, want latest reply", second.ReplyHex())
	}
}

func TestTracker_ReturnsCopies(t *testing.T) {
	tracker := NewTracker()
	record := tracker.Record("10.0.0.5", 7000, reply(0x01))

	record.Reply[0] = 0x00
	record.Responses = 99

	stored, _ := tracker.Get("10.0.0.5")
	if stored.Reply[0] != 0xA5 || stored.Responses != 1 {
		t.Error("mutating a returned record changed the tracker")
	}
}

func TestTracker_Devices_Sorted(t *testing.T) {
	tracker := NewTracker()
	for _, addr := range []string{"10.0.0.9", "10.0.0.10", "10.0.0.1"} {
		tracker.Record(addr, 7000, reply())
	}

	devices := tracker.Devices()
	want := []string{"10.0.0.1", "10.0.0.10", "10.0.0.9"}
	if len(devices) != len(want) {
		t.Fatalf("len(Devices()) = %d, want %d", len(devices), len(want))
	}
	for i, d := range devices {
		if d.Address != want[i] {
			t.Errorf("Devices()[%d].Address = %s, want %s", i, d.Address, want[i])
		}
	}
}

func TestTracker_Reset(t *testing.T) {
	tracker := NewTracker()
	tracker.Record("10.0.0.5", 7000, reply())
	tracker.Reset()

	if tracker.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", tracker.Len())
	}
	if _, ok := tracker.Get("10.0.0.5"); ok {
		t.Error("Get() found a record after Reset")
	}
}

func TestTracker_Prune(t *testing.T) {
	tracker := NewTracker()

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return clock }

	tracker.Record("10.0.0.1", 7000, reply())
	clock = clock.Add(30 * time.Second)
	tracker.Record("10.0.0.2", 7000, reply())
	clock = clock.Add(45 * time.Second)

	if removed := tracker.Prune(0); removed != nil {
		t.Errorf("Prune(0) removed %v, want nothing", removed)
	}

	removed := tracker.Prune(time.Minute)
	if len(removed) != 1 || removed[0].Address != "10.0.0.1" {
		t.Fatalf("Prune(1m) removed %v, want only 10.0.0.1", removed)
	}
	if tracker.Len() != 1 {
		t.Errorf("Len() after Prune = %d, want 1", tracker.Len())
	}
	if _, ok := tracker.Get("10.0.0.2"); !ok {
		t.Error("fresh device was pruned")
	}
}

func TestTracker_ConcurrentObserve(t *testing.T) {
	tracker := NewTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Observe(transport.Datagram{Payload: reply(), Addr: "10.0.0.5", Port: 7000})
			_ = tracker.Devices()
		}()
	}
	wg.Wait()

	record, _ := tracker.Get("10.0.0.5")
	if tracker.Len() != 1 || record.Responses != 50 {
		t.Errorf("Len() = %d, Responses = %d, want 1 and 50", tracker.Len(), record.Responses)
	}
}
