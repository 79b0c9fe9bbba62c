package discovery

import (
	"sort"
	"sync"
	"time"

	"github.com/mixma5ter/matrixctl/internal/protocol"
	"github.com/mixma5ter/matrixctl/internal/transport"
)

// Tracker keeps the set of devices that answered a discovery probe, keyed by
// sender address. A repeat reply from the same address updates the existing
// record. Records are only removed by Reset or Prune.
type Tracker struct {
	mu      sync.RWMutex
	devices map[string]*DeviceRecord
	now     func() time.Time
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		devices: make(map[string]*DeviceRecord),
		now:     time.Now,
	}
}

// Observe classifies a datagram and returns its kind. A discovery reply is
// upserted and its record returned; any other kind leaves the table untouched.
func (t *Tracker) Observe(d transport.Datagram) (DeviceRecord, protocol.ReplyKind) {
	kind := protocol.Classify(d.Payload)
	if kind != protocol.ReplyDiscovery {
		return DeviceRecord{}, kind
	}
	return t.Record(d.Addr, d.Port, d.Payload), kind
}

// Record upserts the device at addr with LastSeen set to the current time
func (t *Tracker) Record(addr string, port int, reply []byte) DeviceRecord {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	device, exists := t.devices[addr]
	if !exists {
		device = &DeviceRecord{
			Address:   addr,
			FirstSeen: now,
		}
		t.devices[addr] = device
	}

	device.Port = port
	device.LastSeen = now
	device.Responses++
	device.Reply = append(device.Reply[:0], reply...)

	return device.clone()
}

// Get returns a copy of the record for addr
func (t *Tracker) Get(addr string) (DeviceRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	device, ok := t.devices[addr]
	if !ok {
		return DeviceRecord{}, false
	}
	return device.clone(), true
}

// Devices returns copies of all records sorted by address
func (t *Tracker) Devices() []DeviceRecord {
	t.mu.RLock()
	devices := make([]DeviceRecord, 0, len(t.devices))
	for _, device := range t.devices {
		devices = append(devices, device.clone())
	}
	t.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Address < devices[j].Address
	})
	return devices
}

// Len returns the number of known devices
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.devices)
}

// Reset forgets every device
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.devices = make(map[string]*DeviceRecord)
}

// Prune removes devices whose LastSeen is older than staleAfter and returns
// them. A non-positive staleAfter removes nothing.
func (t *Tracker) Prune(staleAfter time.Duration) []DeviceRecord {
	if staleAfter <= 0 {
		return nil
	}

	cutoff := t.now().Add(-staleAfter)

	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []DeviceRecord
	for addr, device := range t.devices {
		if device.LastSeen.Before(cutoff) {
			removed = append(removed, device.clone())
			delete(t.devices, addr)
		}
	}

	sort.Slice(removed, func(i, j int) bool {
		return removed[i].Address < removed[j].Address
	})
	return removed
}
