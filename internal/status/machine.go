package status

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Machine tracks the connection status and reports each transition.
//
//	Connecting -> UnknownWarning (ready) | ConnectionFailure
//	UnknownWarning -> Ok on the first discovery reply
//	any except Disconnected -> ConnectionFailure on socket failure
//	any -> Disconnected on teardown
//
// Disconnected holds until Connecting is called again. Discovery and failure
// events are ignored there, including socket failures: the socket has already
// been released, so a late error from it must not mask the teardown.
type Machine struct {
	mu      sync.Mutex
	current Update
	sink    Sink
	logger  *zap.Logger
	now     func() time.Time
}

// NewMachine creates a machine in the Connecting state. Sinks are called with
// the machine's lock held and must not call back into it.
func NewMachine(sink Sink, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Machine{
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
	m.current = Update{Status: StatusConnecting, At: m.now()}
	return m
}

// Current returns the latest update
func (m *Machine) Current() Update {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Connecting starts a new initialisation cycle from any state
func (m *Machine) Connecting(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(StatusConnecting, message)
}

// Ready records that the socket is bound with broadcast enabled. Only valid
// from Connecting; returns false when ignored.
func (m *Machine) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status != StatusConnecting {
		m.logger.Debug("Ignoring ready outside connecting",
			zap.Stringer("status", m.current.Status))
		return false
	}
	m.set(StatusUnknownWarning, ReadyMessage)
	return true
}

// Discovered records a discovery reply from addr. Valid from the ready state
// and from Ok (a later reply re-annotates the address); returns false when
// ignored.
func (m *Machine) Discovered(addr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.current.Status {
	case StatusUnknownWarning, StatusOk:
		m.set(StatusOk, fmt.Sprintf("Device found at %s", addr))
		return true
	default:
		m.logger.Debug("Ignoring discovery reply",
			zap.Stringer("status", m.current.Status),
			zap.String("addr", addr))
		return false
	}
}

// Failed records a bind, broadcast or socket failure. Ignored once
// Disconnected; returns false when ignored.
func (m *Machine) Failed(message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status == StatusDisconnected {
		return false
	}
	m.set(StatusConnectionFailure, message)
	return true
}

// Teardown moves to Disconnected from any state
func (m *Machine) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(StatusDisconnected, "")
}

// set applies a transition and reports it when the status or message changed.
// Caller holds mu.
func (m *Machine) set(s Status, message string) {
	if m.current.Status == s && m.current.Message == message && !m.current.At.IsZero() && s != StatusConnecting {
		return
	}

	prev := m.current.Status
	m.current = Update{Status: s, Message: message, At: m.now()}

	m.logger.Info("Status changed",
		zap.Stringer("from", prev),
		zap.Stringer("to", s),
		zap.String("message", message),
	)

	if m.sink != nil {
		m.sink.ReportStatus(m.current)
	}
}
