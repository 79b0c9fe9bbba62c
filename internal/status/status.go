package status

import (
	"fmt"
	"time"
)

// Status is the module's overall connectivity state
type Status int

const (
	// StatusConnecting is set while the socket is being created
	StatusConnecting Status = iota
	// StatusOk means a device has answered the discovery probe
	StatusOk
	// StatusUnknownWarning means the socket is ready but no device has answered yet
	StatusUnknownWarning
	// StatusConnectionFailure means the socket could not be opened or failed
	StatusConnectionFailure
	// StatusDisconnected is set on teardown and held until the next init
	StatusDisconnected
)

// ReadyMessage annotates the ready state
const ReadyMessage = "Ready to discover"

// String returns the wire name used in logs and JSON
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOk:
		return "ok"
	case StatusUnknownWarning:
		return "unknown_warning"
	case StatusConnectionFailure:
		return "connection_failure"
	case StatusDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Label returns a short title-case name for terminal output
func (s Status) Label() string {
	switch s {
	case StatusConnecting:
		return "Connecting"
	case StatusOk:
		return "OK"
	case StatusUnknownWarning:
		return "Waiting"
	case StatusConnectionFailure:
		return "Connection Failure"
	case StatusDisconnected:
		return "Disconnected"
	default:
		return s.String()
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Update is one reported transition
type Update struct {
	Status  Status    `json:"status"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Sink receives every status transition
type Sink interface {
	ReportStatus(u Update)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(u Update)

// ReportStatus implements Sink
func (f SinkFunc) ReportStatus(u Update) {
	f(u)
}

// MultiSink fans an update out to several sinks in order
type MultiSink []Sink

// ReportStatus implements Sink
func (m MultiSink) ReportStatus(u Update) {
	for _, s := range m {
		if s != nil {
			s.ReportStatus(u)
		}
	}
}
