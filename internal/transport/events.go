package transport

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Datagram is one inbound UDP packet
type Datagram struct {
	// Payload is a private copy of the received bytes
	Payload []byte

	// Addr is the sender's IP address (e.g., "10.0.0.5")
	Addr string

	// Port is the sender's UDP port
	Port int

	// IfIndex is the receiving interface index, 0 when the platform does not report it
	IfIndex int

	// ReceivedAt is when the read loop picked the packet up
	ReceivedAt time.Time
}

// Source returns the sender as host:port
func (d Datagram) Source() string {
	return net.JoinHostPort(d.Addr, strconv.Itoa(d.Port))
}

// String returns a short description for logs
func (d Datagram) String() string {
	return fmt.Sprintf("Datagram{from=%s, len=%d}", d.Source(), len(d.Payload))
}

// Event is delivered in order through the transport's single event queue.
// Concrete types are ListeningEvent, MessageEvent and ErrorEvent.
type Event interface {
	event()
}

// ListeningEvent is queued once per Open, after bind and broadcast setup succeed
type ListeningEvent struct {
	LocalAddr *net.UDPAddr
}

// MessageEvent carries one inbound datagram
type MessageEvent struct {
	Datagram Datagram
}

// ErrorEvent carries a socket-level failure. The socket is already gone when
// this event is delivered.
type ErrorEvent struct {
	Err error
}

func (ListeningEvent) event() {}
func (MessageEvent) event()   {}
func (ErrorEvent) event()     {}
