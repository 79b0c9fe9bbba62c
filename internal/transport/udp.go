package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"github.com/mixma5ter/matrixctl/internal/logging"
	"github.com/mixma5ter/matrixctl/internal/protocol"
)

const (
	// DefaultListenAddr binds every IPv4 interface on an OS-assigned port
	DefaultListenAddr = "0.0.0.0:0"

	// DefaultReadBufferSize fits any UDP payload
	DefaultReadBufferSize = 65535

	// DefaultQueueSize is the depth of the event queue between the read loop
	// and handler delivery
	DefaultQueueSize = 64
)

// Option configures a UDP transport
type Option func(*UDP)

// WithListenAddr overrides the local bind address (tests use "127.0.0.1:0")
func WithListenAddr(addr string) Option {
	return func(u *UDP) {
		u.listenAddr = addr
	}
}

// WithLogger sets the logger used for socket lifecycle and datagram dumps
func WithLogger(l *zap.Logger) Option {
	return func(u *UDP) {
		if l != nil {
			u.logger = l
		}
	}
}

// WithQueueSize sets the event queue depth
func WithQueueSize(n int) Option {
	return func(u *UDP) {
		if n > 0 {
			u.queueSize = n
		}
	}
}

// WithReadBufferSize sets the per-read buffer size
func WithReadBufferSize(n int) Option {
	return func(u *UDP) {
		if n > 0 {
			u.readBufferSize = n
		}
	}
}

// UDP owns a single IPv4 UDP socket with broadcast enabled.
//
// Inbound datagrams and socket errors are read by one goroutine and queued as
// typed events; a second goroutine drains the queue and calls the registered
// handlers one at a time in arrival order. Send may be called from any
// goroutine.
//
// Close waits for a handler that is already running to return, so a handler
// must not call Close on its own transport.
type UDP struct {
	listenAddr     string
	readBufferSize int
	queueSize      int
	logger         *zap.Logger
	setBroadcast   func(*net.UDPConn) error

	mu        sync.Mutex
	conn      *net.UDPConn
	done      chan struct{}
	stopped   chan struct{}
	delivered chan struct{}
	onMessage func(Datagram)
	onError   func(error)
	onListen  func(*net.UDPAddr)
}

// New creates a closed transport. Call Open to bind the socket.
func New(opts ...Option) *UDP {
	u := &UDP{
		listenAddr:     DefaultListenAddr,
		readBufferSize: DefaultReadBufferSize,
		queueSize:      DefaultQueueSize,
		logger:         logging.Named("transport"),
		setBroadcast:   enableBroadcast,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// OnMessage registers the handler called once per inbound datagram.
// Handlers must not call Close; see UDP.
func (u *UDP) OnMessage(fn func(Datagram)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onMessage = fn
}

// OnError registers the handler called on socket-level failures. Per-send
// failures are returned from Send instead.
func (u *UDP) OnError(fn func(error)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onError = fn
}

// OnListening registers the handler called once the socket is bound and
// broadcast is enabled
func (u *UDP) OnListening(fn func(*net.UDPAddr)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onListen = fn
}

// Open binds the socket and enables broadcast.
//
// A bind error is returned as ErrTypeBindFailure. A broadcast setup error is
// returned as ErrTypeBroadcastSetupFailure and the socket is released. Opening
// an already open transport does nothing.
func (u *UDP) Open(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn != nil {
		return nil
	}

	u.logger.Debug("Creating UDP socket", zap.String("listen_addr", u.listenAddr))

	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp4", u.listenAddr)
	if err != nil {
		return &protocol.Error{
			Type:    protocol.ErrTypeBindFailure,
			Message: protocol.DescribeNetError(err),
			Target:  u.listenAddr,
			Err:     err,
		}
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return protocol.NewError(protocol.ErrTypeBindFailure,
			fmt.Sprintf("unexpected packet conn type %T", pc), nil)
	}

	if err := u.setBroadcast(conn); err != nil {
		_ = conn.Close()
		return protocol.NewError(protocol.ErrTypeBroadcastSetupFailure,
			protocol.DescribeNetError(err), err)
	}

	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		// Not supported everywhere; datagrams then carry IfIndex 0
		u.logger.Debug("Interface control messages unavailable", zap.Error(err))
	}

	local, _ := conn.LocalAddr().(*net.UDPAddr)
	events := make(chan Event, u.queueSize)
	done := make(chan struct{})

	// Queued before the reader starts so it is always the first event
	events <- ListeningEvent{LocalAddr: local}

	stopped := make(chan struct{})
	delivered := make(chan struct{})

	u.conn = conn
	u.done = done
	u.stopped = stopped
	u.delivered = delivered

	go u.readLoop(conn, pconn, events, done, stopped)
	go u.deliverLoop(events, done, delivered)

	u.logger.Info("UDP listener active", zap.Stringer("local_addr", conn.LocalAddr()))
	return nil
}

// Close releases the socket. It is safe to call on a closed transport.
// Events still queued when Close is called are dropped. Close returns once the
// read loop has stopped and any handler in progress has returned; no handler
// runs after that.
func (u *UDP) Close() error {
	u.mu.Lock()
	conn := u.conn
	done := u.done
	stopped := u.stopped
	delivered := u.delivered
	u.conn = nil
	u.done = nil
	u.stopped = nil
	u.delivered = nil
	u.mu.Unlock()

	if conn == nil {
		return nil
	}

	close(done)
	err := conn.Close()
	<-stopped
	<-delivered

	u.logger.Info("UDP socket closed")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close UDP socket: %w", err)
	}
	return nil
}

// IsOpen reports whether a socket is currently bound
func (u *UDP) IsOpen() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.conn != nil
}

// LocalAddr returns the bound address, or nil when closed
func (u *UDP) LocalAddr() *net.UDPAddr {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	addr, _ := u.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// Send writes one datagram to host:port without waiting for any reply.
//
// It returns ErrTypeTransportUnavailable when no socket is open and
// ErrTypeSendFailure when the address cannot be resolved or the write fails.
// A failed send never closes the socket.
func (u *UDP) Send(packet []byte, host string, port int) error {
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()

	if conn == nil {
		return protocol.NewError(protocol.ErrTypeTransportUnavailable, "UDP socket is not open", nil)
	}

	target := net.JoinHostPort(host, strconv.Itoa(port))
	addr, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		return &protocol.Error{
			Type:    protocol.ErrTypeSendFailure,
			Message: protocol.DescribeNetError(err),
			Target:  target,
			Err:     err,
		}
	}

	n, err := conn.WriteToUDP(packet, addr)
	if err != nil {
		return &protocol.Error{
			Type:    protocol.ErrTypeSendFailure,
			Message: protocol.DescribeNetError(err),
			Target:  target,
			Err:     err,
		}
	}
	if n != len(packet) {
		return &protocol.Error{
			Type:    protocol.ErrTypeSendFailure,
			Message: fmt.Sprintf("short write: %d of %d bytes", n, len(packet)),
			Target:  target,
		}
	}

	logging.LogDatagram(u.logger, "sent", target, packet)
	return nil
}

// readLoop is the only sender on events after Open and closes it on exit
func (u *UDP) readLoop(conn *net.UDPConn, pconn *ipv4.PacketConn, events chan<- Event, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	defer close(events)

	buf := make([]byte, u.readBufferSize)
	for {
		n, cm, src, err := pconn.ReadFrom(buf)
		if err != nil {
			select {
			case <-done:
				return
			default:
			}

			if isTransientReadError(err) {
				u.logger.Debug("Ignoring transient UDP read error", zap.Error(err))
				continue
			}

			u.discard(conn)
			sockErr := protocol.NewError(protocol.ErrTypeSocketFailure, protocol.DescribeNetError(err), err)
			u.logger.Error("UDP socket error", zap.Error(err))

			select {
			case events <- ErrorEvent{Err: sockErr}:
			case <-done:
			}
			return
		}

		dg := Datagram{
			Payload:    bytes.Clone(buf[:n]),
			ReceivedAt: time.Now(),
		}
		if udpAddr, ok := src.(*net.UDPAddr); ok {
			dg.Addr = udpAddr.IP.String()
			dg.Port = udpAddr.Port
		} else if src != nil {
			dg.Addr = src.String()
		}
		if cm != nil {
			dg.IfIndex = cm.IfIndex
		}

		logging.LogDatagram(u.logger, "received", dg.Source(), dg.Payload)

		select {
		case events <- MessageEvent{Datagram: dg}:
		case <-done:
			return
		}
	}
}

// deliverLoop calls handlers for queued events until the queue is closed or
// the transport is closed
func (u *UDP) deliverLoop(events <-chan Event, done <-chan struct{}, delivered chan<- struct{}) {
	defer close(delivered)

	for ev := range events {
		select {
		case <-done:
			return
		default:
		}

		u.mu.Lock()
		onMessage, onError, onListen := u.onMessage, u.onError, u.onListen
		u.mu.Unlock()

		switch e := ev.(type) {
		case ListeningEvent:
			if onListen != nil {
				onListen(e.LocalAddr)
			}
		case MessageEvent:
			if onMessage != nil {
				onMessage(e.Datagram)
			}
		case ErrorEvent:
			if onError != nil {
				onError(e.Err)
			}
		}
	}
}

// discard drops the socket after an asynchronous failure so a stale handle is
// never reused. It only acts if conn is still the current socket.
func (u *UDP) discard(conn *net.UDPConn) {
	u.mu.Lock()
	if u.conn == conn {
		u.conn = nil
		u.done = nil
		u.stopped = nil
		u.delivered = nil
	}
	u.mu.Unlock()
	_ = conn.Close()
}

// isTransientReadError filters ICMP-driven errors some platforms surface on
// unconnected UDP sockets after a send to a closed port.
func isTransientReadError(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
