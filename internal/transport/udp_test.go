package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mixma5ter/matrixctl/internal/protocol"
)

const waitTimeout = 2 * time.Second

// newLoopback returns an opened transport bound to 127.0.0.1
func newLoopback(t *testing.T, opts ...Option) *UDP {
	t.Helper()
	u := New(append([]Option{WithListenAddr("127.0.0.1:0")}, opts...)...)
	t.Cleanup(func() { _ = u.Close() })
	return u
}

// newPeer returns a plain UDP socket playing the device
func newPeer(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestUDP_OpenClose(t *testing.T) {
	u := newLoopback(t)

	if u.IsOpen() {
		t.Fatal("IsOpen() = true before Open")
	}
	if err := u.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !u.IsOpen() {
		t.Fatal("IsOpen() = false after Open")
	}

	addr := u.LocalAddr()
	if addr == nil || addr.Port == 0 {
		t.Fatalf("LocalAddr() = %v, want an ephemeral port", addr)
	}

	// Second Open keeps the same socket
	if err := u.Open(context.Background()); err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	if got := u.LocalAddr(); got.Port != addr.Port {
		t.Errorf("LocalAddr().Port after second Open = %d, want %d", got.Port, addr.Port)
	}

	if err := u.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if u.IsOpen() {
		t.Error("IsOpen() = true after Close")
	}
	if u.LocalAddr() != nil {
		t.Error("LocalAddr() != nil after Close")
	}

	// Close is idempotent
	if err := u.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestUDP_CloseWithoutOpen(t *testing.T) {
	u := New()
	if err := u.Close(); err != nil {
		t.Errorf("Close() on never-opened transport error = %v", err)
	}
}

func TestUDP_ListeningEvent(t *testing.T) {
	u := newLoopback(t)

	got := make(chan *net.UDPAddr, 1)
	u.OnListening(func(addr *net.UDPAddr) { got <- addr })

	if err := u.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	select {
	case addr := <-got:
		if addr.Port != u.LocalAddr().Port {
			t.Errorf("listening port = %d, want %d", addr.Port, u.LocalAddr().Port)
		}
	case <-time.After(waitTimeout):
		t.Fatal("OnListening handler not called")
	}
}

func TestUDP_BindFailure(t *testing.T) {
	// TEST-NET-1 is never assigned to a local interface
	u := New(WithListenAddr("192.0.2.1:0"))

	err := u.Open(context.Background())
	if !errors.Is(err, protocol.ErrBindFailure) {
		t.Fatalf("Open() error = %v, want BindFailure", err)
	}
	if u.IsOpen() {
		t.Error("IsOpen() = true after bind failure")
	}
}

func TestUDP_BindFailure_PortInUse(t *testing.T) {
	peer := newPeer(t)
	u := New(WithListenAddr(peer.LocalAddr().String()))

	if err := u.Open(context.Background()); !errors.Is(err, protocol.ErrBindFailure) {
		t.Fatalf("Open() on a used port error = %v, want BindFailure", err)
	}
}

func TestUDP_BroadcastSetupFailure(t *testing.T) {
	u := newLoopback(t)
	u.setBroadcast = func(*net.UDPConn) error { return errors.New("setsockopt refused") }

	err := u.Open(context.Background())
	if !errors.Is(err, protocol.ErrBroadcastSetupFailure) {
		t.Fatalf("Open() error = %v, want BroadcastSetupFailure", err)
	}
	if errors.Is(err, protocol.ErrBindFailure) {
		t.Error("broadcast failure must not match BindFailure")
	}
	if u.IsOpen() {
		t.Error("IsOpen() = true after broadcast setup failure")
	}
}

func TestUDP_SendWhenClosed(t *testing.T) {
	u := New()
	err := u.Send([]byte{0x01}, "127.0.0.1", 7000)
	if !errors.Is(err, protocol.ErrTransportUnavailable) {
		t.Errorf("Send() error = %v, want TransportUnavailable", err)
	}
}

func TestUDP_SendAndReceive(t *testing.T) {
	u := newLoopback(t)
	peer := newPeer(t)

	received := make(chan Datagram, 4)
	u.OnMessage(func(d Datagram) { received <- d })

	if err := u.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	// Outbound
	probe := protocol.DiscoveryProbe()
	peerAddr := peer.LocalAddr().(*net.UDPAddr)
	if err := u.Send(probe, "127.0.0.1", peerAddr.Port); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	buf := make([]byte, 1024)
	_ = peer.SetReadDeadline(time.Now().Add(waitTimeout))
	n, from, err := peer.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("peer ReadFromUDP() error = %v", err)
	}
	if !bytes.Equal(buf[:n], probe) {
		t.Errorf("peer received %x, want %x", buf[:n], probe)
	}
	if from.Port != u.LocalAddr().Port {
		t.Errorf("datagram source port = %d, want %d", from.Port, u.LocalAddr().Port)
	}

	// Inbound
	reply := append(protocol.DiscoveryReplyPrefix(), 0x42)
	if _, err := peer.WriteToUDP(reply, u.LocalAddr()); err != nil {
		t.Fatalf("peer WriteToUDP() error = %v", err)
	}

	select {
	case d := <-received:
		if !bytes.Equal(d.Payload, reply) {
			t.Errorf("Payload = %x, want %x", d.Payload, reply)
		}
		if d.Addr != "127.0.0.1" {
			t.Errorf("Addr = %q, want 127.0.0.1", d.Addr)
		}
		if d.Port != peerAddr.Port {
			t.Errorf("Port = %d, want %d", d.Port, peerAddr.Port)
		}
		if d.ReceivedAt.IsZero() {
			t.Error("ReceivedAt is zero")
		}
	case <-time.After(waitTimeout):
		t.Fatal("OnMessage handler not called")
	}
}

func TestUDP_DeliveryOrderAndNoOverlap(t *testing.T) {
	u := newLoopback(t)
	peer := newPeer(t)

	const count = 20
	var (
		mu      sync.Mutex
		active  int
		overlap bool
		order   []byte
	)
	all := make(chan struct{})

	u.OnMessage(func(d Datagram) {
		mu.Lock()
		active++
		if active > 1 {
			overlap = true
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		active--
		order = append(order, d.Payload[0])
		if len(order) == count {
			close(all)
		}
		mu.Unlock()
	})

	if err := u.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	for i := 0; i < count; i++ {
		if _, err := peer.WriteToUDP([]byte{byte(i)}, u.LocalAddr()); err != nil {
			t.Fatalf("WriteToUDP() error = %v", err)
		}
	}

	select {
	case <-all:
	case <-time.After(waitTimeout):
		t.Fatal("not all datagrams delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	if overlap {
		t.Error("message handlers overlapped")
	}
	for i, b := range order {
		if int(b) != i {
			t.Fatalf("delivery order = %v, want ascending", order)
		}
	}
}

func TestUDP_NoDeliveryAfterClose(t *testing.T) {
	u := newLoopback(t)
	peer := newPeer(t)

	calls := make(chan Datagram, 1)
	u.OnMessage(func(d Datagram) { calls <- d })

	if err := u.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	target := u.LocalAddr()
	if err := u.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	_, _ = peer.WriteToUDP([]byte{0x01}, target)

	select {
	case d := <-calls:
		t.Errorf("handler called after Close with %v", d)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUDP_CloseWaitsForHandler(t *testing.T) {
	u := newLoopback(t)
	peer := newPeer(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	u.OnMessage(func(d Datagram) {
		close(entered)
		<-release
		finished.Store(true)
	})

	if err := u.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := peer.WriteToUDP([]byte{0x01}, u.LocalAddr()); err != nil {
		t.Fatalf("WriteToUDP() error = %v", err)
	}

	select {
	case <-entered:
	case <-time.After(waitTimeout):
		t.Fatal("OnMessage handler not called")
	}

	closed := make(chan error, 1)
	go func() { closed <- u.Close() }()

	select {
	case err := <-closed:
		t.Fatalf("Close() returned %v while a handler was running", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("Close() error = %v", err)
		}
		if !finished.Load() {
			t.Error("Close() returned before the running handler finished")
		}
	case <-time.After(waitTimeout):
		t.Fatal("Close() did not return after the handler finished")
	}
}

func TestUDP_SocketFailure(t *testing.T) {
	u := newLoopback(t)

	errs := make(chan error, 1)
	u.OnError(func(err error) { errs <- err })

	ctx := context.Background()
	if err := u.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	// Pull the socket out from under the read loop
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()
	_ = conn.Close()

	select {
	case err := <-errs:
		if !errors.Is(err, protocol.ErrSocketFailure) {
			t.Errorf("OnError() got %v, want SocketFailure", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("OnError handler not called")
	}

	if u.IsOpen() {
		t.Error("IsOpen() = true after socket failure")
	}
	if u.LocalAddr() != nil {
		t.Error("LocalAddr() != nil after socket failure")
	}
	if err := u.Send([]byte{0x01}, "127.0.0.1", 7000); !errors.Is(err, protocol.ErrTransportUnavailable) {
		t.Errorf("Send() after failure error = %v, want TransportUnavailable", err)
	}
	if err := u.Close(); err != nil {
		t.Errorf("Close() after failure error = %v", err)
	}

	if err := u.Open(ctx); err != nil {
		t.Fatalf("Open() after failure error = %v", err)
	}
	if !u.IsOpen() {
		t.Error("IsOpen() = false after reopen")
	}
}

func TestUDP_Reopen(t *testing.T) {
	u := newLoopback(t)
	ctx := context.Background()

	if err := u.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := u.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := u.Open(ctx); err != nil {
		t.Fatalf("Open() after Close error = %v", err)
	}
	if !u.IsOpen() {
		t.Error("IsOpen() = false after reopen")
	}
}

func TestUDP_SendResolveFailure(t *testing.T) {
	u := newLoopback(t)
	if err := u.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	err := u.Send([]byte{0x01}, "not a host", 7000)
	if !errors.Is(err, protocol.ErrSendFailure) {
		t.Fatalf("Send() error = %v, want SendFailure", err)
	}
	if !u.IsOpen() {
		t.Error("failed send closed the transport")
	}
}

func TestDatagram_Source(t *testing.T) {
	d := Datagram{Addr: "10.0.0.5", Port: 7000, Payload: []byte{1, 2}}
	if got := d.Source(); got != "10.0.0.5:7000" {
		t.Errorf("Source() = %q, want %q", got, "10.0.0.5:7000")
	}
	if got := d.String(); got != "Datagram{from=10.0.0.5:7000, len=2}" {
		t.Errorf("String() = %q", got)
	}
}
