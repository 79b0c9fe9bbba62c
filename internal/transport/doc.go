// Package transport owns the UDP socket used to talk to the switcher.
//
// A UDP transport binds one IPv4 socket to an OS-assigned port on every
// interface and enables SO_BROADCAST so the discovery probe can be sent to
// 255.255.255.255. The protocol is connectionless: Send writes a single
// datagram and returns; there is no acknowledgement, retry or timeout.
//
// # Events
//
// The read loop turns socket activity into typed events (ListeningEvent,
// MessageEvent, ErrorEvent) on a single queue. One delivery goroutine drains
// the queue and calls the registered handlers, so handlers never overlap and
// see datagrams in the order the OS delivered them.
//
//	udp := transport.New()
//	udp.OnMessage(func(d transport.Datagram) { ... })
//	udp.OnError(func(err error) { ... })
//	if err := udp.Open(ctx); err != nil {
//	    // protocol.ErrBindFailure or protocol.ErrBroadcastSetupFailure
//	}
//	defer udp.Close()
//
// # Failure Semantics
//
//   - Bind and broadcast-setup failures are returned from Open.
//   - A read error after bind is a socket failure: the socket is closed and
//     forgotten before the error handler runs, so it is never reused.
//   - Send errors are returned to the caller and leave the socket open.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Handlers run on the delivery
// goroutine and may call Send or Close.
package transport
