// Package protocol implements the switcher's UDP packet vocabulary.
//
// The device speaks a connectionless datagram protocol. This package knows
// exactly two fixed byte sequences and one generic path:
//
//   - Discovery probe (20 bytes), broadcast to the control port:
//     A5 6C 14 00 81 FF 01 00 00 00 00 00 00 00 00 00 FF A5 03 AE
//   - Discovery reply prefix (6 bytes): A5 6C 2C 00 A1 FF. Any datagram that
//     starts with it is proof a device lives at the sender's address. The
//     remaining bytes are not interpreted.
//   - Custom commands: arbitrary hex strings converted by Encode.
//
// Routing opcodes and the device's checksum scheme are not documented well
// enough to build, so only the generic hex path is exposed.
//
// # Usage Example
//
//	packet, err := protocol.Encode("a5 6c 14 00 81 ff")
//	if errors.Is(err, protocol.ErrMalformedPacket) {
//	    // odd length or non-hex input
//	}
//
//	if protocol.IsDiscoveryResponse(reply) {
//	    // record the sender
//	}
//
// # Error Handling
//
// Every failure in the protocol engine is an *Error carrying an ErrorType.
// Bind, broadcast-setup and socket failures are terminal for a socket; the
// rest only abandon a single send attempt. Use errors.Is with the sentinel
// values (ErrMalformedPacket, ErrMissingTarget, ...) to branch on category.
//
// # Thread Safety
//
// All functions are stateless and safe for concurrent use.
package protocol
