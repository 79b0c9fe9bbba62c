package protocol

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ErrorType represents the category of a protocol engine failure
type ErrorType int

const (
	// ErrTypeBindFailure indicates the UDP socket could not be created or bound
	ErrTypeBindFailure ErrorType = iota
	// ErrTypeBroadcastSetupFailure indicates SO_BROADCAST could not be enabled
	ErrTypeBroadcastSetupFailure
	// ErrTypeMalformedPacket indicates a hex command that is not valid hex or has odd length
	ErrTypeMalformedPacket
	// ErrTypeTransportUnavailable indicates a send was attempted with no open socket
	ErrTypeTransportUnavailable
	// ErrTypeMissingTarget indicates a send without a target address or valid port
	ErrTypeMissingTarget
	// ErrTypeSendFailure indicates the datagram could not be written
	ErrTypeSendFailure
	// ErrTypeSocketFailure indicates an asynchronous socket error after bind
	ErrTypeSocketFailure
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeBindFailure:
		return "Bind Failure"
	case ErrTypeBroadcastSetupFailure:
		return "Broadcast Setup Failure"
	case ErrTypeMalformedPacket:
		return "Malformed Packet"
	case ErrTypeTransportUnavailable:
		return "Transport Unavailable"
	case ErrTypeMissingTarget:
		return "Missing Target"
	case ErrTypeSendFailure:
		return "Send Failure"
	case ErrTypeSocketFailure:
		return "Socket Failure"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Terminal reports whether the error ends the life of the current socket.
// Terminal errors move the connection status to ConnectionFailure; the others
// only abandon a single dispatch attempt.
func (et ErrorType) Terminal() bool {
	switch et {
	case ErrTypeBindFailure, ErrTypeBroadcastSetupFailure, ErrTypeSocketFailure:
		return true
	default:
		return false
	}
}

// Error is the error value returned by the codec, transport and dispatcher
type Error struct {
	Type    ErrorType // Category of error
	Message string    // Human-readable detail
	Target  string    // host:port involved, if any
	Err     error     // Underlying error (if any)
}

// Sentinel values for errors.Is matching on the error category only.
var (
	ErrBindFailure           = &Error{Type: ErrTypeBindFailure}
	ErrBroadcastSetupFailure = &Error{Type: ErrTypeBroadcastSetupFailure}
	ErrMalformedPacket       = &Error{Type: ErrTypeMalformedPacket}
	ErrTransportUnavailable  = &Error{Type: ErrTypeTransportUnavailable}
	ErrMissingTarget         = &Error{Type: ErrTypeMissingTarget}
	ErrSendFailure           = &Error{Type: ErrTypeSendFailure}
	ErrSocketFailure         = &Error{Type: ErrTypeSocketFailure}
)

// NewError creates a protocol error of the given type
func NewError(t ErrorType, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Type.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Target != "" {
		msg += " (" + e.Target + ")"
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by type. A target carrying a message, target or
// cause is only matched by identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message != "" || t.Target != "" || t.Err != nil {
		return e == t
	}
	return e.Type == t.Type
}

// TypeOf extracts the ErrorType from anywhere in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Type, true
	}
	return 0, false
}

// DescribeNetError turns common socket errnos into a short explanation used in
// status messages. Unknown errors fall back to err.Error().
func DescribeNetError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, syscall.EADDRINUSE):
		return "address already in use"
	case errors.Is(err, syscall.EACCES):
		return "permission denied"
	case errors.Is(err, syscall.ENETUNREACH):
		return "network unreachable"
	case errors.Is(err, syscall.EHOSTUNREACH):
		return "host unreachable"
	case errors.Is(err, net.ErrClosed):
		return "socket closed"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Sprintf("cannot resolve %s", dnsErr.Name)
	}

	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		return addrErr.Err
	}

	return err.Error()
}
