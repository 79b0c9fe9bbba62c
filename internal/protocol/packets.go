package protocol

import (
	"bytes"
	"fmt"
)

const (
	// DiscoveryProbeHex is the fixed broadcast probe understood by the switcher
	DiscoveryProbeHex = "a56c140081ff01000000000000000000ffa503ae"

	// DiscoveryReplyPrefixHex identifies a discovery response; the rest of the
	// reply is not interpreted
	DiscoveryReplyPrefixHex = "a56c2c00a1ff"

	// BroadcastAddress is the limited broadcast destination for probes
	BroadcastAddress = "255.255.255.255"

	// DefaultPort is the switcher's UDP control port
	DefaultPort = 7000

	// MinPort and MaxPort bound a valid UDP destination port
	MinPort = 1
	MaxPort = 65535
)

var (
	discoveryProbe       = MustEncode(DiscoveryProbeHex)
	discoveryReplyPrefix = MustEncode(DiscoveryReplyPrefixHex)
)

// DiscoveryProbe returns a fresh copy of the 20-byte discovery probe.
func DiscoveryProbe() []byte {
	return bytes.Clone(discoveryProbe)
}

// DiscoveryReplyPrefix returns a fresh copy of the 6-byte reply prefix.
func DiscoveryReplyPrefix() []byte {
	return bytes.Clone(discoveryReplyPrefix)
}

// IsDiscoveryResponse reports whether a datagram starts with the discovery
// reply prefix. Checking the bytes directly is equivalent to checking that the
// hex rendering starts with DiscoveryReplyPrefixHex.
func IsDiscoveryResponse(data []byte) bool {
	return bytes.HasPrefix(data, discoveryReplyPrefix)
}

// ReplyKind classifies an inbound datagram
type ReplyKind int

const (
	// ReplyUnclassified is any datagram this package does not understand yet
	ReplyUnclassified ReplyKind = iota
	// ReplyDiscovery is a response to the discovery probe
	ReplyDiscovery
)

// String returns the kind name used in logs and JSON
func (k ReplyKind) String() string {
	switch k {
	case ReplyDiscovery:
		return "discovery"
	case ReplyUnclassified:
		return "unclassified"
	default:
		return fmt.Sprintf("ReplyKind(%d)", int(k))
	}
}

// Classify returns the kind of an inbound datagram.
// Routing and status replies are not decoded yet; they come back unclassified.
func Classify(data []byte) ReplyKind {
	if IsDiscoveryResponse(data) {
		return ReplyDiscovery
	}
	return ReplyUnclassified
}

// ValidPort reports whether port is a usable UDP destination port.
func ValidPort(port int) bool {
	return port >= MinPort && port <= MaxPort
}
