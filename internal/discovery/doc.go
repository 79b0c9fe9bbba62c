// Package discovery tracks switchers that answer the discovery probe.
//
// A Tracker classifies inbound datagrams. Any datagram whose first six bytes
// are A5 6C 2C 00 A1 FF is a discovery response, and the sender's IP address
// becomes (or refreshes) a DeviceRecord. Records are keyed by address, so a
// device that answers twice is still one record with a newer LastSeen.
//
// Records never expire on their own. Callers that run for a long time can
// call Prune with a staleness threshold.
//
// # mDNS Candidates
//
// Some networks drop limited broadcast. MDNSBrowser browses a DNS-SD service
// type (by default "_http._tcp") and returns the IPv4 hosts it finds; the
// caller then sends each one a unicast probe. A candidate is never added to
// the Tracker until it actually replies.
//
//	browser := discovery.NewMDNSBrowser()
//	candidates, err := browser.Browse(ctx)
//	for _, c := range candidates {
//	    _ = dispatcher.Probe(c.IP)
//	}
//
// # Thread Safety
//
// Tracker is safe for concurrent use. Returned records are copies.
package discovery
