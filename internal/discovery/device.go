package discovery

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"
)

// DeviceRecord is a switcher that has answered the discovery probe
type DeviceRecord struct {
	// Address is the sender IP of the reply and the record's key (e.g., "10.0.0.5")
	Address string

	// Port is the source port of the most recent reply
	Port int

	// FirstSeen is when the first reply from this address arrived
	FirstSeen time.Time

	// LastSeen is when the most recent reply arrived
	LastSeen time.Time

	// Responses counts discovery replies received from this address
	Responses int

	// Reply holds the raw bytes of the most recent reply. Past the 6-byte
	// prefix the content is not interpreted.
	Reply []byte
}

// String returns a human-readable string representation of the device
func (d *DeviceRecord) String() string {
	return fmt.Sprintf("Switcher at %s (last seen %s, %d responses)",
		d.Address, d.LastSeen.Format(time.RFC3339), d.Responses)
}

// ReplyHex returns the last reply as lowercase hex
func (d *DeviceRecord) ReplyHex() string {
	return hex.EncodeToString(d.Reply)
}

// Age returns how long ago the device last answered
func (d *DeviceRecord) Age(now time.Time) time.Duration {
	return now.Sub(d.LastSeen)
}

func (d *DeviceRecord) clone() DeviceRecord {
	c := *d
	c.Reply = bytes.Clone(d.Reply)
	return c
}
