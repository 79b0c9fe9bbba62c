package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// Encode converts a hex command string into the raw datagram bytes.
//
// Whitespace anywhere in the input is ignored, so "a5 6c 14 00" and
// "a56c1400" produce the same packet. After stripping, every character must be
// a hex digit and the digit count must be even; anything else is reported as
// ErrTypeMalformedPacket. No padding or truncation is ever applied.
func Encode(hexString string) ([]byte, error) {
	cleaned := StripWhitespace(hexString)

	for i, r := range cleaned {
		if !isHexDigit(r) {
			return nil, NewError(ErrTypeMalformedPacket,
				fmt.Sprintf("invalid hex character %q at offset %d", r, i), nil)
		}
	}

	if len(cleaned)%2 != 0 {
		return nil, NewError(ErrTypeMalformedPacket,
			fmt.Sprintf("odd length (%d hex digits)", len(cleaned)), nil)
	}

	packet, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, NewError(ErrTypeMalformedPacket, "hex decode failed", err)
	}
	return packet, nil
}

// MustEncode is Encode for package-level constants. It panics on bad input.
func MustEncode(hexString string) []byte {
	packet, err := Encode(hexString)
	if err != nil {
		panic(err)
	}
	return packet
}

// EncodeToString renders a packet as lowercase hex with no separators.
func EncodeToString(packet []byte) string {
	return hex.EncodeToString(packet)
}

// Normalize returns the canonical form of a hex command: whitespace removed
// and lowercased. It does not validate.
func Normalize(hexString string) string {
	return strings.ToLower(StripWhitespace(hexString))
}

// StripWhitespace removes every Unicode whitespace character.
func StripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
