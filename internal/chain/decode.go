package chain

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/samber/lo"
)

// Helpers for interpreting registry query return values. The wire form is
// raw bytes (already base64-decoded by QueryVM); the caller chooses the shape.

// DecodeString interprets a return value as UTF-8 text.
func DecodeString(value []byte) string {
	return string(value)
}

// DecodeStrings interprets every return value as UTF-8 text.
func DecodeStrings(values [][]byte) []string {
	return lo.Map(values, func(v []byte, _ int) string { return string(v) })
}

// DecodeUint interprets a return value as a big-endian unsigned integer of up
// to 8 bytes. Registries encode counters with no leading zero padding.
func DecodeUint(value []byte) (uint64, error) {
	if len(value) > 8 {
		return 0, fmt.Errorf("integer return value too long: %d bytes", len(value))
	}
	var buf [8]byte
	copy(buf[8-len(value):], value)
	return binary.BigEndian.Uint64(buf[:]), nil
}

// DecodeHex interprets a return value as raw bytes rendered in hex.
func DecodeHex(value []byte) string {
	return hex.EncodeToString(value)
}
