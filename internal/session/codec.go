package session

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Numeric characteristics are unsigned 16-bit little-endian. Extra bytes are ignored.

func encodeUint16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func decodeUint16(b []byte) (uint16, error) {
	if len(b) < 2 {
		return 0, fmt.Errorf("%w: got %d byte(s), want 2", ErrShortPayload, len(b))
	}
	return binary.LittleEndian.Uint16(b[:2]), nil
}

// decodeText interprets b as UTF-8, replacing invalid sequences and trimming the
// NUL padding some firmware versions append.
func decodeText(b []byte) string {
	return strings.ToValidUTF8(strings.TrimRight(string(b), "\x00"), "\uFFFD")
}
