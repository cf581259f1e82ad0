package device

import (
	"strings"

	"github.com/google/uuid"
)

const sigBaseSuffix = "-0000-1000-8000-00805f9b34fb"

// NormalizeUUID converts a UUID string to the canonical lowercase dashed form.
// 16-bit and 32-bit short UUIDs (optionally 0x-prefixed) are returned as lowercase hex,
// and full Bluetooth SIG base UUIDs are shortened to their 16-bit form.
// Unparseable input is returned lowercased and trimmed.
func NormalizeUUID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	if len(s) == 4 || len(s) == 8 {
		return s
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return s
	}
	c := u.String()
	if strings.HasPrefix(c, "0000") && strings.HasSuffix(c, sigBaseSuffix) {
		return c[4:8]
	}
	return c
}

// ShortenUUID returns a truncated version of a UUID for display purposes.
// Returns the first eight characters for long UUIDs and short UUIDs by themselves.
func ShortenUUID(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
