package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		// short forms
		{name: "16-bit UUID", input: "2902", expected: "2902"},
		{name: "16-bit UUID uppercase", input: "2A00", expected: "2a00"},
		{name: "16-bit UUID with 0x prefix", input: "0x2902", expected: "2902"},
		{name: "16-bit UUID with 0X prefix", input: "0X2902", expected: "2902"},
		{name: "32-bit UUID", input: "000001C3", expected: "000001c3"},

		// Bluetooth SIG base UUID format (should extract 16-bit form)
		{name: "SIG base UUID with dashes", input: "00002902-0000-1000-8000-00805f9b34fb", expected: "2902"},
		{name: "SIG base UUID without dashes", input: "0000290200001000800000805f9b34fb", expected: "2902"},
		{name: "SIG base UUID uppercase", input: "0000180D-0000-1000-8000-00805F9B34FB", expected: "180d"},

		// Custom 128-bit UUIDs (should NOT be shortened)
		{name: "vendor UUID", input: "00000011-4C45-4B43-4942-265A524F5453", expected: "00000011-4c45-4b43-4942-265a524f5453"},
		{name: "vendor UUID without dashes", input: "000000114c454b434942265a524f5453", expected: "00000011-4c45-4b43-4942-265a524f5453"},
		{name: "SIG-like prefix but wrong suffix", input: "00002902-1234-5678-9abc-def012345678", expected: "00002902-1234-5678-9abc-def012345678"},

		// Edge cases
		{name: "empty string", input: "", expected: ""},
		{name: "garbage is lowercased", input: " NOT-A-UUID ", expected: "not-a-uuid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestShortenUUID(t *testing.T) {
	assert.Equal(t, "00000011", ShortenUUID("00000011-4c45-4b43-4942-265a524f5453"))
	assert.Equal(t, "2902", ShortenUUID("2902"))
	assert.Equal(t, "", ShortenUUID(""))
}
