package gatt

import (
	"strings"
)

// bluetoothBaseSuffix is the tail of the Bluetooth SIG base UUID
// (0000xxxx-0000-1000-8000-00805f9b34fb) once dashes are stripped.
const bluetoothBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal lookup format:
// lowercase with dashes stripped. A 0x prefix is removed (e.g. "0x2A19" ->
// "2a19"), and full 128-bit UUIDs in the Bluetooth SIG base format collapse
// to their 16-bit short form, so "00002a19-0000-1000-8000-00805F9B34FB",
// "2A19" and "0x2a19" all normalize to the same key.
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(uuid), "-", ""))
	s = strings.TrimPrefix(s, "0x")

	if len(s) == 32 && strings.HasPrefix(s, "0000") && strings.HasSuffix(s, bluetoothBaseSuffix) {
		return s[4:8]
	}
	return s
}

// ShortenUUID returns a truncated version of a UUID for display purposes.
func ShortenUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}
