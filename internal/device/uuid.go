package device

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/srg/sixmwt/internal/bledb"
)

// NormalizeUUID is re-exported from bledb for convenience.
// It converts a UUID string to the internal format (lowercase, no dashes),
// shortening Bluetooth SIG base UUIDs to their 16-bit form.
func NormalizeUUID(uuid string) string {
	return bledb.NormalizeUUID(uuid)
}

// NormalizeUUIDs is re-exported from bledb for convenience.
func NormalizeUUIDs(uuids []string) []string {
	return bledb.NormalizeUUIDs(uuids)
}

// ShortenUUID returns a truncated version of a UUID for display purposes.
func ShortenUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}

// ValidateUUID validates that UUID strings are non-empty and well-formed.
// 16-bit and 32-bit short forms are accepted as hex; anything longer must parse as a 128-bit UUID.
// Returns normalized UUID strings or an error.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, raw := range uuids {
		if raw == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		normalized := NormalizeUUID(raw)
		switch len(normalized) {
		case 4, 8:
			if !isHex(normalized) {
				return nil, fmt.Errorf("invalid UUID format at index %d: %s", i, raw)
			}
		default:
			if _, err := uuid.Parse(raw); err != nil {
				return nil, fmt.Errorf("invalid UUID format at index %d: %s: %w", i, raw, err)
			}
		}
		result = append(result, normalized)
	}
	return result, nil
}

func isHex(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}
