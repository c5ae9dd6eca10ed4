package store

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NewID mints a canonical record id: a v4 UUID with the dashes stripped,
// lower-case, 32 hex characters.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// CanonicalID normalizes an incoming id to the canonical form. Dashed UUIDs,
// upper-case hex and already-canonical ids all map to the same value; other
// strings (including legacy numeric ids) pass through lower-cased so lookups
// stay deterministic.
func CanonicalID(id string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(id), "-", ""))
}

// LegacyNumericID reports whether id is a legacy integer key, giving the
// parsed value. Records written before the UUID migration were keyed by
// autoincrement integers; the engines run this as an explicit second lookup
// phase after the canonical-id lookup misses.
func LegacyNumericID(id string) (int64, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, false
	}
	// Canonical ids are 32 hex characters, and an all-digit one (the default
	// category, notably) would parse as an integer. Those are never legacy
	// keys, so the fallback must not claim them.
	if len(CanonicalID(id)) == 32 {
		return 0, false
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
