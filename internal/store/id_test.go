package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_CanonicalForm(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		require.Len(t, id, 32)
		require.NotContains(t, id, "-")
		assert.Equal(t, id, CanonicalID(id))
		require.False(t, seen[id], "ids must not repeat")
		seen[id] = true
	}
}

func TestCanonicalID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"dashed uuid", "A1B2C3D4-0000-1111-2222-333344445555", "a1b2c3d4000011112222333344445555"},
		{"already canonical", "00000000000000000000000000000001", "00000000000000000000000000000001"},
		{"whitespace", "  abc-def ", "abcdef"},
		{"numeric passthrough", "42", "42"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanonicalID(tc.in))
		})
	}
}

func TestLegacyNumericID(t *testing.T) {
	tests := []struct {
		in   string
		n    int64
		ok   bool
	}{
		{"42", 42, true},
		{" 7 ", 7, true},
		{"0", 0, false},
		{"-3", 0, false},
		{"", 0, false},
		{"00000000000000000000000000000001", 0, false},
		{"00000000-0000-0000-0000-000000000001", 0, false},
		{"99999999999999999999999999999999", 0, false},
		{"abc", 0, false},
	}
	for _, tc := range tests {
		n, ok := LegacyNumericID(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.n, n, "input %q", tc.in)
	}
}
