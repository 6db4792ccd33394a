package util

import (
	"github.com/google/uuid"
	"strings"
)

const tokenLength = 8

// NewToken returns a short lowercase alphanumeric token, used for local peer
// identifiers and self-assigned room identifiers.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:tokenLength]
}

// IsValidToken reports whether s can be used verbatim as a rendezvous address.
func IsValidToken(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
