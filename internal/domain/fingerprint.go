package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashFingerprint derives the opaque device hash stored with redemptions.
// The raw identifier is never persisted.
func HashFingerprint(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:32]
}
