// Package sha256 fingerprints exported files so archive entries can be checked after transfer.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements relay.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Verify reports whether data hashes to digest.
func (h *Hasher) Verify(data []byte, digest string) bool {
	got, _ := h.Hash(data)
	return got == digest
}
