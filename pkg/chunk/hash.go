// Package chunk defines the core domain types shared by the object store,
// the reference ledger and the garbage collector: content hashes, reference
// sources and storage tiers.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// HashLen is the length of a hex-encoded SHA-256 content hash.
const HashLen = 64

// Hash is the hex-encoded SHA-256 digest of a chunk's bytes. It serves as
// both the chunk's identity and its storage key. Hashes are always stored
// and compared in lowercase.
type Hash string

// Sum computes the content hash of data.
func Sum(data []byte) Hash {
	digest := sha256.Sum256(data)
	return Hash(hex.EncodeToString(digest[:]))
}

// ParseHash validates and normalizes a hex hash string.
func ParseHash(s string) (Hash, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != HashLen {
		return "", fmt.Errorf("invalid hash %q: want %d hex characters, got %d", s, HashLen, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("invalid hash %q: %w", s, err)
	}
	return Hash(s), nil
}

// Valid reports whether h is a well-formed content hash.
func (h Hash) Valid() bool {
	_, err := ParseHash(string(h))
	return err == nil
}

// String returns the full hex representation.
func (h Hash) String() string {
	return string(h)
}

// Short returns an abbreviated form for log lines and CLI output.
func (h Hash) Short() string {
	if len(h) > 12 {
		return string(h[:12])
	}
	return string(h)
}
