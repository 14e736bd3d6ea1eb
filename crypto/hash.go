package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the SHA-256 hash of data as a lowercase hex string.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashBytes returns the raw SHA-256 bytes of data.
func HashBytes(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// TruncatedHash returns the hex digest of data truncated to n bytes
// (2n hex characters). Used for deterministic, non-cryptographic
// identifiers such as block hashes and attestation signatures.
func TruncatedHash(data []byte, n int) string {
	full := HashBytes(data)
	if n > len(full) {
		n = len(full)
	}
	return hex.EncodeToString(full[:n])
}
