// Package multihash implements the self-describing SHA-256 hash encoding
// used to build Sidetree commitments and delta hashes.
package multihash

import (
	"crypto/sha256"
	"encoding/base64"
)

// sha256Code and sha256Length are the multicodec/multihash prefix bytes for
// a 32-byte SHA-256 digest: 0x12 = sha2-256, 0x20 = 32.
const (
	sha256Code   byte = 0x12
	sha256Length byte = 0x20
)

// Hash returns [0x12, 0x20] || SHA256(m), always 34 bytes.
func Hash(m []byte) []byte {
	sum := sha256.Sum256(m)
	out := make([]byte, 0, 2+len(sum))
	out = append(out, sha256Code, sha256Length)
	out = append(out, sum[:]...)
	return out
}

// HashEncode returns Base64URL-unpadded(Hash(m)).
func HashEncode(m []byte) string {
	return base64.RawURLEncoding.EncodeToString(Hash(m))
}

// DoubleHashEncode returns Base64URL-unpadded(Hash(SHA256(m))), used for
// Sidetree commitments (the hash of a hash of the canonical JWK bytes).
func DoubleHashEncode(m []byte) string {
	sum := sha256.Sum256(m)
	return HashEncode(sum[:])
}
