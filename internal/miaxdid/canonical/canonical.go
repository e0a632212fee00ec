// Package canonical produces JSON Canonicalization Scheme (RFC 8785) byte
// sequences for Sidetree payload construction and detached-JWS signing
// input.
package canonical

import (
	"github.com/trustbloc/did-go/doc/json/canonicalizer"
)

// Marshal JCS-canonicalizes v and returns its UTF-8 byte sequence. v may be
// a struct (via its json tags), a map, or any value accepted by
// encoding/json.
func Marshal(v interface{}) ([]byte, error) {
	return canonicalizer.Marshal(v)
}

// MarshalString is Marshal with the result returned as a string, useful
// where the caller needs the canonical form for logging or hashing input
// that expects a string rather than a byte slice.
func MarshalString(v interface{}) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
