// Package jws implements the detached ES256K JWS used to sign Sidetree
// key commitments are not signed here, but verifiable credentials and
// other JSON payloads are: b64=false, crit=["b64"], payload carried
// externally rather than embedded in the token.
package jws

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/miax-network/miax-agent/internal/miaxdid/canonical"
)

// Header is the detached JWS protected header. b64=false with
// crit=["b64"] signals that the payload is not Base64URL-encoded inside
// the token.
type Header struct {
	Alg  string   `json:"alg"`
	B64  bool     `json:"b64"`
	Crit []string `json:"crit"`
}

func newHeader() Header {
	return Header{Alg: "ES256K", B64: false, Crit: []string{"b64"}}
}

// Sentinel errors for verification failures.
var (
	ErrMalformed             = errors.New("jws: malformed token")
	ErrNonEmptyPayloadSegment = errors.New("jws: detached token must carry an empty payload segment")
	ErrWrongAlg              = errors.New("jws: unexpected alg")
	ErrNotDetached           = errors.New("jws: header does not declare b64=false, crit=[\"b64\"]")
	ErrInvalidSignatureLength = errors.New("jws: signature is not 64 bytes")
	ErrSignatureInvalid      = errors.New("jws: signature verification failed")
)

// Sign builds the detached ES256K JWS for payload, signed with sk. The
// output is H + ".." + Base64URL(sig) — the middle segment is always
// empty since the payload travels externally.
func Sign(payload interface{}, sk *secp256k1.PrivateKey) (string, error) {
	h := newHeader()
	hBytes, err := canonical.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("canonicalize header: %w", err)
	}
	H := base64.RawURLEncoding.EncodeToString(hBytes)

	p, err := signingInputPayload(payload)
	if err != nil {
		return "", err
	}

	m := H + "." + p
	digest := sha256.Sum256([]byte(m))

	r, s, err := ecdsa.Sign(rand.Reader, sk.ToECDSA(), digest[:])
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	sig := serializeSignature(r, s)

	return H + ".." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Verify checks token against payload (the same JSON value the signer
// used) and pk.
func Verify(token string, payload interface{}, pk *secp256k1.PublicKey) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ErrMalformed
	}
	if parts[1] != "" {
		return ErrNonEmptyPayloadSegment
	}

	hBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	var h Header
	if err := json.Unmarshal(hBytes, &h); err != nil {
		return fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	if h.Alg != "ES256K" {
		return fmt.Errorf("%w: %q", ErrWrongAlg, h.Alg)
	}
	if h.B64 || !containsB64(h.Crit) {
		return ErrNotDetached
	}

	p, err := signingInputPayload(payload)
	if err != nil {
		return err
	}
	m := parts[0] + "." + p
	digest := sha256.Sum256([]byte(m))

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("%w: signature: %v", ErrMalformed, err)
	}
	if len(sig) != 64 {
		return ErrInvalidSignatureLength
	}
	r, s := deserializeSignature(sig)

	if !ecdsa.Verify(pk.ToECDSA(), digest[:], r, s) {
		return ErrSignatureInvalid
	}
	return nil
}

// signingInputPayload JCS-canonicalizes payload and Base64URL-encodes it
// to form the transient P segment of the signing input; it is never
// written into the output token.
func signingInputPayload(payload interface{}) (string, error) {
	b, err := canonical.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func containsB64(crit []string) bool {
	for _, c := range crit {
		if c == "b64" {
			return true
		}
	}
	return false
}

func serializeSignature(r, s *big.Int) []byte {
	rBytes := r.Bytes()
	sBytes := s.Bytes()

	sig := make([]byte, 64)
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	return sig
}

func deserializeSignature(data []byte) (*big.Int, *big.Int) {
	r := new(big.Int).SetBytes(data[:32])
	s := new(big.Int).SetBytes(data[32:])
	return r, s
}
