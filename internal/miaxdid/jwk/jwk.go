// Package jwk converts between the secp256k1 / X25519 public keys used by
// the key ring and their JSON Web Key representation.
package jwk

import (
	"crypto/ecdh"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Jwk is {kty, crv, x, y?}; y is present iff kty="EC".
type Jwk struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y,omitempty"`
}

// Sentinel errors mirroring the codec's failure modes.
var (
	ErrDifferentCrv = errors.New("jwk: unexpected curve")
	ErrMissingY     = errors.New("jwk: missing y coordinate for EC key")
	ErrDecode       = errors.New("jwk: base64url decode failed")
	ErrCrypt        = errors.New("jwk: point is not on the curve")
)

const (
	ktyEC  = "EC"
	ktyOKP = "OKP"

	crvSecp256k1 = "secp256k1"
	crvX25519    = "X25519"
)

// FromSecp256k1 builds {kty:"EC", crv:"secp256k1", x, y} from the
// uncompressed SEC1 coordinates of pub.
func FromSecp256k1(pub *secp256k1.PublicKey) Jwk {
	raw := pub.SerializeUncompressed() // 0x04 || X(32) || Y(32)
	x := raw[1:33]
	y := raw[33:65]
	return Jwk{
		Kty: ktyEC,
		Crv: crvSecp256k1,
		X:   base64.RawURLEncoding.EncodeToString(x),
		Y:   base64.RawURLEncoding.EncodeToString(y),
	}
}

// ToSecp256k1 parses a {kty:"EC", crv:"secp256k1"} Jwk back into a public
// key, failing with ErrDifferentCrv, ErrMissingY, ErrDecode, or ErrCrypt.
func ToSecp256k1(j Jwk) (*secp256k1.PublicKey, error) {
	if j.Crv != crvSecp256k1 {
		return nil, fmt.Errorf("%w: got %q", ErrDifferentCrv, j.Crv)
	}
	if j.X == "" || j.Y == "" {
		return nil, ErrMissingY
	}

	x, err := base64.RawURLEncoding.DecodeString(j.X)
	if err != nil {
		return nil, fmt.Errorf("%w: x: %v", ErrDecode, err)
	}
	y, err := base64.RawURLEncoding.DecodeString(j.Y)
	if err != nil {
		return nil, fmt.Errorf("%w: y: %v", ErrDecode, err)
	}

	uncompressed := make([]byte, 0, 65)
	uncompressed = append(uncompressed, 0x04)
	uncompressed = append(uncompressed, leftPad32(x)...)
	uncompressed = append(uncompressed, leftPad32(y)...)

	pub, err := secp256k1.ParsePubKey(uncompressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypt, err)
	}
	return pub, nil
}

// FromX25519 builds {kty:"OKP", crv:"X25519", x} from pub.
func FromX25519(pub *ecdh.PublicKey) Jwk {
	return Jwk{
		Kty: ktyOKP,
		Crv: crvX25519,
		X:   base64.RawURLEncoding.EncodeToString(pub.Bytes()),
	}
}

// ToX25519 parses a {kty:"OKP", crv:"X25519"} Jwk back into a public key.
func ToX25519(j Jwk) (*ecdh.PublicKey, error) {
	if j.Crv != crvX25519 {
		return nil, fmt.Errorf("%w: got %q", ErrDifferentCrv, j.Crv)
	}
	if j.X == "" {
		return nil, ErrDecode
	}

	x, err := base64.RawURLEncoding.DecodeString(j.X)
	if err != nil {
		return nil, fmt.Errorf("%w: x: %v", ErrDecode, err)
	}

	pub, err := ecdh.X25519().NewPublicKey(x)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypt, err)
	}
	return pub, nil
}

// leftPad32 left-pads b with zero bytes to 32 bytes; secp256k1 field
// elements occasionally serialize short when the leading byte is zero.
func leftPad32(b []byte) []byte {
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}
