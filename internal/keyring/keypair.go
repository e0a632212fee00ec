// Package keyring holds the four key pairs (sign, update, recovery,
// encrypt) an agent uses to create identifiers, sign credentials, and
// seal DIDComm messages.
package keyring

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/miax-network/miax-agent/internal/miaxdid/jwk"
)

// Kind identifies which curve a KeyPair implementation uses.
type Kind string

const (
	KindSecp256k1 Kind = "secp256k1"
	KindX25519    Kind = "x25519"
)

// KeyPair is the capability set shared by the two concrete key-pair kinds
// used across the key ring: secp256k1 (sign/update/recovery) and X25519
// (encrypt). Expressed as per-kind concrete types rather than an
// open-ended hierarchy.
type KeyPair interface {
	Kind() Kind
	SecretHex() string
	PublicHex() string
	Zero()
}

// Secp256k1Pair wraps a secp256k1 key pair.
type Secp256k1Pair struct {
	secret *secp256k1.PrivateKey
	public *secp256k1.PublicKey
}

// NewSecp256k1Pair generates a fresh secp256k1 key pair.
func NewSecp256k1Pair() (*Secp256k1Pair, error) {
	sk, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate secp256k1 key: %w", err)
	}
	return &Secp256k1Pair{secret: sk, public: sk.PubKey()}, nil
}

// Secp256k1PairFromHex reconstructs a key pair from the lowercase-hex
// encoding of its raw 32-byte scalar.
func Secp256k1PairFromHex(hexSecret string) (*Secp256k1Pair, error) {
	b, err := hex.DecodeString(hexSecret)
	if err != nil {
		return nil, fmt.Errorf("decode secp256k1 secret: %w", err)
	}
	sk := secp256k1.PrivKeyFromBytes(b)
	return &Secp256k1Pair{secret: sk, public: sk.PubKey()}, nil
}

func (p *Secp256k1Pair) Kind() Kind { return KindSecp256k1 }

func (p *Secp256k1Pair) SecretHex() string {
	return hex.EncodeToString(p.secret.Serialize())
}

func (p *Secp256k1Pair) PublicHex() string {
	return hex.EncodeToString(p.public.SerializeCompressed())
}

// Secret returns the underlying private key for signing operations.
func (p *Secp256k1Pair) Secret() *secp256k1.PrivateKey { return p.secret }

// Public returns the underlying public key.
func (p *Secp256k1Pair) Public() *secp256k1.PublicKey { return p.public }

// Jwk returns the public key's JWK representation (§4.2).
func (p *Secp256k1Pair) Jwk() jwk.Jwk { return jwk.FromSecp256k1(p.public) }

// Zero clears the raw scalar bytes backing this key pair.
func (p *Secp256k1Pair) Zero() {
	if p.secret == nil {
		return
	}
	p.secret.Zero()
}

// X25519Pair wraps an X25519 key-agreement key pair.
type X25519Pair struct {
	secret *ecdh.PrivateKey
	public *ecdh.PublicKey
}

// NewX25519Pair generates a fresh X25519 key pair using crypto/rand.
func NewX25519Pair() (*X25519Pair, error) {
	sk, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate x25519 key: %w", err)
	}
	return &X25519Pair{secret: sk, public: sk.PublicKey()}, nil
}

// X25519PairFromHex reconstructs a key pair from the lowercase-hex
// encoding of its raw 32-byte seed.
func X25519PairFromHex(hexSecret string) (*X25519Pair, error) {
	b, err := hex.DecodeString(hexSecret)
	if err != nil {
		return nil, fmt.Errorf("decode x25519 secret: %w", err)
	}
	sk, err := ecdh.X25519().NewPrivateKey(b)
	if err != nil {
		return nil, fmt.Errorf("parse x25519 secret: %w", err)
	}
	return &X25519Pair{secret: sk, public: sk.PublicKey()}, nil
}

func (p *X25519Pair) Kind() Kind { return KindX25519 }

func (p *X25519Pair) SecretHex() string {
	return hex.EncodeToString(p.secret.Bytes())
}

func (p *X25519Pair) PublicHex() string {
	return hex.EncodeToString(p.public.Bytes())
}

// Secret returns the underlying private key for ECDH agreement.
func (p *X25519Pair) Secret() *ecdh.PrivateKey { return p.secret }

// Public returns the underlying public key.
func (p *X25519Pair) Public() *ecdh.PublicKey { return p.public }

// Jwk returns the public key's JWK representation (§4.2).
func (p *X25519Pair) Jwk() jwk.Jwk { return jwk.FromX25519(p.public) }

// Zero drops this key pair's reference to its secret and public key.
// crypto/ecdh.PrivateKey keeps its scalar unexported, so there is no
// buffer to overwrite in place; dropping the last reference is the best
// available approximation of zeroization for this kind.
func (p *X25519Pair) Zero() {
	p.secret = nil
	p.public = nil
}
