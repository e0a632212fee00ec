package keyring

import "fmt"

// KeyRing is the four key pairs an agent holds: sign, update, and recovery
// are secp256k1; encrypt is X25519.
type KeyRing struct {
	Sign     *Secp256k1Pair
	Update   *Secp256k1Pair
	Recovery *Secp256k1Pair
	Encrypt  *X25519Pair
}

// New generates a fresh key ring with four independent key pairs.
//
// Each field is assigned from its own freshly generated key. A prior
// variant of this assignment swapped update and recovery; this
// implementation assigns each field from its matching generated key.
func New() (*KeyRing, error) {
	sign, err := NewSecp256k1Pair()
	if err != nil {
		return nil, fmt.Errorf("generate sign key: %w", err)
	}
	update, err := NewSecp256k1Pair()
	if err != nil {
		return nil, fmt.Errorf("generate update key: %w", err)
	}
	recovery, err := NewSecp256k1Pair()
	if err != nil {
		return nil, fmt.Errorf("generate recovery key: %w", err)
	}
	encrypt, err := NewX25519Pair()
	if err != nil {
		return nil, fmt.Errorf("generate encrypt key: %w", err)
	}

	return &KeyRing{
		Sign:     sign,
		Update:   update,
		Recovery: recovery,
		Encrypt:  encrypt,
	}, nil
}

// Hex is the lowercase-hex serialization of a key ring's four secrets, the
// on-disk shape persisted by the key store (§4.8).
type Hex struct {
	Sign     string `json:"sign"`
	Update   string `json:"update"`
	Recovery string `json:"recovery"`
	Encrypt  string `json:"encrypt"`
}

// ToHex serializes every secret to lowercase hex.
func (k *KeyRing) ToHex() Hex {
	return Hex{
		Sign:     k.Sign.SecretHex(),
		Update:   k.Update.SecretHex(),
		Recovery: k.Recovery.SecretHex(),
		Encrypt:  k.Encrypt.SecretHex(),
	}
}

// FromHex reconstructs a key ring from its hex-serialized secrets. Each
// slot is read from its own field; a prior variant read the update slot
// for both sign and update, which this implementation does not mirror.
func FromHex(h Hex) (*KeyRing, error) {
	sign, err := Secp256k1PairFromHex(h.Sign)
	if err != nil {
		return nil, fmt.Errorf("load sign key: %w", err)
	}
	update, err := Secp256k1PairFromHex(h.Update)
	if err != nil {
		return nil, fmt.Errorf("load update key: %w", err)
	}
	recovery, err := Secp256k1PairFromHex(h.Recovery)
	if err != nil {
		return nil, fmt.Errorf("load recovery key: %w", err)
	}
	encrypt, err := X25519PairFromHex(h.Encrypt)
	if err != nil {
		return nil, fmt.Errorf("load encrypt key: %w", err)
	}

	return &KeyRing{
		Sign:     sign,
		Update:   update,
		Recovery: recovery,
		Encrypt:  encrypt,
	}, nil
}

// Zero clears all four secrets.
func (k *KeyRing) Zero() {
	k.Sign.Zero()
	k.Update.Zero()
	k.Recovery.Zero()
	k.Encrypt.Zero()
}
