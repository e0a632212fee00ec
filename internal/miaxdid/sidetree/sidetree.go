// Package sidetree builds and parses Sidetree create-operation payloads:
// public-key payloads, the patch document, the delta, the suffix data,
// and their commitments.
package sidetree

import (
	"crypto/ecdh"
	"encoding/base64"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/miax-network/miax-agent/internal/miaxdid/canonical"
	"github.com/miax-network/miax-agent/internal/miaxdid/jwk"
	"github.com/miax-network/miax-agent/internal/miaxdid/multihash"
)

const (
	TypeSigningKey    = "EcdsaSecp256k1VerificationKey2019"
	TypeEncryptionKey = "X25519KeyAgreementKey2019"

	signingKeyID    = "signingKey"
	encryptionKeyID = "encryptionKey"
)

// DidPublicKey is a key entry inside a resolved DID document.
type DidPublicKey struct {
	ID           string   `json:"id"`
	Controller   string   `json:"controller,omitempty"`
	Type         string   `json:"type"`
	PublicKeyJwk jwk.Jwk  `json:"publicKeyJwk"`
}

// DidDocument is the resolved document returned by the DID repository.
type DidDocument struct {
	ID             string         `json:"id"`
	PublicKey      []DidPublicKey `json:"publicKey,omitempty"`
	Authentication []string       `json:"authentication,omitempty"`
}

// PublicKeyPayload is a key entry inside a Sidetree patch.
type PublicKeyPayload struct {
	ID      string   `json:"id"`
	Type    string   `json:"type"`
	Jwk     jwk.Jwk  `json:"jwk"`
	Purpose []string `json:"purpose"`
}

// ServiceEndpoint is an optional service entry inside a patch document.
type ServiceEndpoint struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Endpoint string `json:"endpoint"`
}

// DidPatchDocument is the document carried by a Sidetree "replace" patch.
type DidPatchDocument struct {
	PublicKeys       []PublicKeyPayload `json:"public_keys"`
	ServiceEndpoints []ServiceEndpoint  `json:"service_endpoints"`
}

type patch struct {
	Action   string           `json:"action"`
	Document DidPatchDocument `json:"document"`
}

type delta struct {
	Patches          []patch `json:"patches"`
	UpdateCommitment string  `json:"update_commitment"`
}

type suffixData struct {
	DeltaHash          string `json:"delta_hash"`
	RecoveryCommitment string `json:"recovery_commitment"`
}

// createPayload is the wire shape of a Sidetree create operation: type,
// delta, and suffix_data, in that JCS order.
type createPayload struct {
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	SuffixData string `json:"suffix_data"`
}

// SigningKeyPayload builds the patch entry for an agent's signing key.
func SigningKeyPayload(pub *secp256k1.PublicKey) PublicKeyPayload {
	return PublicKeyPayload{
		ID:      "#" + signingKeyID,
		Type:    TypeSigningKey,
		Jwk:     jwk.FromSecp256k1(pub),
		Purpose: []string{"auth", "general"},
	}
}

// EncryptionKeyPayload builds the patch entry for an agent's encryption
// key.
func EncryptionKeyPayload(pub *ecdh.PublicKey) PublicKeyPayload {
	return PublicKeyPayload{
		ID:      "#" + encryptionKeyID,
		Type:    TypeEncryptionKey,
		Jwk:     jwk.FromX25519(pub),
		Purpose: []string{"auth", "general"},
	}
}

// NewPatch builds the fresh-DID patch document for a signing and
// encryption key pair.
func NewPatch(signPub *secp256k1.PublicKey, encryptPub *ecdh.PublicKey) DidPatchDocument {
	return DidPatchDocument{
		PublicKeys: []PublicKeyPayload{
			SigningKeyPayload(signPub),
			EncryptionKeyPayload(encryptPub),
		},
		ServiceEndpoints: []ServiceEndpoint{},
	}
}

// Commitment returns the double-hash-multihash-Base64URL commitment of a
// JWK, JCS-canonicalized first (§4.5 step 1).
func Commitment(key jwk.Jwk) (string, error) {
	b, err := canonical.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("canonicalize jwk: %w", err)
	}
	return multihash.DoubleHashEncode(b), nil
}

// BuildCreatePayload builds the JCS of {type:"create", delta, suffix_data}
// from a patch document and the update/recovery public keys (§4.5).
func BuildCreatePayload(doc DidPatchDocument, updatePub, recoveryPub *secp256k1.PublicKey) ([]byte, error) {
	updateCommitment, err := Commitment(jwk.FromSecp256k1(updatePub))
	if err != nil {
		return nil, fmt.Errorf("update commitment: %w", err)
	}
	recoveryCommitment, err := Commitment(jwk.FromSecp256k1(recoveryPub))
	if err != nil {
		return nil, fmt.Errorf("recovery commitment: %w", err)
	}

	d := delta{
		Patches:          []patch{{Action: "replace", Document: doc}},
		UpdateCommitment: updateCommitment,
	}
	deltaBytes, err := canonical.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("canonicalize delta: %w", err)
	}
	deltaHash := multihash.HashEncode(deltaBytes)

	s := suffixData{
		DeltaHash:          deltaHash,
		RecoveryCommitment: recoveryCommitment,
	}
	suffixBytes, err := canonical.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("canonicalize suffix: %w", err)
	}

	payload := createPayload{
		Type:       "create",
		Delta:      base64.RawURLEncoding.EncodeToString(deltaBytes),
		SuffixData: base64.RawURLEncoding.EncodeToString(suffixBytes),
	}
	return canonical.Marshal(payload)
}

// GetSignKey returns the public key whose id matches "#signingKey".
func GetSignKey(doc DidDocument) (DidPublicKey, error) {
	return findKey(doc, "#"+signingKeyID)
}

// GetEncryptKey returns the public key whose id matches "#encryptionKey".
func GetEncryptKey(doc DidDocument) (DidPublicKey, error) {
	return findKey(doc, "#"+encryptionKeyID)
}

// ErrPublicKeyNotFound is returned when a document has no key with the
// requested id.
type ErrPublicKeyNotFound struct {
	Did string
	Key string
}

func (e *ErrPublicKeyNotFound) Error() string {
	return fmt.Sprintf("sidetree: public key %q not found on %q", e.Key, e.Did)
}

func findKey(doc DidDocument, id string) (DidPublicKey, error) {
	for _, k := range doc.PublicKey {
		if k.ID == id {
			return k, nil
		}
	}
	return DidPublicKey{}, &ErrPublicKeyNotFound{Did: doc.ID, Key: id}
}
