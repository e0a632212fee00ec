// Package vc signs and verifies verifiable credentials with a detached
// ES256K JWS carried in a proof block.
package vc

import (
	"errors"
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/miax-network/miax-agent/internal/jws"
)

// Issuer identifies the credential issuer by DID.
type Issuer struct {
	ID string `json:"id"`
}

// Subject carries the claims of the credential. Container holds
// arbitrary claim data alongside the optional subject id.
type Subject struct {
	ID        string      `json:"id,omitempty"`
	Container interface{} `json:"container,omitempty"`
}

// Proof is the detached-JWS proof block attached to a signed credential.
type Proof struct {
	Type               string `json:"type"`
	ProofPurpose       string `json:"proofPurpose"`
	Created            string `json:"created"`
	VerificationMethod string `json:"verificationMethod"`
	Jws                string `json:"jws"`
	Controller         string `json:"controller,omitempty"`
	Challenge          string `json:"challenge,omitempty"`
	Domain             string `json:"domain,omitempty"`
}

// VC is a verifiable credential.
type VC struct {
	ID                string      `json:"id,omitempty"`
	Issuer            Issuer      `json:"issuer"`
	IssuanceDate      string      `json:"issuanceDate"`
	ExpirationDate    string      `json:"expirationDate,omitempty"`
	Context           []string    `json:"@context"`
	Type              []string    `json:"type"`
	CredentialSubject Subject     `json:"credentialSubject"`
	Proof             *Proof      `json:"proof,omitempty"`
}

// ErrProofNotFound is returned by Verify when the credential carries no
// proof block.
var ErrProofNotFound = errors.New("vc: proof not found")

// SignParams names the DID and key material used to produce a proof.
type SignParams struct {
	Did          string
	KeyID        string
	SignKeyPair  *secp256k1.PrivateKey
}

// Sign attaches a fresh proof to vc using the detached ES256K JWS over the
// credential without its proof block.
func Sign(vc VC, p SignParams) (VC, error) {
	unsigned := vc
	unsigned.Proof = nil

	token, err := jws.Sign(unsigned, p.SignKeyPair)
	if err != nil {
		return VC{}, fmt.Errorf("sign credential: %w", err)
	}

	vc.Proof = &Proof{
		Type:               "EcdsaSecp256k1Signature2019",
		ProofPurpose:       "authentication",
		Created:            vc.IssuanceDate,
		VerificationMethod: fmt.Sprintf("%s#%s", p.Did, p.KeyID),
		Jws:                token,
	}
	return vc, nil
}

// Verify checks vc's proof against publicKey and, on success, returns the
// credential with its proof stripped.
func Verify(vc VC, publicKey *secp256k1.PublicKey) (VC, error) {
	if vc.Proof == nil {
		return VC{}, ErrProofNotFound
	}

	unsigned := vc
	unsigned.Proof = nil

	if err := jws.Verify(vc.Proof.Jws, unsigned, publicKey); err != nil {
		return VC{}, fmt.Errorf("verify credential proof: %w", err)
	}

	unsigned.Proof = nil
	return unsigned, nil
}

// Now returns the current time formatted as the credential's issuanceDate,
// RFC3339 to match the JSON-LD convention used elsewhere in the stack.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
