// Package didcomm builds and verifies nested JWE+JWS DIDComm messages:
// XC20P content encryption under an ECDH-ES+XC20PKW-wrapped content key,
// sender-DID recovery from the protected header, and end-to-end credential
// verification.
package didcomm

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/miax-network/miax-agent/internal/keyring"
	"github.com/miax-network/miax-agent/internal/metrics"
	"github.com/miax-network/miax-agent/internal/miaxdid/jwk"
	"github.com/miax-network/miax-agent/internal/miaxdid/sidetree"
	"github.com/miax-network/miax-agent/internal/vc"
)

// Resolver and VCSigner are the two capabilities the encrypted service is
// parameterized over; a single collaborator (the DID repository plus a
// keyring) can satisfy both.
type Resolver interface {
	Resolve(ctx context.Context, did string) (*sidetree.DidDocument, error)
}

// Header is a JWE recipient header.
type Header struct {
	Alg    string   `json:"alg"`
	Epk    jwk.Jwk  `json:"epk"`
	Iv     string   `json:"iv"`
	KeyOps []string `json:"key_ops,omitempty"`
	Kid    string   `json:"kid,omitempty"`
	Tag    string   `json:"tag"`
}

// Recipient is one entry of a JWE's recipients array.
type Recipient struct {
	EncryptedKey string `json:"encrypted_key"`
	Header       Header `json:"header"`
}

// Message is the wire shape of a sealed DIDComm envelope.
type Message struct {
	Ciphertext string      `json:"ciphertext"`
	Iv         string      `json:"iv"`
	Protected  string      `json:"protected"`
	Recipients []Recipient `json:"recipients"`
	Tag        string      `json:"tag"`
}

// protectedHeader is the JSON object carried (Base64URL-encoded) in
// Message.Protected; it names at least the sender DID.
type protectedHeader struct {
	Skid string `json:"skid"`
	Typ  string `json:"typ,omitempty"`
	Enc  string `json:"enc,omitempty"`
}

// Attachment is an optional side payload packaged alongside the signed VC
// body, used here to carry operation metadata.
type Attachment struct {
	Format string          `json:"format"`
	ID     string          `json:"id"`
	Body   json.RawMessage `json:"body"`
	Links  []string        `json:"links,omitempty"`
}

// body is the inner plaintext sealed by the JWE: the signed VC plus an
// optional metadata attachment.
type body struct {
	From        string       `json:"from"`
	To          []string     `json:"to"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Errors surfaced by generate/verify (spec.md §4.7).
var (
	ErrEncryptFailed         = errors.New("didcomm: encrypt failed")
	ErrDecryptFailed         = errors.New("didcomm: decrypt failed")
	ErrMetadataBodyNotFound  = errors.New("didcomm: metadata body not found")
	ErrDidDocNotFound        = errors.New("didcomm: did document not found")
	ErrDidPublicKeyNotFound  = errors.New("didcomm: did public key not found")
	ErrFindSenderSkid        = errors.New("didcomm: protected header missing skid")
)

// Service is the DIDComm encrypted service: seal/unseal atop a resolver
// capability (design note 9's cyclic-dependency resolution).
type Service struct {
	resolver     Resolver
	attachLink   string
}

// NewService builds a Service over resolver. attachmentLink, if non-empty,
// is appended to generated metadata attachments' links (the
// MIAX_DID_ATTACHMENT_LINK environment variable, §6).
func NewService(resolver Resolver, attachmentLink string) *Service {
	return &Service{resolver: resolver, attachLink: attachmentLink}
}

// VerifiedMessage is the result of Verify: the credential-verified VC and
// any metadata attachment carried alongside it.
type VerifiedMessage struct {
	Message  vc.VC
	Metadata json.RawMessage
}

// Generate seals credential for toDid, sent from fromKeyring's identity.
func (s *Service) Generate(ctx context.Context, credential vc.VC, fromDid string, fromKeyring *keyring.KeyRing, toDid string, metadata json.RawMessage) (*Message, error) {
	start := time.Now()
	msg, err := s.generate(ctx, credential, fromDid, fromKeyring, toDid, metadata)
	metrics.DIDCommOperationDuration.WithLabelValues("seal").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DIDCommSeals.WithLabelValues("failure").Inc()
		return nil, err
	}
	metrics.DIDCommSeals.WithLabelValues("success").Inc()
	return msg, nil
}

func (s *Service) generate(ctx context.Context, credential vc.VC, fromDid string, fromKeyring *keyring.KeyRing, toDid string, metadata json.RawMessage) (*Message, error) {
	signed, err := vc.Sign(credential, vc.SignParams{
		Did:         fromDid,
		KeyID:       "signingKey",
		SignKeyPair: fromKeyring.Sign.Secret(),
	})
	if err != nil {
		return nil, fmt.Errorf("sign vc: %w", err)
	}
	signedBytes, err := json.Marshal(signed)
	if err != nil {
		return nil, fmt.Errorf("marshal signed vc: %w", err)
	}

	recipientDoc, err := s.resolver.Resolve(ctx, toDid)
	if err != nil {
		return nil, fmt.Errorf("resolve recipient: %w", err)
	}
	if recipientDoc == nil {
		return nil, fmt.Errorf("%w: %s", ErrDidDocNotFound, toDid)
	}
	recipientEncKey, err := sidetree.GetEncryptKey(*recipientDoc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDidPublicKeyNotFound, err)
	}
	recipientPub, err := jwk.ToX25519(recipientEncKey.PublicKeyJwk)
	if err != nil {
		return nil, fmt.Errorf("decode recipient encrypt key: %w", err)
	}

	plain := body{
		From: fromDid,
		To:   []string{toDid},
		Body: string(signedBytes),
	}
	if metadata != nil {
		att := Attachment{
			Format: "metadata",
			ID:     uuid.NewString(),
			Body:   metadata,
		}
		if s.attachLink != "" {
			att.Links = []string{s.attachLink}
		}
		plain.Attachments = append(plain.Attachments, att)
	}
	plainBytes, err := json.Marshal(plain)
	if err != nil {
		return nil, fmt.Errorf("marshal didcomm body: %w", err)
	}

	msg, err := seal(plainBytes, fromDid, fromKeyring.Encrypt.Secret(), recipientPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptFailed, err)
	}
	return msg, nil
}

// Verify unseals incoming, resolves the sender, and credential-verifies
// the inner VC.
func (s *Service) Verify(ctx context.Context, incoming *Message, myKeyring *keyring.KeyRing) (*VerifiedMessage, error) {
	start := time.Now()
	out, err := s.verify(ctx, incoming, myKeyring)
	metrics.DIDCommOperationDuration.WithLabelValues("verify").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DIDCommUnseals.WithLabelValues("failure").Inc()
		return nil, err
	}
	metrics.DIDCommUnseals.WithLabelValues("success").Inc()
	return out, nil
}

func (s *Service) verify(ctx context.Context, incoming *Message, myKeyring *keyring.KeyRing) (*VerifiedMessage, error) {
	protectedBytes, err := base64.RawURLEncoding.DecodeString(incoming.Protected)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFindSenderSkid, err)
	}
	var ph protectedHeader
	if err := json.Unmarshal(protectedBytes, &ph); err != nil || ph.Skid == "" {
		return nil, ErrFindSenderSkid
	}

	senderDoc, err := s.resolver.Resolve(ctx, ph.Skid)
	if err != nil {
		return nil, fmt.Errorf("resolve sender: %w", err)
	}
	if senderDoc == nil {
		return nil, fmt.Errorf("%w: %s", ErrDidDocNotFound, ph.Skid)
	}
	senderEncKeyEntry, err := sidetree.GetEncryptKey(*senderDoc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDidPublicKeyNotFound, err)
	}
	senderEncPub, err := jwk.ToX25519(senderEncKeyEntry.PublicKeyJwk)
	if err != nil {
		return nil, fmt.Errorf("decode sender encrypt key: %w", err)
	}
	senderSignKeyEntry, err := sidetree.GetSignKey(*senderDoc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDidPublicKeyNotFound, err)
	}
	senderSignPub, err := jwk.ToSecp256k1(senderSignKeyEntry.PublicKeyJwk)
	if err != nil {
		return nil, fmt.Errorf("decode sender sign key: %w", err)
	}

	plainBytes, err := unseal(incoming, myKeyring.Encrypt.Secret(), senderEncPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}

	var plain body
	if err := json.Unmarshal(plainBytes, &plain); err != nil {
		return nil, fmt.Errorf("unmarshal didcomm body: %w", err)
	}

	var signed vc.VC
	if err := json.Unmarshal([]byte(plain.Body), &signed); err != nil {
		return nil, fmt.Errorf("unmarshal signed vc: %w", err)
	}
	verified, err := vc.Verify(signed, senderSignPub)
	if err != nil {
		return nil, fmt.Errorf("verify credential: %w", err)
	}

	out := &VerifiedMessage{Message: verified}
	if len(plain.Attachments) > 0 {
		out.Metadata = plain.Attachments[0].Body
	}
	return out, nil
}

// GetAttachmentOrErr returns the attachment body or ErrMetadataBodyNotFound
// when the caller expected one and none was sealed.
func (v *VerifiedMessage) GetAttachmentOrErr() (json.RawMessage, error) {
	if v.Metadata == nil {
		return nil, ErrMetadataBodyNotFound
	}
	return v.Metadata, nil
}

// seal builds the nested JWE: the sender's static X25519 secret agrees
// statically with recipientPub to wrap a random content-encryption key
// (XC20PKW), which in turn seals plaintext with XC20P. This mirrors
// didcomm_rs's seal(from_keyring.encrypt.secret, recipient_keys): a
// static-static Diffie-Hellman bound to the sender's identity key, not an
// ephemeral-key anoncrypt — a receiver needs the sender's DID-resolved
// encrypt key to decrypt, which is what authenticates the message as
// having come from that sender.
func seal(plaintext []byte, fromDid string, senderSecret *ecdh.PrivateKey, recipientPub *ecdh.PublicKey) (*Message, error) {
	ph := protectedHeader{Skid: fromDid, Typ: "application/didcomm-encrypted+json", Enc: "XC20P"}
	phBytes, err := json.Marshal(ph)
	if err != nil {
		return nil, err
	}
	protected := base64.RawURLEncoding.EncodeToString(phBytes)

	z, err := senderSecret.ECDH(recipientPub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	kek, err := deriveKey(z, []byte("ECDH-ES+XC20PKW"))
	if err != nil {
		return nil, err
	}

	cek := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(cek); err != nil {
		return nil, fmt.Errorf("generate cek: %w", err)
	}

	kwAead, err := chacha20poly1305.NewX(kek)
	if err != nil {
		return nil, fmt.Errorf("build key-wrap aead: %w", err)
	}
	kwIv := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(kwIv); err != nil {
		return nil, fmt.Errorf("generate key-wrap iv: %w", err)
	}
	wrapped := kwAead.Seal(nil, kwIv, cek, nil)
	encryptedKey, tag := wrapped[:len(wrapped)-kwAead.Overhead()], wrapped[len(wrapped)-kwAead.Overhead():]

	contentAead, err := chacha20poly1305.NewX(cek)
	if err != nil {
		return nil, fmt.Errorf("build content aead: %w", err)
	}
	iv := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate content iv: %w", err)
	}
	sealed := contentAead.Seal(nil, iv, plaintext, []byte(protected))
	ciphertext, contentTag := sealed[:len(sealed)-contentAead.Overhead()], sealed[len(sealed)-contentAead.Overhead():]

	return &Message{
		Ciphertext: base64.RawURLEncoding.EncodeToString(ciphertext),
		Iv:         base64.RawURLEncoding.EncodeToString(iv),
		Protected:  protected,
		Recipients: []Recipient{{
			EncryptedKey: base64.RawURLEncoding.EncodeToString(encryptedKey),
			Header: Header{
				Alg:    "ECDH-ES+XC20PKW",
				Epk:    jwk.FromX25519(senderSecret.PublicKey()),
				Iv:     base64.RawURLEncoding.EncodeToString(kwIv),
				KeyOps: []string{"deriveBits", "wrapKey"},
				Tag:    base64.RawURLEncoding.EncodeToString(tag),
			},
		}},
		Tag: base64.RawURLEncoding.EncodeToString(contentTag),
	}, nil
}

// unseal reverses seal using the recipient's static X25519 secret and the
// sender's resolved X25519 public key (static-static Diffie-Hellman,
// mirroring didcomm_rs's Message::receive(my_keyring.encrypt.secret,
// get_encrypt_key(from_doc))): the header's epk is the sender's static
// public key restated on the wire, not an independent ephemeral key, so
// the caller's DID-resolved senderPub is what must be used to agree the
// same shared secret seal derived.
func unseal(msg *Message, mySecret *ecdh.PrivateKey, senderPub *ecdh.PublicKey) ([]byte, error) {
	if len(msg.Recipients) == 0 {
		return nil, errors.New("didcomm: no recipients")
	}
	recipient := msg.Recipients[0]

	z, err := mySecret.ECDH(senderPub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	kek, err := deriveKey(z, []byte("ECDH-ES+XC20PKW"))
	if err != nil {
		return nil, err
	}

	encryptedKey, err := base64.RawURLEncoding.DecodeString(recipient.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("decode encrypted_key: %w", err)
	}
	keyTag, err := base64.RawURLEncoding.DecodeString(recipient.Header.Tag)
	if err != nil {
		return nil, fmt.Errorf("decode key tag: %w", err)
	}
	kwIv, err := base64.RawURLEncoding.DecodeString(recipient.Header.Iv)
	if err != nil {
		return nil, fmt.Errorf("decode key-wrap iv: %w", err)
	}
	kwAead, err := chacha20poly1305.NewX(kek)
	if err != nil {
		return nil, fmt.Errorf("build key-wrap aead: %w", err)
	}
	cek, err := kwAead.Open(nil, kwIv, append(encryptedKey, keyTag...), nil)
	if err != nil {
		return nil, fmt.Errorf("unwrap cek: %w", err)
	}

	ciphertext, err := base64.RawURLEncoding.DecodeString(msg.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	contentTag, err := base64.RawURLEncoding.DecodeString(msg.Tag)
	if err != nil {
		return nil, fmt.Errorf("decode tag: %w", err)
	}
	iv, err := base64.RawURLEncoding.DecodeString(msg.Iv)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	contentAead, err := chacha20poly1305.NewX(cek)
	if err != nil {
		return nil, fmt.Errorf("build content aead: %w", err)
	}
	plaintext, err := contentAead.Open(nil, iv, append(ciphertext, contentTag...), []byte(msg.Protected))
	if err != nil {
		return nil, fmt.Errorf("open content: %w", err)
	}
	return plaintext, nil
}

// deriveKey runs HKDF-SHA256 over the ECDH shared secret z to produce a
// 32-byte symmetric key, mirroring the teacher's session key derivation.
func deriveKey(z, info []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, z, nil, info)
	out := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return out, nil
}
