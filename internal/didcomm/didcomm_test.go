package didcomm_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miax-network/miax-agent/internal/didcomm"
	"github.com/miax-network/miax-agent/internal/keyring"
	"github.com/miax-network/miax-agent/internal/miaxdid/sidetree"
	"github.com/miax-network/miax-agent/internal/vc"
)

type fakeResolver struct {
	docs map[string]*sidetree.DidDocument
}

func (f *fakeResolver) Resolve(_ context.Context, did string) (*sidetree.DidDocument, error) {
	return f.docs[did], nil
}

func docFor(did string, kr *keyring.KeyRing) *sidetree.DidDocument {
	return &sidetree.DidDocument{
		ID: did,
		PublicKey: []sidetree.DidPublicKey{
			{ID: "#signingKey", Type: sidetree.TypeSigningKey, PublicKeyJwk: kr.Sign.Jwk()},
			{ID: "#encryptionKey", Type: sidetree.TypeEncryptionKey, PublicKeyJwk: kr.Encrypt.Jwk()},
		},
	}
}

func TestGenerateVerify_RoundTrip(t *testing.T) {
	aKr, err := keyring.New()
	require.NoError(t, err)
	bKr, err := keyring.New()
	require.NoError(t, err)

	aDid := "did:miax:a"
	bDid := "did:miax:b"

	resolver := &fakeResolver{docs: map[string]*sidetree.DidDocument{
		aDid: docFor(aDid, aKr),
		bDid: docFor(bDid, bKr),
	}}
	svc := didcomm.NewService(resolver, "")

	credential := vc.VC{
		Issuer:       vc.Issuer{ID: aDid},
		IssuanceDate: vc.Now(),
		Context:      []string{"https://www.w3.org/2018/credentials/v1"},
		Type:         []string{"VerifiableCredential"},
		CredentialSubject: vc.Subject{
			Container: map[string]interface{}{"op": "refresh-network-config"},
		},
	}
	metadata, err := json.Marshal(map[string]string{"k": "v"})
	require.NoError(t, err)

	msg, err := svc.Generate(context.Background(), credential, aDid, aKr, bDid, metadata)
	require.NoError(t, err)
	require.NotEmpty(t, msg.Ciphertext)
	require.Len(t, msg.Recipients, 1)

	verified, err := svc.Verify(context.Background(), msg, bKr)
	require.NoError(t, err)
	require.Equal(t, aDid, verified.Message.Issuer.ID)
	require.Nil(t, verified.Message.Proof)
	require.JSONEq(t, `{"k":"v"}`, string(verified.Metadata))
}

func TestGenerate_UnknownRecipientFails(t *testing.T) {
	aKr, err := keyring.New()
	require.NoError(t, err)
	resolver := &fakeResolver{docs: map[string]*sidetree.DidDocument{}}
	svc := didcomm.NewService(resolver, "")

	credential := vc.VC{
		Issuer:       vc.Issuer{ID: "did:miax:a"},
		IssuanceDate: vc.Now(),
		Context:      []string{"https://www.w3.org/2018/credentials/v1"},
		Type:         []string{"VerifiableCredential"},
	}
	_, err = svc.Generate(context.Background(), credential, "did:miax:a", aKr, "did:miax:missing", nil)
	require.ErrorIs(t, err, didcomm.ErrDidDocNotFound)
}

func TestVerify_MissingSkidFails(t *testing.T) {
	bKr, err := keyring.New()
	require.NoError(t, err)
	resolver := &fakeResolver{docs: map[string]*sidetree.DidDocument{}}
	svc := didcomm.NewService(resolver, "")

	msg := &didcomm.Message{Protected: "e30"} // base64url("{}")
	_, err = svc.Verify(context.Background(), msg, bKr)
	require.ErrorIs(t, err, didcomm.ErrFindSenderSkid)
}
