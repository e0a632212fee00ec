package sidetree_test

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/miax-network/miax-agent/internal/miaxdid/jwk"
	"github.com/miax-network/miax-agent/internal/miaxdid/sidetree"
)

func TestBuildCreatePayload_ExactFieldShape(t *testing.T) {
	update, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	recovery, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	doc := sidetree.DidPatchDocument{
		PublicKeys:       []sidetree.PublicKeyPayload{},
		ServiceEndpoints: []sidetree.ServiceEndpoint{},
	}

	out, err := sidetree.BuildCreatePayload(doc, update.PubKey(), recovery.PubKey())
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &m))
	require.Len(t, m, 3)
	require.Contains(t, m, "type")
	require.Contains(t, m, "delta")
	require.Contains(t, m, "suffix_data")
	require.Equal(t, "create", m["type"])

	// Field order in the JCS bytes must be type, delta, suffix_data.
	require.True(t, indexOf(string(out), `"type"`) < indexOf(string(out), `"delta"`))
	require.True(t, indexOf(string(out), `"delta"`) < indexOf(string(out), `"suffix_data"`))
}

func TestBuildCreatePayload_DeltaAndSuffixDecodeToCanonicalJSON(t *testing.T) {
	update, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	recovery, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	signKey, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	encKey, err := ecdh.X25519().GenerateKey(rand.Reader)
	require.NoError(t, err)

	doc := sidetree.NewPatch(signKey.PubKey(), encKey.PublicKey())
	out, err := sidetree.BuildCreatePayload(doc, update.PubKey(), recovery.PubKey())
	require.NoError(t, err)

	var m map[string]string
	require.NoError(t, json.Unmarshal(out, &m))

	deltaBytes, err := base64.RawURLEncoding.DecodeString(m["delta"])
	require.NoError(t, err)
	var deltaJSON map[string]interface{}
	require.NoError(t, json.Unmarshal(deltaBytes, &deltaJSON))
	require.Contains(t, deltaJSON, "patches")
	require.Contains(t, deltaJSON, "update_commitment")

	suffixBytes, err := base64.RawURLEncoding.DecodeString(m["suffix_data"])
	require.NoError(t, err)
	var suffixJSON map[string]interface{}
	require.NoError(t, json.Unmarshal(suffixBytes, &suffixJSON))
	require.Contains(t, suffixJSON, "delta_hash")
	require.Contains(t, suffixJSON, "recovery_commitment")
}

func TestCommitment_StableOnByteEqualJwk(t *testing.T) {
	sk, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	pub := sk.PubKey()
	c1, err := sidetree.Commitment(jwk.FromSecp256k1(pub))
	require.NoError(t, err)
	c2, err := sidetree.Commitment(jwk.FromSecp256k1(pub))
	require.NoError(t, err)
	require.Equal(t, c1, c2)
}

func TestGetSignKey_NotFound(t *testing.T) {
	doc := sidetree.DidDocument{ID: "did:miax:abc"}
	_, err := sidetree.GetSignKey(doc)
	require.Error(t, err)
	var notFound *sidetree.ErrPublicKeyNotFound
	require.ErrorAs(t, err, &notFound)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
