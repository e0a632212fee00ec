package jws_test

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/miax-network/miax-agent/internal/jws"
)

func TestSignVerify_RoundTrip(t *testing.T) {
	sk, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	payload := map[string]interface{}{"a": 1}
	token, err := jws.Sign(payload, sk)
	require.NoError(t, err)

	err = jws.Verify(token, payload, sk.PubKey())
	require.NoError(t, err)
}

func TestVerify_TamperedPayloadFails(t *testing.T) {
	sk, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	token, err := jws.Sign(map[string]interface{}{"a": 1}, sk)
	require.NoError(t, err)

	err = jws.Verify(token, map[string]interface{}{"a": 2}, sk.PubKey())
	require.ErrorIs(t, err, jws.ErrSignatureInvalid)
}

func TestVerify_MiddleSegmentMustBeEmpty(t *testing.T) {
	sk, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	payload := map[string]interface{}{"a": 1}
	token, err := jws.Sign(payload, sk)
	require.NoError(t, err)

	dot := -1
	for i, c := range token {
		if c == '.' {
			dot = i
			break
		}
	}
	require.NotEqual(t, -1, dot)
	forged := token[:dot+1] + "nonempty" + token[dot+1:]

	err = jws.Verify(forged, payload, sk.PubKey())
	require.ErrorIs(t, err, jws.ErrNonEmptyPayloadSegment)
}

func TestVerify_RejectsWrongAlgHeader(t *testing.T) {
	sk, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	payload := map[string]interface{}{"a": 1}

	token, err := jws.Sign(payload, sk)
	require.NoError(t, err)

	// Replace the header segment with one declaring a different alg.
	// H2 = base64url(`{"alg":"ES256","b64":false,"crit":["b64"]}`)
	const badHeader = "eyJhbGciOiJFUzI1NiIsImI2NCI6ZmFsc2UsImNyaXQiOlsiYjY0Il19"
	idx := 0
	for i, c := range token {
		if c == '.' {
			idx = i
			break
		}
	}
	forged := badHeader + token[idx:]
	err = jws.Verify(forged, payload, sk.PubKey())
	require.Error(t, err)
}
