package multihash_test

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miax-network/miax-agent/internal/miaxdid/multihash"
)

func TestHash_EmptyInput(t *testing.T) {
	h := multihash.Hash([]byte(""))
	require.Len(t, h, 34)
	require.Equal(t, byte(0x12), h[0])
	require.Equal(t, byte(0x20), h[1])

	sum := sha256.Sum256([]byte(""))
	require.Equal(t, sum[:], h[2:])
}

func TestHashEncode_EmptyInput(t *testing.T) {
	got := multihash.HashEncode([]byte(""))
	want := base64.RawURLEncoding.EncodeToString(multihash.Hash([]byte("")))
	require.Equal(t, want, got)
}

func TestDoubleHashEncode_MatchesHashOfHash(t *testing.T) {
	m := []byte(`{"kty":"EC"}`)
	sum := sha256.Sum256(m)
	want := multihash.HashEncode(sum[:])
	require.Equal(t, want, multihash.DoubleHashEncode(m))
}

func TestDoubleHashEncode_StableOnEqualInput(t *testing.T) {
	a := multihash.DoubleHashEncode([]byte("x"))
	b := multihash.DoubleHashEncode([]byte("x"))
	require.Equal(t, a, b)
}
