package keyring_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miax-network/miax-agent/internal/keyring"
)

func TestNew_FourDistinctKeys(t *testing.T) {
	kr, err := keyring.New()
	require.NoError(t, err)

	require.NotEqual(t, kr.Sign.SecretHex(), kr.Update.SecretHex())
	require.NotEqual(t, kr.Sign.SecretHex(), kr.Recovery.SecretHex())
	require.NotEqual(t, kr.Update.SecretHex(), kr.Recovery.SecretHex())
	require.Equal(t, keyring.KindSecp256k1, kr.Sign.Kind())
	require.Equal(t, keyring.KindX25519, kr.Encrypt.Kind())
}

func TestHexRoundTrip(t *testing.T) {
	kr, err := keyring.New()
	require.NoError(t, err)

	h := kr.ToHex()
	restored, err := keyring.FromHex(h)
	require.NoError(t, err)

	require.Equal(t, kr.Sign.SecretHex(), restored.Sign.SecretHex())
	require.Equal(t, kr.Update.SecretHex(), restored.Update.SecretHex())
	require.Equal(t, kr.Recovery.SecretHex(), restored.Recovery.SecretHex())
	require.Equal(t, kr.Encrypt.SecretHex(), restored.Encrypt.SecretHex())

	// Each slot round-trips independently: update and recovery must not
	// be swapped, and sign/update must not alias the same source key.
	require.NotEqual(t, restored.Update.SecretHex(), restored.Recovery.SecretHex())
	require.NotEqual(t, restored.Sign.SecretHex(), restored.Update.SecretHex())
}

func TestZero_ClearsSecp256k1Secret(t *testing.T) {
	kr, err := keyring.New()
	require.NoError(t, err)
	before := kr.Sign.SecretHex()
	kr.Sign.Zero()
	require.NotEqual(t, before, kr.Sign.SecretHex())
}
