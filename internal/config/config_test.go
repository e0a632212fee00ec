package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miax-network/miax-agent/internal/config"
)

func TestLoad_AppliesDefaultsWhenUnset(t *testing.T) {
	cfg := config.Load()

	require.Equal(t, "https://did.miacross.io", cfg.DIDHTTPEndpoint)
	require.Equal(t, int64(3*1024*1024), cfg.DIDCommHTTPBodySizeLimit)
	require.NotEmpty(t, cfg.WorkerUDSPath)
	require.NotEmpty(t, cfg.MetaUDSPath)
}

func TestLoad_HonorsOverrides(t *testing.T) {
	t.Setenv("MIAX_DID_HTTP_ENDPOINT", "https://sidetree.example.test")
	t.Setenv("MIAX_DIDCOMM_HTTP_BODY_SIZE_LIMIT", "1024")
	t.Setenv("MIAX_STUDIO_POLL_INTERVAL", "5s")

	cfg := config.Load()

	require.Equal(t, "https://sidetree.example.test", cfg.DIDHTTPEndpoint)
	require.Equal(t, int64(1024), cfg.DIDCommHTTPBodySizeLimit)
	require.Equal(t, "5s", cfg.StudioPollInterval.String())
}

func TestLoad_IgnoresMalformedNumericOverride(t *testing.T) {
	t.Setenv("MIAX_DIDCOMM_HTTP_BODY_SIZE_LIMIT", "not-a-number")

	cfg := config.Load()

	require.Equal(t, int64(3*1024*1024), cfg.DIDCommHTTPBodySizeLimit)
}
