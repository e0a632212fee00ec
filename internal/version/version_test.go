package version_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miax-network/miax-agent/internal/version"
)

func TestVersion_IsNonEmpty(t *testing.T) {
	require.NotEmpty(t, version.Version)
}
