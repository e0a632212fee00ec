package canonical_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miax-network/miax-agent/internal/miaxdid/canonical"
)

func TestMarshal_SortsKeys(t *testing.T) {
	in := map[string]interface{}{
		"b": 1,
		"a": 2,
	}
	out, err := canonical.Marshal(in)
	require.NoError(t, err)
	require.Equal(t, `{"a":2,"b":1}`, string(out))
}

func TestMarshal_Deterministic(t *testing.T) {
	type doc struct {
		Z string `json:"z"`
		A string `json:"a"`
	}
	out1, err := canonical.Marshal(doc{Z: "zz", A: "aa"})
	require.NoError(t, err)
	out2, err := canonical.Marshal(doc{Z: "zz", A: "aa"})
	require.NoError(t, err)
	require.Equal(t, out1, out2)
	require.Equal(t, `{"a":"aa","z":"zz"}`, string(out1))
}
