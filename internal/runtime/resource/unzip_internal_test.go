package resource

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnzip_ExtractsAndMarksAgentBinaryExecutable(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range map[string]string{"miax-agent": "new-binary", "README.md": "docs"} {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	zipPath := filepath.Join(t.TempDir(), "bundle.zip")
	require.NoError(t, os.WriteFile(zipPath, buf.Bytes(), 0o644))

	destDir := t.TempDir()
	require.NoError(t, unzip(zipPath, destDir))

	content, err := os.ReadFile(filepath.Join(destDir, "miax-agent"))
	require.NoError(t, err)
	require.Equal(t, "new-binary", string(content))

	info, err := os.Stat(filepath.Join(destDir, "miax-agent"))
	require.NoError(t, err)
	require.NotZero(t, info.Mode()&0o111)

	readme, err := os.ReadFile(filepath.Join(destDir, "README.md"))
	require.NoError(t, err)
	require.Equal(t, "docs", string(readme))
}
