package unixutil_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/miax-network/miax-agent/internal/unixutil"
)

func TestRemoveFileIfExists_MissingFileIsNotAnError(t *testing.T) {
	require.NoError(t, unixutil.RemoveFileIfExists(filepath.Join(t.TempDir(), "missing")))
}

func TestRemoveFileIfExists_RemovesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "present")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	require.NoError(t, unixutil.RemoveFileIfExists(path))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestGetFdFromSystemd_MissingEnvFails(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")
	_, err := unixutil.GetFdFromSystemd()
	require.ErrorIs(t, err, unixutil.ErrListenFds)
}

func TestGetFdFromSystemd_WrongPidFails(t *testing.T) {
	t.Setenv("LISTEN_PID", "1")
	t.Setenv("LISTEN_FDS", "1")
	_, err := unixutil.GetFdFromSystemd()
	require.ErrorIs(t, err, unixutil.ErrListenFds)
}

func TestWaitUntilFileCreated_ReturnsImmediatelyIfPresent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "present")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, unixutil.WaitUntilFileCreated(ctx, path))
}

func TestWaitUntilFileCreated_WaitsForLaterCreation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "appears-later")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- unixutil.WaitUntilFileCreated(ctx, path)
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	require.NoError(t, <-done)
}

func TestGetRequest_ParsesJSONOverUnixSocket(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "test.sock")
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	defer ln.Close()

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"version": "1.2.3"})
	})}
	go srv.Serve(ln)
	defer srv.Close()

	type versionResponse struct {
		Version string `json:"version"`
	}
	resp, err := unixutil.GetRequest[versionResponse](context.Background(), sockPath, "/internal/version/get")
	require.NoError(t, err)
	require.Equal(t, "1.2.3", resp.Version)
}
