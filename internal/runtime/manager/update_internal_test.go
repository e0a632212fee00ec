package manager

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miax-network/miax-agent/internal/runtime/semver"
)

func TestPendingActions_FiltersByVersionWindow(t *testing.T) {
	actions := []UpdateAction{
		{Version: "0.5.0"},
		{Version: "1.2.0"},
		{Version: "2.0.0"},
		{Version: "not-a-version"},
	}
	agent := semver.Version{Major: 1, Minor: 0, Patch: 0}
	controller := semver.Version{Major: 1, Minor: 2, Patch: 0}

	pending := pendingActions(actions, agent, controller)

	require.Len(t, pending, 1)
	require.Equal(t, "1.2.0", pending[0].Version)
}

func TestUpdateJSONTask_RewritesDottedField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"agent":{"version":"1.0.0"}}`), 0o644))

	task := &UpdateJSONTask{File: path, Field: "agent.version", Value: "1.2.0"}
	require.NoError(t, runUpdateJSON(task))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]map[string]string
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Equal(t, "1.2.0", doc["agent"]["version"])
}

func TestUpdateJSONTask_InvalidFieldPathFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"agent":"not-an-object"}`), 0o644))

	task := &UpdateJSONTask{File: path, Field: "agent.version", Value: "1.2.0"}
	err := runUpdateJSON(task)
	require.Error(t, err)
}

func TestUpdateActionTask_WriteFileDecodesBase64(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "written.txt")
	task := &UpdateActionTask{WriteFile: &WriteFileTask{
		Path:          path,
		ContentBase64: base64.StdEncoding.EncodeToString([]byte("hello")),
	}}
	require.NoError(t, task.run())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(content))
}

func TestUpdateActionTask_InstallBinaryCopiesAndMakesExecutable(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "staged-binary")
	dest := filepath.Join(dir, "installed-binary")
	require.NoError(t, os.WriteFile(src, []byte("binary"), 0o644))

	task := &UpdateActionTask{InstallBinary: &InstallBinaryTask{Src: src, Dest: dest}}
	require.NoError(t, task.run())

	info, err := os.Stat(dest)
	require.NoError(t, err)
	require.NotZero(t, info.Mode()&0o111)
}

func TestUpdateAction_HandleRunsTasksInOrder(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.txt")
	second := filepath.Join(dir, "second.txt")

	action := &UpdateAction{
		Version: "1.0.0",
		Tasks: []UpdateActionTask{
			{WriteFile: &WriteFileTask{Path: first, ContentBase64: base64.StdEncoding.EncodeToString([]byte("a"))}},
			{WriteFile: &WriteFileTask{Path: second, ContentBase64: base64.StdEncoding.EncodeToString([]byte("b"))}},
		},
	}
	require.NoError(t, action.Handle())

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	require.Equal(t, "a", string(a))
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	require.Equal(t, "b", string(b))
}
