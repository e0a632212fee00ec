package manager

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miax-network/miax-agent/internal/runtime/resource"
	"github.com/miax-network/miax-agent/internal/runtime/semver"
	"github.com/miax-network/miax-agent/internal/runtime/storage"
)

// ErrAgentNotRunning is returned by the update handler when no Agent is
// tracked. Unlike every other update error, it does not trigger a
// rollback — there is nothing running yet to roll back.
var ErrAgentNotRunning = errors.New("manager: agent not running")

// ErrInvalidVersionFormat is returned when the controller's own version
// string does not parse as major.minor.patch.
var ErrInvalidVersionFormat = errors.New("manager: invalid version format")

// UpdateActionTask is one sub-task inside an UpdateAction bundle.
type UpdateActionTask struct {
	WriteFile     *WriteFileTask     `yaml:"write_file,omitempty"`
	UpdateJSON    *UpdateJSONTask    `yaml:"update_json,omitempty"`
	InstallBinary *InstallBinaryTask `yaml:"install_binary,omitempty"`
}

// WriteFileTask writes base64-encoded content to path.
type WriteFileTask struct {
	Path          string `yaml:"path"`
	ContentBase64 string `yaml:"content_base64"`
}

// UpdateJSONTask overwrites one dot-path field inside a JSON file.
type UpdateJSONTask struct {
	File  string `yaml:"file"`
	Field string `yaml:"field"`
	Value string `yaml:"value"`
}

// InstallBinaryTask copies a staged binary over dest and marks it
// executable.
type InstallBinaryTask struct {
	Src  string `yaml:"src"`
	Dest string `yaml:"dest"`
}

// UpdateAction is one parsed <tmp>/bundles/*.yml bundle.
type UpdateAction struct {
	Version string             `yaml:"version"`
	Tasks   []UpdateActionTask `yaml:"tasks"`
}

// Handle executes every task in order.
func (a *UpdateAction) Handle() error {
	for _, task := range a.Tasks {
		if err := task.run(); err != nil {
			return fmt.Errorf("update action %s: %w", a.Version, err)
		}
	}
	return nil
}

func (t *UpdateActionTask) run() error {
	switch {
	case t.WriteFile != nil:
		data, err := base64.StdEncoding.DecodeString(t.WriteFile.ContentBase64)
		if err != nil {
			return fmt.Errorf("decode write_file content for %s: %w", t.WriteFile.Path, err)
		}
		if err := os.WriteFile(t.WriteFile.Path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", t.WriteFile.Path, err)
		}
		return nil
	case t.UpdateJSON != nil:
		return runUpdateJSON(t.UpdateJSON)
	case t.InstallBinary != nil:
		data, err := os.ReadFile(t.InstallBinary.Src)
		if err != nil {
			return fmt.Errorf("read staged binary %s: %w", t.InstallBinary.Src, err)
		}
		if err := os.WriteFile(t.InstallBinary.Dest, data, 0o755); err != nil {
			return fmt.Errorf("install binary to %s: %w", t.InstallBinary.Dest, err)
		}
		return nil
	default:
		return errors.New("update action task names no operation")
	}
}

// runUpdateJSON rewrites one dot-separated field path inside a JSON
// file. Array updates are not supported.
func runUpdateJSON(t *UpdateJSONTask) error {
	raw, err := os.ReadFile(t.File)
	if err != nil {
		return fmt.Errorf("read %s: %w", t.File, err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", t.File, err)
	}

	parts := strings.Split(t.Field, ".")
	cursor := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cursor[part].(map[string]interface{})
		if !ok {
			return fmt.Errorf("invalid field path %q in %s", t.Field, t.File)
		}
		cursor = next
	}
	cursor[parts[len(parts)-1]] = t.Value

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", t.File, err)
	}
	return os.WriteFile(t.File, out, 0o644)
}

func parseBundles(paths []string) ([]UpdateAction, error) {
	actions := make([]UpdateAction, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read bundle %s: %w", path, err)
		}
		var action UpdateAction
		if err := yaml.Unmarshal(content, &action); err != nil {
			return nil, fmt.Errorf("parse bundle %s: %w", path, err)
		}
		actions = append(actions, action)
	}
	return actions, nil
}

func pendingActions(actions []UpdateAction, currentAgent, currentController semver.Version) []UpdateAction {
	pending := make([]UpdateAction, 0, len(actions))
	for _, action := range actions {
		version, err := semver.Parse(action.Version)
		if err != nil {
			continue
		}
		if semver.LessOrEqual(version, currentController) && semver.Greater(version, currentAgent) {
			pending = append(pending, action)
		}
	}
	return pending
}

const versionPollInterval = 3 * time.Second
const versionPollBudget = 180 * time.Second

func handleUpdate(ctx context.Context, m *Manager, resources *resource.Manager) error {
	err := runUpdate(ctx, m, resources)
	switch {
	case err == nil:
		return m.UpdateState(storage.StateIdle)
	case errors.Is(err, ErrAgentNotRunning):
		// required_restore_state() is false only for AgentNotRunning:
		// leave the state untouched.
		return err
	default:
		target := storage.StateRollback
		var removeFailed *resource.ErrRemoveFailed
		if errors.As(err, &removeFailed) {
			target = storage.StateIdle
		}
		if stateErr := m.UpdateState(target); stateErr != nil {
			return stateErr
		}
		return err
	}
}

func runUpdate(ctx context.Context, m *Manager, resources *resource.Manager) error {
	currentController, err := semver.Parse(m.controllerVersion)
	if err != nil {
		return ErrInvalidVersionFormat
	}

	info, err := m.GetRuntimeInfo()
	if err != nil {
		return err
	}
	var currentAgent *storage.ProcessInfo
	for _, p := range info.ProcessInfos {
		if p != nil && p.FeatType == storage.FeatAgent {
			currentAgent = p
			break
		}
	}
	if currentAgent == nil {
		return ErrAgentNotRunning
	}

	agentVersion, err := semver.Parse(currentAgent.Version)
	if err != nil {
		agentVersion = semver.Version{}
	}

	bundles, err := resources.CollectDownloadedBundles()
	if err != nil {
		return err
	}
	actions, err := parseBundles(bundles)
	if err != nil {
		return err
	}
	pending := pendingActions(actions, agentVersion, currentController)
	for i := range pending {
		if err := pending[i].Handle(); err != nil {
			return fmt.Errorf("update action failed: %w", err)
		}
	}

	latest, err := m.LaunchAgent(ctx, false)
	if err != nil {
		return err
	}
	if err := m.KillOtherAgents(latest.ProcessID); err != nil {
		return err
	}

	if err := monitorAgentVersion(ctx, m, currentController); err != nil {
		return err
	}

	return resources.Remove()
}

func monitorAgentVersion(ctx context.Context, m *Manager, expected semver.Version) error {
	deadline := time.Now().Add(versionPollBudget)
	ticker := time.NewTicker(versionPollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			version, err := m.GetVersion(ctx)
			if err != nil {
				continue
			}
			if semver.Equal(version, expected) {
				return nil
			}
		}
	}
	return fmt.Errorf("agent version check failed: expected %s within %s", expected, versionPollBudget)
}

func handleRollback(m *Manager, resources *resource.Manager) error {
	backupPath, err := resources.GetLatestBackup()
	if err != nil {
		return err
	}
	if backupPath == "" {
		return errors.New("manager: no backup available for rollback")
	}

	info, err := m.GetRuntimeInfo()
	if err != nil {
		return err
	}
	agentPath := info.ExecPath

	if err := resources.Rollback(backupPath); err != nil {
		return err
	}
	_ = resources.Remove()

	if err := m.UpdateStateWithoutSend(storage.StateIdle); err != nil {
		return err
	}
	if err := m.LaunchController(agentPath); err != nil {
		return err
	}

	self, err := m.GetRuntimeInfo()
	if err != nil {
		return err
	}
	for _, p := range self.ProcessInfos {
		if p != nil && p.ProcessID == m.selfPid {
			return m.KillProcess(p)
		}
	}
	return nil
}

func dialUnix(path string) (*net.UnixConn, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("dial %s: not a unix connection", path)
	}
	return unixConn, nil
}
