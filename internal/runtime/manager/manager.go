// Package manager composes shared-memory storage, the process manager,
// and the Unix IPC helpers into the supervisor's RuntimeManager and its
// Idle/Update/Rollback state-machine handler (§4.10).
package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/miax-network/miax-agent/internal/metrics"
	"github.com/miax-network/miax-agent/internal/runtime/process"
	"github.com/miax-network/miax-agent/internal/runtime/resource"
	"github.com/miax-network/miax-agent/internal/runtime/semver"
	"github.com/miax-network/miax-agent/internal/runtime/storage"
	"github.com/miax-network/miax-agent/internal/unixutil"
)

// State mirrors storage.State under the manager package's own name so
// callers outside internal/runtime/storage don't need that import just
// to read a state value back from Subscribe.
type State = storage.State

const (
	StateIdle     = storage.StateIdle
	StateUpdate   = storage.StateUpdate
	StateRollback = storage.StateRollback
)

// ErrAlreadyExistController is returned by LaunchController when a
// Controller is already tracked.
var ErrAlreadyExistController = errors.New("manager: controller already running")

// Manager composes shared-memory storage, a process manager, and two
// UDS paths into the supervisor's runtime operations.
type Manager struct {
	storage           *storage.Storage
	processes         *process.Manager
	udsPath           string
	metaUdsPath       string
	broadcaster       *stateBroadcaster
	selfPid           int
	controllerVersion string
}

// New builds a Manager. udsPath is the worker's listening socket;
// metaUdsPath is the short-lived socket the supervisor connects to
// during fd handoff. controllerVersion is this controller binary's own
// version, used to gate which update bundles apply.
func New(store *storage.Storage, processes *process.Manager, udsPath, metaUdsPath, controllerVersion string) *Manager {
	return &Manager{
		storage:           store,
		processes:         processes,
		udsPath:           udsPath,
		metaUdsPath:       metaUdsPath,
		broadcaster:       newStateBroadcaster(),
		selfPid:           os.Getpid(),
		controllerVersion: controllerVersion,
	}
}

// Subscribe returns a channel receiving every UpdateState broadcast.
func (m *Manager) Subscribe() <-chan State {
	return m.broadcaster.Subscribe()
}

// GetRuntimeInfo reads the current runtime info without mutating it.
func (m *Manager) GetRuntimeInfo() (*storage.RuntimeInfo, error) {
	return m.storage.Read()
}

// systemdActivated reports whether this process was started via socket
// activation.
func systemdActivated() bool {
	return os.Getenv("LISTEN_FDS") != "" && os.Getenv("LISTEN_PID") != ""
}

// LaunchAgent spawns (or inherits the listening socket for) a worker
// agent, records a new ProcessInfo, and appends it to the tracked
// process table. Fails with storage.ErrStorageFull when four slots are
// already occupied.
func (m *Manager) LaunchAgent(ctx context.Context, isFirst bool) (*storage.ProcessInfo, error) {
	if isFirst && !systemdActivated() {
		if err := unixutil.RemoveFileIfExists(m.udsPath); err != nil {
			return nil, fmt.Errorf("remove stale uds: %w", err)
		}
		if err := unixutil.RemoveFileIfExists(m.metaUdsPath); err != nil {
			return nil, fmt.Errorf("remove stale meta uds: %w", err)
		}
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve current executable: %w", err)
	}

	pid, err := m.processes.Spawn(exe, []string{"controlled"})
	if err != nil {
		return nil, fmt.Errorf("spawn agent: %w", err)
	}
	metrics.ProcessesLaunched.WithLabelValues("agent").Inc()

	if isFirst && systemdActivated() {
		if err := m.handOffListeningSocket(ctx); err != nil {
			return nil, err
		}
	}

	info := storage.ProcessInfo{
		ProcessID:  pid,
		ExecutedAt: time.Now(),
		FeatType:   storage.FeatAgent,
	}

	err = m.storage.ApplyWithLock(func(rt *storage.RuntimeInfo) error {
		return rt.AddProcessInfo(info)
	})
	if err != nil {
		return nil, err
	}
	m.refreshTrackedProcessesGauge()
	return &info, nil
}

// refreshTrackedProcessesGauge reports the current occupancy of the
// shared-memory process table. Read failures are swallowed: the gauge
// simply keeps its last known value until the next successful update.
func (m *Manager) refreshTrackedProcessesGauge() {
	info, err := m.storage.Read()
	if err != nil {
		return
	}
	count := 0
	for _, p := range info.ProcessInfos {
		if p != nil {
			count++
		}
	}
	metrics.TrackedProcesses.Set(float64(count))
}

// handOffListeningSocket retrieves the systemd-inherited fd, waits for
// the freshly spawned child's meta-UDS to appear, connects to it, and
// hands the listening fd over via SCM_RIGHTS.
func (m *Manager) handOffListeningSocket(ctx context.Context) error {
	fd, err := unixutil.GetFdFromSystemd()
	if err != nil {
		return fmt.Errorf("get systemd fd: %w", err)
	}

	if err := unixutil.WaitUntilFileCreated(ctx, m.metaUdsPath); err != nil {
		return fmt.Errorf("wait for meta uds: %w", err)
	}

	conn, err := dialUnix(m.metaUdsPath)
	if err != nil {
		return fmt.Errorf("connect meta uds: %w", err)
	}
	defer conn.Close()

	if err := unixutil.SendFd(conn, fd); err != nil {
		return fmt.Errorf("send listening fd: %w", err)
	}
	return nil
}

// LaunchController spawns a new supervisor from path so the current one
// can exit. At most one Controller may be tracked at a time.
func (m *Manager) LaunchController(path string) error {
	info, err := m.storage.Read()
	if err != nil {
		return err
	}
	for _, p := range info.ProcessInfos {
		if p != nil && p.FeatType == storage.FeatController {
			return ErrAlreadyExistController
		}
	}

	pid, err := m.processes.Spawn(path, []string{"controller"})
	if err != nil {
		return fmt.Errorf("spawn controller: %w", err)
	}
	metrics.ProcessesLaunched.WithLabelValues("controller").Inc()

	err = m.storage.ApplyWithLock(func(rt *storage.RuntimeInfo) error {
		return rt.AddProcessInfo(storage.ProcessInfo{
			ProcessID:  pid,
			ExecutedAt: time.Now(),
			FeatType:   storage.FeatController,
		})
	})
	if err != nil {
		return err
	}
	m.refreshTrackedProcessesGauge()
	return nil
}

// GetVersion issues GET /internal/version/get over the worker's UDS and
// parses the result as a semver.Version.
func (m *Manager) GetVersion(ctx context.Context) (semver.Version, error) {
	type versionResponse struct {
		Version string `json:"version"`
	}
	resp, err := unixutil.GetRequest[versionResponse](ctx, m.udsPath, "/internal/version/get")
	if err != nil {
		return semver.Version{}, fmt.Errorf("get version: %w", err)
	}
	return semver.Parse(resp.Version)
}

// UpdateState persists s and broadcasts it to every subscriber.
func (m *Manager) UpdateState(s State) error {
	if err := m.UpdateStateWithoutSend(s); err != nil {
		return err
	}
	m.broadcaster.Send(s)
	return nil
}

// UpdateStateWithoutSend persists s without broadcasting it.
func (m *Manager) UpdateStateWithoutSend(s State) error {
	var from State
	err := m.storage.ApplyWithLock(func(rt *storage.RuntimeInfo) error {
		from = rt.State
		rt.State = s
		return nil
	})
	if err != nil {
		return err
	}
	metrics.StateTransitions.WithLabelValues(string(from), string(s)).Inc()
	return nil
}

// KillProcess signals info's process and removes it from the tracked
// table.
func (m *Manager) KillProcess(info *storage.ProcessInfo) error {
	if err := m.processes.Kill(info.ProcessID, process.Terminate); err != nil {
		return fmt.Errorf("kill process %d: %w", info.ProcessID, err)
	}
	if err := m.storage.ApplyWithLock(func(rt *storage.RuntimeInfo) error {
		rt.RemoveProcessInfo(info.ProcessID)
		return nil
	}); err != nil {
		return err
	}
	m.refreshTrackedProcessesGauge()
	return nil
}

// KillOtherAgents signals every tracked Agent process except keepPid.
func (m *Manager) KillOtherAgents(keepPid int) error {
	info, err := m.storage.Read()
	if err != nil {
		return err
	}
	for _, p := range info.ProcessInfos {
		if p == nil || p.FeatType != storage.FeatAgent || p.ProcessID == keepPid {
			continue
		}
		if err := m.KillProcess(p); err != nil {
			return err
		}
	}
	return nil
}

// CleanupAll signals every tracked pid, zeros all slots, sets state to
// Idle, and removes the UDS files. Called with no tracked processes,
// this is a no-op success rather than an error.
func (m *Manager) CleanupAll() error {
	info, err := m.storage.Read()
	if err != nil {
		return err
	}

	for _, p := range info.ProcessInfos {
		if p == nil {
			continue
		}
		if err := m.processes.Kill(p.ProcessID, process.Terminate); err != nil {
			return fmt.Errorf("kill process %d: %w", p.ProcessID, err)
		}
	}

	if err := m.storage.ApplyWithLock(func(rt *storage.RuntimeInfo) error {
		rt.ProcessInfos = [4]*storage.ProcessInfo{}
		rt.State = storage.StateIdle
		return nil
	}); err != nil {
		return err
	}
	metrics.TrackedProcesses.Set(0)

	if err := unixutil.RemoveFileIfExists(m.udsPath); err != nil {
		return err
	}
	return unixutil.RemoveFileIfExists(m.metaUdsPath)
}

// HandleState drives one step of the Idle/Update/Rollback state
// machine.
func HandleState(ctx context.Context, m *Manager, resources *resource.Manager) error {
	info, err := m.GetRuntimeInfo()
	if err != nil {
		return err
	}

	switch info.State {
	case storage.StateIdle:
		return handleIdle(ctx, m, info)
	case storage.StateUpdate:
		return handleUpdate(ctx, m, resources)
	case storage.StateRollback:
		return handleRollback(m, resources)
	default:
		return fmt.Errorf("manager: unknown state %q", info.State)
	}
}

func isAgentRunning(info *storage.RuntimeInfo) bool {
	for _, p := range info.ProcessInfos {
		if p != nil && p.FeatType == storage.FeatAgent {
			return true
		}
	}
	return false
}

func handleIdle(ctx context.Context, m *Manager, info *storage.RuntimeInfo) error {
	if isAgentRunning(info) {
		return nil
	}
	_, err := m.LaunchAgent(ctx, true)
	return err
}
