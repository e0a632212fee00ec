// Package storage implements the fixed-size shared-memory page that
// every runtime-manager state mutation reads and writes through.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Size is the fixed page size backing the shared-memory region (§4.9).
const Size = 10_000

// shmName is the POSIX shared-memory object name.
const shmName = "miax_runtime_info"

// shmDir is where Linux exposes POSIX shared-memory objects as plain
// files; opening a file here is equivalent to shm_open for our purposes.
const shmDir = "/dev/shm"

// State is the runtime manager's state machine position.
type State string

const (
	StateIdle     State = "Idle"
	StateUpdate   State = "Update"
	StateRollback State = "Rollback"
)

// FeatType distinguishes the two kinds of process a ProcessInfo can
// describe.
type FeatType string

const (
	FeatAgent      FeatType = "Agent"
	FeatController FeatType = "Controller"
)

// ProcessInfo describes one tracked child process.
type ProcessInfo struct {
	ProcessID  int       `json:"process_id"`
	ExecutedAt time.Time `json:"executed_at"`
	Version    string    `json:"version"`
	FeatType   FeatType  `json:"feat_type"`
}

// slotCount is the fixed number of tracked process slots (§4.9 invariant:
// at most one Controller, array compacted left on removal).
const slotCount = 4

// RuntimeInfo is the JSON value stored in the shared-memory page.
type RuntimeInfo struct {
	State        State                   `json:"state"`
	ProcessInfos [slotCount]*ProcessInfo `json:"process_infos"`
	ExecPath     string                  `json:"exec_path"`
}

// ErrStorageFull is returned by AddProcessInfo when all slots are
// occupied.
var ErrStorageFull = fmt.Errorf("storage: all %d process slots occupied", slotCount)

// AddProcessInfo appends info to the first free slot.
func (r *RuntimeInfo) AddProcessInfo(info ProcessInfo) error {
	for i := range r.ProcessInfos {
		if r.ProcessInfos[i] == nil {
			r.ProcessInfos[i] = &info
			return nil
		}
	}
	return ErrStorageFull
}

// RemoveProcessInfo drops the entry for pid, compacting the remaining
// entries left so no occupied slot follows a nil one.
func (r *RuntimeInfo) RemoveProcessInfo(pid int) {
	filtered := make([]*ProcessInfo, 0, slotCount)
	for _, info := range r.ProcessInfos {
		if info != nil && info.ProcessID != pid {
			filtered = append(filtered, info)
		}
	}
	for i := 0; i < slotCount; i++ {
		if i < len(filtered) {
			r.ProcessInfos[i] = filtered[i]
		} else {
			r.ProcessInfos[i] = nil
		}
	}
}

// Storage is the mmap-backed handle to the shared-memory page.
type Storage struct {
	data []byte
}

// Open maps the shared-memory page, creating it with O_CREAT|O_EXCL and
// truncating it to Size if it does not already exist.
func Open() (*Storage, error) {
	path := shmDir + "/" + shmName

	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if os.IsNotExist(err) {
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			return nil, fmt.Errorf("create shared memory: %w", err)
		}
		if err := f.Truncate(Size); err != nil {
			f.Close()
			return nil, fmt.Errorf("truncate shared memory: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open shared memory: %w", err)
	}
	defer f.Close()

	data, err := unix.Mmap(int(f.Fd()), 0, Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap shared memory: %w", err)
	}

	return &Storage{data: data}, nil
}

// NewFromBytes wraps an existing buffer as a Storage without mapping
// real shared memory. Intended for tests that exercise ApplyWithLock's
// read/mutate/write logic without needing /dev/shm or CAP_IPC_LOCK.
func NewFromBytes(data []byte) *Storage {
	return &Storage{data: data}
}

// Close unmaps the shared-memory page. It does not unlink the backing
// object; other processes may still hold it mapped.
func (s *Storage) Close() error {
	if err := unix.Munmap(s.data); err != nil {
		return fmt.Errorf("munmap shared memory: %w", err)
	}
	return nil
}

// Read parses the current contents without acquiring the lock. Empty
// (all-zero) memory is interpreted as "no prior info".
func (s *Storage) Read() (*RuntimeInfo, error) {
	raw := s.data[:bytes.IndexByte(s.data, 0)+1]
	if len(raw) <= 1 {
		return s.emptyInfo()
	}
	trimmed := bytes.TrimSpace(raw[:len(raw)-1])
	if len(trimmed) == 0 {
		return s.emptyInfo()
	}

	info := &RuntimeInfo{}
	if err := json.Unmarshal(trimmed, info); err != nil {
		return nil, fmt.Errorf("parse runtime info: %w", err)
	}
	return info, nil
}

func (s *Storage) emptyInfo() (*RuntimeInfo, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve current executable: %w", err)
	}
	return &RuntimeInfo{State: StateIdle, ExecPath: exe}, nil
}

func (s *Storage) writeLocked(info *RuntimeInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("serialize runtime info: %w", err)
	}
	if len(data)+1 > len(s.data) {
		return fmt.Errorf("runtime info %d bytes exceeds shared memory page of %d", len(data)+1, len(s.data))
	}

	clear(s.data)
	copy(s.data, data)
	s.data[len(data)] = 0

	if err := unix.Msync(s.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync runtime info: %w", err)
	}
	return nil
}

// ApplyWithLock mlocks the page as a process-local critical section,
// reads the current info, runs op against it, re-serializes, writes,
// flushes with msync(MS_SYNC), then munlocks. Any failure releases the
// lock before returning.
func (s *Storage) ApplyWithLock(op func(info *RuntimeInfo) error) error {
	if err := unix.Mlock(s.data); err != nil {
		return fmt.Errorf("mlock runtime info: %w", err)
	}
	defer unix.Munlock(s.data)

	info, err := s.Read()
	if err != nil {
		return err
	}
	if err := op(info); err != nil {
		return err
	}
	return s.writeLocked(info)
}
