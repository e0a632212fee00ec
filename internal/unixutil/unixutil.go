// Package unixutil provides the Unix-domain-socket plumbing the
// supervisor and worker use to hand off their listening socket:
// systemd fd inheritance, SCM_RIGHTS passing, a file-created watcher,
// and a UDS-backed HTTP GET helper (§4.13).
package unixutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sys/unix"
)

// RemoveFileIfExists removes path, ignoring a not-exists error.
func RemoveFileIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// ErrListenFds is returned by GetFdFromSystemd when LISTEN_FDS is unset,
// malformed, or does not name this process.
var ErrListenFds = errors.New("unixutil: no usable systemd-inherited file descriptors")

// systemdFdStart is the first fd systemd guarantees it hands over
// (stdin/stdout/stderr occupy 0-2).
const systemdFdStart = 3

// GetFdFromSystemd validates LISTEN_PID against the current process and
// returns the first inherited descriptor named by LISTEN_FDS.
func GetFdFromSystemd() (int, error) {
	listenPid := os.Getenv("LISTEN_PID")
	listenFds := os.Getenv("LISTEN_FDS")
	if listenPid == "" || listenFds == "" {
		return 0, ErrListenFds
	}

	pid, err := strconv.Atoi(listenPid)
	if err != nil {
		return 0, fmt.Errorf("%w: LISTEN_PID: %v", ErrListenFds, err)
	}
	if pid != os.Getpid() {
		return 0, fmt.Errorf("%w: LISTEN_PID %d does not match current pid %d", ErrListenFds, pid, os.Getpid())
	}

	count, err := strconv.Atoi(listenFds)
	if err != nil {
		return 0, fmt.Errorf("%w: LISTEN_FDS: %v", ErrListenFds, err)
	}
	if count < 1 {
		return 0, ErrListenFds
	}
	return systemdFdStart, nil
}

// WaitUntilFileCreated blocks until path exists or ctx is done, using an
// inotify-backed watch on its parent directory rather than polling.
func WaitUntilFileCreated(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := parentDir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed before %s appeared", path)
			}
			if event.Name == path && (event.Op&(fsnotify.Create|fsnotify.Write) != 0) {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher closed before %s appeared", path)
			}
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// SendFd sends fd to the peer connected over conn using SCM_RIGHTS. It
// always sends a payload byte plus rights; it does not encode the
// "1 = none, fd omitted" sentinel some Option<fd> handoff protocols use,
// since every caller in this module always has a real fd to hand off.
func SendFd(conn *net.UnixConn, fd int) error {
	rights := unix.UnixRights(fd)
	raw, err := conn.File()
	if err != nil {
		return fmt.Errorf("get raw conn: %w", err)
	}
	defer raw.Close()

	if err := unix.Sendmsg(int(raw.Fd()), []byte{0}, rights, nil, 0); err != nil {
		return fmt.Errorf("sendmsg SCM_RIGHTS: %w", err)
	}
	return nil
}

// RecvFd receives one file descriptor passed over conn via SCM_RIGHTS.
func RecvFd(conn *net.UnixConn) (int, error) {
	raw, err := conn.File()
	if err != nil {
		return 0, fmt.Errorf("get raw conn: %w", err)
	}
	defer raw.Close()

	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4))
	_, oobn, _, _, err := unix.Recvmsg(int(raw.Fd()), buf, oob, 0)
	if err != nil {
		return 0, fmt.Errorf("recvmsg SCM_RIGHTS: %w", err)
	}

	messages, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return 0, fmt.Errorf("parse control message: %w", err)
	}
	for _, msg := range messages {
		fds, err := unix.ParseUnixRights(&msg)
		if err != nil {
			continue
		}
		if len(fds) > 0 {
			return fds[0], nil
		}
	}
	return 0, errors.New("unixutil: no file descriptor in control message")
}

// udsClient builds an http.Client that dials udsPath instead of TCP.
func udsClient(udsPath string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", udsPath)
			},
		},
		Timeout: 10 * time.Second,
	}
}

// GetRequest issues a GET to endpoint over the UDS at udsPath and
// JSON-decodes the response body into T.
func GetRequest[T any](ctx context.Context, udsPath, endpoint string) (T, error) {
	var zero T

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix"+endpoint, nil)
	if err != nil {
		return zero, fmt.Errorf("build request: %w", err)
	}

	resp, err := udsClient(udsPath).Do(req)
	if err != nil {
		return zero, fmt.Errorf("request over uds %s: %w", udsPath, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("read response body: %w", err)
	}

	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return zero, fmt.Errorf("parse response body: %w", err)
	}
	return out, nil
}
