// Package activation resolves the socket-activation file descriptor the
// collector inherits from its supervisor, in the style of
// lxd-user/main_daemon.go's util.GetListeners(util.SystemdListenFDsStart)
// idiom, adapted for a single per-invocation connection rather than a
// listener.
package activation

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

// ListenFDsStart is the first file descriptor number systemd hands to an
// activated process (fd 0-2 are stdio).
const ListenFDsStart = 3

// Connection returns the inherited, already-connected socket for this
// invocation (spec.md §4.2, §6: "one accepted connection per invocation").
// It validates LISTEN_PID/LISTEN_FDS exactly as the teacher's
// endpoints_test.go documents, then clears both variables so they are not
// inherited by any child process this binary might spawn.
func Connection() (*net.UnixConn, error) {
	defer os.Unsetenv("LISTEN_PID")
	defer os.Unsetenv("LISTEN_FDS")

	pid, err := strconv.Atoi(os.Getenv("LISTEN_PID"))
	if err != nil || pid != os.Getpid() {
		return nil, fmt.Errorf("LISTEN_PID does not match this process: %w", err)
	}

	nfds, err := strconv.Atoi(os.Getenv("LISTEN_FDS"))
	if err != nil || nfds != 1 {
		return nil, fmt.Errorf("expected exactly one socket-activation fd, got LISTEN_FDS=%q", os.Getenv("LISTEN_FDS"))
	}

	file := os.NewFile(uintptr(ListenFDsStart), "coredump-socket")

	conn, err := net.FileConn(file)
	if err != nil {
		return nil, fmt.Errorf("socket-activation fd is not usable as a connection: %w", err)
	}

	_ = file.Close()

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("socket-activation fd is not a unix socket")
	}

	return unixConn, nil
}
