//go:build unix

package process

import (
	"syscall"

	"github.com/Iron-Ham/wdpool/internal/errors"
	"golang.org/x/sys/unix"
)

const (
	sigInterrupt = unix.SIGINT
	sigKill      = unix.SIGKILL
)

// groupSysProcAttr makes the child the leader of a new process group so the
// whole tree can be signalled through the negative PID.
func groupSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup delivers sig to every process in the group pgid.
func signalGroup(pgid int, sig unix.Signal) error {
	if pgid <= 0 {
		return unix.ESRCH
	}
	return unix.Kill(-pgid, sig)
}

func isNoSuchProcess(err error) bool {
	return errors.Is(err, unix.ESRCH)
}

// reapGroup collects any exited children in the group without blocking.
// ECHILD means nothing is left to reap, which also covers process managers
// that reap on our behalf.
func reapGroup(pgid int) {
	if pgid <= 0 {
		return
	}
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-pgid, &status, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil || pid <= 0 {
			return
		}
	}
}

// GroupAlive reports whether any process in the group pgid still exists.
func GroupAlive(pgid int) bool {
	if pgid <= 0 {
		return false
	}
	return unix.Kill(-pgid, 0) == nil
}
