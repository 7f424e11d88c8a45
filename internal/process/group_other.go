//go:build !unix

package process

import (
	"os"
	"syscall"
)

// Platforms without process groups fall back to signalling the leader only.
// os.Interrupt is unsupported on Windows, so the graceful step degrades to
// the forceful one there.

type signal int

const (
	sigInterrupt signal = iota
	sigKill
)

func groupSysProcAttr() *syscall.SysProcAttr {
	return nil
}

func signalGroup(pgid int, sig signal) error {
	p, err := os.FindProcess(pgid)
	if err != nil {
		return err
	}
	if sig == sigInterrupt {
		if err := p.Signal(os.Interrupt); err == nil {
			return nil
		}
	}
	return p.Kill()
}

func isNoSuchProcess(err error) bool {
	return err == os.ErrProcessDone
}

func reapGroup(int) {}

// GroupAlive reports whether the leader process still exists.
func GroupAlive(pgid int) bool {
	_, err := os.FindProcess(pgid)
	return err == nil
}
