//go:build !windows

package ipc

import (
	"errors"
	"os"
	"syscall"
)

// IsProcessAlive reports whether pid exists
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func terminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
