//go:build windows

package ipc

import "os"

// IsProcessAlive reports whether pid exists
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}

// Windows has no SIGTERM.
func terminate(p *os.Process) error {
	return p.Kill()
}
