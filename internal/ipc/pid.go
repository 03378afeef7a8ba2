package ipc

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// WritePIDFile records the current process id at path
func WritePIDFile(path string) error {
	data := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	return nil
}

// ReadPIDFile returns the process id stored at path
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", path)
	}
	return pid, nil
}

// RemovePIDFile deletes the pid file; a missing file is not an error
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// TerminateProcess asks pid to exit and kills it if it is still alive after
// wait. It returns nil once the process is gone.
func TerminateProcess(pid int, wait time.Duration) error {
	if !IsProcessAlive(pid) {
		return nil
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := terminate(process); err != nil {
		return fmt.Errorf("failed to signal pid %d: %w", pid, err)
	}

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
		if !IsProcessAlive(pid) {
			return nil
		}
	}

	if err := process.Kill(); err != nil && IsProcessAlive(pid) {
		return fmt.Errorf("failed to kill pid %d: %w", pid, err)
	}
	return nil
}
