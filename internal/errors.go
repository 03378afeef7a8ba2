package internal

import (
	"errors"
	"fmt"
)

// ErrProjectNotFound is returned when a project id or path has no record
var ErrProjectNotFound = errors.New("project not found")

// ErrSessionNotFound is returned when a session id has no record
var ErrSessionNotFound = errors.New("session not found")

// StorageError represents a failed operation against durable storage
type StorageError struct {
	Op     string // "create", "find", "update", "list", "end"
	Entity string // "project", "session"
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ResolveError represents a path that could not be mapped to a project
type ResolveError struct {
	Path string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve error [%s]: %v", e.Path, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// ConfigError represents an unreadable or invalid configuration file
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
