package internal

import (
	"fmt"
	"strings"
	"time"
)

// SessionContext identifies where a tracking signal came from
type SessionContext int

const (
	ContextTerminal SessionContext = iota
	ContextIDE
	ContextLinked
	ContextManual
)

func (c SessionContext) String() string {
	switch c {
	case ContextTerminal:
		return "terminal"
	case ContextIDE:
		return "ide"
	case ContextLinked:
		return "linked"
	case ContextManual:
		return "manual"
	}
	return fmt.Sprintf("SessionContext(%d)", int(c))
}

// ParseSessionContext parses a context name, ignoring case
func ParseSessionContext(s string) (SessionContext, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "terminal":
		return ContextTerminal, nil
	case "ide":
		return ContextIDE, nil
	case "linked":
		return ContextLinked, nil
	case "manual":
		return ContextManual, nil
	}
	return ContextTerminal, fmt.Errorf("invalid session context: %s", s)
}

// Project is a tracked directory
type Project struct {
	ID          int64     `json:"id"`
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	GitHash     *string   `json:"git_hash,omitempty"`
	Description *string   `json:"description,omitempty"`
	Archived    bool      `json:"is_archived"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Session is one interval of tracked time attributed to a project.
// A nil EndTime means the session is still open.
type Session struct {
	ID             int64          `json:"id"`
	ProjectID      int64          `json:"project_id"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        *time.Time     `json:"end_time,omitempty"`
	Context        SessionContext `json:"context"`
	PausedDuration time.Duration  `json:"paused_duration"`
	Notes          *string        `json:"notes,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// IsOpen reports whether the session has no end time yet
func (s *Session) IsOpen() bool {
	return s.EndTime == nil
}

// Elapsed returns wall time from start to end (or now when open)
func (s *Session) Elapsed(now time.Time) time.Duration {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	return end.Sub(s.StartTime)
}

// ActiveDuration is elapsed wall time minus time spent paused
func (s *Session) ActiveDuration(now time.Time) time.Duration {
	d := s.Elapsed(now) - s.PausedDuration
	if d < 0 {
		return 0
	}
	return d
}

// Validate checks the record invariants before it is written
func (s *Session) Validate(now time.Time) error {
	if s.EndTime != nil && !s.EndTime.After(s.StartTime) {
		return fmt.Errorf("end time must be after start time")
	}
	if s.PausedDuration < 0 {
		return fmt.Errorf("paused duration cannot be negative")
	}
	if s.PausedDuration > s.Elapsed(now) {
		return fmt.Errorf("paused duration cannot exceed total duration")
	}
	return nil
}
