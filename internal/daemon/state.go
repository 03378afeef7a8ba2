// Package daemon runs the tracking daemon: the session state machine, the
// socket server that feeds it, and the idle monitor that pauses it.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iksnae/tempo/internal"
	"github.com/iksnae/tempo/internal/project"
	"github.com/iksnae/tempo/internal/store"
)

// ErrPathRequired is returned by StartSession without a project path
var ErrPathRequired = errors.New("project path required for manual session start")

// SessionStore is the session persistence the state machine needs
type SessionStore interface {
	CreateSession(ctx context.Context, sess *internal.Session) (int64, error)
	SwitchSession(ctx context.Context, prev store.SessionEnd, next *internal.Session) (int64, error)
	EndSession(ctx context.Context, end store.SessionEnd) error
	ListOpenSessions(ctx context.Context) ([]*internal.Session, error)
	CloseOpenSessions(ctx context.Context, at time.Time) (int64, error)
}

// ActiveSession is the in-memory view of the session being tracked
type ActiveSession struct {
	SessionID    int64
	ProjectID    int64
	ProjectName  string
	ProjectPath  string
	StartTime    time.Time
	Context      internal.SessionContext
	LastActivity time.Time
	PausedAt     *time.Time
	TotalPaused  time.Duration
}

// IsPaused reports whether the session is paused
func (a *ActiveSession) IsPaused() bool {
	return a.PausedAt != nil
}

// PausedTotal is the paused time including a pause still in progress
func (a *ActiveSession) PausedTotal(now time.Time) time.Duration {
	total := a.TotalPaused
	if a.PausedAt != nil {
		if d := now.Sub(*a.PausedAt); d > 0 {
			total += d
		}
	}
	return total
}

// Elapsed is the unpaused time so far. It stops advancing while paused.
func (a *ActiveSession) Elapsed(now time.Time) time.Duration {
	end := now
	if a.PausedAt != nil {
		end = *a.PausedAt
	}
	d := end.Sub(a.StartTime) - a.TotalPaused
	if d < 0 {
		return 0
	}
	return d
}

func (a *ActiveSession) endAt(now time.Time) store.SessionEnd {
	if now.Before(a.StartTime) {
		now = a.StartTime
	}
	paused := a.PausedTotal(now)
	if wall := now.Sub(a.StartTime); paused > wall {
		paused = wall
	}
	return store.SessionEnd{ID: a.SessionID, EndTime: now, PausedDuration: paused}
}

// SessionView is a point-in-time copy of the active session
type SessionView struct {
	ActiveSession
	At       time.Time
	Duration time.Duration
	Paused   time.Duration
}

// Total is wall-clock time since the session started
func (v *SessionView) Total() time.Duration {
	if d := v.At.Sub(v.StartTime); d > 0 {
		return d
	}
	return 0
}

// State owns the single active session. Mutations hold the write lock;
// queries hold the read lock and never refresh activity.
type State struct {
	mu          sync.RWMutex
	active      *ActiveSession
	resolver    *project.Resolver
	sessions    SessionStore
	idleTimeout time.Duration
	startedAt   time.Time
	now         func() time.Time
}

// StateOption configures a State
type StateOption func(*State)

// WithClock overrides time.Now
func WithClock(now func() time.Time) StateOption {
	return func(s *State) { s.now = now }
}

// NewState creates an idle state machine
func NewState(resolver *project.Resolver, sessions SessionStore, idleTimeout time.Duration, opts ...StateOption) *State {
	s := &State{
		resolver:    resolver,
		sessions:    sessions,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startedAt = s.now()
	return s
}

// Initialize warms the project cache and closes sessions left open by a
// previous run. It must finish before requests are served.
func (s *State) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.resolver.Warm(ctx); err != nil {
		return fmt.Errorf("failed to warm project cache: %w", err)
	}

	orphans, err := s.sessions.ListOpenSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list open sessions: %w", err)
	}
	if len(orphans) == 0 {
		return nil
	}
	for _, o := range orphans {
		internal.Logger().Warn("closing session left open by previous run",
			zap.Int64("session_id", o.ID), zap.Int64("project_id", o.ProjectID), zap.Time("start_time", o.StartTime))
	}
	n, err := s.sessions.CloseOpenSessions(ctx, s.now())
	if err != nil {
		return fmt.Errorf("failed to close orphaned sessions: %w", err)
	}
	internal.LogWarn("Recovered %d orphaned session(s); pause time for them is not recoverable", n)
	return nil
}

func contextOrDefault(name string, def internal.SessionContext) internal.SessionContext {
	if name == "" {
		return def
	}
	c, err := internal.ParseSessionContext(name)
	if err != nil {
		internal.LogDebug("unknown session context %q, using terminal", name)
		return internal.ContextTerminal
	}
	return c
}

// ProjectEntered starts or switches tracking to path. Re-entering the active
// project only refreshes activity (resuming if paused).
func (s *State) ProjectEntered(ctx context.Context, path, contextName string) error {
	canonical, err := project.Canonicalize(path)
	if err != nil {
		return err
	}
	sc := contextOrDefault(contextName, internal.ContextTerminal)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if a := s.active; a != nil && a.ProjectPath == canonical {
		s.touchLocked(now)
		return nil
	}
	entry, err := s.resolver.Resolve(ctx, canonical)
	if err != nil {
		return err
	}
	return s.beginLocked(ctx, entry, sc, now)
}

// ProjectLeft does not end the session; leaving a directory is not a signal
// that work stopped.
func (s *State) ProjectLeft(path string) {
	internal.LogDebug("project left: %s", path)
}

// StartSession starts tracking path explicitly. The context defaults to manual.
func (s *State) StartSession(ctx context.Context, path *string, contextName string) error {
	if path == nil || *path == "" {
		return ErrPathRequired
	}
	if contextName == "" {
		contextName = internal.ContextManual.String()
	}
	return s.ProjectEntered(ctx, *path, contextName)
}

// SwitchProject moves tracking to an existing project
func (s *State) SwitchProject(ctx context.Context, projectID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.resolver.ResolveID(ctx, projectID)
	if err != nil {
		if errors.Is(err, internal.ErrProjectNotFound) {
			return fmt.Errorf("%w: id %d", internal.ErrProjectNotFound, projectID)
		}
		return err
	}
	now := s.now()
	if a := s.active; a != nil && a.ProjectID == entry.ID {
		s.touchLocked(now)
		return nil
	}
	return s.beginLocked(ctx, entry, internal.ContextManual, now)
}

// beginLocked persists the new session (ending the current one in the same
// transaction) and only then replaces the in-memory state.
func (s *State) beginLocked(ctx context.Context, entry project.Entry, sc internal.SessionContext, now time.Time) error {
	next := &internal.Session{
		ProjectID: entry.ID,
		StartTime: now,
		Context:   sc,
		CreatedAt: now,
	}

	var err error
	if prev := s.active; prev != nil {
		_, err = s.sessions.SwitchSession(ctx, prev.endAt(now), next)
		if errors.Is(err, internal.ErrSessionNotFound) {
			internal.LogWarn("Session %d was already closed; starting a new one", prev.SessionID)
			_, err = s.sessions.CreateSession(ctx, next)
		}
	} else {
		_, err = s.sessions.CreateSession(ctx, next)
	}
	if err != nil {
		return err
	}

	if prev := s.active; prev != nil {
		internal.Logger().Info("switched project",
			zap.Int64("from_session", prev.SessionID), zap.String("from", prev.ProjectName),
			zap.Int64("session_id", next.ID), zap.String("to", entry.Name))
	} else {
		internal.Logger().Info("started session",
			zap.Int64("session_id", next.ID), zap.String("project", entry.Name), zap.String("context", sc.String()))
	}

	s.active = &ActiveSession{
		SessionID:    next.ID,
		ProjectID:    entry.ID,
		ProjectName:  entry.Name,
		ProjectPath:  entry.Path,
		StartTime:    now,
		Context:      sc,
		LastActivity: now,
	}
	return nil
}

// Stop ends the active session. It is a no-op when idle. When storage fails
// the session stays active.
func (s *State) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked(ctx)
}

func (s *State) stopLocked(ctx context.Context) error {
	a := s.active
	if a == nil {
		return nil
	}
	end := a.endAt(s.now())
	if err := s.sessions.EndSession(ctx, end); err != nil {
		if !errors.Is(err, internal.ErrSessionNotFound) {
			return err
		}
		internal.LogWarn("Session %d was already closed", a.SessionID)
	}
	internal.Logger().Info("stopped session",
		zap.Int64("session_id", a.SessionID), zap.Duration("active", end.EndTime.Sub(a.StartTime)-end.PausedDuration))
	s.active = nil
	return nil
}

// Pause freezes the active session. No-op when idle or already paused.
func (s *State) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseLocked(s.now())
}

func (s *State) pauseLocked(now time.Time) bool {
	a := s.active
	if a == nil || a.PausedAt != nil {
		return false
	}
	a.PausedAt = &now
	return true
}

// Resume continues a paused session. No-op when idle or not paused.
func (s *State) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a := s.active; a != nil && a.PausedAt != nil {
		s.touchLocked(s.now())
	}
}

// Heartbeat records activity on the active session, resuming it if paused
func (s *State) Heartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		s.touchLocked(s.now())
	}
}

func (s *State) touchLocked(now time.Time) {
	a := s.active
	if a.PausedAt != nil {
		if d := now.Sub(*a.PausedAt); d > 0 {
			a.TotalPaused += d
		}
		a.PausedAt = nil
		internal.LogDebug("resumed session %d", a.SessionID)
	}
	if now.After(a.LastActivity) {
		a.LastActivity = now
	}
}

// CheckIdle pauses the active session once activity is older than the idle
// timeout. It reports whether it paused.
func (s *State) CheckIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.active
	if a == nil || a.PausedAt != nil {
		return false
	}
	now := s.now()
	if now.Sub(a.LastActivity) <= s.idleTimeout {
		return false
	}
	s.pauseLocked(now)
	internal.Logger().Info("paused idle session",
		zap.Int64("session_id", a.SessionID), zap.Duration("idle", now.Sub(a.LastActivity)))
	return true
}

func (s *State) viewLocked(now time.Time) *SessionView {
	a := s.active
	if a == nil {
		return nil
	}
	return &SessionView{
		ActiveSession: *a,
		At:            now,
		Duration:      a.Elapsed(now),
		Paused:        a.PausedTotal(now),
	}
}

// Status returns daemon uptime and the active session, if any
func (s *State) Status() (time.Duration, *SessionView) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	return now.Sub(s.startedAt), s.viewLocked(now)
}

// Active returns the active session, or nil when idle
func (s *State) Active() *SessionView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewLocked(s.now())
}

// Project loads a project by id. The load refreshes the resolver cache, so
// it runs under the write lock like every other cache writer.
func (s *State) Project(ctx context.Context, id int64) (*internal.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolver.Get(ctx, id)
}

// Shutdown stops the active session, logging rather than returning failures
func (s *State) Shutdown(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stopLocked(ctx); err != nil {
		internal.LogError("Failed to stop session during shutdown: %v", err)
	}
}
