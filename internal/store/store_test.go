package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iksnae/tempo/internal"
	"github.com/iksnae/tempo/internal/store"
	"github.com/iksnae/tempo/testutil"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newProject(t *testing.T, s *store.Store, name string) *internal.Project {
	t.Helper()
	p := &internal.Project{
		Path:      "/work/" + name,
		Name:      name,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	_, err := s.CreateProject(context.Background(), p)
	require.NoError(t, err)
	return p
}

func openSession(t *testing.T, s *store.Store, projectID int64, start time.Time) *internal.Session {
	t.Helper()
	sess := &internal.Session{
		ProjectID: projectID,
		StartTime: start,
		Context:   internal.ContextTerminal,
		CreatedAt: start,
	}
	_, err := s.CreateSession(context.Background(), sess)
	require.NoError(t, err)
	return sess
}

func TestOpen_MigratesIdempotently(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(testutil.CreateTempDir(t), "data.db")

	s, err := store.Open(ctx, path, testutil.TestPoolConfig())
	require.NoError(t, err)
	newProject(t, s, "alpha")
	require.NoError(t, s.Close())

	s, err = store.Open(ctx, path, testutil.TestPoolConfig())
	require.NoError(t, err)
	defer s.Close()

	p, err := s.FindProjectByPath(ctx, "/work/alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", p.Name)
	assert.Equal(t, path, s.Path())
}

func TestProjects_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenTestStore(t)

	hash := "0123456789abcdef"
	desc := "Git repository"
	p := &internal.Project{
		Path:        "/work/alpha",
		Name:        "alpha",
		GitHash:     &hash,
		Description: &desc,
		CreatedAt:   t0,
		UpdatedAt:   t0,
	}
	id, err := s.CreateProject(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.NotZero(t, id)

	byPath, err := s.FindProjectByPath(ctx, "/work/alpha")
	require.NoError(t, err)
	assert.Equal(t, id, byPath.ID)
	require.NotNil(t, byPath.GitHash)
	assert.Equal(t, hash, *byPath.GitHash)
	assert.True(t, byPath.CreatedAt.Equal(t0))

	byID, err := s.FindProjectByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "/work/alpha", byID.Path)

	_, err = s.FindProjectByPath(ctx, "/work/missing")
	assert.ErrorIs(t, err, internal.ErrProjectNotFound)
	_, err = s.FindProjectByID(ctx, id+100)
	assert.ErrorIs(t, err, internal.ErrProjectNotFound)
}

func TestProjects_DuplicatePathIsStorageError(t *testing.T) {
	s := testutil.OpenTestStore(t)
	newProject(t, s, "alpha")

	dup := &internal.Project{Path: "/work/alpha", Name: "again", CreatedAt: t0, UpdatedAt: t0}
	_, err := s.CreateProject(context.Background(), dup)
	require.Error(t, err)

	var se *internal.StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "create", se.Op)
	assert.Equal(t, "project", se.Entity)
}

func TestProjects_UpdateAndList(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenTestStore(t)

	beta := newProject(t, s, "beta")
	newProject(t, s, "alpha")

	beta.Archived = true
	beta.UpdatedAt = t0.Add(time.Hour)
	require.NoError(t, s.UpdateProject(ctx, beta))

	tests := []struct {
		name            string
		includeArchived bool
		want            []string
	}{
		{"active only", false, []string{"alpha"}},
		{"with archived", true, []string{"alpha", "beta"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			projects, err := s.ListProjects(ctx, tt.includeArchived)
			require.NoError(t, err)
			var names []string
			for _, p := range projects {
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}

	missing := &internal.Project{ID: 999, Path: "/nowhere", Name: "x", UpdatedAt: t0}
	assert.ErrorIs(t, s.UpdateProject(ctx, missing), internal.ErrProjectNotFound)
}

func TestSessions_CreateAndEnd(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenTestStore(t)
	p := newProject(t, s, "alpha")

	sess := openSession(t, s, p.ID, t0)
	open, err := s.ListOpenSessions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, open[0].IsOpen())

	err = s.EndSession(ctx, store.SessionEnd{ID: sess.ID, EndTime: t0.Add(time.Hour), PausedDuration: 10 * time.Minute})
	require.NoError(t, err)

	got, err := s.FindSessionByID(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EndTime)
	assert.True(t, got.EndTime.Equal(t0.Add(time.Hour)))
	assert.Equal(t, 10*time.Minute, got.PausedDuration)
	assert.Equal(t, 50*time.Minute, got.ActiveDuration(t0.Add(2*time.Hour)))

	// A closed session cannot be closed again.
	err = s.EndSession(ctx, store.SessionEnd{ID: sess.ID, EndTime: t0.Add(2 * time.Hour)})
	assert.ErrorIs(t, err, internal.ErrSessionNotFound)

	_, err = s.FindSessionByID(ctx, sess.ID+100)
	assert.ErrorIs(t, err, internal.ErrSessionNotFound)
}

func TestSessions_RejectsInvalid(t *testing.T) {
	s := testutil.OpenTestStore(t)
	p := newProject(t, s, "alpha")

	end := t0.Add(-time.Minute)
	sess := &internal.Session{
		ProjectID: p.ID,
		StartTime: t0,
		EndTime:   &end,
		Context:   internal.ContextManual,
		CreatedAt: t0,
	}
	_, err := s.CreateSession(context.Background(), sess)
	assert.Error(t, err)
	assert.Zero(t, sess.ID)
}

func TestSessions_SwitchIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenTestStore(t)
	alpha := newProject(t, s, "alpha")
	beta := newProject(t, s, "beta")

	first := openSession(t, s, alpha.ID, t0)
	switchAt := t0.Add(30 * time.Minute)
	next := &internal.Session{ProjectID: beta.ID, StartTime: switchAt, Context: internal.ContextTerminal, CreatedAt: switchAt}

	id, err := s.SwitchSession(ctx, store.SessionEnd{ID: first.ID, EndTime: switchAt}, next)
	require.NoError(t, err)
	assert.Equal(t, id, next.ID)

	open, err := s.ListOpenSessions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, beta.ID, open[0].ProjectID)

	closed, err := s.FindSessionByID(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, closed.EndTime)
	assert.True(t, closed.EndTime.Equal(open[0].StartTime))

	// Ending an already closed row rolls the insert back.
	again := &internal.Session{ProjectID: alpha.ID, StartTime: switchAt, Context: internal.ContextTerminal, CreatedAt: switchAt}
	_, err = s.SwitchSession(ctx, store.SessionEnd{ID: first.ID, EndTime: switchAt}, again)
	assert.ErrorIs(t, err, internal.ErrSessionNotFound)
	assert.Zero(t, again.ID)

	all, err := s.ListSessions(ctx, store.SessionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSessions_CloseOpenSessions(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenTestStore(t)
	p := newProject(t, s, "alpha")

	openSession(t, s, p.ID, t0)
	future := openSession(t, s, p.ID, t0.Add(2*time.Hour))

	n, err := s.CloseOpenSessions(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	open, err := s.ListOpenSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	// Never end before start.
	got, err := s.FindSessionByID(ctx, future.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EndTime)
	assert.True(t, got.EndTime.Equal(got.StartTime))

	n, err = s.CloseOpenSessions(ctx, t0.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessions_ListFilters(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenTestStore(t)
	alpha := newProject(t, s, "alpha")
	beta := newProject(t, s, "beta")

	for i, pid := range []int64{alpha.ID, beta.ID, alpha.ID} {
		start := t0.Add(time.Duration(i) * time.Hour)
		end := start.Add(30 * time.Minute)
		sess := &internal.Session{ProjectID: pid, StartTime: start, EndTime: &end, Context: internal.ContextIDE, CreatedAt: start}
		_, err := s.CreateSession(ctx, sess)
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter store.SessionFilter
		want   int
	}{
		{"all", store.SessionFilter{}, 3},
		{"by project", store.SessionFilter{ProjectID: alpha.ID}, 2},
		{"from", store.SessionFilter{From: t0.Add(time.Hour)}, 2},
		{"to", store.SessionFilter{To: t0.Add(time.Hour)}, 1},
		{"window", store.SessionFilter{From: t0.Add(30 * time.Minute), To: t0.Add(90 * time.Minute)}, 1},
		{"limit", store.SessionFilter{Limit: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListSessions(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}

	newest, err := s.ListSessions(ctx, store.SessionFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, newest, 1)
	assert.True(t, newest[0].StartTime.Equal(t0.Add(2*time.Hour)))
	assert.Equal(t, internal.ContextIDE, newest[0].Context)
}

func TestStore_ConcurrentWritersShareThePool(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenTestStore(t)
	p := newProject(t, s, "alpha")

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := t0.Add(time.Duration(i) * time.Minute)
			end := start.Add(time.Second)
			sess := &internal.Session{ProjectID: p.ID, StartTime: start, EndTime: &end, Context: internal.ContextManual, CreatedAt: start}
			_, err := s.CreateSession(ctx, sess)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := s.ListSessions(ctx, store.SessionFilter{ProjectID: p.ID})
	require.NoError(t, err)
	assert.Len(t, all, 20)

	stats := s.PoolStats()
	assert.LessOrEqual(t, stats.TotalCreated-stats.Discarded, testutil.TestPoolConfig().MaxConnections)
}
