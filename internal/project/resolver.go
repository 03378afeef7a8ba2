// Package project maps working directories to project records, creating them
// on first sight and keeping a cache keyed by canonical path and id.
package project

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iksnae/tempo/internal"
)

// Store is the persistence the resolver needs
type Store interface {
	CreateProject(ctx context.Context, p *internal.Project) (int64, error)
	FindProjectByPath(ctx context.Context, path string) (*internal.Project, error)
	FindProjectByID(ctx context.Context, id int64) (*internal.Project, error)
	ListProjects(ctx context.Context, includeArchived bool) ([]*internal.Project, error)
	UpdateProject(ctx context.Context, p *internal.Project) error
}

// Resolver resolves canonical paths to projects
type Resolver struct {
	store Store
	cache *Cache
	now   func() time.Time
}

// Option configures a Resolver
type Option func(*Resolver)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a resolver backed by store
func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{store: store, cache: NewCache(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cache returns the resolver's cache
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Resolve returns the project for an already canonical path, creating it when
// no row exists. The cache is consulted first, then storage.
func (r *Resolver) Resolve(ctx context.Context, path string) (Entry, error) {
	if e, ok := r.cache.GetByPath(path); ok {
		return e, nil
	}

	p, err := r.store.FindProjectByPath(ctx, path)
	switch {
	case err == nil:
		return r.cache.Put(p), nil
	case !errors.Is(err, internal.ErrProjectNotFound):
		return Entry{}, err
	}

	now := r.now()
	p = &internal.Project{
		Path:      path,
		Name:      NameFor(path),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if hash := Fingerprint(path); hash != "" {
		p.GitHash = &hash
	}
	if desc := Describe(path); desc != "" {
		p.Description = &desc
	}
	if _, err := r.store.CreateProject(ctx, p); err != nil {
		return Entry{}, err
	}
	internal.LogInfo("Created project %q (id %d) at %s", p.Name, p.ID, p.Path)
	return r.cache.Put(p), nil
}

// ResolveID returns the project with the given id. It never creates rows.
func (r *Resolver) ResolveID(ctx context.Context, id int64) (Entry, error) {
	if e, ok := r.cache.GetByID(id); ok {
		return e, nil
	}
	p, err := r.store.FindProjectByID(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	return r.cache.Put(p), nil
}

// Get loads the full project row for id
func (r *Resolver) Get(ctx context.Context, id int64) (*internal.Project, error) {
	p, err := r.store.FindProjectByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.Put(p)
	return p, nil
}

// Archive marks a project archived. Archived projects are still tracked when
// entered.
func (r *Resolver) Archive(ctx context.Context, id int64) error {
	return r.update(ctx, id, func(p *internal.Project) error {
		p.Archived = true
		return nil
	})
}

// Unarchive clears the archived flag
func (r *Resolver) Unarchive(ctx context.Context, id int64) error {
	return r.update(ctx, id, func(p *internal.Project) error {
		p.Archived = false
		return nil
	})
}

// Rename changes a project's display name
func (r *Resolver) Rename(ctx context.Context, id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	return r.update(ctx, id, func(p *internal.Project) error {
		p.Name = name
		return nil
	})
}

// update writes storage first and only then refreshes the cache
func (r *Resolver) update(ctx context.Context, id int64, fn func(*internal.Project) error) error {
	p, err := r.store.FindProjectByID(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(p); err != nil {
		return err
	}
	p.UpdatedAt = r.now()
	if err := r.store.UpdateProject(ctx, p); err != nil {
		return err
	}
	r.cache.Put(p)
	return nil
}

// Warm loads every non-archived project into the cache and returns how many
// were loaded.
func (r *Resolver) Warm(ctx context.Context) (int, error) {
	projects, err := r.store.ListProjects(ctx, false)
	if err != nil {
		return 0, err
	}
	for _, p := range projects {
		r.cache.Put(p)
	}
	internal.LogDebug("project cache warmed with %d projects", len(projects))
	return len(projects), nil
}

// Invalidate drops every cached entry. Later lookups repopulate lazily.
func (r *Resolver) Invalidate() {
	r.cache.Clear()
}
