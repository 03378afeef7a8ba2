package project

import (
	"sort"
	"sync"

	"github.com/iksnae/tempo/internal"
)

// Entry is the cached projection of a project row
type Entry struct {
	ID       int64
	Path     string
	Name     string
	Archived bool
	GitHash  string
}

func entryFrom(p *internal.Project) Entry {
	e := Entry{ID: p.ID, Path: p.Path, Name: p.Name, Archived: p.Archived}
	if p.GitHash != nil {
		e.GitHash = *p.GitHash
	}
	return e
}

// Cache maps canonical paths and ids to projects. The two indexes always
// describe the same set of entries.
type Cache struct {
	mu     sync.RWMutex
	byPath map[string]Entry
	byID   map[int64]string
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{
		byPath: make(map[string]Entry),
		byID:   make(map[int64]string),
	}
}

// Put caches p, replacing any entry with the same path or id
func (c *Cache) Put(p *internal.Project) Entry {
	e := entryFrom(p)
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.byPath[e.Path]; ok && old.ID != e.ID {
		delete(c.byID, old.ID)
	}
	if oldPath, ok := c.byID[e.ID]; ok && oldPath != e.Path {
		delete(c.byPath, oldPath)
	}
	c.byPath[e.Path] = e
	c.byID[e.ID] = e.Path
	return e
}

// GetByPath looks up a canonical path
func (c *Cache) GetByPath(path string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byPath[path]
	return e, ok
}

// GetByID looks up a project id
func (c *Cache) GetByID(id int64) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	path, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	e, ok := c.byPath[path]
	return e, ok
}

// RemoveByPath drops the entry for path, if any
func (c *Cache) RemoveByPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.byPath[path]; ok {
		delete(c.byID, e.ID)
		delete(c.byPath, path)
	}
}

// RemoveByID drops the entry for id, if any
func (c *Cache) RemoveByID(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if path, ok := c.byID[id]; ok {
		delete(c.byPath, path)
		delete(c.byID, id)
	}
}

// Update applies fn to the entry for path. It reports false when path is not
// cached. fn must not change the entry's id or path.
func (c *Cache) Update(path string, fn func(*Entry)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byPath[path]
	if !ok {
		return false
	}
	id := e.ID
	fn(&e)
	e.ID, e.Path = id, path
	c.byPath[path] = e
	return true
}

// Len returns the number of cached projects
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byPath)
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byPath = make(map[string]Entry)
	c.byID = make(map[int64]string)
}

// Entries returns a copy of every entry, sorted by path
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.byPath))
	for _, e := range c.byPath {
		out = append(out, e)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
