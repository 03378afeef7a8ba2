package pool

import (
	"io"
	"sync"
)

// Guard owns one checked-out handle until Release or Discard is called.
// Both are idempotent, so `defer g.Release()` is always safe.
type Guard[C io.Closer] struct {
	pool *Pool[C]
	pc   *pooledConn[C]
	once sync.Once
}

func (p *Pool[C]) newGuard(pc *pooledConn[C]) *Guard[C] {
	return &Guard[C]{pool: p, pc: pc}
}

// Conn returns the underlying handle
func (g *Guard[C]) Conn() C {
	return g.pc.conn
}

// UseCount reports how many times the handle has been checked out
func (g *Guard[C]) UseCount() int {
	return g.pc.useCount
}

// Release returns the handle to the pool, or closes it if it has expired
func (g *Guard[C]) Release() {
	g.once.Do(func() { g.pool.release(g.pc, false) })
}

// Discard closes the handle instead of returning it
func (g *Guard[C]) Discard() {
	g.once.Do(func() { g.pool.release(g.pc, true) })
}
