// Package pool keeps a bounded set of reusable storage handles. Handles are
// retired once they outlive MaxLifetime or sit unused longer than
// MaxIdleTime, and Acquire never waits longer than AcquireTimeout.
package pool

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/iksnae/tempo/internal"
)

var (
	// ErrAcquireTimeout is returned when no handle frees up within AcquireTimeout
	ErrAcquireTimeout = errors.New("pool: acquire timed out")
	// ErrPoolClosed is returned by Acquire after Close
	ErrPoolClosed = errors.New("pool: closed")
)

// Factory opens a new handle
type Factory[C io.Closer] func(ctx context.Context) (C, error)

// Config bounds the pool
type Config struct {
	MaxConnections int
	MinConnections int
	MaxLifetime    time.Duration
	MaxIdleTime    time.Duration
	AcquireTimeout time.Duration
	RetryInterval  time.Duration // first backoff step while waiting for a free handle
}

// DefaultConfig returns the defaults used by the daemon
func DefaultConfig() Config {
	return Config{
		MaxConnections: 10,
		MinConnections: 2,
		MaxLifetime:    time.Hour,
		MaxIdleTime:    10 * time.Minute,
		AcquireTimeout: 30 * time.Second,
		RetryInterval:  10 * time.Millisecond,
	}
}

// FromSettings converts the YAML pool section
func FromSettings(s internal.PoolSettings) Config {
	cfg := DefaultConfig()
	cfg.MaxConnections = s.MaxConnections
	cfg.MinConnections = s.MinConnections
	cfg.MaxLifetime = s.MaxLifetime
	cfg.MaxIdleTime = s.MaxIdleTime
	cfg.AcquireTimeout = s.AcquireTimeout
	return cfg
}

// Validate checks the config is usable
func (c Config) Validate() error {
	switch {
	case c.MaxConnections < 1:
		return fmt.Errorf("pool: max connections must be at least 1")
	case c.MinConnections < 0 || c.MinConnections > c.MaxConnections:
		return fmt.Errorf("pool: min connections must be between 0 and %d", c.MaxConnections)
	case c.MaxLifetime <= 0, c.MaxIdleTime <= 0, c.AcquireTimeout <= 0, c.RetryInterval <= 0:
		return fmt.Errorf("pool: durations must be positive")
	}
	return nil
}

// Stats is a snapshot of the pool counters. After every release
// Active+Idle == TotalCreated-Discarded.
type Stats struct {
	TotalCreated int
	Active       int
	Idle         int
	Requests     int
	Timeouts     int
	Discarded    int
}

type pooledConn[C io.Closer] struct {
	conn      C
	createdAt time.Time
	lastUsed  time.Time
	useCount  int
}

func (pc *pooledConn[C]) expired(now time.Time, maxLifetime time.Duration) bool {
	return now.Sub(pc.createdAt) > maxLifetime
}

func (pc *pooledConn[C]) idleTooLong(now time.Time, maxIdle time.Duration) bool {
	return now.Sub(pc.lastUsed) > maxIdle
}

// Pool hands out handles created by its factory
type Pool[C io.Closer] struct {
	cfg     Config
	factory Factory[C]
	now     func() time.Time

	mu       sync.Mutex
	idle     []*pooledConn[C]
	creating int
	closed   bool
	stats    Stats
}

// Option customises a Pool
type Option[C io.Closer] func(*Pool[C])

// WithClock replaces time.Now for expiry checks
func WithClock[C io.Closer](now func() time.Time) Option[C] {
	return func(p *Pool[C]) { p.now = now }
}

// New creates a pool and opens MinConnections handles up front
func New[C io.Closer](ctx context.Context, cfg Config, factory Factory[C], opts ...Option[C]) (*Pool[C], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pool[C]{cfg: cfg, factory: factory, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < cfg.MinConnections; i++ {
		conn, err := factory(ctx)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("pool: failed to open initial connection: %w", err)
		}
		now := p.now()
		p.mu.Lock()
		p.idle = append(p.idle, &pooledConn[C]{conn: conn, createdAt: now, lastUsed: now})
		p.stats.TotalCreated++
		p.stats.Idle++
		p.mu.Unlock()
	}
	internal.LogDebug("pool: opened %d initial connections (max %d)", cfg.MinConnections, cfg.MaxConnections)
	return p, nil
}

// Acquire returns a guard over a live handle. The caller must Release it.
func (p *Pool[C]) Acquire(ctx context.Context) (*Guard[C], error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.stats.Requests++
	p.mu.Unlock()

	deadlineAt := time.Now().Add(p.cfg.AcquireTimeout)
	deadline := time.NewTimer(p.cfg.AcquireTimeout)
	defer deadline.Stop()
	backoff := p.cfg.RetryInterval

	for {
		pc, mayCreate, err := p.tryTake()
		if err != nil {
			return nil, err
		}
		if pc != nil {
			return p.newGuard(pc), nil
		}
		if mayCreate {
			// The factory shares the acquire deadline.
			cctx, cancel := context.WithDeadline(ctx, deadlineAt)
			pc, err := p.create(cctx)
			cancel()
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
					return nil, p.timedOut()
				}
				return nil, err
			}
			return p.newGuard(pc), nil
		}

		select {
		case <-deadline.C:
			return nil, p.timedOut()
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 8*p.cfg.RetryInterval {
			backoff *= 2
		}
	}
}

func (p *Pool[C]) timedOut() error {
	p.mu.Lock()
	p.stats.Timeouts++
	p.mu.Unlock()
	return fmt.Errorf("%w after %s", ErrAcquireTimeout, p.cfg.AcquireTimeout)
}

// tryTake pops a live idle handle, or reserves a creation slot when the pool
// is below its bound.
func (p *Pool[C]) tryTake() (*pooledConn[C], bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, false, ErrPoolClosed
	}
	p.pruneLocked()

	if n := len(p.idle); n > 0 {
		// LIFO keeps recently used handles warm and lets the rest idle out.
		pc := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.stats.Idle--
		p.stats.Active++
		pc.lastUsed = p.now()
		pc.useCount++
		return pc, false, nil
	}

	if p.stats.Active+p.stats.Idle+p.creating < p.cfg.MaxConnections {
		p.creating++
		return nil, true, nil
	}
	return nil, false, nil
}

func (p *Pool[C]) create(ctx context.Context) (*pooledConn[C], error) {
	conn, err := p.factory(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.creating--
	if err != nil {
		return nil, fmt.Errorf("pool: failed to open connection: %w", err)
	}
	now := p.now()
	p.stats.TotalCreated++
	p.stats.Active++
	return &pooledConn[C]{conn: conn, createdAt: now, lastUsed: now, useCount: 1}, nil
}

// pruneLocked closes idle handles past their lifetime or idle limit
func (p *Pool[C]) pruneLocked() {
	now := p.now()
	kept := p.idle[:0]
	for _, pc := range p.idle {
		if pc.expired(now, p.cfg.MaxLifetime) || pc.idleTooLong(now, p.cfg.MaxIdleTime) {
			p.closeLocked(pc)
			p.stats.Idle--
			continue
		}
		kept = append(kept, pc)
	}
	for i := len(kept); i < len(p.idle); i++ {
		p.idle[i] = nil
	}
	p.idle = kept
}

func (p *Pool[C]) closeLocked(pc *pooledConn[C]) {
	p.stats.Discarded++
	if err := pc.conn.Close(); err != nil {
		internal.LogWarn("pool: failed to close connection: %v", err)
	}
}

// release returns pc to the idle set or discards it
func (p *Pool[C]) release(pc *pooledConn[C], broken bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Active--
	now := p.now()
	if broken || p.closed || pc.expired(now, p.cfg.MaxLifetime) || len(p.idle) >= p.cfg.MaxConnections {
		p.closeLocked(pc)
		return
	}
	pc.lastUsed = now
	p.idle = append(p.idle, pc)
	p.stats.Idle++
}

// With acquires a handle, runs fn and releases the handle on every path.
// A driver.ErrBadConn from fn discards the handle instead of reusing it.
func (p *Pool[C]) With(ctx context.Context, fn func(C) error) (err error) {
	g, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			g.Discard()
			panic(r)
		}
		if errors.Is(err, driver.ErrBadConn) {
			g.Discard()
			return
		}
		g.Release()
	}()
	return fn(g.Conn())
}

// Stats returns a snapshot of the counters
func (p *Pool[C]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Config returns the pool bounds
func (p *Pool[C]) Config() Config {
	return p.cfg
}

// Close closes idle handles. Handles still checked out are closed when their
// guards are released.
func (p *Pool[C]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, pc := range p.idle {
		p.stats.Discarded++
		p.stats.Idle--
		if err := pc.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.idle = nil
	return errors.Join(errs...)
}
