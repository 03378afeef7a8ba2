package pool

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeConn struct {
	id     int
	closed atomic.Bool
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type factory struct {
	mu      sync.Mutex
	created []*fakeConn
	fail    error
}

func (f *factory) open(ctx context.Context) (*fakeConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	c := &fakeConn{id: len(f.created) + 1}
	f.created = append(f.created, c)
	return c, nil
}

func testConfig() Config {
	return Config{
		MaxConnections: 3,
		MinConnections: 1,
		MaxLifetime:    time.Hour,
		MaxIdleTime:    10 * time.Minute,
		AcquireTimeout: 50 * time.Millisecond,
		RetryInterval:  time.Millisecond,
	}
}

func assertBalanced(t *testing.T, s Stats) {
	t.Helper()
	assert.Equal(t, s.TotalCreated-s.Discarded, s.Active+s.Idle, "stats out of balance: %+v", s)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}, wantErr: false},
		{name: "zero max", mutate: func(c *Config) { c.MaxConnections = 0 }, wantErr: true},
		{name: "min above max", mutate: func(c *Config) { c.MinConnections = 11 }, wantErr: true},
		{name: "negative min", mutate: func(c *Config) { c.MinConnections = -1 }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.AcquireTimeout = 0 }, wantErr: true},
		{name: "zero lifetime", mutate: func(c *Config) { c.MaxLifetime = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_OpensMinConnections(t *testing.T) {
	f := &factory{}
	cfg := testConfig()
	cfg.MinConnections = 2

	p, err := New(context.Background(), cfg, f.open)
	require.NoError(t, err)
	defer p.Close()

	s := p.Stats()
	assert.Equal(t, 2, s.TotalCreated)
	assert.Equal(t, 2, s.Idle)
	assert.Equal(t, 0, s.Active)
	assertBalanced(t, s)
}

func TestNew_FactoryFailure(t *testing.T) {
	f := &factory{fail: errors.New("disk full")}
	_, err := New(context.Background(), testConfig(), f.open)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestAcquire_ReusesReleasedConnection(t *testing.T) {
	f := &factory{}
	p, err := New(context.Background(), testConfig(), f.open)
	require.NoError(t, err)
	defer p.Close()

	g1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	first := g1.Conn()
	g1.Release()

	g2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer g2.Release()

	assert.Same(t, first, g2.Conn())
	assert.Equal(t, 2, g2.UseCount())
	assert.Equal(t, 1, p.Stats().TotalCreated)
}

func TestAcquire_TimesOutWhenExhausted(t *testing.T) {
	f := &factory{}
	cfg := testConfig()
	cfg.MaxConnections = 1
	p, err := New(context.Background(), cfg, f.open)
	require.NoError(t, err)
	defer p.Close()

	g, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer g.Release()

	start := time.Now()
	_, err = p.Acquire(context.Background())
	require.ErrorIs(t, err, ErrAcquireTimeout)
	assert.GreaterOrEqual(t, time.Since(start), cfg.AcquireTimeout)

	s := p.Stats()
	assert.Equal(t, 1, s.Timeouts)
	assert.Equal(t, 2, s.Requests)
	assertBalanced(t, s)
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	f := &factory{}
	cfg := testConfig()
	cfg.MaxConnections = 1
	cfg.AcquireTimeout = time.Second
	p, err := New(context.Background(), cfg, f.open)
	require.NoError(t, err)
	defer p.Close()

	g, err := p.Acquire(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(20 * time.Millisecond)
		g.Release()
	}()

	g2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	g2.Release()
	<-done
	assert.Equal(t, 0, p.Stats().Timeouts)
}

func TestAcquire_ContextCancelled(t *testing.T) {
	f := &factory{}
	cfg := testConfig()
	cfg.MaxConnections = 1
	cfg.AcquireTimeout = time.Second
	p, err := New(context.Background(), cfg, f.open)
	require.NoError(t, err)
	defer p.Close()

	g, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer g.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquire_FactoryBoundedByAcquireTimeout(t *testing.T) {
	f := &factory{}
	var hang atomic.Bool
	hang.Store(true)
	open := func(ctx context.Context) (*fakeConn, error) {
		if hang.Load() {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return f.open(ctx)
	}

	cfg := testConfig()
	cfg.MinConnections = 0
	cfg.MaxConnections = 1
	p, err := New(context.Background(), cfg, open)
	require.NoError(t, err)
	defer p.Close()

	start := time.Now()
	_, err = p.Acquire(context.Background())
	require.ErrorIs(t, err, ErrAcquireTimeout)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, cfg.AcquireTimeout)
	assert.Less(t, elapsed, time.Second)

	s := p.Stats()
	assert.Equal(t, 1, s.Timeouts)
	assert.Equal(t, 0, s.TotalCreated)
	assertBalanced(t, s)

	// The failed attempt gave its creation slot back.
	hang.Store(false)
	g, err := p.Acquire(context.Background())
	require.NoError(t, err)
	g.Release()
	assert.Equal(t, 1, p.Stats().TotalCreated)
}

func TestAcquire_FactoryCallerCancel(t *testing.T) {
	open := func(ctx context.Context) (*fakeConn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	cfg := testConfig()
	cfg.MinConnections = 0
	cfg.AcquireTimeout = time.Second
	p, err := New(context.Background(), cfg, open)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrAcquireTimeout)
	assert.Equal(t, 0, p.Stats().Timeouts)
}

func TestRelease_DiscardsExpiredConnection(t *testing.T) {
	f := &factory{}
	clock := newFakeClock()
	cfg := testConfig()
	cfg.MinConnections = 0
	p, err := New(context.Background(), cfg, f.open, WithClock[*fakeConn](clock.Now))
	require.NoError(t, err)
	defer p.Close()

	g, err := p.Acquire(context.Background())
	require.NoError(t, err)
	conn := g.Conn()

	clock.Advance(cfg.MaxLifetime + time.Second)
	g.Release()

	assert.True(t, conn.closed.Load())
	s := p.Stats()
	assert.Equal(t, 0, s.Idle)
	assert.Equal(t, 1, s.Discarded)
	assertBalanced(t, s)
}

func TestAcquire_PrunesIdleConnections(t *testing.T) {
	f := &factory{}
	clock := newFakeClock()
	cfg := testConfig()
	cfg.MinConnections = 2
	p, err := New(context.Background(), cfg, f.open, WithClock[*fakeConn](clock.Now))
	require.NoError(t, err)
	defer p.Close()

	clock.Advance(cfg.MaxIdleTime + time.Second)

	g, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer g.Release()

	assert.Equal(t, 3, g.Conn().id, "stale handles should be replaced by a fresh one")
	for _, c := range f.created[:2] {
		assert.True(t, c.closed.Load())
	}
	s := p.Stats()
	assert.Equal(t, 2, s.Discarded)
	assertBalanced(t, s)
}

func TestGuard_ReleaseIsIdempotent(t *testing.T) {
	f := &factory{}
	p, err := New(context.Background(), testConfig(), f.open)
	require.NoError(t, err)
	defer p.Close()

	g, err := p.Acquire(context.Background())
	require.NoError(t, err)
	g.Release()
	g.Release()
	g.Discard()

	s := p.Stats()
	assert.Equal(t, 0, s.Active)
	assert.Equal(t, 1, s.Idle)
	assertBalanced(t, s)
}

func TestWith_ReleasesOnEveryPath(t *testing.T) {
	f := &factory{}
	p, err := New(context.Background(), testConfig(), f.open)
	require.NoError(t, err)
	defer p.Close()

	boom := errors.New("query failed")
	err = p.With(context.Background(), func(*fakeConn) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, p.Stats().Active)

	err = p.With(context.Background(), func(*fakeConn) error { return driver.ErrBadConn })
	assert.ErrorIs(t, err, driver.ErrBadConn)
	s := p.Stats()
	assert.Equal(t, 0, s.Active)
	assert.Equal(t, 1, s.Discarded)

	assert.Panics(t, func() {
		_ = p.With(context.Background(), func(*fakeConn) error { panic("bad") })
	})
	s = p.Stats()
	assert.Equal(t, 0, s.Active)
	assertBalanced(t, s)
}

func TestConcurrentAcquireNeverExceedsMax(t *testing.T) {
	f := &factory{}
	cfg := testConfig()
	cfg.MaxConnections = 3
	cfg.MinConnections = 0
	cfg.AcquireTimeout = 5 * time.Second
	p, err := New(context.Background(), cfg, f.open)
	require.NoError(t, err)
	defer p.Close()

	var outstanding, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.With(context.Background(), func(*fakeConn) error {
				n := outstanding.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				outstanding.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, int(peak.Load()), cfg.MaxConnections)
	s := p.Stats()
	assert.LessOrEqual(t, s.TotalCreated, cfg.MaxConnections)
	assert.Equal(t, 20, s.Requests)
	assert.Equal(t, 0, s.Active)
	assertBalanced(t, s)
}

func TestClose(t *testing.T) {
	f := &factory{}
	cfg := testConfig()
	cfg.MinConnections = 2
	p, err := New(context.Background(), cfg, f.open)
	require.NoError(t, err)

	g, err := p.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)

	g.Release()
	assert.True(t, g.Conn().closed.Load(), "handles released after Close are closed")
	for _, c := range f.created {
		assert.True(t, c.closed.Load())
	}
	s := p.Stats()
	assert.Equal(t, 0, s.Active+s.Idle)
	assertBalanced(t, s)
}
