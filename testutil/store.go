package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/iksnae/tempo/internal/pool"
	"github.com/iksnae/tempo/internal/store"
)

// TestPoolConfig is a small pool with short timeouts
func TestPoolConfig() pool.Config {
	return pool.Config{
		MaxConnections: 4,
		MinConnections: 1,
		MaxLifetime:    time.Hour,
		MaxIdleTime:    10 * time.Minute,
		AcquireTimeout: 2 * time.Second,
		RetryInterval:  time.Millisecond,
	}
}

// OpenTestStore opens a file-backed store in a temp directory. Separate
// in-memory databases per pooled handle would not share data.
func OpenTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(CreateTempDir(t), "data.db")
	s, err := store.Open(context.Background(), dbPath, TestPoolConfig())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
