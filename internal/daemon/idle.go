package daemon

import (
	"context"
	"time"

	"github.com/iksnae/tempo/internal"
)

// IdleMonitor periodically pauses a session that has gone quiet
type IdleMonitor struct {
	state    *State
	interval time.Duration
}

// NewIdleMonitor creates a monitor checking state every interval
func NewIdleMonitor(state *State, interval time.Duration) *IdleMonitor {
	return &IdleMonitor{state: state, interval: interval}
}

// Run checks until ctx is cancelled
func (m *IdleMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	internal.LogDebug("idle monitor started (every %s, timeout %s)", m.interval, m.state.idleTimeout)
	for {
		select {
		case <-ctx.Done():
			internal.LogDebug("idle monitor stopped")
			return nil
		case <-ticker.C:
			m.state.CheckIdle()
		}
	}
}
