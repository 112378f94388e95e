// Package occupancy maintains the current headcount per target. Counters for
// different targets are independent; updates to the same target are atomic.
package occupancy

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Tracker exposes per-target headcount operations. Apply returns the new
// count. An exit delta that would drive the count negative is clamped to zero
// and logged as an anomaly rather than failing the scan; entry/exit pairing
// across devices is historically best-effort.
type Tracker interface {
	Get(ctx context.Context, targetID string) (int, error)
	Apply(ctx context.Context, targetID string, delta int) (int, error)
}

// MemoryTracker keeps counters in process memory, one lock per target.
type MemoryTracker struct {
	mu     sync.Mutex
	counts map[string]*counter
	logger *zap.Logger
}

type counter struct {
	mu    sync.Mutex
	value int
}

// NewMemoryTracker initializes an empty tracker.
func NewMemoryTracker(logger *zap.Logger) *MemoryTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryTracker{counts: make(map[string]*counter), logger: logger}
}

func (t *MemoryTracker) counterFor(targetID string) *counter {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.counts[targetID]
	if !ok {
		c = &counter{}
		t.counts[targetID] = c
	}
	return c
}

// Get returns the current count for the target.
func (t *MemoryTracker) Get(_ context.Context, targetID string) (int, error) {
	c := t.counterFor(targetID)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, nil
}

// Apply atomically adjusts the count, clamping at zero.
func (t *MemoryTracker) Apply(_ context.Context, targetID string, delta int) (int, error) {
	c := t.counterFor(targetID)
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.value + delta
	if next < 0 {
		t.logger.Warn("occupancy underflow clamped",
			zap.String("target_id", targetID),
			zap.Int("count", c.value),
			zap.Int("delta", delta))
		next = 0
	}
	c.value = next
	return next, nil
}
