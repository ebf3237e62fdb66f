package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/marks/internal/logger"
)

// DefaultTombstoneTTL is how long a deletion keeps rejecting replayed writes.
const DefaultTombstoneTTL = time.Hour

// Pruner forgets deletions older than a threshold.
type Pruner interface {
	PruneTombstones(olderThan time.Duration) int
}

// TombstoneCollector bounds the memory held by delete tombstones.
type TombstoneCollector struct {
	pruner   Pruner
	logger   logger.Logger
	interval time.Duration
	ttl      time.Duration
	stopCh   chan struct{}
}

// NewTombstoneCollector creates a new collector
func NewTombstoneCollector(
	pruner Pruner,
	log logger.Logger,
	interval time.Duration,
	ttl time.Duration,
) *TombstoneCollector {
	if ttl == 0 {
		ttl = DefaultTombstoneTTL
	}

	return &TombstoneCollector{
		pruner:   pruner,
		logger:   log,
		interval: interval,
		ttl:      ttl,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection process
func (tc *TombstoneCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(tc.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				tc.Collect()
			case <-tc.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the collector
func (tc *TombstoneCollector) Stop() {
	close(tc.stopCh)
}

// Collect prunes expired tombstones and returns how many were dropped.
func (tc *TombstoneCollector) Collect() int {
	pruned := tc.pruner.PruneTombstones(tc.ttl)
	if pruned > 0 {
		tc.logger.Info("tombstones collected",
			logger.Int("pruned", pruned),
			logger.Duration("ttl", tc.ttl))
	} else {
		tc.logger.Debug("no tombstones to collect")
	}
	return pruned
}
