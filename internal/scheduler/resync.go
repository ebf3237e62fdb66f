package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/marks/internal/logger"
)

// Syncer re-reads the durable snapshot into the view.
type Syncer interface {
	Resync(ctx context.Context) error
}

// Resyncer periodically reconciles the view with the store, recovering
// changes the stream missed while disconnected.
type Resyncer struct {
	syncer        Syncer
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
	done          chan struct{}
}

// NewResyncer creates a new resyncer. A send on manualTrigger forces an
// immediate resync.
func NewResyncer(
	syncer Syncer,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *Resyncer {
	return &Resyncer{
		syncer:        syncer,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
		done:          make(chan struct{}),
	}
}

// Start begins the periodic resync process
func (r *Resyncer) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	go func() {
		defer close(r.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.run(ctx)
			case <-r.manualTrigger:
				r.logger.Info("manual resync triggered")
				r.run(ctx)
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the resyncer and waits for a running resync to finish.
func (r *Resyncer) Stop() {
	close(r.stopCh)
	<-r.done
}

func (r *Resyncer) run(ctx context.Context) {
	start := time.Now()
	if err := r.syncer.Resync(ctx); err != nil {
		r.logger.Error("failed to resync view", logger.Error(err))
		return
	}
	r.logger.Debug("view resynced", logger.Duration("took", time.Since(start)))
}
