package reconcile

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

// SwitchPrincipal scopes the view to p. The current subscription is
// cancelled and the view cleared; for an authenticated principal a new
// subscription is opened, then the snapshot is loaded and merged, then
// stream events start flowing. Events still arriving from the old
// subscription are discarded by generation.
//
// On error the principal stays switched but the view is empty. The next
// Resync, or another SwitchPrincipal, opens the subscription again.
func (e *Engine) SwitchPrincipal(ctx context.Context, p domain.Principal) error {
	e.mu.Lock()
	oldStream, oldStop := e.detachStreamLocked()
	e.generation++
	gen := e.generation
	e.principal = p
	e.view.Reset(nil)
	clear(e.tombstones)
	clear(e.rejected)
	clear(e.touched)
	e.mu.Unlock()

	if err := closeStream(oldStream, oldStop); err != nil {
		e.logger.Warn("failed to close previous change stream", logger.Error(err))
	}
	e.commit(func() (string, bool) { return "principal_changed", gen == e.generation })

	e.logger.Info("principal switched",
		logger.String("principal_id", p.ID),
		logger.Bool("authenticated", p.Known()),
		logger.Uint64("generation", gen))

	if !p.Known() {
		return nil
	}
	return e.attach(ctx, gen, p, 0, "snapshot")
}

// attach opens the change stream for p, merges the snapshot using epoch
// mark and starts pumping events. It gives up if the generation moved on,
// the engine was closed or another attach won the race.
func (e *Engine) attach(ctx context.Context, gen uint64, p domain.Principal, mark uint64, reason string) error {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := e.feed.Subscribe(streamCtx, domain.Filter{
		EventKind: domain.ChangeAny,
		Schema:    e.scope.Schema,
		Table:     e.scope.Table,
		OwnerID:   p.ID,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to changes: %w", err)
	}

	// Subscribed before listing: anything committed while the snapshot loads
	// is buffered in the stream and absorbed as a duplicate or a newer write.
	snapshot, err := e.store.List(ctx, p.ID)
	if err != nil {
		_ = closeStream(stream, cancel)
		return fmt.Errorf("load snapshot: %w", err)
	}

	e.mu.Lock()
	if gen != e.generation || e.closed || e.stream != nil {
		e.mu.Unlock()
		e.logger.Debug("subscription superseded", logger.Uint64("generation", gen))
		return closeStream(stream, cancel)
	}
	e.stream, e.stopStream = stream, cancel
	e.pumps.Add(1)
	e.mu.Unlock()

	e.commit(func() (string, bool) {
		if gen != e.generation {
			return "", false
		}
		e.mergeLocked(snapshot, mark)
		return reason, true
	})

	go e.pump(streamCtx, gen, stream)
	return nil
}

// SignOut switches to the anonymous principal.
func (e *Engine) SignOut(ctx context.Context) error {
	return e.SwitchPrincipal(ctx, domain.Anonymous())
}

// Resync re-reads the snapshot and merges it into the view, recovering
// changes the stream skipped (e.g. across a reconnect). Without a live
// subscription, after a failed SwitchPrincipal, it subscribes again.
func (e *Engine) Resync(ctx context.Context) error {
	e.mu.Lock()
	p, gen, mark := e.principal, e.generation, e.epoch
	detached := e.stream == nil && !e.closed
	e.mu.Unlock()

	if !p.Known() {
		return nil
	}
	if detached {
		e.logger.Info("resubscribing to changes", logger.String("principal_id", p.ID))
		if err := e.attach(ctx, gen, p, mark, "resync"); err != nil {
			return fmt.Errorf("resync: %w", err)
		}
		return nil
	}

	snapshot, err := e.store.List(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("resync snapshot: %w", err)
	}

	e.commit(func() (string, bool) {
		if gen != e.generation {
			return "", false
		}
		e.mergeLocked(snapshot, mark)
		return "resync", true
	})
	return nil
}

// mergeLocked rebuilds the view from snapshot. Entries changed after epoch
// mark (the snapshot may predate them) and pending local entries survive;
// other entries missing from the snapshot were deleted behind our back.
func (e *Engine) mergeLocked(snapshot []domain.Record, mark uint64) {
	next := make([]domain.Entry, 0, len(snapshot)+e.view.Len())
	seen := make(map[string]bool, len(snapshot))

	for _, r := range snapshot {
		if !e.ownsLocked(r) {
			continue
		}
		if _, dead := e.tombstones[r.ID]; dead {
			continue
		}
		if cur, ok := e.view.Get(r.ID); ok && e.touched[r.ID] > mark {
			next = append(next, domain.Entry{Record: cur.Record, Status: domain.StatusConfirmed})
		} else {
			next = append(next, domain.Entry{Record: r, Status: domain.StatusConfirmed})
		}
		seen[r.ID] = true
	}

	for _, cur := range e.view.Entries() {
		if seen[cur.ID] {
			continue
		}
		if cur.Status == domain.StatusPending || e.touched[cur.ID] > mark {
			next = append(next, cur)
			continue
		}
		delete(e.touched, cur.ID)
	}

	e.view.Reset(next)
}

func (e *Engine) pump(ctx context.Context, gen uint64, stream domain.ChangeStream) {
	defer e.pumps.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-stream.Changes():
			if !ok {
				e.logger.Debug("change stream closed", logger.Uint64("generation", gen))
				e.release(stream)
				return
			}
			e.ingest(gen, c)
		}
	}
}

// detachStreamLocked hands the active stream over to the caller, who must
// close it once the lock is released.
func (e *Engine) detachStreamLocked() (domain.ChangeStream, context.CancelFunc) {
	stream, stop := e.stream, e.stopStream
	e.stream, e.stopStream = nil, nil
	return stream, stop
}

// release forgets stream if it is still the active one, so the next Resync
// subscribes again.
func (e *Engine) release(stream domain.ChangeStream) {
	e.mu.Lock()
	var stop context.CancelFunc
	if e.stream == stream {
		stream, stop = e.detachStreamLocked()
	} else {
		stream = nil
	}
	e.mu.Unlock()

	_ = closeStream(stream, stop)
}

func closeStream(stream domain.ChangeStream, stop context.CancelFunc) error {
	if stop != nil {
		stop()
	}
	if stream == nil {
		return nil
	}
	return stream.Close()
}
