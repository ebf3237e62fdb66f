// Package reconcile owns the bookmark view and folds local optimistic
// mutations and the remote change stream into it.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/marks/internal/bus"
	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/index"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/mutation"
)

// Store is the query surface of the durable store.
type Store interface {
	List(ctx context.Context, ownerID string) ([]domain.Record, error)
	Delete(ctx context.Context, ownerID, id string) error
	Update(ctx context.Context, ownerID string, r domain.Record) error
}

// Feed opens change-data-capture subscriptions.
type Feed interface {
	Subscribe(ctx context.Context, filter domain.Filter) (domain.ChangeStream, error)
}

// Creator originates records; implemented by *mutation.Initiator.
type Creator interface {
	Create(ctx context.Context, title, url, ownerID string) (domain.Record, *mutation.Receipt, error)
}

// Scope names the table the engine subscribes to.
type Scope struct {
	Schema string // ex: "public"
	Table  string // ex: "bookmarks"
}

// Engine is the single owner of the view.
//
// Every mutation of the view runs to completion under mu. Store calls, feed
// setup and bus notifications happen outside of it.
type Engine struct {
	mu         sync.Mutex
	view       *index.Ordered
	tombstones map[string]time.Time // id -> removal time
	rejected   map[string]time.Time // id -> time the store refused our insert
	touched    map[string]uint64    // id -> epoch of last change
	epoch      uint64
	principal  domain.Principal
	generation uint64
	stream     domain.ChangeStream
	stopStream context.CancelFunc
	closed     bool

	store   Store
	feed    Feed
	creator Creator
	bus     *bus.Bus
	logger  logger.Logger
	scope   Scope
	now     func() time.Time

	unsubscribe []func()
	pumps       sync.WaitGroup
	inflight    sync.WaitGroup
}

// New creates an Engine and subscribes it to the local bus.
// The view starts empty under the anonymous principal.
func New(scope Scope, store Store, feed Feed, creator Creator, b *bus.Bus, log logger.Logger) *Engine {
	e := &Engine{
		view:       index.NewOrdered(),
		tombstones: make(map[string]time.Time),
		rejected:   make(map[string]time.Time),
		touched:    make(map[string]uint64),
		store:      store,
		feed:       feed,
		creator:    creator,
		bus:        b,
		logger:     log.With(logger.String("component", "reconcile")),
		scope:      scope,
		now:        time.Now,
	}

	e.unsubscribe = append(e.unsubscribe,
		bus.On(b, bus.TopicRecordCreated, func(r domain.Record) error {
			e.OnLocalInsert(r)
			return nil
		}),
		bus.On(b, bus.TopicRecordConfirmed, func(r domain.Record) error {
			e.onConfirmed(r)
			return nil
		}),
		bus.On(b, bus.TopicRecordRejected, func(rej mutation.Rejection) error {
			e.onRejected(rej)
			return nil
		}),
	)

	return e
}

// Initialize replaces the view wholesale with a snapshot from the store.
func (e *Engine) Initialize(snapshot []domain.Record) {
	e.commit(func() (string, bool) {
		clear(e.touched)
		entries := make([]domain.Entry, 0, len(snapshot))
		for _, r := range snapshot {
			if !e.ownsLocked(r) {
				continue
			}
			entries = append(entries, domain.Entry{Record: r, Status: domain.StatusConfirmed})
			e.touchLocked(r.ID)
		}
		e.view.Reset(entries)
		return "initialize", true
	})
}

// OnLocalInsert adds a record created in this process. Applying it twice is
// the same as applying it once.
func (e *Engine) OnLocalInsert(r domain.Record) {
	e.commit(func() (string, bool) {
		if !e.ownsLocked(r) {
			e.logger.Debug("dropping local insert for another owner",
				logger.String("record_id", r.ID),
				logger.String("owner_id", r.OwnerID))
			return "", false
		}
		if !e.view.Insert(domain.Entry{Record: r, Status: domain.StatusPending}) {
			return "", false
		}
		e.touchLocked(r.ID)
		return "local_insert", true
	})
}

// OnRemoteChange applies one change-stream event. Duplicates and reordering
// are absorbed; nothing is ever returned to the caller.
func (e *Engine) OnRemoteChange(c domain.Change) {
	e.commit(func() (string, bool) {
		return e.applyLocked(c)
	})
}

// ingest is OnRemoteChange for events pumped from a subscription opened
// under generation gen. Events from a superseded subscription are dropped.
func (e *Engine) ingest(gen uint64, c domain.Change) {
	e.commit(func() (string, bool) {
		if gen != e.generation {
			e.logger.Debug("dropping stale change",
				logger.String("kind", string(c.Kind)),
				logger.String("record_id", c.ID),
				logger.Uint64("event_generation", gen),
				logger.Uint64("generation", e.generation))
			return "", false
		}
		return e.applyLocked(c)
	})
}

func (e *Engine) applyLocked(c domain.Change) (string, bool) {
	switch c.Kind {
	case domain.ChangeInsert, domain.ChangeUpdate:
		if c.Record == nil {
			e.logger.Warn("change without record", logger.String("kind", string(c.Kind)), logger.String("record_id", c.ID))
			return "", false
		}
		r := *c.Record
		if !e.ownsLocked(r) {
			e.logger.Debug("dropping change for another owner",
				logger.String("record_id", r.ID),
				logger.String("owner_id", r.OwnerID))
			return "", false
		}
		if _, dead := e.tombstones[r.ID]; dead {
			// Delete wins over late or replayed writes.
			return "", false
		}

		next := domain.Entry{Record: r, Status: domain.StatusConfirmed}
		current, ok := e.view.Get(r.ID)
		switch {
		case !ok:
			e.view.Insert(next)
			e.touchLocked(r.ID)
			return "remote_insert", true
		case c.Kind == domain.ChangeUpdate:
			e.view.Replace(next)
			e.touchLocked(r.ID)
			return "remote_update", true
		case current.Status == domain.StatusPending:
			e.view.SetStatus(r.ID, domain.StatusConfirmed)
			e.touchLocked(r.ID)
			return "confirmed", true
		default:
			return "", false
		}

	case domain.ChangeDelete:
		id := c.ID
		if id == "" && c.Record != nil {
			id = c.Record.ID
		}
		if id == "" {
			return "", false
		}
		e.tombstones[id] = e.now()
		if _, ok := e.view.Remove(id); !ok {
			return "", false
		}
		delete(e.touched, id)
		return "remote_delete", true

	default:
		e.logger.Warn("unknown change kind", logger.String("kind", string(c.Kind)))
		return "", false
	}
}

func (e *Engine) onConfirmed(r domain.Record) {
	e.commit(func() (string, bool) {
		cur, ok := e.view.Get(r.ID)
		if !ok || cur.Status != domain.StatusPending {
			return "", false
		}
		e.view.SetStatus(r.ID, domain.StatusConfirmed)
		e.touchLocked(r.ID)
		return "confirmed", true
	})
}

// onRejected retracts an optimistic insert the store refused. The id is
// remembered even when a local delete already removed the entry, so that
// rolling back that delete does not bring the record back.
func (e *Engine) onRejected(rej mutation.Rejection) {
	e.commit(func() (string, bool) {
		e.rejected[rej.Record.ID] = e.now()
		cur, ok := e.view.Get(rej.Record.ID)
		if !ok || cur.Status != domain.StatusPending {
			return "", false
		}
		e.view.Remove(rej.Record.ID)
		delete(e.touched, rej.Record.ID)
		e.logger.Warn("retracted rejected record",
			logger.String("record_id", rej.Record.ID),
			logger.Error(rej.Err))
		return "insert_rejected", true
	})
}

// ownsLocked implements the ownership filter. Without a known principal
// nothing is filtered.
func (e *Engine) ownsLocked(r domain.Record) bool {
	return !e.principal.Known() || r.OwnerID == e.principal.ID
}

func (e *Engine) touchLocked(id string) {
	e.epoch++
	e.touched[id] = e.epoch
}

// commit runs fn under the lock and, when fn reports a change, publishes
// bus.TopicViewChanged after releasing it.
func (e *Engine) commit(fn func() (reason string, changed bool)) {
	e.mu.Lock()
	reason, changed := fn()
	vc := domain.ViewChange{Generation: e.generation, Reason: reason, Size: e.view.Len()}
	e.mu.Unlock()

	if changed {
		_ = e.bus.Publish(bus.TopicViewChanged, vc)
	}
}

// Snapshot returns the view in display order.
func (e *Engine) Snapshot() []domain.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view.Entries()
}

// Get returns the entry for id.
func (e *Engine) Get(id string) (domain.Entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view.Get(id)
}

// Len returns the number of entries in the view.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view.Len()
}

// Principal returns the principal the view is scoped to.
func (e *Engine) Principal() domain.Principal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.principal
}

// Generation increases on every principal switch.
func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// Tombstones returns how many deleted ids are remembered.
func (e *Engine) Tombstones() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tombstones)
}

// PruneTombstones forgets deletions older than olderThan and returns how
// many were dropped. After that, a replayed insert for such an id would be
// accepted again.
func (e *Engine) PruneTombstones(olderThan time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-olderThan)
	pruned := 0
	for id, at := range e.tombstones {
		if at.Before(cutoff) {
			delete(e.tombstones, id)
			pruned++
		}
	}
	for id, at := range e.rejected {
		if at.Before(cutoff) {
			delete(e.rejected, id)
		}
	}
	return pruned
}

// Close detaches the engine from the bus, stops the change stream and waits
// for in-flight deletes. A subscription still being opened is discarded.
func (e *Engine) Close() error {
	for _, unsub := range e.unsubscribe {
		unsub()
	}

	e.mu.Lock()
	e.closed = true
	stream, stop := e.detachStreamLocked()
	e.mu.Unlock()

	err := closeStream(stream, stop)
	e.pumps.Wait()
	e.inflight.Wait()
	return err
}
