package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrSnakeDoc/marks/internal/bus"
	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/mutation"
)

// RequestCreate creates a record for the current principal. The record
// reaches the view through the bus before this returns.
func (e *Engine) RequestCreate(ctx context.Context, title, url string) (domain.Record, *mutation.Receipt, error) {
	p := e.Principal()
	if !p.Known() {
		return domain.Record{}, nil, domain.ErrUnauthenticated
	}
	return e.creator.Create(ctx, title, url, p.ID)
}

// RequestDelete removes id from the view immediately and asks the store to
// delete it in the background. If the store refuses, the record is put back
// (unless the principal changed meanwhile), bus.TopicDeleteFailed is
// published and the receipt carries the error.
func (e *Engine) RequestDelete(ctx context.Context, id string) (*mutation.Receipt, error) {
	var (
		removed domain.Entry
		had     bool
		owner   string
		gen     uint64
	)

	e.mu.Lock()
	if !e.principal.Known() {
		e.mu.Unlock()
		return nil, domain.ErrUnauthenticated
	}
	owner, gen = e.principal.ID, e.generation
	removed, had = e.view.Remove(id)
	delete(e.touched, id)
	e.tombstones[id] = e.now()
	vc := domain.ViewChange{Generation: gen, Reason: "local_delete", Size: e.view.Len()}
	e.mu.Unlock()

	if had {
		_ = e.bus.Publish(bus.TopicViewChanged, vc)
	}

	receipt := mutation.NewReceipt(id)
	e.inflight.Add(1)
	go e.persistDelete(context.WithoutCancel(ctx), gen, owner, id, removed, had, receipt)
	return receipt, nil
}

func (e *Engine) persistDelete(ctx context.Context, gen uint64, owner, id string, removed domain.Entry, had bool, receipt *mutation.Receipt) {
	defer e.inflight.Done()

	err := e.store.Delete(ctx, owner, id)
	if errors.Is(err, domain.ErrNotFound) && !(had && removed.Status == domain.StatusPending) {
		// Someone else deleted it first. A pending record is different: its
		// insert has not landed yet, so the delete did not happen.
		err = nil
	}

	if err != nil {
		gone := false
		e.commit(func() (string, bool) {
			if gen != e.generation {
				return "", false
			}
			delete(e.tombstones, id)
			if _, rejected := e.rejected[id]; rejected {
				// The insert was refused: there is nothing to delete or restore.
				gone = true
				return "", false
			}
			if !had || !e.view.Insert(removed) {
				return "", false
			}
			e.touchLocked(id)
			return "delete_rejected", true
		})
		if gone {
			err = nil
		}
	}

	if err == nil {
		e.logger.Debug("record deleted", logger.String("record_id", id))
		receipt.Resolve(nil)
		return
	}

	e.logger.Error("failed to delete record",
		logger.String("record_id", id),
		logger.String("owner_id", owner),
		logger.Error(err))
	_ = e.bus.Publish(bus.TopicDeleteFailed, mutation.Rejection{Record: removed.Record, Err: err})
	receipt.Resolve(fmt.Errorf("delete record %s: %w", id, err))
}

// RequestRename changes the title of a confirmed record. The write is not
// optimistic: the view picks the new title up from the change stream.
func (e *Engine) RequestRename(ctx context.Context, id, title string) (domain.Record, error) {
	p := e.Principal()
	if !p.Known() {
		return domain.Record{}, domain.ErrUnauthenticated
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Record{}, fmt.Errorf("%w: title:required", domain.ErrInvalidRecord)
	}

	cur, ok := e.Get(id)
	if !ok {
		return domain.Record{}, domain.ErrNotFound
	}

	rec := cur.Record
	rec.Title = title
	if err := e.store.Update(ctx, p.ID, rec); err != nil {
		return domain.Record{}, fmt.Errorf("rename record %s: %w", id, err)
	}
	return rec, nil
}
