package mutation

import (
	"context"
	"sync"

	"github.com/MrSnakeDoc/marks/internal/domain"
)

// Receipt reports the out-of-band outcome of a persistence request.
type Receipt struct {
	// ID of the record the request was about.
	ID string

	once   sync.Once
	done   chan struct{}
	status domain.Status
	err    error
}

// NewReceipt returns a pending receipt for id.
func NewReceipt(id string) *Receipt {
	return &Receipt{
		ID:     id,
		done:   make(chan struct{}),
		status: domain.StatusPending,
	}
}

// Resolve records the outcome. A nil err confirms, anything else rejects.
// Only the first call has an effect.
func (r *Receipt) Resolve(err error) {
	r.once.Do(func() {
		r.err = err
		if err != nil {
			r.status = domain.StatusRejected
		} else {
			r.status = domain.StatusConfirmed
		}
		close(r.done)
	})
}

// Done is closed once the outcome is known.
func (r *Receipt) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the outcome is known or ctx ends. It returns the
// persistence error, or ctx's error if ctx ended first.
func (r *Receipt) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status is pending until Resolve is called.
func (r *Receipt) Status() domain.Status {
	select {
	case <-r.done:
		return r.status
	default:
		return domain.StatusPending
	}
}

// Err returns the persistence error, nil while pending or once confirmed.
func (r *Receipt) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}
