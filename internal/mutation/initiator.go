// Package mutation originates records locally and persists them behind the
// caller's back.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/MrSnakeDoc/marks/internal/bus"
	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

// Persister is the insert half of the durable store.
type Persister interface {
	Insert(ctx context.Context, r domain.Record) error
}

// Rejection is published when the store refuses a mutation.
type Rejection struct {
	Record domain.Record
	Err    error
}

// Initiator creates records optimistically: the record is announced on the
// bus before the store has seen it.
type Initiator struct {
	bus      *bus.Bus
	store    Persister
	logger   logger.Logger
	validate *validator.Validate

	// Overridable in tests.
	now   func() time.Time
	newID func() string

	inflight sync.WaitGroup
}

// NewInitiator creates an Initiator publishing on b and persisting to store.
func NewInitiator(b *bus.Bus, store Persister, log logger.Logger) *Initiator {
	return &Initiator{
		bus:      b,
		store:    store,
		logger:   log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		newID:    newRecordID,
	}
}

// newRecordID returns a UUIDv7: random enough to never collide across
// clients, and roughly time-ordered.
func newRecordID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Create stamps a new record for ownerID, publishes it on
// bus.TopicRecordCreated and then persists it asynchronously. The record is
// returned immediately; the receipt resolves once the store answers.
func (i *Initiator) Create(ctx context.Context, title, url, ownerID string) (domain.Record, *Receipt, error) {
	if ownerID == "" {
		return domain.Record{}, nil, domain.ErrUnauthenticated
	}

	rec := domain.Record{
		ID:        i.newID(),
		Title:     strings.TrimSpace(title),
		URL:       strings.TrimSpace(url),
		OwnerID:   ownerID,
		CreatedAt: i.now().UTC(),
	}
	if err := i.validate.Struct(rec); err != nil {
		return domain.Record{}, nil, fmt.Errorf("%w: %s", domain.ErrInvalidRecord, describe(err))
	}

	// The view must reflect the record before any network I/O.
	if err := i.bus.Publish(bus.TopicRecordCreated, rec); err != nil {
		i.logger.Warn("optimistic publish failed, persisting anyway",
			logger.String("record_id", rec.ID),
			logger.Error(err))
	}

	receipt := NewReceipt(rec.ID)
	i.inflight.Add(1)
	go i.persist(context.WithoutCancel(ctx), rec, receipt)

	return rec, receipt, nil
}

func (i *Initiator) persist(ctx context.Context, rec domain.Record, receipt *Receipt) {
	defer i.inflight.Done()

	if err := i.store.Insert(ctx, rec); err != nil {
		i.logger.Error("failed to persist record",
			logger.String("record_id", rec.ID),
			logger.String("owner_id", rec.OwnerID),
			logger.Error(err))
		_ = i.bus.Publish(bus.TopicRecordRejected, Rejection{Record: rec, Err: err})
		receipt.Resolve(fmt.Errorf("persist record %s: %w", rec.ID, err))
		return
	}

	i.logger.Debug("record persisted", logger.String("record_id", rec.ID))
	_ = i.bus.Publish(bus.TopicRecordConfirmed, rec)
	receipt.Resolve(nil)
}

// Wait blocks until every in-flight persistence request has finished.
func (i *Initiator) Wait() {
	i.inflight.Wait()
}

// describe flattens validator errors into "field:tag" pairs.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+":"+fe.Tag())
	}
	return strings.Join(parts, ", ")
}
