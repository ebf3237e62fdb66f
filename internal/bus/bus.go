// Package bus is an in-process, synchronous publish/subscribe mechanism.
//
// A Bus is an explicit object owned by the application and handed to the
// components that talk through it. There is no package-level instance.
package bus

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrSnakeDoc/marks/internal/logger"
)

// Handler receives a published payload. The payload is shared, not copied:
// handlers must treat it as read-only.
type Handler func(payload any) error

type subscriber struct {
	id uint64
	fn Handler
}

// Bus dispatches payloads to topic subscribers in subscription order.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	topics map[string][]subscriber
	logger logger.Logger
}

// New creates an empty Bus.
func New(log logger.Logger) *Bus {
	return &Bus{
		topics: make(map[string][]subscriber),
		logger: log,
	}
}

// Subscribe registers fn for topic and returns a function that removes it.
// The returned function is idempotent and may be called from inside a
// handler; a dispatch already in flight still reaches fn.
func (b *Bus) Subscribe(topic string, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.topics[topic] = append(b.topics[topic], subscriber{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Bus) remove(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[topic]
	i := slices.IndexFunc(subs, func(s subscriber) bool { return s.id == id })
	if i < 0 {
		return
	}
	// Build a new slice: in-flight dispatches hold the old one.
	next := make([]subscriber, 0, len(subs)-1)
	next = append(next, subs[:i]...)
	next = append(next, subs[i+1:]...)
	if len(next) == 0 {
		delete(b.topics, topic)
		return
	}
	b.topics[topic] = next
}

// Publish calls every handler registered for topic at the time of the call,
// synchronously and in subscription order. A failing handler does not stop
// delivery to the rest; all handler errors are logged and returned joined.
// Panics are not recovered.
func (b *Bus) Publish(topic string, payload any) error {
	b.mu.Lock()
	subs := b.topics[topic]
	b.mu.Unlock()

	var errs []error
	for _, s := range subs {
		if err := s.fn(payload); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}

	err := fmt.Errorf("publish %s: %w", topic, errors.Join(errs...))
	if b.logger != nil {
		b.logger.Warn("bus handler failed",
			logger.String("topic", topic),
			logger.Int("failed", len(errs)),
			logger.Int("subscribers", len(subs)),
			logger.Error(err))
	}
	return err
}

// Subscribers returns how many handlers are registered for topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

// ErrPayloadType is returned by typed handlers given a payload of the wrong type.
var ErrPayloadType = errors.New("unexpected payload type")

// On subscribes a handler that expects payloads of type T.
func On[T any](b *Bus, topic string, fn func(T) error) (unsubscribe func()) {
	return b.Subscribe(topic, func(payload any) error {
		v, ok := payload.(T)
		if !ok {
			var zero T
			return fmt.Errorf("%w: topic %s wants %T, got %T", ErrPayloadType, topic, zero, payload)
		}
		return fn(v)
	})
}
