package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/redis/go-redis/v9"
)

// DefaultStreamBuffer is the channel size of a subscription.
const DefaultStreamBuffer = 256

// Feed turns the pub/sub channels written by Store into change streams.
type Feed struct {
	client *redis.Client
	ns     Namespace
	buffer int
	logger logger.Logger
}

// NewFeed creates a Feed reading the channels of ns.
func NewFeed(client *redis.Client, ns Namespace, buffer int, log logger.Logger) *Feed {
	if buffer <= 0 {
		buffer = DefaultStreamBuffer
	}
	return &Feed{
		client: client,
		ns:     ns,
		buffer: buffer,
		logger: log,
	}
}

// Subscribe opens a stream for filter. It returns once Redis has confirmed
// the subscription, so every change committed afterwards is delivered.
// The stream ends when ctx is done or Close is called.
func (f *Feed) Subscribe(ctx context.Context, filter domain.Filter) (domain.ChangeStream, error) {
	ns := f.ns
	if filter.Schema != "" {
		ns.Schema = filter.Schema
	}
	if filter.Table != "" {
		ns.Table = filter.Table
	}
	channel := ns.ChangesChannel(filter.OwnerID)

	ps := f.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	s := &stream{
		pubsub:  ps,
		filter:  filter,
		changes: make(chan domain.Change, f.buffer),
		done:    make(chan struct{}),
		logger:  f.logger.With(logger.String("channel", channel)),
	}
	go s.run(ctx, ps.Channel(redis.WithChannelSize(f.buffer)))

	f.logger.Debug("change stream opened", logger.String("channel", channel))
	return s, nil
}

type stream struct {
	pubsub  *redis.PubSub
	filter  domain.Filter
	changes chan domain.Change
	done    chan struct{}
	once    sync.Once
	logger  logger.Logger
}

func (s *stream) Changes() <-chan domain.Change {
	return s.changes
}

func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

func (s *stream) run(ctx context.Context, msgs <-chan *redis.Message) {
	defer close(s.changes)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			var c domain.Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				s.logger.Warn("dropping undecodable change", logger.Error(err))
				continue
			}
			if !s.filter.Matches(c) {
				continue
			}

			select {
			case s.changes <- c:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}
}
