package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Store is the durable record store. Every write publishes the matching
// change on the table and owner channels in the same transaction.
type Store struct {
	client *redis.Client
	ns     Namespace
	now    func() time.Time
}

// NewStore creates a new Redis store scoped to ns.
func NewStore(client *redis.Client, ns Namespace) *Store {
	return &Store{
		client: client,
		ns:     ns,
		now:    time.Now,
	}
}

// Namespace returns the schema/table the store writes to.
func (s *Store) Namespace() Namespace {
	return s.ns
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// List returns the owner's records, newest first.
func (s *Store) List(ctx context.Context, ownerID string) ([]domain.Record, error) {
	ids, err := s.client.ZRevRange(ctx, s.ns.OwnerKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list record ids: %w", err)
	}
	if len(ids) == 0 {
		return []domain.Record{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.ns.RecordKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	records := make([]domain.Record, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry outlived its record.
			continue
		}
		var r domain.Record
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record %s: %w", ids[i], err)
		}
		records = append(records, r)
	}

	return records, nil
}

// Insert stores a new record. Inserting an id twice fails with
// domain.ErrAlreadyExists.
func (s *Store) Insert(ctx context.Context, r domain.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	key := s.ns.RecordKey(r.ID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrAlreadyExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, s.ns.OwnerKey(r.OwnerID), redis.Z{Score: score(r.CreatedAt), Member: r.ID})
			return s.publish(ctx, pipe, r.OwnerID, domain.Inserted(r))
		})
		return err
	}, key)

	return wrap("insert", r.ID, err)
}

// Update overwrites a record owned by ownerID.
func (s *Store) Update(ctx context.Context, ownerID string, r domain.Record) error {
	if r.OwnerID != ownerID {
		return wrap("update", r.ID, domain.ErrForbidden)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	key := s.ns.RecordKey(r.ID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		if err := s.owned(ctx, tx.Get, ownerID, r.ID); err != nil {
			return err
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, s.ns.OwnerKey(ownerID), redis.Z{Score: score(r.CreatedAt), Member: r.ID})
			return s.publish(ctx, pipe, ownerID, domain.Updated(r))
		})
		return err
	}, key)

	return wrap("update", r.ID, err)
}

// Delete removes a record owned by ownerID.
func (s *Store) Delete(ctx context.Context, ownerID, id string) error {
	key := s.ns.RecordKey(id)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		if err := s.owned(ctx, tx.Get, ownerID, id); err != nil {
			return err
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, s.ns.OwnerKey(ownerID), id)
			return s.publish(ctx, pipe, ownerID, domain.Deleted(id))
		})
		return err
	}, key)

	return wrap("delete", id, err)
}

// owned loads id and checks it belongs to ownerID.
func (s *Store) owned(ctx context.Context, get func(context.Context, string) *redis.StringCmd, ownerID, id string) error {
	data, err := get(ctx, s.ns.RecordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		return err
	}

	var r domain.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	if r.OwnerID != ownerID {
		return domain.ErrForbidden
	}
	return nil
}

// publish queues c on the table channel and on the owner's channel.
func (s *Store) publish(ctx context.Context, pipe redis.Pipeliner, ownerID string, c domain.Change) error {
	c.CommitTime = s.now().UTC()
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}
	pipe.Publish(ctx, s.ns.ChangesChannel(""), data)
	pipe.Publish(ctx, s.ns.ChangesChannel(ownerID), data)
	return nil
}

func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}

func wrap(op, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("failed to %s record %s: concurrent modification: %w", op, id, err)
	default:
		return fmt.Errorf("failed to %s record %s: %w", op, id, err)
	}
}
