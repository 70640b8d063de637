package idempotency

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// State of a key after Reserve.
type State int

const (
	// Reserved means the caller owns the key and should do the work.
	Reserved State = iota
	// InFlight means another request holds the key and has not finished.
	InFlight
	// Done means the work already finished; Reservation.OrderID holds its result.
	Done
)

const pendingValue = "pending"

type Reservation struct {
	State   State
	OrderID int64
}

// Store de-duplicates purchases in Redis. A nil *Store, or a Redis that cannot
// be reached, lets every request through.
type Store struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    *zap.Logger
}

func New(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{rdb: rdb, ttl: ttl, prefix: "idem:purchase:", log: log}
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Reserve(ctx context.Context, key string) (Reservation, error) {
	if s == nil || s.rdb == nil {
		return Reservation{State: Reserved}, nil
	}

	ok, err := s.rdb.SetNX(ctx, s.key(key), pendingValue, s.ttl).Result()
	if err != nil {
		s.log.Warn("idempotency reserve failed, continuing without it", zap.String("key", key), zap.Error(err))
		return Reservation{State: Reserved}, nil
	}
	if ok {
		return Reservation{State: Reserved}, nil
	}

	val, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		// Released between SETNX and GET; the other request failed.
		return s.Reserve(ctx, key)
	}
	if err != nil {
		s.log.Warn("idempotency lookup failed, continuing without it", zap.String("key", key), zap.Error(err))
		return Reservation{State: Reserved}, nil
	}
	if val == pendingValue {
		return Reservation{State: InFlight}, nil
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// Unreadable entry: take the key over and let the work run.
		s.log.Warn("idempotency value unreadable, overwriting", zap.String("key", key), zap.String("value", val))
		if err := s.rdb.Set(ctx, s.key(key), pendingValue, s.ttl).Err(); err != nil {
			s.log.Warn("idempotency overwrite failed, continuing without it", zap.String("key", key), zap.Error(err))
		}
		return Reservation{State: Reserved}, nil
	}
	return Reservation{State: Done, OrderID: id}, nil
}

// Complete stores the result of the work under key for the rest of the TTL.
func (s *Store) Complete(ctx context.Context, key string, orderID int64) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Set(ctx, s.key(key), strconv.FormatInt(orderID, 10), s.ttl).Err()
}

// Release frees key so a retry can run the work again.
func (s *Store) Release(ctx context.Context, key string) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, s.key(key)).Err()
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Ping(ctx).Err()
}
