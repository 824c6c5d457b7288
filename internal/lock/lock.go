// Package lock is the advisory-lock collaborator satisfying spec section 5
// option (c): a lock keyed on (doctorId, date) serializes every operation
// that touches a given doctor's schedule for a given day, bounding how long
// concurrent requests queue before the underlying transaction's row locks
// take over as the source of truth for the capacity invariants.
//
// Adapted from the teacher's per-slot redisSlotLocker: the key is rescoped
// from a single slot to the whole (doctorId, date) allocation unit, because
// allocate() and backfill() must see a consistent view across every slot
// for that date, not just one.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotAcquired = errors.New("allocation lock not acquired, retry shortly")

// Locker guards the critical section for one (doctorId, date) allocation
// unit.
type Locker interface {
	WithLock(ctx context.Context, doctorID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Locker backed by client, holding each lock for at most ttl.
func New(client *redis.Client, ttl time.Duration) Locker {
	return &redisLocker{client: client, ttl: ttl}
}

func (l *redisLocker) WithLock(ctx context.Context, doctorID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:alloc:%s:%s", doctorID.String(), date.Format("2006-01-02"))
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire allocation lock: %w", err)
	}
	if !ok {
		return ErrNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release allocation lock: %w", err)
	}
	return nil
}
