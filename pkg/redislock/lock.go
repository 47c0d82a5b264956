package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only when it still holds this locker's
// token, so an expired lock taken over by another process is never released
// from here.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a best-effort distributed mutex over a single Redis key, used to
// keep multiple dispatcher replicas from running the same batch pass
// concurrently. The lock auto-expires after its TTL, so a crashed holder
// stalls the others for at most one TTL.
type Locker struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewLocker creates a locker for key. Each locker carries a unique token; only
// the locker that acquired the key can release or extend it.
func NewLocker(client *redis.Client, key string, ttl time.Duration) *Locker {
	return &Locker{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire takes the lock, returning ErrNotAcquired when another process holds it.
func (l *Locker) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock %q: %w", l.key, err)
	}
	if !ok {
		return ErrNotAcquired
	}
	return nil
}

// Release gives the lock up. Releasing a lock that expired and was acquired by
// someone else returns ErrNotHeld and leaves the other holder untouched.
func (l *Locker) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release lock %q: %w", l.key, err)
	}
	if deleted == 0 {
		return ErrNotHeld
	}
	return nil
}

// extendScript refreshes the TTL only while this locker's token still holds
// the key.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Extend pushes the expiry out by the configured TTL for long batch passes.
func (l *Locker) Extend(ctx context.Context) error {
	ok, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend lock %q: %w", l.key, err)
	}
	if ok == 0 {
		return ErrNotHeld
	}
	return nil
}
