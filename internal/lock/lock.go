package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/redis/go-redis/v9"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out named mutual exclusion with a lease. The returned unlock
// func is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// Local serializes holders within one process.
type Local struct {
	mu   sync.Mutex
	keys map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{keys: make(map[string]chan struct{})}
}

func (l *Local) Lock(ctx context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	ch, ok := l.keys[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.keys[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}

const redisKeyPrefix = "brandcast:lock:"

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis serializes holders across processes with SET NX and a token
// checked on release.
type Redis struct {
	client redis.UniversalClient
	retry  time.Duration
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client, retry: 50 * time.Millisecond}
}

func (r *Redis) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	key = redisKeyPrefix + key

	for {
		ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}

		t := time.NewTimer(r.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-t.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's context may already be done
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			releaseScript.Run(ctx, r.client, []string{key}, token)
		})
	}, nil
}
