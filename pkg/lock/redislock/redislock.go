// Package redislock implements exflow.Locker across processes with Redis
package redislock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"

	"github.com/anggasct/exflow"
)

const (
	DefaultTTL          = 30 * time.Second
	DefaultRetryBackoff = 50 * time.Millisecond
	keyPrefix           = "exflow:lock:"
)

// release deletes the key only while it still holds our token
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker takes per-request locks with SET NX PX. A lock outlives a crashed
// holder by at most TTL.
type Locker struct {
	client  redis.UniversalClient
	ttl     time.Duration
	backoff time.Duration
	logger  hclog.Logger
}

var _ exflow.Locker = (*Locker)(nil)

// Option configures a Locker
type Option func(*Locker)

// WithTTL sets the lock expiry
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryBackoff sets the wait between acquisition attempts
func WithRetryBackoff(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.backoff = d
		}
	}
}

// WithLogger sets the logger used for release failures
func WithLogger(logger hclog.Logger) Option {
	return func(l *Locker) { l.logger = logger }
}

// New creates a locker on client
func New(client redis.UniversalClient, opts ...Option) *Locker {
	l := &Locker{
		client:  client,
		ttl:     DefaultTTL,
		backoff: DefaultRetryBackoff,
		logger:  hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock blocks until the key is acquired or ctx is done
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.Background(), l.ttl)
			defer cancel()
			if err := release.Run(rctx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.logger.Warn("failed to release lock", "key", key, "error", err)
			}
		})
	}
	return unlock, nil
}
