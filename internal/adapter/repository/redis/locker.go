package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iho/clinicalledger/internal/infrastructure/metrics"
)

const (
	defaultLockTTL   = 30 * time.Second
	lockPollInterval = 5 * time.Millisecond
	lockMaxInterval  = 100 * time.Millisecond
	unlockTimeout    = time.Second
)

var errLockHeld = errors.New("lock is held")

// Deletes the key only while it still carries our token, so an expired lock
// taken over by another process is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker implements usecase.EntryLocker across processes. A lock expires
// after its TTL so a crashed holder cannot block an entry forever.
type Locker struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewLocker creates a new Locker. A zero ttl uses the default of 30s; m may
// be nil.
func NewLocker(client *redis.Client, ttl time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Locker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Locker{
		client:  client,
		prefix:  "lock:entry:",
		ttl:     ttl,
		metrics: m,
		logger:  logger,
	}
}

// Lock polls with backoff until the key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := l.prefix + key
	token := uuid.NewString()
	start := time.Now()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = lockPollInterval
	b.MaxInterval = lockMaxInterval
	b.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errLockHeld
		}
		return nil
	}, backoff.WithContext(b, ctx))

	if l.metrics != nil {
		l.metrics.LockWaitDuration.WithLabelValues("redis").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if l.metrics != nil {
				l.metrics.LockTimeouts.WithLabelValues("redis").Inc()
			}
			return nil, fmt.Errorf("lock %s: %w", key, ctxErr)
		}
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
			defer cancel()
			if err := unlockScript.Run(unlockCtx, l.client, []string{fullKey}, token).Err(); err != nil {
				l.logger.Warn().Err(err).Str("key", key).Msg("failed to release entry lock")
			}
		})
	}

	return unlock, nil
}
