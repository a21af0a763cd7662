package locks

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/fern/pkg/metrics"
)

var (
	// ErrLockNotAcquired is returned when a lock cannot be acquired
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when trying to release a lock not held
	ErrLockNotHeld = errors.New("lock not held")
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLock is one held distributed lock.
type RedisLock struct {
	rdb    *redis.Client
	logger ectologger.Logger
	key    string
	value  string
}

// RedisLocker provides distributed per-game locks for deployments running several
// recomputation or ingestion workers.
type RedisLocker struct {
	rdb       *redis.Client
	logger    ectologger.Logger
	keyPrefix string
	ttl       time.Duration
	timeout   time.Duration
}

// RedisLockerConfig configures a RedisLocker.
type RedisLockerConfig struct {
	KeyPrefix string `koanf:"key_prefix"`
	// TTL bounds how long a crashed holder can block a game.
	TTL time.Duration `koanf:"ttl"`
	// Timeout bounds how long WithLock waits for a busy key.
	Timeout time.Duration `koanf:"timeout"`
}

// NewRedisLocker creates a new RedisLocker
func NewRedisLocker(rdb *redis.Client, cfg RedisLockerConfig, logger ectologger.Logger) *RedisLocker {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "fern:lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &RedisLocker{
		rdb:       rdb,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.TTL,
		timeout:   cfg.Timeout,
	}
}

// Acquire attempts to acquire a lock once
func (l *RedisLocker) Acquire(ctx context.Context, key string) (*RedisLock, error) {
	lockKey := l.keyPrefix + key
	lockValue := uuid.New().String()

	start := time.Now()
	ok, err := l.rdb.SetNX(ctx, lockKey, lockValue, l.ttl).Result()
	metrics.RedisOperationDuration.WithLabelValues("lock").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.logger.WithContext(ctx).Debugf("Acquired lock: %s", key)

	return &RedisLock{
		rdb:    l.rdb,
		logger: l.logger,
		key:    lockKey,
		value:  lockValue,
	}, nil
}

// TryAcquire retries Acquire with capped exponential backoff until the timeout
func (l *RedisLocker) TryAcquire(ctx context.Context, key string) (*RedisLock, error) {
	deadline := time.Now().Add(l.timeout)
	backoff := 10 * time.Millisecond

	for time.Now().Before(deadline) {
		lock, err := l.Acquire(ctx, key)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff = min(backoff*2, 500*time.Millisecond)
		}
	}

	return nil, ErrLockNotAcquired
}

// Release deletes the lock only if this holder still owns it
func (lock *RedisLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lock.rdb, []string{lock.key}, lock.value).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	lock.logger.WithContext(ctx).Debugf("Released lock: %s", lock.key)
	return nil
}

// WithLock implements Locker.
func (l *RedisLocker) WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	keys = sortedUnique(keys)

	held := make([]*RedisLock, 0, len(keys))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(ctx); err != nil {
				l.logger.WithContext(ctx).WithError(err).Warnf("Failed to release lock %s", held[i].key)
			}
		}
	}()

	for _, k := range keys {
		lock, err := l.TryAcquire(ctx, k)
		if err != nil {
			return err
		}
		held = append(held, lock)
	}

	return fn(ctx)
}
