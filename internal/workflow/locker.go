package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker serializes operations on one workflow instance key. Lock blocks
// until the key is free or ctx is done, and returns the release function.
// The release function may be called more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// --- MemoryLocker ---

type keyLock struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker is a process-local keyed mutex. Entries are removed once no
// caller holds or waits on them.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewMemoryLocker creates a new process-local locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

// Lock implements Locker.
func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl, false)
		return nil, fmt.Errorf("lock %q: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, kl, true) })
	}, nil
}

func (l *MemoryLocker) release(key string, kl *keyLock, held bool) {
	if held {
		<-kl.ch
	}
	l.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// Len returns the number of keys currently tracked. For testing.
func (l *MemoryLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// --- RedisLocker ---

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

const renewScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`

// RedisLocker is a Redis-backed Locker for multi-process deployments. Each
// lock holds a random token and expires after ttl so a crashed holder
// cannot block the key forever. A held lock is renewed every ttl/3 until
// it is released.
type RedisLocker struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger *zap.Logger
}

// NewRedisLocker creates a new Redis-backed locker.
func NewRedisLocker(client redis.Cmdable, prefix string, ttl, retry time.Duration) *RedisLocker {
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl, retry: retry, logger: zap.NewNop()}
}

// WithLogger sets the logger used for renewal and release failures.
func (l *RedisLocker) WithLogger(logger *zap.Logger) *RedisLocker {
	if logger != nil {
		l.logger = logger
	}
	return l
}

// FormatLockKey builds the redis key for an instance key.
func (l *RedisLocker) FormatLockKey(key string) string {
	return fmt.Sprintf("%s:lock:%s", l.prefix, key)
}

// Lock implements Locker.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.FormatLockKey(key)
	token := uuid.New().String()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx %q: %w", redisKey, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("lock %q: %w", key, ctx.Err())
		case <-timer.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(redisKey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// Release with a fresh context so a cancelled request still frees the key.
			relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := l.client.Eval(relCtx, releaseScript, []string{redisKey}, token).Err(); err != nil {
				l.logger.Debug("releasing instance lock failed",
					zap.String("key", redisKey),
					zap.Error(err),
				)
			}
		})
	}, nil
}

// renew extends the lock's expiry while it is held. It stops when stop is
// closed or the token no longer owns the key.
func (l *RedisLocker) renew(redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := l.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		n, err := l.client.Eval(ctx, renewScript, []string{redisKey}, token, l.ttl.Milliseconds()).Int64()
		cancel()
		if err != nil {
			l.logger.Warn("renewing instance lock failed", zap.String("key", redisKey), zap.Error(err))
			continue
		}
		if n == 0 {
			l.logger.Warn("instance lock lost before release", zap.String("key", redisKey))
			return
		}
	}
}

// HealthCheck pings redis.
func (l *RedisLocker) HealthCheck(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
