package locks

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/charlesng35/formgate/pkg/logger"
)

const (
	redisKeyPrefix     = "formgate:lock:"
	defaultLeaseTTL    = 30 * time.Second
	defaultPollBackoff = 25 * time.Millisecond
	maxPollBackoff     = 250 * time.Millisecond
)

// compare-and-delete so a holder never releases a lease that expired and was re-acquired.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// compare-and-pexpire keeps a held lease alive without touching a successor's.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisConfig captures connection parameters for the lock backend.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      bool
	Timeout  time.Duration
}

type redisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisLocker coordinates several processes sharing one allowlist through Redis leases.
type RedisLocker struct {
	client redisClient
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisClient dials Redis and verifies connectivity.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, errors.New("locks: redis address is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("locks: ping redis: %w", err)
	}
	return client, nil
}

// NewRedisLocker wraps client. Leases are extended every ttl/3 while held and expire
// after ttl if the holder dies.
func NewRedisLocker(client redisClient, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("locks: redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLocker{client: client, ttl: ttl, log: logger.WithModule("locks")}, nil
}

// Acquire polls SET NX until the lease is obtained or ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := redisKeyPrefix + key
	owner := uuid.NewString()
	backoff := defaultPollBackoff

	for {
		ok, err := l.client.SetNX(ctx, redisKey, owner, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctxErr)
			}
			return nil, fmt.Errorf("locks: acquire %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
		case <-timer.C:
		}
		if backoff < maxPollBackoff {
			backoff *= 2
		}
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go l.keepAlive(redisKey, key, owner, stop, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped

			// release even when the request context is already cancelled
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
				l.log.Warn("release lease failed; it will expire on its own",
					zap.String("key", key),
					zap.Duration("ttl", l.ttl),
					zap.Error(err),
				)
			}
		})
	}, nil
}

// keepAlive refreshes the lease until stop is closed or the lease is found lost.
func (l *RedisLocker) keepAlive(redisKey, key, owner string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	interval := max(l.ttl/3, time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		extended, err := extendScript.Run(ctx, l.client, []string{redisKey}, owner, l.ttl.Milliseconds()).Int64()
		cancel()

		switch {
		case err != nil:
			l.log.Warn("extend lease failed", zap.String("key", key), zap.Error(err))
		case extended == 0:
			l.log.Error("lease lost while held", zap.String("key", key), zap.Duration("ttl", l.ttl))
			return
		}
	}
}
