package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/rueidis"
)

const (
	// DefaultTTL bounds how long a crashed holder keeps a key locked.
	DefaultTTL = 2 * time.Minute

	retryInterval = 200 * time.Millisecond
	keyPrefix     = "ingest:lock:"
)

// Deletes or extends the key only while it still holds our token.
var (
	releaseScript = rueidis.NewLuaScript(`if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) end return 0`)
	extendScript  = rueidis.NewLuaScript(`if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) end return 0`)
)

// RedisLocker locks keys across processes sharing one Redis. Held locks are
// extended in the background until released.
type RedisLocker struct {
	client rueidis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker connects to Redis at addrs.
func NewRedisLocker(addrs []string, logger *slog.Logger) (*RedisLocker, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  addrs,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &RedisLocker{client: client, ttl: DefaultTTL, logger: logger}, nil
}

// Close shuts down the client.
func (r *RedisLocker) Close() {
	r.client.Close()
}

// Lock polls SET NX until it wins the key or ctx is done.
func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	name := keyPrefix + key
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		ok, err := r.tryAcquire(ctx, name, token)
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(name, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Exec(ctx, r.client, []string{name}, []string{token}).Error(); err != nil {
				r.logger.Warn("failed to release lock", "key", key, "error", err)
			}
		})
	}, nil
}

func (r *RedisLocker) tryAcquire(ctx context.Context, name, token string) (bool, error) {
	cmd := r.client.B().Set().Key(name).Value(token).Nx().PxMilliseconds(r.ttl.Milliseconds()).Build()
	err := r.client.Do(ctx, cmd).Error()
	if rueidis.IsRedisNil(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *RedisLocker) keepAlive(name, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := extendScript.Exec(ctx, r.client, []string{name}, []string{token, fmt.Sprint(r.ttl.Milliseconds())}).Error()
			cancel()
			if err != nil {
				r.logger.Warn("failed to extend lock", "key", name, "error", err)
			}
		}
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
