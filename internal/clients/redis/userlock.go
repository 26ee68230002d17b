package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pathwise/pathwise-backend/internal/logger"
)

// UserSerializer gives every user a short-lived exclusive lease so
// signal processing, sync, and rollback for the same user never interleave.
// Different users proceed in parallel.
type UserSerializer interface {
	WithUserLock(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context) error) error
}

const (
	leaseTTL       = 10 * time.Second
	acquireTimeout = 5 * time.Second
	retryDelay     = 25 * time.Millisecond
)

// Release only deletes the lease if this holder still owns it.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisSerializer struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewUserSerializer(log *logger.Logger) (UserSerializer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisSerializer{
		log: log.With("service", "RedisUserSerializer"),
		rdb: rdb,
	}, nil
}

func (s *redisSerializer) WithUserLock(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context) error) error {
	if userID == uuid.Nil {
		return fn(ctx)
	}
	key := "userlock:" + userID.String()
	token := uuid.NewString()
	deadline := time.Now().Add(acquireTimeout)
	for {
		ok, err := s.rdb.SetNX(ctx, key, token, leaseTTL).Result()
		if err != nil {
			return fmt.Errorf("acquire user lock: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("acquire user lock: timed out")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	defer func() {
		if _, err := releaseScript.Run(context.WithoutCancel(ctx), s.rdb, []string{key}, token).Result(); err != nil {
			s.log.Warn("Failed to release user lock", "user_id", userID, "error", err)
		}
	}()
	return fn(ctx)
}

// localSerializer keeps the same exclusion guarantee inside a single process
// when Redis is not configured (dev, tests).
type localSerializer struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewLocalSerializer() UserSerializer {
	return &localSerializer{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (s *localSerializer) WithUserLock(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	m, ok := s.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[userID] = m
	}
	s.mu.Unlock()
	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}
