package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockTTL       = 5 * time.Second
	lockRetryWait = 20 * time.Millisecond
)

// Lock is a SETNX-style per-game advisory lock. It serializes cache
// mutations for one game across instances.
type Lock struct {
	rdb   *redis.Client
	key   string
	value string
}

func newLock(rdb *redis.Client, key string) *Lock {
	return &Lock{rdb: rdb, key: key, value: uuid.NewString()}
}

func (l *Lock) Acquire(ctx context.Context) error {
	for {
		ok, err := l.rdb.SetNX(ctx, l.key, l.value, lockTTL).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryWait):
		}
	}
}

func (l *Lock) Release(ctx context.Context) error {
	// only delete our own lock
	val, err := l.rdb.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val != l.value {
		return nil
	}
	return l.rdb.Del(ctx, l.key).Err()
}
