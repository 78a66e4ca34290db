package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/typephoon/backend/internal/config"
	"github.com/typephoon/backend/internal/typerr"
)

// GuestTokenStore parks freshly minted guest tokens under a random one-shot
// key. The client fetches the token once over HTTP after the websocket
// handshake told it the key.
type GuestTokenStore struct {
	rdb *redis.Client
	cfg config.RedisConfig
}

func NewGuestTokenStore(rdb *redis.Client, cfg config.RedisConfig) *GuestTokenStore {
	return &GuestTokenStore{rdb: rdb, cfg: cfg}
}

func guestTokenKey(key string) string {
	return fmt.Sprintf("guest-token-%s", key)
}

// Store saves the token under a fresh random key and returns the key.
func (s *GuestTokenStore) Store(ctx context.Context, token string) (string, error) {
	key := uuid.NewString()
	err := s.rdb.Set(ctx, guestTokenKey(key), token,
		time.Duration(s.cfg.ExpireTime)*time.Second).Err()
	if err != nil {
		return "", err
	}
	return key, nil
}

// Get consumes the key: a second call with the same key is KEY_NOT_FOUND.
func (s *GuestTokenStore) Get(ctx context.Context, key string) (string, error) {
	token, err := s.rdb.GetDel(ctx, guestTokenKey(key)).Result()
	if err == redis.Nil {
		return "", typerr.New(typerr.CodeKeyNotFound, "guest token key unknown")
	}
	if err != nil {
		return "", err
	}
	return token, nil
}
