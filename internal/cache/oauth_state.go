package cache

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/typephoon/backend/internal/config"
)

// OAuthStateStore issues and one-shot-checks the CSRF state carried through
// the OAuth redirect dance.
type OAuthStateStore struct {
	rdb *redis.Client
	cfg config.RedisConfig
}

func NewOAuthStateStore(rdb *redis.Client, cfg config.RedisConfig) *OAuthStateStore {
	return &OAuthStateStore{rdb: rdb, cfg: cfg}
}

func stateKey(state string) string {
	return fmt.Sprintf("login_state-%s", state)
}

func (s *OAuthStateStore) Issue(ctx context.Context) (string, error) {
	buf := make([]byte, 1024)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf)
	state := hex.EncodeToString(sum[:])

	err := s.rdb.SetNX(ctx, stateKey(state), 1,
		time.Duration(s.cfg.ExpireTime)*time.Second).Err()
	if err != nil {
		return "", err
	}
	return state, nil
}

// Check consumes the state; unknown or reused states return false.
func (s *OAuthStateStore) Check(ctx context.Context, state string) (bool, error) {
	_, err := s.rdb.GetDel(ctx, stateKey(state)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
