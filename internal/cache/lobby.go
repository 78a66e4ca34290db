// Package cache keeps hot per-game state in Redis. The relational store
// stays the source of truth for lifecycle transitions; everything here is
// TTL'd and safe to lose.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/typephoon/backend/internal/config"
	"github.com/typephoon/backend/internal/models"
)

// LobbyCache maps user_id -> LobbyUserInfo per game, plus the lobby
// start-time used for countdown polling.
type LobbyCache struct {
	rdb *redis.Client
	cfg config.RedisConfig
	log *logrus.Logger
}

func NewLobbyCache(rdb *redis.Client, cfg config.RedisConfig, log *logrus.Logger) *LobbyCache {
	return &LobbyCache{rdb: rdb, cfg: cfg, log: log}
}

func lobbyPlayersKey(gameID int64) string {
	return fmt.Sprintf("lobby-cache-players-%d", gameID)
}

func lobbyCountdownKey(gameID int64) string {
	return fmt.Sprintf("lobby-cache-countdown-%d", gameID)
}

// Lock returns the per-game advisory lock guarding lobby cache mutations.
func (c *LobbyCache) Lock(gameID int64) *Lock {
	return newLock(c.rdb, fmt.Sprintf("lobby-cache-%d-lock", gameID))
}

// WithLock runs fn while holding the per-game advisory lock.
func (c *LobbyCache) WithLock(ctx context.Context, gameID int64, fn func(ctx context.Context) error) error {
	l := c.Lock(gameID)
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release(ctx)
	return fn(ctx)
}

func (c *LobbyCache) expire() time.Duration {
	return time.Duration(c.cfg.ExpireTime) * time.Second
}

func (c *LobbyCache) readPlayers(ctx context.Context, gameID int64) (map[string]models.LobbyUserInfo, error) {
	raw, err := c.rdb.Get(ctx, lobbyPlayersKey(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	players := map[string]models.LobbyUserInfo{}
	if err := json.Unmarshal(raw, &players); err != nil {
		return nil, err
	}
	return players, nil
}

// AddPlayer inserts the user into the per-game map and reports whether the
// user was genuinely new. Callers must hold Lock(gameID).
func (c *LobbyCache) AddPlayer(ctx context.Context, gameID int64, info models.LobbyUserInfo) (bool, error) {
	players, err := c.readPlayers(ctx, gameID)
	if err != nil {
		return false, err
	}
	if players == nil {
		players = map[string]models.LobbyUserInfo{}
	}

	_, exists := players[info.ID]
	players[info.ID] = info

	raw, err := json.Marshal(players)
	if err != nil {
		return false, err
	}
	if err := c.rdb.Set(ctx, lobbyPlayersKey(gameID), raw, c.expire()).Err(); err != nil {
		return false, err
	}
	return !exists, nil
}

func (c *LobbyCache) IsNewPlayer(ctx context.Context, gameID int64, userID string) (bool, error) {
	players, err := c.readPlayers(ctx, gameID)
	if err != nil {
		return false, err
	}
	_, exists := players[userID]
	return !exists, nil
}

func (c *LobbyCache) RemovePlayer(ctx context.Context, gameID int64, userID string) (bool, error) {
	players, err := c.readPlayers(ctx, gameID)
	if err != nil {
		return false, err
	}
	if players == nil {
		c.log.WithField("game_id", gameID).Warn("lobby cache not found")
		return false, nil
	}

	_, exists := players[userID]
	delete(players, userID)

	raw, err := json.Marshal(players)
	if err != nil {
		return false, err
	}
	if err := c.rdb.Set(ctx, lobbyPlayersKey(gameID), raw, c.expire()).Err(); err != nil {
		return false, err
	}
	return exists, nil
}

func (c *LobbyCache) GetPlayers(ctx context.Context, gameID int64) (map[string]models.LobbyUserInfo, error) {
	return c.readPlayers(ctx, gameID)
}

func (c *LobbyCache) SetStartTime(ctx context.Context, gameID int64, startTime time.Time) error {
	return c.rdb.Set(ctx, lobbyCountdownKey(gameID),
		startTime.UTC().Format(time.RFC3339Nano), c.expire()).Err()
}

func (c *LobbyCache) GetStartTime(ctx context.Context, gameID int64) (*time.Time, error) {
	raw, err := c.rdb.Get(ctx, lobbyCountdownKey(gameID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

// Clear drops both lobby keys for the game.
func (c *LobbyCache) Clear(ctx context.Context, gameID int64) error {
	return c.rdb.Del(ctx, lobbyPlayersKey(gameID), lobbyCountdownKey(gameID)).Err()
}
