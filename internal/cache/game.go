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

// LobbySource is the part of the lobby cache the promotion step reads.
type LobbySource interface {
	GetPlayers(ctx context.Context, gameID int64) (map[string]models.LobbyUserInfo, error)
	GetStartTime(ctx context.Context, gameID int64) (*time.Time, error)
	Clear(ctx context.Context, gameID int64) error
}

// GameCache holds the in-game player map (with merged finish stats), the
// game start-time and the word list. Longer TTL than the lobby cache;
// cleared by the cleanup consumer.
type GameCache struct {
	rdb *redis.Client
	cfg config.RedisConfig
	log *logrus.Logger
}

func NewGameCache(rdb *redis.Client, cfg config.RedisConfig, log *logrus.Logger) *GameCache {
	return &GameCache{rdb: rdb, cfg: cfg, log: log}
}

func gamePlayersKey(gameID int64) string {
	return fmt.Sprintf("game-cache-players-%d", gameID)
}

func gameCountdownKey(gameID int64) string {
	return fmt.Sprintf("game-cache-countdown-%d", gameID)
}

func gameWordsKey(gameID int64) string {
	return fmt.Sprintf("game-cache-words-%d", gameID)
}

// Lock returns the per-game advisory lock guarding game cache mutations.
func (c *GameCache) Lock(gameID int64) *Lock {
	return newLock(c.rdb, fmt.Sprintf("game-cache-%d-lock", gameID))
}

// WithLock runs fn while holding the per-game advisory lock.
func (c *GameCache) WithLock(ctx context.Context, gameID int64, fn func(ctx context.Context) error) error {
	l := c.Lock(gameID)
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release(ctx)
	return fn(ctx)
}

func (c *GameCache) expire() time.Duration {
	return time.Duration(c.cfg.InGameCacheExpireTime) * time.Second
}

func (c *GameCache) readPlayers(ctx context.Context, gameID int64) (map[string]models.GameUserInfo, error) {
	raw, err := c.rdb.Get(ctx, gamePlayersKey(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	players := map[string]models.GameUserInfo{}
	if err := json.Unmarshal(raw, &players); err != nil {
		return nil, err
	}
	return players, nil
}

func (c *GameCache) GetPlayers(ctx context.Context, gameID int64) (map[string]models.GameUserInfo, error) {
	return c.readPlayers(ctx, gameID)
}

func (c *GameCache) GetStartTime(ctx context.Context, gameID int64) (*time.Time, error) {
	raw, err := c.rdb.Get(ctx, gameCountdownKey(gameID)).Result()
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

func (c *GameCache) SetWords(ctx context.Context, gameID int64, words string) error {
	return c.rdb.Set(ctx, gameWordsKey(gameID), words, c.expire()).Err()
}

func (c *GameCache) GetWords(ctx context.Context, gameID int64) (string, error) {
	words, err := c.rdb.Get(ctx, gameWordsKey(gameID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return words, err
}

// PopulateFromLobby promotes the lobby membership into the game cache with
// a start-time of lobby start + startCountdown. With autoClean the lobby
// keys are dropped afterwards.
func (c *GameCache) PopulateFromLobby(ctx context.Context, gameID int64, lobby LobbySource, startCountdown int, autoClean bool) error {
	lobbyPlayers, err := lobby.GetPlayers(ctx, gameID)
	if err != nil {
		return err
	}
	if lobbyPlayers != nil {
		gamePlayers := map[string]models.GameUserInfo{}
		for userID, info := range lobbyPlayers {
			gamePlayers[userID] = models.GameUserFromLobby(info)
		}
		raw, err := json.Marshal(gamePlayers)
		if err != nil {
			return err
		}
		if err := c.rdb.Set(ctx, gamePlayersKey(gameID), raw, c.expire()).Err(); err != nil {
			return err
		}
	} else {
		c.log.WithField("game_id", gameID).Warn("lobby player cache not found")
	}

	lobbyStart, err := lobby.GetStartTime(ctx, gameID)
	if err != nil {
		return err
	}
	if lobbyStart != nil {
		gameStart := lobbyStart.Add(time.Duration(startCountdown) * time.Second)
		err := c.rdb.Set(ctx, gameCountdownKey(gameID),
			gameStart.UTC().Format(time.RFC3339Nano), c.expire()).Err()
		if err != nil {
			return err
		}
	} else {
		c.log.WithField("game_id", gameID).Warn("lobby start time cache not found")
	}

	if autoClean {
		return lobby.Clear(ctx, gameID)
	}
	return nil
}

// MergeResult folds a finish report into the player's entry. Callers must
// hold Lock(gameID).
func (c *GameCache) MergeResult(ctx context.Context, gameID int64, userID string, rank int, wpm, wpmRaw, acc float64, finishedAt time.Time) error {
	players, err := c.readPlayers(ctx, gameID)
	if err != nil {
		return err
	}
	if players == nil {
		c.log.WithField("game_id", gameID).Warn("game cache not found")
		return nil
	}

	info, ok := players[userID]
	if !ok {
		return nil
	}
	info.FinishedAt = &finishedAt
	info.Rank = rank
	info.WPM = wpm
	info.WPMRaw = wpmRaw
	info.Acc = acc
	players[userID] = info

	raw, err := json.Marshal(players)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, gamePlayersKey(gameID), raw, c.expire()).Err()
}

// Clear drops every game cache key for the game.
func (c *GameCache) Clear(ctx context.Context, gameID int64) error {
	return c.rdb.Del(ctx, gamePlayersKey(gameID), gameCountdownKey(gameID), gameWordsKey(gameID)).Err()
}
