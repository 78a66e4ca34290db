// Package services holds the business operations behind the HTTP and
// websocket surface. Each service depends on narrow interfaces so tests can
// swap in fakes.
package services

import (
	"context"
	"time"

	"github.com/typephoon/backend/internal/cache"
	"github.com/typephoon/backend/internal/models"
	"github.com/typephoon/backend/internal/store"
	"github.com/typephoon/backend/internal/token"
	"github.com/typephoon/backend/internal/ws"
)

// GameStore opens matchmaking transactions over the games table.
type GameStore interface {
	Begin(ctx context.Context) (GameTxn, error)
	Get(ctx context.Context, id int64) (*models.Game, error)
}

// GameTxn is one transaction; row locks taken through it are held until
// Commit or Rollback.
type GameTxn interface {
	Get(ctx context.Context, id int64, lock bool) (*models.Game, error)
	GetOneAvailable(ctx context.Context) (*models.Game, error)
	IsAvailable(ctx context.Context, id int64, newPlayer bool) (*models.Game, error)
	Create(ctx context.Context, gameType models.GameType, status models.GameStatus) (*models.Game, error)
	StartGame(ctx context.Context, id int64) error
	SetFinish(ctx context.Context, id int64) error
	IncreasePlayerCount(ctx context.Context, id int64) (*models.Game, error)
	DecreasePlayerCount(ctx context.Context, id int64) (*models.Game, error)
	IncreaseFinishCount(ctx context.Context, id int64) (*models.Game, error)
	CreateResult(ctx context.Context, res models.GameResult) error
	Commit() error
	Rollback() error
}

type sqlGameStore struct {
	repo *store.GameRepo
}

// NewGameStore adapts the sqlx-backed repo to the GameStore interface.
func NewGameStore(repo *store.GameRepo) GameStore {
	return sqlGameStore{repo: repo}
}

func (s sqlGameStore) Begin(ctx context.Context) (GameTxn, error) {
	return s.repo.Begin(ctx)
}

func (s sqlGameStore) Get(ctx context.Context, id int64) (*models.Game, error) {
	return s.repo.Get(ctx, id)
}

// LobbyState is the lobby half of the cache layer.
type LobbyState interface {
	WithLock(ctx context.Context, gameID int64, fn func(ctx context.Context) error) error
	AddPlayer(ctx context.Context, gameID int64, info models.LobbyUserInfo) (bool, error)
	IsNewPlayer(ctx context.Context, gameID int64, userID string) (bool, error)
	RemovePlayer(ctx context.Context, gameID int64, userID string) (bool, error)
	GetPlayers(ctx context.Context, gameID int64) (map[string]models.LobbyUserInfo, error)
	SetStartTime(ctx context.Context, gameID int64, startTime time.Time) error
	GetStartTime(ctx context.Context, gameID int64) (*time.Time, error)
	Clear(ctx context.Context, gameID int64) error
}

// GameState is the in-game half of the cache layer.
type GameState interface {
	WithLock(ctx context.Context, gameID int64, fn func(ctx context.Context) error) error
	GetPlayers(ctx context.Context, gameID int64) (map[string]models.GameUserInfo, error)
	GetStartTime(ctx context.Context, gameID int64) (*time.Time, error)
	SetWords(ctx context.Context, gameID int64, words string) error
	GetWords(ctx context.Context, gameID int64) (string, error)
	PopulateFromLobby(ctx context.Context, gameID int64, lobby cache.LobbySource, startCountdown int, autoClean bool) error
	MergeResult(ctx context.Context, gameID int64, userID string, rank int, wpm, wpmRaw, acc float64, finishedAt time.Time) error
	Clear(ctx context.Context, gameID int64) error
}

// UserStore persists registered users.
type UserStore interface {
	Get(ctx context.Context, id string) (*models.User, error)
	Upsert(ctx context.Context, id, name string) error
	SetRefreshToken(ctx context.Context, id, refreshToken string) error
	ClearRefreshToken(ctx context.Context, id string) error
}

// ResultStore reads persisted game results.
type ResultStore interface {
	TotalGames(ctx context.Context, userID string) (int, error)
	Best(ctx context.Context, userID string) (*models.GameResult, error)
	AvgLastN(ctx context.Context, userID string, n int) (store.AvgStats, error)
	History(ctx context.Context, userID string, page, size int) ([]store.HistoryItem, error)
}

// GuestTokens parks minted guest tokens behind one-shot keys.
type GuestTokens interface {
	Store(ctx context.Context, token string) (string, error)
	Get(ctx context.Context, key string) (string, error)
}

// Sessions is the per-instance websocket session fabric.
type Sessions interface {
	Add(c *ws.Conn, initMsg *models.WSMessage) error
	Broadcast(gameID int64, msg models.WSMessage)
	RemoveUser(gameID int64, userID string, finalMsg *models.WSMessage)
	RemoveGame(gameID int64, finalMsg *models.WSMessage)
}

// AccessTokenMinter mints access tokens (guest join path).
type AccessTokenMinter interface {
	GenAccessToken(userID, username string, userType models.UserType) (string, error)
}

// TokenPairMinter mints access/refresh pairs (login and refresh paths).
type TokenPairMinter interface {
	GenAccessToken(userID, username string, userType models.UserType) (string, error)
	GenTokenPair(userID, username string, userType models.UserType) (token.Pair, error)
}

// TokenValidator verifies tokens from cookies.
type TokenValidator interface {
	Validate(tokenStr string) (*token.Claims, error)
}

// WordSource provides the shared text for a game.
type WordSource interface {
	Generate(n int) string
}
