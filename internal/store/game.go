// Package store is the relational source of truth. Lifecycle counters are
// only touched through row locks here; caches may lag but transitions
// cannot be fooled.
package store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/typephoon/backend/internal/models"
)

type GameRepo struct {
	db          *sqlx.DB
	playerLimit int
}

func NewGameRepo(db *sqlx.DB, playerLimit int) *GameRepo {
	return &GameRepo{db: db, playerLimit: playerLimit}
}

// Begin opens a matchmaking transaction. All row locks taken through the
// returned GameTx are held until Commit/Rollback.
func (r *GameRepo) Begin(ctx context.Context) (*GameTx, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &GameTx{tx: tx, playerLimit: r.playerLimit}, nil
}

func (r *GameRepo) Get(ctx context.Context, id int64) (*models.Game, error) {
	var game models.Game
	err := r.db.GetContext(ctx, &game, `SELECT * FROM games WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}

type GameTx struct {
	tx          *sqlx.Tx
	playerLimit int
}

func (t *GameTx) Commit() error   { return t.tx.Commit() }
func (t *GameTx) Rollback() error { return t.tx.Rollback() }

// Get fetches a game, optionally taking the row lock that linearizes all
// counter updates for it.
func (t *GameTx) Get(ctx context.Context, id int64, lock bool) (*models.Game, error) {
	query := `SELECT * FROM games WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var game models.Game
	err := t.tx.GetContext(ctx, &game, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// GetOneAvailable picks the first joinable lobby, locked for update.
func (t *GameTx) GetOneAvailable(ctx context.Context) (*models.Game, error) {
	var game models.Game
	err := t.tx.GetContext(ctx, &game,
		`SELECT * FROM games WHERE status = $1 AND player_count < $2 LIMIT 1 FOR UPDATE`,
		models.StatusLobby, t.playerLimit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// IsAvailable checks whether the given lobby can take this user. Returning
// cache members are let back in even at capacity; genuinely new players
// need a free slot.
func (t *GameTx) IsAvailable(ctx context.Context, id int64, newPlayer bool) (*models.Game, error) {
	query := `SELECT * FROM games WHERE status = $1 AND id = $2`
	if newPlayer {
		query += ` AND player_count < $3`
	} else {
		query += ` AND player_count <= $3`
	}
	query += ` FOR UPDATE`

	var game models.Game
	err := t.tx.GetContext(ctx, &game, query, models.StatusLobby, id, t.playerLimit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}

func (t *GameTx) Create(ctx context.Context, gameType models.GameType, status models.GameStatus) (*models.Game, error) {
	var game models.Game
	err := t.tx.GetContext(ctx, &game,
		`INSERT INTO games (game_type, status) VALUES ($1, $2) RETURNING *`,
		gameType, status)
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// StartGame is the single LOBBY -> IN_GAME update: status and start_at
// change together so "start_at IS NOT NULL" is a reliable idempotency check.
func (t *GameTx) StartGame(ctx context.Context, id int64) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE games SET status = $1, start_at = NOW() WHERE id = $2`,
		models.StatusInGame, id)
	return err
}

// SetFinish archives the game. Safe to run twice.
func (t *GameTx) SetFinish(ctx context.Context, id int64) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE games SET status = $1, end_at = NOW() WHERE id = $2`,
		models.StatusFinished, id)
	return err
}

func (t *GameTx) IncreasePlayerCount(ctx context.Context, id int64) (*models.Game, error) {
	var game models.Game
	err := t.tx.GetContext(ctx, &game,
		`UPDATE games SET player_count = player_count + 1 WHERE id = $1 RETURNING *`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}

func (t *GameTx) DecreasePlayerCount(ctx context.Context, id int64) (*models.Game, error) {
	var game models.Game
	err := t.tx.GetContext(ctx, &game,
		`UPDATE games SET player_count = player_count - 1 WHERE id = $1 RETURNING *`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// IncreaseFinishCount bumps the finish counter and returns the updated row;
// the new value is the finisher's rank.
func (t *GameTx) IncreaseFinishCount(ctx context.Context, id int64) (*models.Game, error) {
	var game models.Game
	err := t.tx.GetContext(ctx, &game,
		`UPDATE games SET finish_count = finish_count + 1 WHERE id = $1 RETURNING *`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}
