package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/typephoon/backend/internal/models"
)

// CreateResult inserts the persistent result row. It runs inside the finish
// transaction so rank assignment and the row are committed together.
func (t *GameTx) CreateResult(ctx context.Context, res models.GameResult) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO game_results (game_id, user_id, rank, wpm_raw, wpm_correct, accuracy, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		res.GameID, res.UserID, res.Rank, res.WPMRaw, res.WPMCorrect, res.Accuracy, res.FinishedAt)
	return err
}

type GameResultRepo struct {
	db *sqlx.DB
}

func NewGameResultRepo(db *sqlx.DB) *GameResultRepo {
	return &GameResultRepo{db: db}
}

func (r *GameResultRepo) TotalGames(ctx context.Context, userID string) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(game_id) FROM game_results WHERE user_id = $1`, userID)
	return total, err
}

// Best returns the result with the highest correct WPM, or nil.
func (r *GameResultRepo) Best(ctx context.Context, userID string) (*models.GameResult, error) {
	var res models.GameResult
	err := r.db.GetContext(ctx, &res, `
		SELECT * FROM game_results WHERE user_id = $1
		ORDER BY wpm_correct DESC LIMIT 1`, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

type AvgStats struct {
	WPMRaw float64 `db:"wpm_raw"`
	WPM    float64 `db:"wpm_correct"`
	Acc    float64 `db:"accuracy"`
}

// AvgLastN averages the user's last n results, or every result when n <= 0.
// Empty histories coalesce to zeroes.
func (r *GameResultRepo) AvgLastN(ctx context.Context, userID string, n int) (AvgStats, error) {
	query := `
		WITH last_n AS (
			SELECT wpm_raw, wpm_correct, accuracy FROM game_results
			WHERE user_id = $1`
	args := []interface{}{userID}
	if n > 0 {
		query += ` ORDER BY finished_at DESC LIMIT $2`
		args = append(args, n)
	}
	query += `
		)
		SELECT
			COALESCE(AVG(wpm_raw), 0) AS wpm_raw,
			COALESCE(AVG(wpm_correct), 0) AS wpm_correct,
			COALESCE(AVG(accuracy), 0) AS accuracy
		FROM last_n`

	var stats AvgStats
	err := r.db.GetContext(ctx, &stats, query, args...)
	return stats, err
}

type HistoryItem struct {
	GameID     int64           `db:"game_id" json:"game_id"`
	GameType   models.GameType `db:"game_type" json:"game_type"`
	Rank       int             `db:"rank" json:"rank"`
	WPM        float64         `db:"wpm_correct" json:"wpm"`
	WPMRaw     float64         `db:"wpm_raw" json:"wpm_raw"`
	Accuracy   float64         `db:"accuracy" json:"accuracy"`
	FinishedAt time.Time       `db:"finished_at" json:"finished_at"`
}

// History pages through the user's results, newest first.
func (r *GameResultRepo) History(ctx context.Context, userID string, page, size int) ([]HistoryItem, error) {
	items := []HistoryItem{}
	err := r.db.SelectContext(ctx, &items, `
		SELECT gr.game_id, g.game_type, gr.rank, gr.wpm_correct, gr.wpm_raw, gr.accuracy, gr.finished_at
		FROM game_results gr
		JOIN games g ON g.id = gr.game_id
		WHERE gr.user_id = $1
		ORDER BY gr.finished_at DESC
		LIMIT $2 OFFSET $3`,
		userID, size, (page-1)*size)
	return items, err
}
