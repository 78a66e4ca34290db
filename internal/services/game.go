package services

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/typephoon/backend/internal/models"
	"github.com/typephoon/backend/internal/typerr"
)

// GameStatistics is the client's finish report.
type GameStatistics struct {
	GameID int64   `json:"game_id" binding:"required"`
	WPM    float64 `json:"wpm"`
	WPMRaw float64 `json:"wpm_raw"`
	Acc    float64 `json:"acc"`
}

type GameService struct {
	games GameStore
	state GameState
	log   *logrus.Logger
}

func NewGameService(games GameStore, state GameState, log *logrus.Logger) *GameService {
	return &GameService{games: games, state: state, log: log}
}

// GetCountdown returns seconds until the game becomes playable, clamped to 0.
func (s *GameService) GetCountdown(ctx context.Context, gameID int64) (float64, error) {
	start, err := s.state.GetStartTime(ctx, gameID)
	if err != nil {
		return 0, err
	}
	if start == nil {
		return 0, typerr.New(typerr.CodeGameNotFound, "game start time not found")
	}

	left := time.Until(*start).Seconds()
	if left < 0 {
		left = 0
	}
	return left, nil
}

// WriteStatistics records a finish: rank comes from the finish counter under
// the row lock, registered users additionally get a persistent result row,
// and the game cache entry is updated for the result page.
func (s *GameService) WriteStatistics(ctx context.Context, stats GameStatistics, userID string, userType models.UserType) error {
	players, err := s.state.GetPlayers(ctx, stats.GameID)
	if err != nil {
		return err
	}
	if players == nil {
		return typerr.New(typerr.CodeGameNotFound, "game cache not found")
	}
	me, ok := players[userID]
	if !ok {
		return typerr.New(typerr.CodeNotAParticipant, "caller is not in this game")
	}
	if me.FinishedAt != nil {
		// a finish counts once; repeats would push finish_count past
		// player_count and overwrite the recorded rank
		s.log.WithFields(logrus.Fields{
			"game_id": stats.GameID,
			"user_id": userID,
		}).Info("finish already recorded, ignoring repeat")
		return nil
	}

	finishedAt := time.Now().UTC()

	tx, err := s.games.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	game, err := tx.IncreaseFinishCount(ctx, stats.GameID)
	if err != nil {
		return err
	}
	if game == nil {
		return typerr.New(typerr.CodeGameNotFound, "game not found")
	}
	rank := game.FinishCount

	if userType == models.UserTypeRegistered {
		err := tx.CreateResult(ctx, models.GameResult{
			GameID:     stats.GameID,
			UserID:     userID,
			Rank:       rank,
			WPMRaw:     stats.WPMRaw,
			WPMCorrect: stats.WPM,
			Accuracy:   stats.Acc,
			FinishedAt: finishedAt,
		})
		if err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	return s.state.WithLock(ctx, stats.GameID, func(ctx context.Context) error {
		return s.state.MergeResult(ctx, stats.GameID, userID, rank, stats.WPM, stats.WPMRaw, stats.Acc, finishedAt)
	})
}

// GetResult returns the game's players sorted by rank; players still typing
// sort after everyone who finished.
func (s *GameService) GetResult(ctx context.Context, gameID int64) ([]models.GameUserInfo, error) {
	players, err := s.state.GetPlayers(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if players == nil {
		return nil, typerr.New(typerr.CodeGameNotFound, "game cache not found")
	}

	ranking := make([]models.GameUserInfo, 0, len(players))
	for _, info := range players {
		ranking = append(ranking, info)
	}
	sort.Slice(ranking, func(i, j int) bool {
		a, b := ranking[i], ranking[j]
		if (a.FinishedAt != nil) != (b.FinishedAt != nil) {
			return a.FinishedAt != nil
		}
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		return a.ID < b.ID
	})
	return ranking, nil
}

func (s *GameService) GetWords(ctx context.Context, gameID int64) (string, error) {
	words, err := s.state.GetWords(ctx, gameID)
	if err != nil {
		return "", err
	}
	if words == "" {
		return "", typerr.New(typerr.CodeWordsNotFound, "words not found")
	}
	return words, nil
}
