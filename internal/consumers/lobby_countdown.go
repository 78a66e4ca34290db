package consumers

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/typephoon/backend/internal/models"
	"github.com/typephoon/backend/internal/services"
	"github.com/typephoon/backend/internal/typerr"
)

// LobbyCountdownHandler consumes dead-lettered countdown triggers and
// force-starts lobbies that never filled. The player-full path may have won
// the race; start_at decides.
type LobbyCountdownHandler struct {
	games     services.GameStore
	lifecycle *services.Lifecycle
	log       *logrus.Logger
}

func NewLobbyCountdownHandler(games services.GameStore, lifecycle *services.Lifecycle, log *logrus.Logger) *LobbyCountdownHandler {
	return &LobbyCountdownHandler{games: games, lifecycle: lifecycle, log: log}
}

func (h *LobbyCountdownHandler) Handle(ctx context.Context, d amqp.Delivery) error {
	var msg models.LobbyCountdownMsg
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return typerr.Wrap(typerr.CodeValidationError, err)
	}
	if msg.GameID == 0 {
		return typerr.New(typerr.CodeValidationError, "missing game_id")
	}

	started, err := h.startGame(ctx, msg.GameID)
	if err != nil {
		return err
	}
	if !started {
		return nil
	}
	return h.lifecycle.CompleteStart(ctx, msg.GameID)
}

// startGame performs the LOBBY -> IN_GAME update under the row lock. A game
// that is gone or already has start_at set is left alone.
func (h *LobbyCountdownHandler) startGame(ctx context.Context, gameID int64) (bool, error) {
	tx, err := h.games.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	game, err := tx.Get(ctx, gameID, true)
	if err != nil {
		return false, err
	}
	if game == nil {
		h.log.WithField("game_id", gameID).Warn("game not found")
		return false, nil
	}
	if game.StartAt.Valid {
		h.log.WithField("game_id", gameID).Debug("game already started")
		return false, nil
	}

	if err := tx.StartGame(ctx, gameID); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
