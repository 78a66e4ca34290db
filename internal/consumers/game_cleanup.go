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

// GameCleanupHandler archives games when their delayed cleanup trigger
// lands: FINISHED in the database, both caches dropped. Running twice is
// harmless.
type GameCleanupHandler struct {
	games services.GameStore
	lobby services.LobbyState
	state services.GameState
	log   *logrus.Logger
}

func NewGameCleanupHandler(games services.GameStore, lobby services.LobbyState, state services.GameState, log *logrus.Logger) *GameCleanupHandler {
	return &GameCleanupHandler{games: games, lobby: lobby, state: state, log: log}
}

func (h *GameCleanupHandler) Handle(ctx context.Context, d amqp.Delivery) error {
	var msg models.GameCleanupMsg
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return typerr.Wrap(typerr.CodeValidationError, err)
	}
	if msg.GameID == 0 {
		return typerr.New(typerr.CodeValidationError, "missing game_id")
	}

	if err := h.lobby.Clear(ctx, msg.GameID); err != nil {
		return err
	}
	if err := h.state.Clear(ctx, msg.GameID); err != nil {
		return err
	}

	tx, err := h.games.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.SetFinish(ctx, msg.GameID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	h.log.WithField("game_id", msg.GameID).Info("game cleaned up")
	return nil
}
