package consumers

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/typephoon/backend/internal/models"
	"github.com/typephoon/backend/internal/typerr"
)

// GameStartHandler delivers the playable-now tick: when the delayed
// game-start message lands, every instance broadcasts START to its local
// connections for the game.
type GameStartHandler struct {
	sessions sessions
	log      *logrus.Logger
}

func NewGameStartHandler(sessions sessions, log *logrus.Logger) *GameStartHandler {
	return &GameStartHandler{sessions: sessions, log: log}
}

func (h *GameStartHandler) Handle(ctx context.Context, d amqp.Delivery) error {
	var msg models.GameStartMsg
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return typerr.Wrap(typerr.CodeValidationError, err)
	}
	if msg.GameID == 0 {
		return typerr.New(typerr.CodeValidationError, "missing game_id")
	}

	h.sessions.Broadcast(msg.GameID, models.WSMessage{
		Event:  models.EventStart,
		GameID: msg.GameID,
	})
	return nil
}
