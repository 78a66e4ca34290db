package consumers

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/typephoon/backend/internal/models"
	"github.com/typephoon/backend/internal/typerr"
)

// sessions is the slice of the websocket manager consumers drive.
type sessions interface {
	Broadcast(gameID int64, msg models.WSMessage)
	RemoveGame(gameID int64, finalMsg *models.WSMessage)
}

// LobbyNotifyHandler turns fan-out lobby events into local broadcasts. Every
// instance consumes its own copy from an instance-scoped queue.
type LobbyNotifyHandler struct {
	sessions sessions
	log      *logrus.Logger
}

func NewLobbyNotifyHandler(sessions sessions, log *logrus.Logger) *LobbyNotifyHandler {
	return &LobbyNotifyHandler{sessions: sessions, log: log}
}

func (h *LobbyNotifyHandler) Handle(ctx context.Context, d amqp.Delivery) error {
	var msg models.LobbyNotifyMsg
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return typerr.Wrap(typerr.CodeValidationError, err)
	}
	if msg.GameID == 0 {
		return typerr.New(typerr.CodeValidationError, "missing game_id")
	}

	// guest token keys (GET_TOKEN) never ride the fan-out; the key goes to
	// the joining connection directly.
	switch msg.NotifyType {
	case models.EventUserJoined, models.EventUserLeft:
		h.sessions.Broadcast(msg.GameID, models.WSMessage{
			Event:  msg.NotifyType,
			GameID: msg.GameID,
			UserID: msg.UserID,
		})
	case models.EventGameStart:
		// lobby sessions end here; the final frame moves UIs to the game page
		final := models.WSMessage{Event: models.EventGameStart, GameID: msg.GameID}
		h.sessions.RemoveGame(msg.GameID, &final)
	default:
		return typerr.New(typerr.CodeValidationError, "unknown notify type "+msg.NotifyType)
	}
	return nil
}
