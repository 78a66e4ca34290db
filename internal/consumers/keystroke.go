package consumers

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/typephoon/backend/internal/models"
	"github.com/typephoon/backend/internal/typerr"
)

// KeystrokeHandler fans replicated keystrokes out to local game sessions.
// Messages carry a source header naming the producing instance; skipping
// our own echoes is configurable and off by default, so players see their
// own key reflected through the same path as everyone else's.
type KeystrokeHandler struct {
	sessions     sessions
	serverName   string
	skipSelfEcho bool
	log          *logrus.Logger
}

func NewKeystrokeHandler(sessions sessions, serverName string, skipSelfEcho bool, log *logrus.Logger) *KeystrokeHandler {
	return &KeystrokeHandler{
		sessions:     sessions,
		serverName:   serverName,
		skipSelfEcho: skipSelfEcho,
		log:          log,
	}
}

func (h *KeystrokeHandler) Handle(ctx context.Context, d amqp.Delivery) error {
	var msg models.KeystrokeMsg
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return typerr.Wrap(typerr.CodeValidationError, err)
	}
	if msg.GameID == 0 || msg.UserID == "" {
		return typerr.New(typerr.CodeValidationError, "missing game_id or user_id")
	}

	if h.skipSelfEcho {
		if src, _ := d.Headers[models.KeystrokeSourceHeader].(string); src == h.serverName {
			return nil
		}
	}

	wordIndex, charIndex := msg.WordIndex, msg.CharIndex
	h.sessions.Broadcast(msg.GameID, models.WSMessage{
		Event:     models.EventKeyStroke,
		GameID:    msg.GameID,
		UserID:    msg.UserID,
		WordIndex: &wordIndex,
		CharIndex: &charIndex,
	})
	return nil
}
