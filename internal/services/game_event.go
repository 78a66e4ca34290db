package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/typephoon/backend/internal/models"
	"github.com/typephoon/backend/internal/typerr"
	"github.com/typephoon/backend/internal/ws"
)

// GameEventService runs the in-game websocket: inbound keystrokes are
// replicated through the broker, outbound frames arrive via the keystroke
// and game-start consumers.
type GameEventService struct {
	state     GameState
	validator TokenValidator
	sessions  Sessions
	events    *Events
	log       *logrus.Logger
}

func NewGameEventService(state GameState, validator TokenValidator, sessions Sessions, events *Events, log *logrus.Logger) *GameEventService {
	return &GameEventService{state: state, validator: validator, sessions: sessions, events: events, log: log}
}

// Subscribe validates the caller, checks game membership and registers the
// connection. The returned Conn is live; callers CloseWait it.
func (s *GameEventService) Subscribe(ctx context.Context, tr ws.Transport, gameID int64, accessToken string) (*ws.Conn, error) {
	claims, err := s.validator.Validate(accessToken)
	if err != nil {
		return nil, err
	}

	players, err := s.state.GetPlayers(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if players == nil {
		return nil, typerr.New(typerr.CodeGameNotFound, "game cache not found")
	}
	if _, ok := players[claims.Subject]; !ok {
		return nil, typerr.New(typerr.CodeNotAParticipant, "caller is not in this game")
	}

	conn := ws.NewConn(claims.Subject, gameID, tr, s.onRecv, s.log)
	if err := s.sessions.Add(conn, nil); err != nil {
		return nil, err
	}
	return conn, nil
}

// onRecv forwards keystroke frames to the broker; everything else is noise.
func (s *GameEventService) onRecv(c *ws.Conn, msg models.WSMessage) {
	if msg.Event != models.EventKeyStroke || msg.WordIndex == nil || msg.CharIndex == nil {
		s.log.WithFields(logrus.Fields{
			"game_id": c.GameID(),
			"user_id": c.UserID(),
			"event":   msg.Event,
		}).Warn("dropping unexpected frame")
		return
	}

	err := s.events.PublishKeystroke(context.Background(), models.KeystrokeMsg{
		GameID:    c.GameID(),
		UserID:    c.UserID(),
		WordIndex: *msg.WordIndex,
		CharIndex: *msg.CharIndex,
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"game_id": c.GameID(),
			"user_id": c.UserID(),
		}).WithError(err).Warn("keystroke publish failed")
	}
}
