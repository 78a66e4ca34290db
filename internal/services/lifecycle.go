package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/typephoon/backend/internal/config"
)

// Lifecycle runs the steps shared by both LOBBY -> IN_GAME triggers: the
// player-count path in QueueIn and the countdown consumer. The caller is
// responsible for the StartGame row update and its idempotency check.
type Lifecycle struct {
	lobby  LobbyState
	game   GameState
	words  WordSource
	events *Events
	cfg    config.GameConfig
	log    *logrus.Logger
}

func NewLifecycle(lobby LobbyState, game GameState, words WordSource, events *Events, cfg config.GameConfig, log *logrus.Logger) *Lifecycle {
	return &Lifecycle{lobby: lobby, game: game, words: words, events: events, cfg: cfg, log: log}
}

// CompleteStart promotes the lobby into the game cache with a word list,
// schedules the playable-now tick, and tells every instance to move its UIs
// off the lobby page.
func (l *Lifecycle) CompleteStart(ctx context.Context, gameID int64) error {
	if err := l.game.SetWords(ctx, gameID, l.words.Generate(l.cfg.WordCount)); err != nil {
		return err
	}
	if err := l.game.PopulateFromLobby(ctx, gameID, l.lobby, l.cfg.StartCountdown, true); err != nil {
		return err
	}
	if err := l.events.ScheduleGameStart(ctx, gameID); err != nil {
		return err
	}
	if err := l.events.NotifyGameStart(ctx, gameID); err != nil {
		return err
	}

	l.log.WithField("game_id", gameID).Info("game started")
	return nil
}
