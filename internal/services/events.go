package services

import (
	"context"
	"time"

	"github.com/streadway/amqp"

	"github.com/typephoon/backend/internal/broker"
	"github.com/typephoon/backend/internal/config"
	"github.com/typephoon/backend/internal/models"
)

// Events wraps the publisher with the exchange/queue names from config, so
// services publish domain events without touching broker plumbing.
type Events struct {
	pub        broker.Publisher
	amqp       config.AMQPConfig
	game       config.GameConfig
	serverName string
}

func NewEvents(pub broker.Publisher, cfg *config.Config) *Events {
	return &Events{
		pub:        pub,
		amqp:       cfg.AMQP,
		game:       cfg.Game,
		serverName: cfg.ServerName,
	}
}

func (e *Events) notify(ctx context.Context, msg models.LobbyNotifyMsg) error {
	return e.pub.Publish(ctx, e.amqp.LobbyNotifyExchange, "", msg, nil)
}

func (e *Events) NotifyUserJoined(ctx context.Context, gameID int64) error {
	return e.notify(ctx, models.LobbyNotifyMsg{NotifyType: models.EventUserJoined, GameID: gameID})
}

func (e *Events) NotifyUserLeft(ctx context.Context, gameID int64, userID string) error {
	return e.notify(ctx, models.LobbyNotifyMsg{NotifyType: models.EventUserLeft, GameID: gameID, UserID: userID})
}

func (e *Events) NotifyGameStart(ctx context.Context, gameID int64) error {
	return e.notify(ctx, models.LobbyNotifyMsg{NotifyType: models.EventGameStart, GameID: gameID})
}

// ScheduleLobbyCountdown parks a countdown trigger that dead-letters into
// the lobby-countdown work queue after the lobby countdown elapses.
func (e *Events) ScheduleLobbyCountdown(ctx context.Context, gameID int64) error {
	return e.pub.PublishWait(ctx,
		e.amqp.LobbyCountdownWaitQueue,
		time.Duration(e.game.LobbyCountdown)*time.Second,
		e.amqp.LobbyCountdownExchange,
		e.amqp.LobbyCountdownRoutKey,
		models.LobbyCountdownMsg{GameID: gameID})
}

// ScheduleGameStart parks the playable-now tick; it fans out through the
// game.start exchange after the start countdown.
func (e *Events) ScheduleGameStart(ctx context.Context, gameID int64) error {
	return e.pub.PublishWait(ctx,
		e.amqp.GameStartWaitQueue,
		time.Duration(e.game.StartCountdown)*time.Second,
		e.amqp.GameStartExchange,
		"",
		models.GameStartMsg{GameID: gameID})
}

// ScheduleCleanup parks the archival trigger for a freshly created game.
func (e *Events) ScheduleCleanup(ctx context.Context, gameID int64) error {
	return e.pub.PublishWait(ctx,
		e.amqp.GameCleanupWaitQueue,
		time.Duration(e.game.CleanupCountdown)*time.Second,
		e.amqp.GameCleanupExchange,
		e.amqp.GameCleanupRoutKey,
		models.GameCleanupMsg{GameID: gameID})
}

// PublishKeystroke replicates one keystroke to every instance, tagged with
// the producing instance name.
func (e *Events) PublishKeystroke(ctx context.Context, msg models.KeystrokeMsg) error {
	headers := amqp.Table{models.KeystrokeSourceHeader: e.serverName}
	return e.pub.Publish(ctx, e.amqp.GameKeystrokeExchange, "", msg, headers)
}
