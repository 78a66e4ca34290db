package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/typephoon/backend/internal/config"
	"github.com/typephoon/backend/internal/models"
	"github.com/typephoon/backend/internal/ws"
)

type QueueInType string

const (
	QueueInNew       QueueInType = "NEW"
	QueueInReconnect QueueInType = "RECONNECT"
)

// Identity is the resolved caller of a join: either the validated token
// subject or a freshly minted guest.
type Identity struct {
	Info     models.LobbyUserInfo
	UserType models.UserType

	// set only for guests; the client fetches its token with this key
	GuestTokenKey string
}

// QueueInService is the matchmaking front door: it resolves the caller,
// finds or creates a lobby, joins it and wires up the lobby websocket.
type QueueInService struct {
	games       GameStore
	lobby       LobbyState
	guestTokens GuestTokens
	minter      AccessTokenMinter
	validator   TokenValidator
	sessions    Sessions
	events      *Events
	lifecycle   *Lifecycle
	cfg         config.GameConfig
	log         *logrus.Logger
}

func NewQueueInService(
	games GameStore,
	lobby LobbyState,
	guestTokens GuestTokens,
	minter AccessTokenMinter,
	validator TokenValidator,
	sessions Sessions,
	events *Events,
	lifecycle *Lifecycle,
	cfg config.GameConfig,
	log *logrus.Logger,
) *QueueInService {
	return &QueueInService{
		games:       games,
		lobby:       lobby,
		guestTokens: guestTokens,
		minter:      minter,
		validator:   validator,
		sessions:    sessions,
		events:      events,
		lifecycle:   lifecycle,
		cfg:         cfg,
		log:         log,
	}
}

// Resolve turns the access-token cookie into an identity. An empty token
// mints a guest whose access token is parked behind a one-shot key; an
// invalid token fails with INVALID_TOKEN before any state is touched.
func (s *QueueInService) Resolve(ctx context.Context, accessToken string) (*Identity, error) {
	if accessToken == "" {
		raw := uuid.NewString()
		info := models.LobbyUserInfo{
			ID:   "guest-" + raw,
			Name: "guest-" + raw[:8],
		}
		tok, err := s.minter.GenAccessToken(info.ID, info.Name, models.UserTypeGuest)
		if err != nil {
			return nil, err
		}
		key, err := s.guestTokens.Store(ctx, tok)
		if err != nil {
			return nil, err
		}
		return &Identity{Info: info, UserType: models.UserTypeGuest, GuestTokenKey: key}, nil
	}

	claims, err := s.validator.Validate(accessToken)
	if err != nil {
		return nil, err
	}
	return &Identity{
		Info:     models.LobbyUserInfo{ID: claims.Subject, Name: claims.Name},
		UserType: claims.UserType,
	}, nil
}

// Join runs the matchmaking flow and registers the connection locally. The
// returned Conn is live; the caller should CloseWait it to keep the handler
// alive for the session.
func (s *QueueInService) Join(ctx context.Context, tr ws.Transport, ident *Identity, typ QueueInType, prevGameID int64) (*ws.Conn, error) {
	tx, err := s.games.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	game, err := s.findGame(ctx, tx, typ, prevGameID, ident.Info.ID)
	if err != nil {
		return nil, err
	}

	created := false
	if game == nil {
		if game, err = tx.Create(ctx, models.GameTypeMulti, models.StatusLobby); err != nil {
			return nil, err
		}
		created = true
	}
	gameID := game.ID

	full, err := s.joinGame(ctx, tx, gameID, ident.Info)
	if err != nil {
		return nil, err
	}
	if full {
		if err := tx.StartGame(ctx, gameID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if created {
		if err := s.scheduleTimers(ctx, gameID); err != nil {
			return nil, err
		}
	}

	conn := ws.NewConn(ident.Info.ID, gameID, tr, nil, s.log)
	init := models.WSMessage{Event: models.EventInit, GameID: gameID}
	if err := s.sessions.Add(conn, &init); err != nil {
		return nil, err
	}
	if ident.GuestTokenKey != "" {
		conn.Put(models.WSMessage{Event: models.EventGetToken, GuestTokenKey: ident.GuestTokenKey})
	}

	if err := s.events.NotifyUserJoined(ctx, gameID); err != nil {
		return nil, err
	}

	if full {
		if err := s.lifecycle.CompleteStart(ctx, gameID); err != nil {
			return nil, err
		}
	}
	return conn, nil
}

// findGame returns a joinable locked game row or nil. Reconnects go back to
// their previous game; returning cache members are admitted even at
// capacity.
func (s *QueueInService) findGame(ctx context.Context, tx GameTxn, typ QueueInType, prevGameID int64, userID string) (*models.Game, error) {
	if typ == QueueInReconnect && prevGameID != 0 {
		isNew, err := s.lobby.IsNewPlayer(ctx, prevGameID, userID)
		if err != nil {
			return nil, err
		}
		return tx.IsAvailable(ctx, prevGameID, isNew)
	}
	return tx.GetOneAvailable(ctx)
}

// joinGame adds the user to the lobby cache and, for genuinely new players,
// bumps player_count under the row lock. Reports whether the lobby is full.
func (s *QueueInService) joinGame(ctx context.Context, tx GameTxn, gameID int64, info models.LobbyUserInfo) (bool, error) {
	var isNew bool
	err := s.lobby.WithLock(ctx, gameID, func(ctx context.Context) error {
		var err error
		isNew, err = s.lobby.AddPlayer(ctx, gameID, info)
		return err
	})
	if err != nil {
		return false, err
	}
	if !isNew {
		return false, nil
	}

	game, err := tx.IncreasePlayerCount(ctx, gameID)
	if err != nil {
		return false, err
	}
	s.log.WithFields(logrus.Fields{
		"game_id":      gameID,
		"player_count": game.PlayerCount,
	}).Debug("player joined")
	return game.PlayerCount >= s.cfg.PlayerLimit, nil
}

// scheduleTimers arms the countdown and cleanup timers for a new game and
// records the lobby start-time clients poll against.
func (s *QueueInService) scheduleTimers(ctx context.Context, gameID int64) error {
	if err := s.events.ScheduleLobbyCountdown(ctx, gameID); err != nil {
		return err
	}
	if err := s.events.ScheduleCleanup(ctx, gameID); err != nil {
		return err
	}
	start := time.Now().UTC().Add(time.Duration(s.cfg.LobbyCountdown) * time.Second)
	return s.lobby.SetStartTime(ctx, gameID, start)
}
