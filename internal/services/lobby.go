package services

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/typephoon/backend/internal/models"
	"github.com/typephoon/backend/internal/typerr"
)

// LobbyPlayers splits the lobby membership from the caller's point of view.
type LobbyPlayers struct {
	Me     models.LobbyUserInfo   `json:"me"`
	Others []models.LobbyUserInfo `json:"others"`
}

type LobbyService struct {
	games    GameStore
	lobby    LobbyState
	sessions Sessions
	events   *Events
	log      *logrus.Logger
}

func NewLobbyService(games GameStore, lobby LobbyState, sessions Sessions, events *Events, log *logrus.Logger) *LobbyService {
	return &LobbyService{games: games, lobby: lobby, sessions: sessions, events: events, log: log}
}

// GetCountdown returns seconds until the lobby force-starts, clamped to 0.
func (s *LobbyService) GetCountdown(ctx context.Context, gameID int64) (float64, error) {
	start, err := s.lobby.GetStartTime(ctx, gameID)
	if err != nil {
		return 0, err
	}
	if start == nil {
		return 0, typerr.New(typerr.CodeGameNotFound, "lobby start time not found")
	}

	left := time.Until(*start).Seconds()
	if left < 0 {
		left = 0
	}
	return left, nil
}

// GetPlayers returns the lobby membership split into me/others. Callers not
// in the lobby are NOT_A_PARTICIPANT.
func (s *LobbyService) GetPlayers(ctx context.Context, gameID int64, userID string) (*LobbyPlayers, error) {
	players, err := s.lobby.GetPlayers(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if len(players) == 0 {
		return nil, typerr.New(typerr.CodeGameNotFound, "lobby not found")
	}

	me, ok := players[userID]
	if !ok {
		return nil, typerr.New(typerr.CodeNotAParticipant, "caller is not in this lobby")
	}

	result := &LobbyPlayers{Me: me, Others: make([]models.LobbyUserInfo, 0, len(players)-1)}
	for id, info := range players {
		if id != userID {
			result.Others = append(result.Others, info)
		}
	}
	sort.Slice(result.Others, func(i, j int) bool {
		return result.Others[i].ID < result.Others[j].ID
	})
	return result, nil
}

// Leave removes the user from the lobby: counter down, cache entry gone,
// USER_LEFT fanned out so every instance (including this one) closes the
// user's lobby connection.
func (s *LobbyService) Leave(ctx context.Context, gameID int64, userID string) error {
	tx, err := s.games.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	game, err := tx.DecreasePlayerCount(ctx, gameID)
	if err != nil {
		return err
	}
	if game == nil {
		return typerr.New(typerr.CodeGameNotFound, "game not found")
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	err = s.lobby.WithLock(ctx, gameID, func(ctx context.Context) error {
		_, err := s.lobby.RemovePlayer(ctx, gameID, userID)
		return err
	})
	if err != nil {
		return err
	}

	return s.events.NotifyUserLeft(ctx, gameID, userID)
}
