package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typephoon/backend/internal/models"
	"github.com/typephoon/backend/internal/typerr"
)

type lobbyEnv struct {
	svc   *LobbyService
	store *fakeGameStore
	lobby *fakeLobbyState
	pub   *fakePublisher
}

func newLobbyEnv(t *testing.T) *lobbyEnv {
	t.Helper()
	env := &lobbyEnv{
		store: newFakeGameStore(5),
		lobby: newFakeLobbyState(),
		pub:   &fakePublisher{},
	}
	events := NewEvents(env.pub, testConfig())
	env.svc = NewLobbyService(env.store, env.lobby, &fakeSessions{}, events, testLogger())
	return env
}

func TestLobbyCountdown(t *testing.T) {
	env := newLobbyEnv(t)
	ctx := context.Background()

	require.NoError(t, env.lobby.SetStartTime(ctx, 1, time.Now().Add(4*time.Second)))
	left, err := env.svc.GetCountdown(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 4, left, 0.5)
}

func TestLobbyCountdownClampsToZero(t *testing.T) {
	env := newLobbyEnv(t)
	ctx := context.Background()

	require.NoError(t, env.lobby.SetStartTime(ctx, 1, time.Now().Add(-10*time.Second)))
	left, err := env.svc.GetCountdown(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, left)
}

func TestLobbyCountdownUnknownGame(t *testing.T) {
	env := newLobbyEnv(t)

	_, err := env.svc.GetCountdown(context.Background(), 42)
	assert.True(t, typerr.Is(err, typerr.CodeGameNotFound))
}

func TestLobbyPlayersSplit(t *testing.T) {
	env := newLobbyEnv(t)
	ctx := context.Background()

	for _, id := range []string{"u-c", "u-a", "u-b"} {
		_, err := env.lobby.AddPlayer(ctx, 1, models.LobbyUserInfo{ID: id, Name: id})
		require.NoError(t, err)
	}

	players, err := env.svc.GetPlayers(ctx, 1, "u-b")
	require.NoError(t, err)
	assert.Equal(t, "u-b", players.Me.ID)
	require.Len(t, players.Others, 2)
	assert.Equal(t, "u-a", players.Others[0].ID)
	assert.Equal(t, "u-c", players.Others[1].ID)
}

func TestLobbyPlayersNotAParticipant(t *testing.T) {
	env := newLobbyEnv(t)
	ctx := context.Background()

	_, err := env.lobby.AddPlayer(ctx, 1, models.LobbyUserInfo{ID: "u-a"})
	require.NoError(t, err)

	_, err = env.svc.GetPlayers(ctx, 1, "stranger")
	assert.True(t, typerr.Is(err, typerr.CodeNotAParticipant))
}

func TestLobbyPlayersUnknownGame(t *testing.T) {
	env := newLobbyEnv(t)

	_, err := env.svc.GetPlayers(context.Background(), 42, "u-a")
	assert.True(t, typerr.Is(err, typerr.CodeGameNotFound))
}

func TestLobbyLeave(t *testing.T) {
	env := newLobbyEnv(t)
	ctx := context.Background()

	game := env.store.addGame(models.Game{Status: models.StatusLobby, PlayerCount: 2})
	_, err := env.lobby.AddPlayer(ctx, game.ID, models.LobbyUserInfo{ID: "u-a"})
	require.NoError(t, err)
	_, err = env.lobby.AddPlayer(ctx, game.ID, models.LobbyUserInfo{ID: "u-b"})
	require.NoError(t, err)

	require.NoError(t, env.svc.Leave(ctx, game.ID, "u-a"))

	got, err := env.store.Get(ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.PlayerCount)

	players, err := env.lobby.GetPlayers(ctx, game.ID)
	require.NoError(t, err)
	_, stillThere := players["u-a"]
	assert.False(t, stillThere)

	assert.Equal(t, []string{models.EventUserLeft}, env.pub.notifyTypes())
}

func TestLobbyLeaveUnknownGame(t *testing.T) {
	env := newLobbyEnv(t)

	err := env.svc.Leave(context.Background(), 42, "u-a")
	assert.True(t, typerr.Is(err, typerr.CodeGameNotFound))
	assert.Empty(t, env.pub.published)
}
