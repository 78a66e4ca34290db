package consumers

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/typephoon/backend/internal/cache"
	"github.com/typephoon/backend/internal/config"
	"github.com/typephoon/backend/internal/models"
	"github.com/typephoon/backend/internal/services"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testConfig() *config.Config {
	return &config.Config{
		Game: config.GameConfig{
			StartCountdown: 5,
			LobbyCountdown: 5,
			PlayerLimit:    2,
			WordCount:      10,
		},
		AMQP: config.AMQPConfig{
			LobbyNotifyExchange:     "lobby.notify",
			LobbyCountdownExchange:  "lobby.countdown",
			GameKeystrokeExchange:   "game.keystroke",
			GameCleanupExchange:     "game.cleanup",
			GameStartExchange:       "game.start",
			LobbyCountdownRoutKey:   "lobby.countdown",
			GameCleanupRoutKey:      "game.cleanup",
			LobbyCountdownWaitQueue: "lobby.countdown.wait",
			GameStartWaitQueue:      "game.start.wait",
			GameCleanupWaitQueue:    "game.cleanup.wait",
		},
		ServerName: "test-1",
	}
}

// fakeSessions records what the handlers push at local connections.
type fakeSessions struct {
	mu         sync.Mutex
	broadcasts []models.WSMessage
	removed    []int64
	finals     []*models.WSMessage
}

func (f *fakeSessions) Broadcast(gameID int64, msg models.WSMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, msg)
}

func (f *fakeSessions) RemoveGame(gameID int64, finalMsg *models.WSMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, gameID)
	f.finals = append(f.finals, finalMsg)
}

// memGames is an in-memory games table for handler tests.
type memGames struct {
	mu      sync.Mutex
	games   map[int64]*models.Game
	started []int64
}

func newMemGames(games ...*models.Game) *memGames {
	m := &memGames{games: map[int64]*models.Game{}}
	for _, g := range games {
		m.games[g.ID] = g
	}
	return m
}

func (m *memGames) Begin(ctx context.Context) (services.GameTxn, error) {
	return &memGamesTxn{store: m}, nil
}

func (m *memGames) Get(ctx context.Context, id int64) (*models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.games[id]; ok {
		copied := *g
		return &copied, nil
	}
	return nil, nil
}

type memGamesTxn struct {
	store *memGames
}

func (t *memGamesTxn) Get(ctx context.Context, id int64, lock bool) (*models.Game, error) {
	return t.store.Get(ctx, id)
}

func (t *memGamesTxn) GetOneAvailable(ctx context.Context) (*models.Game, error) {
	return nil, nil
}

func (t *memGamesTxn) IsAvailable(ctx context.Context, id int64, newPlayer bool) (*models.Game, error) {
	return nil, nil
}

func (t *memGamesTxn) Create(ctx context.Context, gameType models.GameType, status models.GameStatus) (*models.Game, error) {
	return nil, nil
}

func (t *memGamesTxn) StartGame(ctx context.Context, id int64) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	g := t.store.games[id]
	g.Status = models.StatusInGame
	g.StartAt.Time, g.StartAt.Valid = time.Now(), true
	t.store.started = append(t.store.started, id)
	return nil
}

func (t *memGamesTxn) SetFinish(ctx context.Context, id int64) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if g, ok := t.store.games[id]; ok {
		g.Status = models.StatusFinished
		g.EndAt.Time, g.EndAt.Valid = time.Now(), true
	}
	return nil
}

func (t *memGamesTxn) IncreasePlayerCount(ctx context.Context, id int64) (*models.Game, error) {
	return nil, nil
}

func (t *memGamesTxn) DecreasePlayerCount(ctx context.Context, id int64) (*models.Game, error) {
	return nil, nil
}

func (t *memGamesTxn) IncreaseFinishCount(ctx context.Context, id int64) (*models.Game, error) {
	return nil, nil
}

func (t *memGamesTxn) CreateResult(ctx context.Context, res models.GameResult) error { return nil }
func (t *memGamesTxn) Commit() error                                                 { return nil }
func (t *memGamesTxn) Rollback() error                                               { return nil }

// memLobby is an in-memory lobby cache.
type memLobby struct {
	mu      sync.Mutex
	players map[int64]map[string]models.LobbyUserInfo
	starts  map[int64]time.Time
}

func newMemLobby() *memLobby {
	return &memLobby{
		players: map[int64]map[string]models.LobbyUserInfo{},
		starts:  map[int64]time.Time{},
	}
}

func (f *memLobby) WithLock(ctx context.Context, gameID int64, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *memLobby) AddPlayer(ctx context.Context, gameID int64, info models.LobbyUserInfo) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.players[gameID]
	if !ok {
		m = map[string]models.LobbyUserInfo{}
		f.players[gameID] = m
	}
	_, exists := m[info.ID]
	m[info.ID] = info
	return !exists, nil
}

func (f *memLobby) IsNewPlayer(ctx context.Context, gameID int64, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, exists := f.players[gameID][userID]
	return !exists, nil
}

func (f *memLobby) RemovePlayer(ctx context.Context, gameID int64, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, exists := f.players[gameID][userID]
	delete(f.players[gameID], userID)
	return exists, nil
}

func (f *memLobby) GetPlayers(ctx context.Context, gameID int64) (map[string]models.LobbyUserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.players[gameID]
	if !ok {
		return nil, nil
	}
	out := map[string]models.LobbyUserInfo{}
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

func (f *memLobby) SetStartTime(ctx context.Context, gameID int64, startTime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts[gameID] = startTime
	return nil
}

func (f *memLobby) GetStartTime(ctx context.Context, gameID int64) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ts, ok := f.starts[gameID]; ok {
		return &ts, nil
	}
	return nil, nil
}

func (f *memLobby) Clear(ctx context.Context, gameID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.players, gameID)
	delete(f.starts, gameID)
	return nil
}

// memState is an in-memory game cache.
type memState struct {
	mu      sync.Mutex
	players map[int64]map[string]models.GameUserInfo
	starts  map[int64]time.Time
	words   map[int64]string
}

func newMemState() *memState {
	return &memState{
		players: map[int64]map[string]models.GameUserInfo{},
		starts:  map[int64]time.Time{},
		words:   map[int64]string{},
	}
}

func (f *memState) WithLock(ctx context.Context, gameID int64, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *memState) GetPlayers(ctx context.Context, gameID int64) (map[string]models.GameUserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.players[gameID]
	if !ok {
		return nil, nil
	}
	out := map[string]models.GameUserInfo{}
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

func (f *memState) GetStartTime(ctx context.Context, gameID int64) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ts, ok := f.starts[gameID]; ok {
		return &ts, nil
	}
	return nil, nil
}

func (f *memState) SetWords(ctx context.Context, gameID int64, words string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.words[gameID] = words
	return nil
}

func (f *memState) GetWords(ctx context.Context, gameID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.words[gameID], nil
}

func (f *memState) PopulateFromLobby(ctx context.Context, gameID int64, lobby cache.LobbySource, startCountdown int, autoClean bool) error {
	lobbyPlayers, err := lobby.GetPlayers(ctx, gameID)
	if err != nil {
		return err
	}
	gamePlayers := map[string]models.GameUserInfo{}
	for id, info := range lobbyPlayers {
		gamePlayers[id] = models.GameUserFromLobby(info)
	}
	f.mu.Lock()
	f.players[gameID] = gamePlayers
	f.mu.Unlock()
	if autoClean {
		return lobby.Clear(ctx, gameID)
	}
	return nil
}

func (f *memState) MergeResult(ctx context.Context, gameID int64, userID string, rank int, wpm, wpmRaw, acc float64, finishedAt time.Time) error {
	return nil
}

func (f *memState) Clear(ctx context.Context, gameID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.players, gameID)
	delete(f.starts, gameID)
	delete(f.words, gameID)
	return nil
}

// recordPublisher records publishes instead of talking to the broker.
type publishedMsg struct {
	Exchange string
	Key      string
	Body     interface{}
	Headers  amqp.Table
}

type waitMsg struct {
	Base string
	TTL  time.Duration
	Body interface{}
}

type recordPublisher struct {
	mu        sync.Mutex
	published []publishedMsg
	waits     []waitMsg
}

func (p *recordPublisher) Publish(ctx context.Context, exchange, key string, body interface{}, headers amqp.Table) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, publishedMsg{Exchange: exchange, Key: key, Body: body, Headers: headers})
	return nil
}

func (p *recordPublisher) PublishWait(ctx context.Context, base string, ttl time.Duration, dlx, dlKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waits = append(p.waits, waitMsg{Base: base, TTL: ttl, Body: body})
	return nil
}

// fakeAcknowledger records ack/nack decisions on a delivery.
type fakeAcknowledger struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacks++
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacks++
	f.requeue = requeue
	return nil
}
