package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/typephoon/backend/internal/cache"
	"github.com/typephoon/backend/internal/models"
	"github.com/typephoon/backend/internal/token"
	"github.com/typephoon/backend/internal/typerr"
	"github.com/typephoon/backend/internal/ws"
)

var errInvalidToken = typerr.New(typerr.CodeInvalidToken, "invalid token")

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeGameStore keeps games in memory; its transactions mutate the shared
// map directly and record lifecycle calls.
type fakeGameStore struct {
	mu     sync.Mutex
	nextID int64
	games  map[int64]*models.Game

	playerLimit int
	commits     int
	started     []int64
	finished    []int64
	results     []models.GameResult
}

func newFakeGameStore(playerLimit int) *fakeGameStore {
	return &fakeGameStore{nextID: 1, games: map[int64]*models.Game{}, playerLimit: playerLimit}
}

func (s *fakeGameStore) addGame(g models.Game) *models.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	g.ID = s.nextID
	s.nextID++
	s.games[g.ID] = &g
	return &g
}

func (s *fakeGameStore) Begin(ctx context.Context) (GameTxn, error) {
	return &fakeGameTxn{store: s}, nil
}

func (s *fakeGameStore) Get(ctx context.Context, id int64) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.games[id]; ok {
		copied := *g
		return &copied, nil
	}
	return nil, nil
}

type fakeGameTxn struct {
	store *fakeGameStore
}

func (t *fakeGameTxn) Get(ctx context.Context, id int64, lock bool) (*models.Game, error) {
	return t.store.Get(ctx, id)
}

func (t *fakeGameTxn) GetOneAvailable(ctx context.Context) (*models.Game, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, g := range t.store.games {
		if g.Status == models.StatusLobby && g.PlayerCount < t.store.playerLimit {
			copied := *g
			return &copied, nil
		}
	}
	return nil, nil
}

func (t *fakeGameTxn) IsAvailable(ctx context.Context, id int64, newPlayer bool) (*models.Game, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	g, ok := t.store.games[id]
	if !ok || g.Status != models.StatusLobby {
		return nil, nil
	}
	if newPlayer && g.PlayerCount >= t.store.playerLimit {
		return nil, nil
	}
	copied := *g
	return &copied, nil
}

func (t *fakeGameTxn) Create(ctx context.Context, gameType models.GameType, status models.GameStatus) (*models.Game, error) {
	return t.store.addGame(models.Game{GameType: gameType, Status: status, CreatedAt: time.Now()}), nil
}

func (t *fakeGameTxn) StartGame(ctx context.Context, id int64) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	g := t.store.games[id]
	g.Status = models.StatusInGame
	g.StartAt.Time, g.StartAt.Valid = time.Now(), true
	t.store.started = append(t.store.started, id)
	return nil
}

func (t *fakeGameTxn) SetFinish(ctx context.Context, id int64) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if g, ok := t.store.games[id]; ok {
		g.Status = models.StatusFinished
		g.EndAt.Time, g.EndAt.Valid = time.Now(), true
	}
	t.store.finished = append(t.store.finished, id)
	return nil
}

func (t *fakeGameTxn) bump(id int64, fn func(g *models.Game)) (*models.Game, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	g, ok := t.store.games[id]
	if !ok {
		return nil, nil
	}
	fn(g)
	copied := *g
	return &copied, nil
}

func (t *fakeGameTxn) IncreasePlayerCount(ctx context.Context, id int64) (*models.Game, error) {
	return t.bump(id, func(g *models.Game) { g.PlayerCount++ })
}

func (t *fakeGameTxn) DecreasePlayerCount(ctx context.Context, id int64) (*models.Game, error) {
	return t.bump(id, func(g *models.Game) { g.PlayerCount-- })
}

func (t *fakeGameTxn) IncreaseFinishCount(ctx context.Context, id int64) (*models.Game, error) {
	return t.bump(id, func(g *models.Game) { g.FinishCount++ })
}

func (t *fakeGameTxn) CreateResult(ctx context.Context, res models.GameResult) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.results = append(t.store.results, res)
	return nil
}

func (t *fakeGameTxn) Commit() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.commits++
	return nil
}

func (t *fakeGameTxn) Rollback() error { return nil }

// fakeLobbyState is an in-memory lobby cache.
type fakeLobbyState struct {
	mu      sync.Mutex
	players map[int64]map[string]models.LobbyUserInfo
	starts  map[int64]time.Time
}

func newFakeLobbyState() *fakeLobbyState {
	return &fakeLobbyState{
		players: map[int64]map[string]models.LobbyUserInfo{},
		starts:  map[int64]time.Time{},
	}
}

func (f *fakeLobbyState) WithLock(ctx context.Context, gameID int64, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeLobbyState) AddPlayer(ctx context.Context, gameID int64, info models.LobbyUserInfo) (bool, error) {
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

func (f *fakeLobbyState) IsNewPlayer(ctx context.Context, gameID int64, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, exists := f.players[gameID][userID]
	return !exists, nil
}

func (f *fakeLobbyState) RemovePlayer(ctx context.Context, gameID int64, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, exists := f.players[gameID][userID]
	delete(f.players[gameID], userID)
	return exists, nil
}

func (f *fakeLobbyState) GetPlayers(ctx context.Context, gameID int64) (map[string]models.LobbyUserInfo, error) {
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

func (f *fakeLobbyState) SetStartTime(ctx context.Context, gameID int64, startTime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts[gameID] = startTime
	return nil
}

func (f *fakeLobbyState) GetStartTime(ctx context.Context, gameID int64) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ts, ok := f.starts[gameID]; ok {
		return &ts, nil
	}
	return nil, nil
}

func (f *fakeLobbyState) Clear(ctx context.Context, gameID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.players, gameID)
	delete(f.starts, gameID)
	return nil
}

// fakeGameState is an in-memory game cache.
type fakeGameState struct {
	mu      sync.Mutex
	players map[int64]map[string]models.GameUserInfo
	starts  map[int64]time.Time
	words   map[int64]string
}

func newFakeGameState() *fakeGameState {
	return &fakeGameState{
		players: map[int64]map[string]models.GameUserInfo{},
		starts:  map[int64]time.Time{},
		words:   map[int64]string{},
	}
}

func (f *fakeGameState) WithLock(ctx context.Context, gameID int64, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeGameState) GetPlayers(ctx context.Context, gameID int64) (map[string]models.GameUserInfo, error) {
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

func (f *fakeGameState) GetStartTime(ctx context.Context, gameID int64) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ts, ok := f.starts[gameID]; ok {
		return &ts, nil
	}
	return nil, nil
}

func (f *fakeGameState) SetWords(ctx context.Context, gameID int64, words string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.words[gameID] = words
	return nil
}

func (f *fakeGameState) GetWords(ctx context.Context, gameID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.words[gameID], nil
}

func (f *fakeGameState) PopulateFromLobby(ctx context.Context, gameID int64, lobby cache.LobbySource, startCountdown int, autoClean bool) error {
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

	start, err := lobby.GetStartTime(ctx, gameID)
	if err != nil {
		return err
	}
	if start != nil {
		f.mu.Lock()
		f.starts[gameID] = start.Add(time.Duration(startCountdown) * time.Second)
		f.mu.Unlock()
	}
	if autoClean {
		return lobby.Clear(ctx, gameID)
	}
	return nil
}

func (f *fakeGameState) MergeResult(ctx context.Context, gameID int64, userID string, rank int, wpm, wpmRaw, acc float64, finishedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.players[gameID]
	if !ok {
		return nil
	}
	info, ok := m[userID]
	if !ok {
		return nil
	}
	info.FinishedAt = &finishedAt
	info.Rank = rank
	info.WPM = wpm
	info.WPMRaw = wpmRaw
	info.Acc = acc
	m[userID] = info
	return nil
}

func (f *fakeGameState) Clear(ctx context.Context, gameID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.players, gameID)
	delete(f.starts, gameID)
	delete(f.words, gameID)
	return nil
}

// fakePublisher records every publish.
type publishedMsg struct {
	Exchange string
	Key      string
	Body     interface{}
	Headers  amqp.Table
}

type waitMsg struct {
	Base  string
	TTL   time.Duration
	DLX   string
	DLKey string
	Body  interface{}
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMsg
	waits     []waitMsg
}

func (p *fakePublisher) Publish(ctx context.Context, exchange, key string, body interface{}, headers amqp.Table) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, publishedMsg{Exchange: exchange, Key: key, Body: body, Headers: headers})
	return nil
}

func (p *fakePublisher) PublishWait(ctx context.Context, base string, ttl time.Duration, dlx, dlKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waits = append(p.waits, waitMsg{Base: base, TTL: ttl, DLX: dlx, DLKey: dlKey, Body: body})
	return nil
}

func (p *fakePublisher) notifyTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var types []string
	for _, m := range p.published {
		if msg, ok := m.Body.(models.LobbyNotifyMsg); ok {
			types = append(types, msg.NotifyType)
		}
	}
	return types
}

// fakeSessions records registrations and broadcasts.
type fakeSessions struct {
	mu         sync.Mutex
	added      []*ws.Conn
	inits      []*models.WSMessage
	broadcasts []models.WSMessage
	removed    []string
}

func (f *fakeSessions) Add(c *ws.Conn, initMsg *models.WSMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, c)
	f.inits = append(f.inits, initMsg)
	return c.Start(initMsg)
}

func (f *fakeSessions) Broadcast(gameID int64, msg models.WSMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, msg)
}

func (f *fakeSessions) RemoveUser(gameID int64, userID string, finalMsg *models.WSMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, userID)
}

func (f *fakeSessions) RemoveGame(gameID int64, finalMsg *models.WSMessage) {}

// fakeGuestTokens stores tokens by sequential key.
type fakeGuestTokens struct {
	mu     sync.Mutex
	tokens map[string]string
	n      int
}

func newFakeGuestTokens() *fakeGuestTokens {
	return &fakeGuestTokens{tokens: map[string]string{}}
}

func (f *fakeGuestTokens) Store(ctx context.Context, tok string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	key := fmt.Sprintf("key-%d", f.n)
	f.tokens[key] = tok
	return key, nil
}

func (f *fakeGuestTokens) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.tokens[key]
	if !ok {
		return "", nil
	}
	delete(f.tokens, key)
	return tok, nil
}

// fakeMinter mints recognizable token strings.
type fakeMinter struct{}

func (fakeMinter) GenAccessToken(userID, username string, userType models.UserType) (string, error) {
	return "access-" + userID, nil
}

func (fakeMinter) GenTokenPair(userID, username string, userType models.UserType) (token.Pair, error) {
	return token.Pair{AccessToken: "access-" + userID, RefreshToken: "refresh-" + userID}, nil
}

// fakeValidator resolves canned claims.
type fakeValidator struct {
	claims map[string]*token.Claims
}

func (f *fakeValidator) Validate(tokenStr string) (*token.Claims, error) {
	if c, ok := f.claims[tokenStr]; ok {
		return c, nil
	}
	return nil, errInvalidToken
}

// fakeTransport implements ws.Transport for service-level tests.
type fakeTransport struct {
	mu      sync.Mutex
	written []models.WSMessage
	reads   chan []byte
	closed  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{reads: make(chan []byte, 4)}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	data, ok := <-f.reads
	if !ok {
		return 0, nil, io.EOF
	}
	return 1, data, nil
}

func (f *fakeTransport) WriteMessage(messageType int, data []byte) error {
	var msg models.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, msg)
	return nil
}

func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.reads)
	}
	return nil
}

func (f *fakeTransport) writtenEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := make([]string, len(f.written))
	for i, m := range f.written {
		events[i] = m.Event
	}
	return events
}
