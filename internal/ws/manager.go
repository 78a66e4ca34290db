package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/typephoon/backend/internal/models"
)

const mailboxSize = 1024

// Manager supervises the per-game groups on this instance. All reaping
// decisions flow through the Run loop, so an empty group is deleted exactly
// once even when disconnects race.
type Manager struct {
	pingInterval time.Duration
	log          *logrus.Logger

	events chan Event

	mu     sync.RWMutex
	groups map[int64]*Group
}

func NewManager(pingInterval time.Duration, log *logrus.Logger) *Manager {
	return &Manager{
		pingInterval: pingInterval,
		log:          log,
		events:       make(chan Event, mailboxSize),
		groups:       map[int64]*Group{},
	}
}

// Run drains the supervision mailbox until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-m.events:
			m.handle(e)
		}
	}
}

func (m *Manager) handle(e Event) {
	switch e.Type {
	case EventHealthcheckFail:
		if g := m.Get(e.GameID, false); g != nil {
			g.Remove(e.UserID, nil)
		}
	case EventUpdate:
		m.mu.Lock()
		if g, ok := m.groups[e.GameID]; ok && g.reapIfEmpty() {
			delete(m.groups, e.GameID)
			m.log.WithField("game_id", e.GameID).Info("reaped empty group")
		}
		m.mu.Unlock()
	}
}

// Get returns the group for gameID, creating it when autoCreate is set.
func (m *Manager) Get(gameID int64, autoCreate bool) *Group {
	m.mu.RLock()
	g, ok := m.groups[gameID]
	m.mu.RUnlock()
	if ok || !autoCreate {
		return g
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok = m.groups[gameID]; ok {
		return g
	}
	g = newGroup(gameID, m.pingInterval, m.events, m.log)
	m.groups[gameID] = g
	return g
}

// Add starts the connection inside its game's group, creating the group on
// first use. A group reaped between lookup and insert is retried against a
// fresh one, so the connection always lands in a group the map still holds.
func (m *Manager) Add(c *Conn, initMsg *models.WSMessage) error {
	for {
		err := m.Get(c.gameID, true).Add(c, initMsg)
		if !errors.Is(err, errGroupReaped) {
			return err
		}
	}
}

// RemoveUser drops one user's connection. Unknown game or user is a no-op.
func (m *Manager) RemoveUser(gameID int64, userID string, finalMsg *models.WSMessage) {
	if g := m.Get(gameID, false); g != nil {
		g.Remove(userID, finalMsg)
	}
}

// RemoveGame drops every connection of a game, delivering finalMsg to each.
func (m *Manager) RemoveGame(gameID int64, finalMsg *models.WSMessage) {
	if g := m.Get(gameID, false); g != nil {
		g.Stop(finalMsg)
	}
}

// Broadcast fans a frame out to the game's local connections. Games with no
// local connections are skipped.
func (m *Manager) Broadcast(gameID int64, msg models.WSMessage) {
	if g := m.Get(gameID, false); g != nil {
		g.Broadcast(msg)
	}
}

// Cleanup stops every group; used on shutdown.
func (m *Manager) Cleanup(finalMsg *models.WSMessage) {
	m.mu.RLock()
	groups := make([]*Group, 0, len(m.groups))
	for _, g := range m.groups {
		groups = append(groups, g)
	}
	m.mu.RUnlock()

	for _, g := range groups {
		g.Stop(finalMsg)
	}
}
