package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/typephoon/backend/internal/models"
)

type EventType int

const (
	// EventUpdate signals that group membership changed; the manager reaps
	// the group if it went empty.
	EventUpdate EventType = iota
	// EventHealthcheckFail reports a dead connection.
	EventHealthcheckFail
)

// Event is posted to the manager's supervision mailbox.
type Event struct {
	Type   EventType
	GameID int64
	UserID string
}

// Group is the set of live connections for one game on this instance.
type Group struct {
	gameID       int64
	pingInterval time.Duration
	events       chan<- Event
	log          *logrus.Logger

	mu       sync.RWMutex
	conns    map[string]*Conn
	hcCancel map[string]chan struct{}
	reaped   bool
}

// errGroupReaped tells the manager an Add raced the supervision loop: the
// group was deleted from the map between lookup and insert, so the caller
// must retry against a fresh group.
var errGroupReaped = errors.New("group already reaped")

func newGroup(gameID int64, pingInterval time.Duration, events chan<- Event, log *logrus.Logger) *Group {
	return &Group{
		gameID:       gameID,
		pingInterval: pingInterval,
		events:       events,
		log:          log,
		conns:        map[string]*Conn{},
		hcCancel:     map[string]chan struct{}{},
	}
}

// Add registers a connection under its user id and starts it. A prior
// connection for the same user is replaced and stopped (reconnects).
func (g *Group) Add(c *Conn, initMsg *models.WSMessage) error {
	g.mu.Lock()
	if g.reaped {
		g.mu.Unlock()
		return errGroupReaped
	}
	if old, ok := g.conns[c.userID]; ok {
		g.log.WithFields(logrus.Fields{
			"game_id": g.gameID,
			"user_id": c.userID,
		}).Info("replacing existing connection")
		close(g.hcCancel[c.userID])
		delete(g.hcCancel, c.userID)
		delete(g.conns, c.userID)
		old.Stop(nil)
	}

	if err := c.Start(initMsg); err != nil {
		g.mu.Unlock()
		return err
	}

	g.conns[c.userID] = c
	cancel := make(chan struct{})
	g.hcCancel[c.userID] = cancel
	g.mu.Unlock()

	go g.healthCheck(c, cancel)
	g.notify(Event{Type: EventUpdate, GameID: g.gameID})
	return nil
}

// Remove stops the user's connection, cancels its health-check and deletes
// the entry. No-op for unknown users.
func (g *Group) Remove(userID string, finalMsg *models.WSMessage) {
	g.mu.Lock()
	c, ok := g.conns[userID]
	if !ok {
		g.mu.Unlock()
		return
	}
	close(g.hcCancel[userID])
	delete(g.hcCancel, userID)
	delete(g.conns, userID)
	g.mu.Unlock()

	c.Stop(finalMsg)
	g.notify(Event{Type: EventUpdate, GameID: g.gameID})
}

// Broadcast enqueues the frame on every connection. Enqueue only, no
// network waits; an empty group is a no-op.
func (g *Group) Broadcast(msg models.WSMessage) {
	g.mu.RLock()
	targets := make([]*Conn, 0, len(g.conns))
	for _, c := range g.conns {
		targets = append(targets, c)
	}
	g.mu.RUnlock()

	for _, c := range targets {
		c.Put(msg)
	}
}

// Stop removes every user from the group.
func (g *Group) Stop(finalMsg *models.WSMessage) {
	g.mu.Lock()
	users := make([]string, 0, len(g.conns))
	for userID := range g.conns {
		users = append(users, userID)
	}
	g.mu.Unlock()

	for _, userID := range users {
		g.Remove(userID, finalMsg)
	}
}

func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

// reapIfEmpty marks the group dead when no connections remain. The manager
// calls this with the group map locked; marking under g.mu closes the window
// where Add could insert into a group already deleted from the map.
func (g *Group) reapIfEmpty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.conns) > 0 {
		return false
	}
	g.reaped = true
	return true
}

// healthCheck pings the connection every pingInterval; the first failure is
// reported to the manager and the loop exits.
func (g *Group) healthCheck(c *Conn, cancel <-chan struct{}) {
	ticker := time.NewTicker(g.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cancel:
			return
		case <-ticker.C:
			if err := c.Ping(); err != nil {
				g.log.WithFields(logrus.Fields{
					"game_id": g.gameID,
					"user_id": c.userID,
				}).WithError(err).Info("health check failed")
				c.Stop(nil)
				g.notify(Event{Type: EventHealthcheckFail, GameID: g.gameID, UserID: c.userID})
				return
			}
		}
	}
}

// notify posts to the supervision mailbox without ever blocking a group
// operation; the manager loop itself triggers removals, so a blocking send
// here could deadlock.
func (g *Group) notify(e Event) {
	select {
	case g.events <- e:
	default:
		go func() { g.events <- e }()
	}
}
