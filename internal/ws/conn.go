// Package ws owns the per-instance websocket session fabric: one Conn per
// (user, game), grouped per game, supervised by a process-wide Manager.
package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/typephoon/backend/internal/models"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 256
)

var errConnStopped = errors.New("connection stopped")

// Transport is the subset of *websocket.Conn the session layer needs.
// Tests substitute fakes.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// RecvFunc handles inbound frames. Nil means inbound frames are ignored
// (the lobby socket is send-only from the server's point of view).
type RecvFunc func(c *Conn, msg models.WSMessage)

// Conn owns one client websocket for the duration of a session. A single
// sender goroutine drains the outbound queue, so frames to one client are
// ordered. Stop is idempotent.
type Conn struct {
	userID string
	gameID int64

	tr     Transport
	onRecv RecvFunc
	log    *logrus.Logger

	send   chan models.WSMessage
	done   chan struct{}
	closed chan struct{}

	stopOnce sync.Once

	wmu      sync.Mutex
	lastPing time.Time
}

func NewConn(userID string, gameID int64, tr Transport, onRecv RecvFunc, log *logrus.Logger) *Conn {
	return &Conn{
		userID: userID,
		gameID: gameID,
		tr:     tr,
		onRecv: onRecv,
		log:    log,
		send:   make(chan models.WSMessage, sendBufferSize),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

func (c *Conn) UserID() string { return c.userID }
func (c *Conn) GameID() int64  { return c.gameID }

// Start optionally sends initMsg, then spawns the send and receive loops.
func (c *Conn) Start(initMsg *models.WSMessage) error {
	if initMsg != nil {
		if err := c.write(*initMsg); err != nil {
			return err
		}
	}
	go c.sendLoop()
	go c.recvLoop()
	return nil
}

// Put enqueues a frame. It never blocks on network I/O; frames put after
// Stop, or while the buffer is full, are dropped silently.
func (c *Conn) Put(msg models.WSMessage) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- msg:
	default:
		c.log.WithFields(logrus.Fields{
			"game_id": c.gameID,
			"user_id": c.userID,
		}).Warn("send buffer full, dropping frame")
	}
}

// Ping writes a PING control frame and fails if the transport is broken.
// Consumed by the group health-check.
func (c *Conn) Ping() error {
	select {
	case <-c.done:
		return errConnStopped
	default:
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.tr.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.tr.WriteMessage(websocket.PingMessage, nil); err != nil {
		return err
	}
	c.lastPing = time.Now()
	return nil
}

// Stop cancels both loops, best-effort sends finalMsg, and closes the
// transport. Safe to call any number of times; exactly one close happens.
func (c *Conn) Stop(finalMsg *models.WSMessage) {
	c.stopOnce.Do(func() {
		close(c.done)
		if finalMsg != nil {
			if err := c.write(*finalMsg); err != nil {
				c.log.WithFields(logrus.Fields{
					"game_id": c.gameID,
					"user_id": c.userID,
				}).WithError(err).Debug("final frame not delivered")
			}
		}
		c.tr.Close()
		close(c.closed)
	})
}

// CloseWait blocks until Stop has completed.
func (c *Conn) CloseWait() {
	<-c.closed
}

func (c *Conn) write(msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.tr.SetWriteDeadline(time.Now().Add(writeWait))
	return c.tr.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) sendLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			// a USER_LEFT addressed to this user ends the session; the
			// frame rides along as the final message
			if msg.Event == models.EventUserLeft && msg.UserID == c.userID {
				c.Stop(&msg)
				return
			}
			if err := c.write(msg); err != nil {
				c.log.WithFields(logrus.Fields{
					"game_id": c.gameID,
					"user_id": c.userID,
				}).WithError(err).Debug("send loop closing")
				c.Stop(nil)
				return
			}
		}
	}
}

func (c *Conn) recvLoop() {
	for {
		_, data, err := c.tr.ReadMessage()
		if err != nil {
			c.Stop(nil)
			return
		}

		var msg models.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.WithFields(logrus.Fields{
				"game_id": c.gameID,
				"user_id": c.userID,
			}).Warn("dropping malformed frame")
			continue
		}
		if c.onRecv != nil {
			c.onRecv(c, msg)
		}
	}
}
