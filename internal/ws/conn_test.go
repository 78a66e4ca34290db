package ws

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typephoon/backend/internal/models"
)

// fakeTransport records writes and serves scripted reads.
type fakeTransport struct {
	mu       sync.Mutex
	written  []models.WSMessage
	pings    int
	closes   int
	writeErr error
	pingErr  error

	reads chan []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{reads: make(chan []byte, 16)}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	data, ok := <-f.reads
	if !ok {
		return 0, nil, io.EOF
	}
	return websocket.TextMessage, data, nil
}

func (f *fakeTransport) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if messageType == websocket.PingMessage {
		if f.pingErr != nil {
			return f.pingErr
		}
		f.pings++
		return nil
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	var msg models.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	f.written = append(f.written, msg)
	return nil
}

func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	close(f.reads)
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

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestConnStartSendsInit(t *testing.T) {
	tr := newFakeTransport()
	c := NewConn("u1", 7, tr, nil, testLogger())

	require.NoError(t, c.Start(&models.WSMessage{Event: models.EventInit, GameID: 7}))
	defer c.Stop(nil)

	assert.Equal(t, []string{models.EventInit}, tr.writtenEvents())
}

func TestConnPutDelivers(t *testing.T) {
	tr := newFakeTransport()
	c := NewConn("u1", 7, tr, nil, testLogger())
	require.NoError(t, c.Start(nil))
	defer c.Stop(nil)

	c.Put(models.WSMessage{Event: models.EventUserJoined, UserID: "u2"})
	waitFor(t, func() bool { return len(tr.writtenEvents()) == 1 })
	assert.Equal(t, models.EventUserJoined, tr.writtenEvents()[0])
}

func TestConnStopIdempotent(t *testing.T) {
	tr := newFakeTransport()
	c := NewConn("u1", 7, tr, nil, testLogger())
	require.NoError(t, c.Start(nil))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Stop(nil)
		}()
	}
	wg.Wait()
	c.CloseWait()

	assert.Equal(t, 1, tr.closeCount())
}

func TestConnPutAfterStopDropped(t *testing.T) {
	tr := newFakeTransport()
	c := NewConn("u1", 7, tr, nil, testLogger())
	require.NoError(t, c.Start(nil))
	c.Stop(nil)
	c.CloseWait()

	c.Put(models.WSMessage{Event: models.EventUserJoined})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, tr.writtenEvents())
}

func TestConnUserLeftSelfCloses(t *testing.T) {
	tr := newFakeTransport()
	c := NewConn("u1", 7, tr, nil, testLogger())
	require.NoError(t, c.Start(nil))

	c.Put(models.WSMessage{Event: models.EventUserLeft, GameID: 7, UserID: "u1"})
	c.CloseWait()

	assert.Equal(t, []string{models.EventUserLeft}, tr.writtenEvents())
	assert.Equal(t, 1, tr.closeCount())
}

func TestConnUserLeftOtherForwarded(t *testing.T) {
	tr := newFakeTransport()
	c := NewConn("u1", 7, tr, nil, testLogger())
	require.NoError(t, c.Start(nil))
	defer c.Stop(nil)

	c.Put(models.WSMessage{Event: models.EventUserLeft, GameID: 7, UserID: "u2"})
	waitFor(t, func() bool { return len(tr.writtenEvents()) == 1 })

	select {
	case <-c.closed:
		t.Fatal("connection closed on someone else's departure")
	default:
	}
}

func TestConnRecvDispatch(t *testing.T) {
	tr := newFakeTransport()
	got := make(chan models.WSMessage, 1)
	c := NewConn("u1", 7, tr, func(_ *Conn, msg models.WSMessage) { got <- msg }, testLogger())
	require.NoError(t, c.Start(nil))
	defer c.Stop(nil)

	tr.reads <- []byte(`{"event":"KEY_STOKE","game_id":7,"user_id":"u1"}`)
	select {
	case msg := <-got:
		assert.Equal(t, models.EventKeyStroke, msg.Event)
	case <-time.After(time.Second):
		t.Fatal("inbound frame not dispatched")
	}
}

func TestConnPingAfterStop(t *testing.T) {
	tr := newFakeTransport()
	c := NewConn("u1", 7, tr, nil, testLogger())
	require.NoError(t, c.Start(nil))
	c.Stop(nil)

	assert.Error(t, c.Ping())
}

func TestConnWriteErrorStops(t *testing.T) {
	tr := newFakeTransport()
	tr.writeErr = errors.New("broken pipe")
	c := NewConn("u1", 7, tr, nil, testLogger())
	require.NoError(t, c.Start(nil))

	c.Put(models.WSMessage{Event: models.EventUserJoined})
	c.CloseWait()
	assert.Equal(t, 1, tr.closeCount())
}
