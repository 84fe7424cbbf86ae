package watch

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 5 * time.Second
	// sendBuffer is how many events may queue for one connection; further
	// events are dropped until its writer catches up.
	sendBuffer = 16
)

// frameWriter is the part of *websocket.Conn the broadcaster writes through.
type frameWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
}

// subscriber owns the only writer goroutine of its connection.
type subscriber struct {
	userID string
	conn   frameWriter
	send   chan []byte
}

func (s *subscriber) writeLoop() {
	for data := range s.send {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Warn("failed to send progress event", "error", err, "user_id", s.userID)
		}
	}
}

// Broadcaster fans progress events out to the websocket connections of a user.
// It implements Publisher. Publish never waits on a client.
type Broadcaster struct {
	mu          sync.RWMutex
	connections map[string]map[frameWriter]*subscriber // userID -> connections
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		connections: make(map[string]map[frameWriter]*subscriber),
	}
}

// Subscribe registers conn for the user's events. The connection must not be
// written to by anyone else until Unsubscribe.
func (b *Broadcaster) Subscribe(userID string, conn *websocket.Conn) {
	b.subscribe(userID, conn)
}

func (b *Broadcaster) subscribe(userID string, conn frameWriter) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connections[userID] == nil {
		b.connections[userID] = make(map[frameWriter]*subscriber)
	}
	if old, ok := b.connections[userID][conn]; ok {
		close(old.send)
	}
	s := &subscriber{userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	b.connections[userID][conn] = s
	go s.writeLoop()
}

// Unsubscribe removes conn and stops its writer once queued events are flushed.
func (b *Broadcaster) Unsubscribe(userID string, conn *websocket.Conn) {
	b.unsubscribe(userID, conn)
}

func (b *Broadcaster) unsubscribe(userID string, conn frameWriter) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conns := b.connections[userID]
	if s, ok := conns[conn]; ok {
		close(s.send)
		delete(conns, conn)
	}
	if len(conns) == 0 {
		delete(b.connections, userID)
	}
}

// Publish implements Publisher. The event is queued on every connection of
// the user; a connection whose queue is full misses it.
func (b *Broadcaster) Publish(userID string, event ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := b.connections[userID]
	if len(subs) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal progress event", "error", err)
		return
	}

	for _, s := range subs {
		select {
		case s.send <- data:
		default:
			slog.Warn("dropping progress event for slow client", "user_id", userID, "video_id", event.VideoID)
		}
	}
}

// ConnectionCount returns the number of live connections for a user.
func (b *Broadcaster) ConnectionCount(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.connections[userID])
}
