package logging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"geminivoice-go/internal/events"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// ErrMaxConnectionsReached is returned by AddClient once the client limit is hit.
var ErrMaxConnectionsReached = errors.New("maximum WebSocket connections reached")

// Message is one entry of the live feed: a log line or a domain event.
type Message struct {
	ID        uint64         `json:"id"`
	Timestamp string         `json:"timestamp"`
	Kind      string         `json:"kind"` // log | event
	Level     string         `json:"level,omitempty"`
	Topic     string         `json:"topic,omitempty"`
	Message   string         `json:"message,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Payload   any            `json:"payload,omitempty"`
}

// Broadcaster fans log lines and domain events out to WebSocket clients and keeps a
// bounded history for polling clients.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*client

	historyMu  sync.RWMutex
	history    []Message
	historyCap int
	seq        atomic.Uint64

	maxConnections int
	writeTimeout   time.Duration
	stopOnce       sync.Once
	stopCh         chan struct{}
}

type client struct {
	conn  *websocket.Conn
	queue chan Message
}

// NewBroadcaster keeps up to historyCap messages and serves at most maxConnections clients.
func NewBroadcaster(historyCap, maxConnections int) *Broadcaster {
	if historyCap <= 0 {
		historyCap = 500
	}
	if maxConnections <= 0 {
		maxConnections = 16
	}
	return &Broadcaster{
		clients:        make(map[*websocket.Conn]*client),
		history:        make([]Message, 0, historyCap),
		historyCap:     historyCap,
		maxConnections: maxConnections,
		writeTimeout:   5 * time.Second,
		stopCh:         make(chan struct{}),
	}
}

// AddClient starts streaming to conn until it fails or Stop is called.
func (b *Broadcaster) AddClient(conn *websocket.Conn) error {
	b.mu.Lock()
	if len(b.clients) >= b.maxConnections {
		b.mu.Unlock()
		return ErrMaxConnectionsReached
	}
	c := &client{conn: conn, queue: make(chan Message, 64)}
	b.clients[conn] = c
	total := len(b.clients)
	b.mu.Unlock()

	log.WithField("clients", total).Debug("feed client connected")
	go b.writeLoop(c)
	return nil
}

func (b *Broadcaster) writeLoop(c *client) {
	defer b.RemoveClient(c.conn)
	for {
		select {
		case msg, ok := <-c.queue:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(b.writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-b.stopCh:
			return
		}
	}
}

// RemoveClient disconnects conn.
func (b *Broadcaster) RemoveClient(conn *websocket.Conn) {
	b.mu.Lock()
	_, ok := b.clients[conn]
	delete(b.clients, conn)
	b.mu.Unlock()
	if ok {
		_ = conn.Close()
	}
}

// ClientCount returns the current number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Stop disconnects every client.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.clients))
	for conn := range b.clients {
		conns = append(conns, conn)
	}
	b.clients = make(map[*websocket.Conn]*client)
	b.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}

// Publish records msg and hands it to every client. Slow clients drop messages.
func (b *Broadcaster) Publish(msg Message) {
	msg.ID = b.seq.Add(1)
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	b.appendHistory(msg)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.clients {
		select {
		case c.queue <- msg:
		default:
		}
	}
}

func (b *Broadcaster) appendHistory(msg Message) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	b.history = append(b.history, msg)
	if excess := len(b.history) - b.historyCap; excess > 0 {
		b.history = append([]Message(nil), b.history[excess:]...)
	}
}

// FetchSince returns up to limit messages newer than cursor, the cursor to use next,
// and whether more are waiting. A zero cursor returns the most recent messages.
func (b *Broadcaster) FetchSince(cursor uint64, limit int) ([]Message, uint64, bool) {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()

	if limit <= 0 || limit > b.historyCap {
		limit = b.historyCap
	}
	total := len(b.history)
	start := total
	if cursor == 0 {
		start = max(total-limit, 0)
	} else {
		for i, msg := range b.history {
			if msg.ID > cursor {
				start = i
				break
			}
		}
	}
	if start >= total {
		return []Message{}, cursor, false
	}
	end := min(start+limit, total)
	out := append([]Message(nil), b.history[start:end]...)
	return out, out[len(out)-1].ID, end < total
}

// Levels implements log.Hook; only info and above reach the feed.
func (b *Broadcaster) Levels() []log.Level {
	return []log.Level{log.PanicLevel, log.FatalLevel, log.ErrorLevel, log.WarnLevel, log.InfoLevel}
}

// Fire implements log.Hook.
func (b *Broadcaster) Fire(entry *log.Entry) error {
	fields := make(map[string]any, len(entry.Data))
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		fields[k] = v
	}
	b.Publish(Message{
		Timestamp: entry.Time.UTC().Format(time.RFC3339Nano),
		Kind:      "log",
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Fields:    fields,
	})
	return nil
}

// Follow forwards the given hub topics into the feed. The returned func unsubscribes.
func (b *Broadcaster) Follow(hub events.Subscriber, topics ...string) func() {
	cancels := make([]func(), 0, len(topics))
	for _, topic := range topics {
		cancels = append(cancels, hub.Subscribe(topic, func(_ context.Context, ev events.Event) {
			b.Publish(Message{
				Timestamp: ev.Timestamp.Format(time.RFC3339Nano),
				Kind:      "event",
				Topic:     ev.Topic,
				Payload:   ev.Payload,
				Fields:    toAny(ev.Metadata),
			})
		}))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

func toAny(m map[string]string) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
