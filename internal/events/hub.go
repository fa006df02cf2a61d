// Package events is the in-process bus that carries credential, session and config
// changes to the log feed and the admin API.
package events

import (
	"context"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Topics published by the client.
const (
	// TopicConfigUpdated carries a config.ChangeEvent after a reload.
	TopicConfigUpdated = "config.updated"
	// TopicCredentialsSynced follows a pool load: total and active counts.
	TopicCredentialsSynced = "credentials.synced"
	// TopicCredentialChanged follows every pool mutation: action, label, status, counters.
	TopicCredentialChanged = "credential.changed"
	// TopicSessionState follows every session state transition.
	TopicSessionState = "session.state"
)

// Event is one published change.
type Event struct {
	Topic     string            `json:"topic"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   any               `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Handler receives events for one topic.
type Handler func(context.Context, Event)

// Publisher is what the pool, the controller and the config manager publish through.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any, metadata map[string]string)
}

// Subscriber is what the log feed follows.
type Subscriber interface {
	Subscribe(topic string, handler Handler) func()
}

type subscription struct {
	id      uint64
	handler Handler
}

// Hub delivers events synchronously, in subscription order, on the publisher's
// goroutine. A panicking handler is logged and skipped; the others still run.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]Handler
	nextID uint64
	now    func() time.Time
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[uint64]Handler),
		now:  time.Now,
	}
}

// Subscribe adds handler to topic and returns its cancel function. Cancel is idempotent.
func (h *Hub) Subscribe(topic string, handler Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[uint64]Handler)
	}
	h.subs[topic][id] = handler

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[topic], id)
		if len(h.subs[topic]) == 0 {
			delete(h.subs, topic)
		}
	}
}

// Publish stamps the event and hands it to every current subscriber of topic.
func (h *Hub) Publish(ctx context.Context, topic string, payload any, metadata map[string]string) {
	subs := h.subscribers(topic)
	if len(subs) == 0 {
		return
	}
	ev := Event{
		Topic:     topic,
		Timestamp: h.now().UTC(),
		Payload:   payload,
		Metadata:  metadata,
	}
	for _, s := range subs {
		deliver(ctx, s, ev)
	}
}

// SubscriberCount reports how many handlers follow topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

func (h *Hub) subscribers(topic string) []subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()

	listeners := h.subs[topic]
	out := make([]subscription, 0, len(listeners))
	for id, handler := range listeners {
		out = append(out, subscription{id: id, handler: handler})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func deliver(ctx context.Context, s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{"topic": ev.Topic, "subscriber": s.id}).Errorf("event handler panicked: %v", r)
		}
	}()
	s.handler(ctx, ev)
}
