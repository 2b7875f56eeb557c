// Package events fans run progress out to Server-Sent Events subscribers.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const subscriberBufSize = 256

// Event types published during a run.
const (
	TypeRunStarted       = "run_started"
	TypeSearchSubmitted  = "search_submitted"
	TypeSearchFailed     = "search_failed"
	TypeRewardsCompleted = "rewards_completed"
	TypeRunFinished      = "run_finished"
	TypeTriggerRejected  = "trigger_rejected"
)

// Event is a single run event to be sent via SSE.
type Event struct {
	Type    string
	Payload string
}

// New builds an Event whose payload is data encoded as JSON, stamped with the
// run ID and the current time.
func New(typ, runID string, data any) Event {
	body := struct {
		Type  string    `json:"type"`
		RunID string    `json:"run_id,omitempty"`
		Time  time.Time `json:"time"`
		Data  any       `json:"data,omitempty"`
	}{Type: typ, RunID: runID, Time: time.Now().UTC(), Data: data}

	payload, err := json.Marshal(body)
	if err != nil {
		slog.Warn("event encode failed", "type", typ, "error", err)
		payload = []byte(`{"type":"` + typ + `"}`)
	}
	return Event{Type: typ, Payload: string(payload)}
}

// Broker fans out events to all subscribed SSE clients.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
}

// NewBroker creates a new SSE event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan Event),
	}
}

// Subscribe registers a new client. Returns the subscriber ID and a channel
// to receive events on. The channel is buffered; slow consumers will have
// events dropped.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish sends an event to all subscribers. Non-blocking: slow clients
// have events dropped.
func (b *Broker) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
