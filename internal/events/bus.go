// Package events provides the in-process event bus used to push workspace and
// allocation updates to SSE and WebSocket clients.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType names an event
type EventType string

const (
	WorkspaceChanged    EventType = "workspace_changed"
	AllocationCompleted EventType = "allocation_completed"
	AllocationFailed    EventType = "allocation_failed"
	JobCompleted        EventType = "job_completed"
)

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 64

// Event is what subscribers receive
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
}

type subscriber struct {
	ch      chan Event
	filter  map[EventType]bool // nil = everything
	dropped atomic.Int64
}

// Bus fans events out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
	log    zerolog.Logger
}

// NewBus creates an empty bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[*subscriber]struct{}),
		log:  log.With().Str("component", "event_bus").Logger(),
	}
}

// Publish emits data to every subscriber interested in its type
func (b *Bus) Publish(data EventData) {
	evt := Event{
		ID:        uuid.NewString(),
		Type:      data.EventType(),
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for s := range b.subs {
		if s.filter != nil && !s.filter[evt.Type] {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			n := s.dropped.Add(1)
			b.log.Warn().Str("type", string(evt.Type)).Int64("dropped", n).Msg("Subscriber buffer full, event dropped")
		}
	}
}

// Subscribe registers a subscriber. With no types, every event is delivered.
// The returned cancel func unregisters and closes the channel; it is safe to call twice.
func (b *Bus) Subscribe(types ...EventType) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, subscriberBuffer)}
	if len(types) > 0 {
		s.filter = make(map[EventType]bool, len(types))
		for _, t := range types {
			s.filter[t] = true
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[s]; ok {
				delete(b.subs, s)
				close(s.ch)
			}
		})
	}
}

// SubscriberCount returns the number of live subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel; later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
}
