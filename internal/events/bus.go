// Package events provides event management functionality.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	CycleCompleted  EventType = "CYCLE_COMPLETED"
	TargetsReady    EventType = "TARGETS_READY"
	RiskModeChanged EventType = "RISK_MODE_CHANGED"
	PriceUpdated    EventType = "PRICE_UPDATED"
	ErrorOccurred   EventType = "ERROR_OCCURRED"
)

// Event represents a system event with typed data
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Module    string    `json:"module"`
	Data      EventData `json:"data,omitempty"`
}

// Bus manages event subscriptions and broadcasting. Subscribers receive
// events on buffered channels; a full buffer drops the event rather than
// blocking the publisher.
type Bus struct {
	subscribers map[chan Event]struct{}
	mu          sync.RWMutex
	log         zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[chan Event]struct{}),
		log:         log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe adds a new subscriber and returns its channel
func (b *Bus) Subscribe() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 16)
	b.subscribers[ch] = struct{}{}

	b.log.Debug().
		Int("total_subscribers", len(b.subscribers)).
		Msg("New subscriber added")

	return ch
}

// Unsubscribe removes a subscriber and closes its channel
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)

	b.log.Debug().
		Int("total_subscribers", len(b.subscribers)).
		Msg("Subscriber removed")
}

// Publish broadcasts an event to all subscribers
func (b *Bus) Publish(eventType EventType, module string, data EventData) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	}

	b.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		Int("subscriber_count", len(b.subscribers)).
		Msg("Publishing event")

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.log.Warn().
				Str("event_type", string(eventType)).
				Msg("Subscriber channel full, event dropped")
		}
	}
}
