// Package broadcast fans accepted packet events out to connected viewers,
// best-effort. Durability lives in the store; a stalled viewer loses events,
// never stalls an ingest.
package broadcast

import (
	"sync"

	"github.com/google/uuid"

	"github.com/davekhr/telemetry-dashboard/internal/metrics"
	"github.com/davekhr/telemetry-dashboard/internal/models"
)

// subscriberBuffer bounds how far a viewer may fall behind before events are
// dropped for it.
const subscriberBuffer = 16

// Broadcaster is a publish/subscribe registry for packet events. Subscribers
// register and unregister explicitly; Publish never blocks on a slow one.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]chan models.PacketEvent
}

// New returns a Broadcaster with no subscribers.
func New() *Broadcaster {
	return &Broadcaster{subs: make(map[string]chan models.PacketEvent)}
}

// Subscribe registers a new viewer and returns its subscription ID and event
// channel. The subscriber receives only events published after this call;
// backlog comes from the recent-window query, not from here.
func (b *Broadcaster) Subscribe() (string, <-chan models.PacketEvent) {
	id := uuid.New().String()
	ch := make(chan models.PacketEvent, subscriberBuffer)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	metrics.Subscribers.Inc()
	return id, ch
}

// Unsubscribe removes a viewer and closes its channel. Safe to call with an
// unknown or already-removed ID.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if ok {
		close(ch)
		metrics.Subscribers.Dec()
	}
}

// Publish delivers an event to every current subscriber. Delivery is
// non-blocking: a subscriber whose buffer is full simply misses this event.
// Zero subscribers is a no-op.
func (b *Broadcaster) Publish(ev models.PacketEvent) {
	metrics.EventsPublished.Inc()

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			metrics.EventsDropped.Inc()
		}
	}
}

// Len reports the current number of subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
