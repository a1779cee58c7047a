package storage

import (
	"sync"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/verse-pbc/groups-relay/internal/groups"
	"github.com/verse-pbc/groups-relay/internal/logger"
	"go.uber.org/zap"
)

// StoredEvent is a newly persisted event together with its scope.
type StoredEvent struct {
	Event *nostr.Event
	Scope groups.Scope
}

// Bus fans newly stored events out to subscribed connections. Delivery is
// best-effort: a subscriber with a full buffer misses the event rather than
// blocking the store.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]chan StoredEvent
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]chan StoredEvent)}
}

// Subscribe registers a consumer and returns its delivery channel.
func (b *Bus) Subscribe(id string, buffer int) <-chan StoredEvent {
	ch := make(chan StoredEvent, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.subs[id]; ok {
		close(old)
	}
	b.subs[id] = ch
	return ch
}

// Unsubscribe removes a consumer and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}

// Publish delivers evt to every subscriber without blocking.
func (b *Bus) Publish(evt *nostr.Event, scope groups.Scope) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- StoredEvent{Event: evt, Scope: scope}:
		default:
			logger.Debug("Subscriber buffer full, dropping event",
				zap.String("subscriber", id),
				zap.String("event_id", evt.ID))
		}
	}
}
