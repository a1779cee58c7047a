package storage

import (
	"testing"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/verse-pbc/groups-relay/internal/groups"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe("c1", 4)

	evt := &nostr.Event{ID: "e1", Kind: 1}
	bus.Publish(evt, groups.DefaultScope)

	stored := <-ch
	require.Equal(t, "e1", stored.Event.ID)
	require.Equal(t, groups.DefaultScope, stored.Scope)
}

func TestBusDropsWhenBufferFull(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe("c1", 1)

	bus.Publish(&nostr.Event{ID: "e1"}, groups.DefaultScope)
	// Buffer is full; this one is dropped instead of blocking.
	bus.Publish(&nostr.Event{ID: "e2"}, groups.DefaultScope)

	require.Equal(t, "e1", (<-ch).Event.ID)
	select {
	case stored := <-ch:
		t.Fatalf("expected drop, got %s", stored.Event.ID)
	default:
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe("c1", 1)
	bus.Unsubscribe("c1")

	_, open := <-ch
	require.False(t, open)

	// Publishing after unsubscribe must not panic.
	bus.Publish(&nostr.Event{ID: "e1"}, groups.DefaultScope)
}

func TestBusResubscribeReplacesChannel(t *testing.T) {
	bus := NewBus()
	old := bus.Subscribe("c1", 1)
	fresh := bus.Subscribe("c1", 1)

	_, open := <-old
	require.False(t, open)

	bus.Publish(&nostr.Event{ID: "e1"}, groups.DefaultScope)
	require.Equal(t, "e1", (<-fresh).Event.ID)
}
