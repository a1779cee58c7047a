package groups

import (
	"context"

	nostr "github.com/nbd-wtf/go-nostr"
)

// StoreCommand is a storage instruction emitted by the group state machine.
// Commands within one batch must be applied in order; the batch belongs to a
// single triggering event.
type StoreCommand interface {
	CommandScope() Scope
}

// SaveSignedEvent persists a client-signed event as-is.
type SaveSignedEvent struct {
	Event *nostr.Event
	Scope Scope
}

// SaveUnsignedEvent persists a relay-generated event. The store signs it with
// the relay identity before persistence; addressable kinds supersede any
// prior event with the same (kind, author, d-tag).
type SaveUnsignedEvent struct {
	Event *nostr.Event
	Scope Scope
}

// DeleteEvents removes every stored event matching the filter from the scope.
type DeleteEvents struct {
	Filter nostr.Filter
	Scope  Scope
}

func (c SaveSignedEvent) CommandScope() Scope   { return c.Scope }
func (c SaveUnsignedEvent) CommandScope() Scope { return c.Scope }
func (c DeleteEvents) CommandScope() Scope      { return c.Scope }

// EventStore is the database contract the group machinery depends on. The
// concrete implementation also consumes StoreCommand batches and fans stored
// events out on a publish bus; the core only needs the query side.
type EventStore interface {
	QueryEvents(ctx context.Context, filter nostr.Filter, scope Scope) ([]nostr.Event, error)
	ListScopes(ctx context.Context) ([]Scope, error)
}
