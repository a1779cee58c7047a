package groups

import (
	"context"
	"strconv"
	"strings"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/verse-pbc/groups-relay/internal/errors"
	"github.com/verse-pbc/groups-relay/internal/logger"
	"github.com/verse-pbc/groups-relay/internal/metrics"
	"go.uber.org/zap"
)

// Dispatcher routes classified events onto the right group mutator and
// collects the resulting storage commands. It owns no state of its own;
// all group state lives in the registry.
type Dispatcher struct {
	registry *Registry
	log      *zap.Logger
}

func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		log:      logger.New("dispatcher"),
	}
}

// ProcessEvent ingests one signed event and returns the storage commands it
// produces. authedPubkey is the NIP-42 authenticated key of the submitting
// connection, empty when unauthenticated. A rejection is returned as a
// ProtocolError and leaves all group state unchanged.
func (d *Dispatcher) ProcessEvent(ctx context.Context, evt *nostr.Event, scope Scope, authedPubkey string) ([]StoreCommand, error) {
	known := d.registry.Has(scope, HTagValue(evt))
	class := Classify(evt, known)

	d.log.Debug("Dispatching event",
		zap.String("event_id", evt.ID),
		zap.Int("kind", evt.Kind),
		zap.String("class", class.String()),
		zap.String("scope", scope.String()))

	commands, err := d.process(ctx, class, evt, scope, authedPubkey)
	if err != nil {
		return nil, err
	}
	metrics.EventsProcessed.WithLabelValues(strconv.Itoa(evt.Kind)).Inc()
	return commands, nil
}

func (d *Dispatcher) process(ctx context.Context, class EventClass, evt *nostr.Event, scope Scope, authedPubkey string) ([]StoreCommand, error) {
	relayPubkey := d.registry.relayPubkey

	switch class {
	case ClassCreate:
		return d.registry.CreateGroup(ctx, evt, scope)

	case ClassDeleteGroup:
		return d.registry.DeleteGroup(evt, scope, authedPubkey)

	case ClassEditMetadata:
		return d.mutate(evt, scope, func(g *Group) ([]StoreCommand, error) {
			return g.SetMetadata(evt, scope, relayPubkey)
		})

	case ClassAddUser:
		return d.mutate(evt, scope, func(g *Group) ([]StoreCommand, error) {
			return g.AddMembers(evt, scope, relayPubkey)
		})

	case ClassRemoveUser:
		return d.mutate(evt, scope, func(g *Group) ([]StoreCommand, error) {
			return g.RemoveMembers(evt, scope, relayPubkey)
		})

	case ClassSetRoles:
		return d.mutate(evt, scope, func(g *Group) ([]StoreCommand, error) {
			return g.SetRoles(evt, scope, relayPubkey)
		})

	case ClassCreateInvite:
		return d.mutate(evt, scope, func(g *Group) ([]StoreCommand, error) {
			return g.CreateInvite(evt, scope, relayPubkey)
		})

	case ClassJoinRequest:
		return d.mutate(evt, scope, func(g *Group) ([]StoreCommand, error) {
			return g.JoinRequest(evt, scope, relayPubkey)
		})

	case ClassLeaveRequest:
		return d.mutate(evt, scope, func(g *Group) ([]StoreCommand, error) {
			return g.LeaveRequest(evt, scope, relayPubkey)
		})

	case ClassDeleteEvent:
		return d.mutate(evt, scope, func(g *Group) ([]StoreCommand, error) {
			return g.DeleteEventRequest(evt, scope, relayPubkey, authedPubkey)
		})

	case ClassGroupContent:
		return d.mutate(evt, scope, func(g *Group) ([]StoreCommand, error) {
			return g.HandleContent(evt, scope, relayPubkey)
		})

	case ClassUnmanagedContent, ClassAllowedNonGroup:
		return []StoreCommand{SaveSignedEvent{Event: evt, Scope: scope}}, nil

	default:
		return nil, errors.Invalid("group events must contain an 'h' tag")
	}
}

// mutate runs fn under the target group's write lock, enforcing the member
// access precondition for non-relay submitters.
func (d *Dispatcher) mutate(evt *nostr.Event, scope Scope, fn func(g *Group) ([]StoreCommand, error)) ([]StoreCommand, error) {
	var commands []StoreCommand
	found, err := d.registry.UpdateFromEvent(evt, scope, func(g *Group) error {
		var innerErr error
		commands, innerErr = fn(g)
		return innerErr
	})
	if !found {
		return nil, errors.Notice("Group not found for this group content")
	}
	if err != nil {
		d.log.Debug("Event rejected",
			zap.String("event_id", evt.ID),
			zap.Int("kind", evt.Kind),
			zap.String("pubkey", strings.ToLower(evt.PubKey)),
			zap.Error(err))
		return nil, err
	}
	return commands, nil
}
