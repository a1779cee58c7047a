package storage

import (
	"context"
	"fmt"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/verse-pbc/groups-relay/internal/groups"
	"github.com/verse-pbc/groups-relay/internal/logger"
	"github.com/verse-pbc/groups-relay/internal/metrics"
	"go.uber.org/zap"
)

// ApplyCommands executes a command batch emitted by the group state machine.
// Commands run sequentially in emission order so derived state events land
// together with their triggering event. Every stored event is fanned out on
// the publish bus.
func (db *DB) ApplyCommands(ctx context.Context, commands []groups.StoreCommand) error {
	for _, cmd := range commands {
		if err := db.applyCommand(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) applyCommand(ctx context.Context, cmd groups.StoreCommand) error {
	switch c := cmd.(type) {
	case groups.SaveSignedEvent:
		if err := db.saveEvent(ctx, c.Event, c.Scope); err != nil {
			return err
		}
		metrics.DBOperations.WithLabelValues("save_signed").Inc()
		return nil

	case groups.SaveUnsignedEvent:
		if err := db.signAsRelay(c.Event); err != nil {
			metrics.DBErrors.WithLabelValues("sign_failed").Inc()
			return fmt.Errorf("failed to sign relay event: %w", err)
		}
		if err := db.saveEvent(ctx, c.Event, c.Scope); err != nil {
			return err
		}
		metrics.DBOperations.WithLabelValues("save_unsigned").Inc()
		return nil

	case groups.DeleteEvents:
		return db.DeleteEventsByFilter(ctx, c.Filter, c.Scope)

	default:
		return fmt.Errorf("unknown store command %T", cmd)
	}
}

func (db *DB) saveEvent(ctx context.Context, evt *nostr.Event, scope groups.Scope) error {
	var err error
	if groups.IsAddressableKind(evt.Kind) {
		err = db.InsertAddressableEvent(ctx, evt, scope)
	} else {
		err = db.InsertEvent(ctx, evt, scope)
	}
	if err != nil {
		return err
	}

	db.Bus.Publish(evt, scope)

	logger.Debug("Event stored",
		zap.String("event_id", evt.ID),
		zap.Int("kind", evt.Kind),
		zap.String("scope", scope.String()))
	return nil
}

// signAsRelay stamps an unsigned relay-generated event with the relay
// identity. Sign computes the event id as a side effect.
func (db *DB) signAsRelay(evt *nostr.Event) error {
	if db.relayPrivKey == "" {
		return fmt.Errorf("relay private key not configured")
	}
	return evt.Sign(db.relayPrivKey)
}
