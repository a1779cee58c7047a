package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/verse-pbc/groups-relay/internal/groups"
	"github.com/verse-pbc/groups-relay/internal/logger"
	"github.com/verse-pbc/groups-relay/internal/metrics"
	"go.uber.org/zap"
)

// QueryEvents retrieves events matching a filter within a scope, newest
// first, bounded by the global query limit.
func (db *DB) QueryEvents(ctx context.Context, f nostr.Filter, scope groups.Scope) ([]nostr.Event, error) {
	query, args := buildSelect(f, scope, defaultQueryLimit)

	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := db.Pool.Query(queryCtx, query, args...)
	if err != nil {
		metrics.DBErrors.WithLabelValues("query_failed").Inc()
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []nostr.Event
	for rows.Next() {
		var evt nostr.Event
		var createdAt int64
		var rawTags []byte

		if err := rows.Scan(&evt.ID, &evt.PubKey, &createdAt, &evt.Kind, &rawTags, &evt.Content, &evt.Sig); err != nil {
			logger.Warn("Row scan failed", zap.Error(err))
			continue
		}
		evt.CreatedAt = nostr.Timestamp(createdAt)
		if len(rawTags) > 0 {
			if err := json.Unmarshal(rawTags, &evt.Tags); err != nil {
				logger.Warn("Failed to unmarshal tags", zap.String("event_id", evt.ID), zap.Error(err))
				evt.Tags = nostr.Tags{}
			}
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// GetEventCount returns the number of stored events matching the filter.
func (db *DB) GetEventCount(ctx context.Context, f nostr.Filter, scope groups.Scope) (int64, error) {
	query, args := buildCount(f, scope)

	var count int64
	if err := db.Pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		metrics.DBErrors.WithLabelValues("query_failed").Inc()
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// ListScopes returns every scope present in the store.
func (db *DB) ListScopes(ctx context.Context) ([]groups.Scope, error) {
	rows, err := db.Pool.Query(ctx, `SELECT DISTINCT scope FROM events ORDER BY scope`)
	if err != nil {
		metrics.DBErrors.WithLabelValues("query_failed").Inc()
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}
	defer rows.Close()

	var scopes []groups.Scope
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if name == "" {
			scopes = append(scopes, groups.DefaultScope)
		} else {
			scopes = append(scopes, groups.NamedScope(name))
		}
	}
	return scopes, rows.Err()
}

// DeleteEventsByFilter removes every event matching the filter from the
// scope.
func (db *DB) DeleteEventsByFilter(ctx context.Context, f nostr.Filter, scope groups.Scope) error {
	query, args := buildDelete(f, scope)

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		metrics.DBErrors.WithLabelValues("delete_failed").Inc()
		return fmt.Errorf("failed to delete events: %w", err)
	}
	metrics.DBOperations.WithLabelValues("delete").Inc()
	metrics.EventsStored.Sub(float64(tag.RowsAffected()))
	logger.Debug("Deleted events by filter",
		zap.Int64("rows", tag.RowsAffected()),
		zap.String("scope", scope.String()))
	return nil
}

// InsertEvent stores a signed non-addressable event. Duplicates are
// silently ignored.
func (db *DB) InsertEvent(ctx context.Context, evt *nostr.Event, scope groups.Scope) error {
	if db.Bloom.Test([]byte(evt.ID)) {
		return nil
	}

	rawTags, err := json.Marshal(evt.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	tag, err := db.Pool.Exec(ctx,
		`INSERT INTO events (id, pubkey, created_at, kind, tags, content, sig, scope, d_tag)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		evt.ID, evt.PubKey, int64(evt.CreatedAt), evt.Kind, rawTags, evt.Content, evt.Sig,
		scope.Name(), groups.DTagValue(evt))
	if err != nil {
		metrics.DBErrors.WithLabelValues("write_failed").Inc()
		return fmt.Errorf("failed to insert event: %w", err)
	}

	db.Bloom.AddString(evt.ID)
	if tag.RowsAffected() > 0 {
		metrics.EventsStored.Inc()
	}
	return nil
}

// InsertAddressableEvent stores an addressable event, superseding any prior
// event with the same (scope, kind, author, d tag).
func (db *DB) InsertAddressableEvent(ctx context.Context, evt *nostr.Event, scope groups.Scope) error {
	rawTags, err := json.Marshal(evt.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	_, err = db.Pool.Exec(ctx,
		`DELETE FROM events
		 WHERE scope = $1 AND kind = $2 AND pubkey = $3 AND d_tag = $4 AND created_at <= $5`,
		scope.Name(), evt.Kind, evt.PubKey, groups.DTagValue(evt), int64(evt.CreatedAt))
	if err != nil {
		metrics.DBErrors.WithLabelValues("write_failed").Inc()
		return fmt.Errorf("failed to supersede addressable event: %w", err)
	}

	tag, err := db.Pool.Exec(ctx,
		`INSERT INTO events (id, pubkey, created_at, kind, tags, content, sig, scope, d_tag)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT DO NOTHING`,
		evt.ID, evt.PubKey, int64(evt.CreatedAt), evt.Kind, rawTags, evt.Content, evt.Sig,
		scope.Name(), groups.DTagValue(evt))
	if err != nil {
		metrics.DBErrors.WithLabelValues("write_failed").Inc()
		return fmt.Errorf("failed to insert addressable event: %w", err)
	}

	db.Bloom.AddString(evt.ID)
	if tag.RowsAffected() > 0 {
		metrics.EventsStored.Inc()
	}
	return nil
}
