package storage

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/verse-pbc/groups-relay/internal/logger"
	"github.com/verse-pbc/groups-relay/internal/metrics"
	"github.com/willf/bloom"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaDDL string

// DB is the scoped event store. It persists signed events, synthesizes
// replaceability for addressable kinds, and fans every newly stored event
// out on the publish bus.
type DB struct {
	Pool  *pgxpool.Pool
	Bloom *bloom.BloomFilter
	Bus   *Bus

	relayPrivKey string
}

// InitDB connects to the database with retries, applies the schema and
// primes the duplicate-suppression bloom filter.
func InitDB(ctx context.Context, dbURI, relayPrivKey string) (*DB, error) {
	var pool *pgxpool.Pool
	var err error
	backoff := 2 * time.Second

	for attempt := 1; attempt <= 5; attempt++ {
		pool, err = pgxpool.New(ctx, dbURI)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		logger.Warn("Failed to connect to DB, retrying...",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	if err != nil {
		metrics.DBErrors.WithLabelValues("connection_failed").Inc()
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}

	db := &DB{
		Pool:         pool,
		Bloom:        bloom.NewWithEstimates(10_000_000, 0.01),
		Bus:          NewBus(),
		relayPrivKey: relayPrivKey,
	}

	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := db.RebuildBloomFilter(ctx); err != nil {
		logger.Warn("Failed to rebuild bloom filter", zap.Error(err))
	}

	logger.Info("Database connected", zap.String("uri_host", poolHost(pool)))
	return db, nil
}

func poolHost(pool *pgxpool.Pool) string {
	cfg := pool.Config()
	if cfg != nil && cfg.ConnConfig != nil {
		return fmt.Sprintf("%s:%d", cfg.ConnConfig.Host, cfg.ConnConfig.Port)
	}
	return "unknown"
}

// Close shuts the pool down.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping checks database connectivity.
func (db *DB) Ping(ctx context.Context) error {
	if db.Pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.Pool.Ping(pingCtx)
}

// RebuildBloomFilter reloads every stored event id into the bloom filter.
func (db *DB) RebuildBloomFilter(ctx context.Context) error {
	rows, err := db.Pool.Query(ctx, `SELECT id FROM events`)
	if err != nil {
		metrics.DBErrors.WithLabelValues("query_failed").Inc()
		return err
	}
	defer rows.Close()

	count := 0
	db.Bloom.ClearAll()
	for rows.Next() {
		var eventID string
		if err := rows.Scan(&eventID); err != nil {
			continue
		}
		db.Bloom.AddString(eventID)
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	metrics.EventsStored.Set(float64(count))
	logger.Info("Bloom filter rebuilt", zap.Int("total_events", count))
	return nil
}
