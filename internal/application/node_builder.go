package application

import (
	"context"
	"fmt"
	"time"

	"github.com/verse-pbc/groups-relay/internal/config"
	"github.com/verse-pbc/groups-relay/internal/domain"
	"github.com/verse-pbc/groups-relay/internal/groups"
	"github.com/verse-pbc/groups-relay/internal/identity"
	"github.com/verse-pbc/groups-relay/internal/logger"
	"github.com/verse-pbc/groups-relay/internal/storage"
	"go.uber.org/zap"
)

// NodeBuilder incrementally constructs a Node: identity first, then the
// store, then the group registry replayed from stored events.
type NodeBuilder struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config

	id         *identity.RelayIdentity
	db         *storage.DB
	registry   *groups.Registry
	dispatcher *groups.Dispatcher
}

// NewNodeBuilder creates a NodeBuilder with its own cancelable context.
func NewNodeBuilder(ctx context.Context, cfg *config.Config) *NodeBuilder {
	c, cancel := context.WithCancel(ctx)
	return &NodeBuilder{ctx: c, cancel: cancel, cfg: cfg}
}

// BuildIdentity loads or generates the relay keypair.
func (b *NodeBuilder) BuildIdentity() error {
	id, err := identity.Load(b.cfg.Relay.PrivateKey, b.cfg.Relay.KeyFile)
	if err != nil {
		b.cancel()
		return fmt.Errorf("failed to load relay identity: %w", err)
	}
	b.id = id
	logger.Info("Relay identity loaded", zap.String("pubkey", id.PublicKey))
	return nil
}

// BuildDB connects to the database and applies the schema.
func (b *NodeBuilder) BuildDB() error {
	db, err := storage.InitDB(b.ctx, b.cfg.Database.URI(), b.id.PrivateKey)
	if err != nil {
		b.cancel()
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	b.db = db
	return nil
}

// BuildGroups constructs the registry and replays stored state into it.
func (b *NodeBuilder) BuildGroups() error {
	b.registry = groups.NewRegistry(b.db, b.id.PublicKey)

	loadCtx, cancel := context.WithTimeout(b.ctx, 2*time.Minute)
	defer cancel()
	if err := b.registry.LoadAll(loadCtx); err != nil {
		b.cancel()
		return fmt.Errorf("failed to load groups: %w", err)
	}
	b.registry.UpdatePrivacyMetrics()

	b.dispatcher = groups.NewDispatcher(b.registry)
	return nil
}

// Build assembles the final Node.
func (b *NodeBuilder) Build() (*Node, error) {
	if b.id == nil || b.db == nil || b.registry == nil {
		b.cancel()
		return nil, fmt.Errorf("node builder is missing components")
	}

	return &Node{
		ctx:        b.ctx,
		cancel:     b.cancel,
		cfg:        b.cfg,
		db:         b.db,
		id:         b.id,
		registry:   b.registry,
		dispatcher: b.dispatcher,
		wsConns:    make(map[domain.WebSocketConnection]bool),
		startTime:  time.Now(),
	}, nil
}
