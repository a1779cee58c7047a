package application

import (
	"context"
	"sync"
	"time"

	"github.com/verse-pbc/groups-relay/internal/config"
	"github.com/verse-pbc/groups-relay/internal/domain"
	"github.com/verse-pbc/groups-relay/internal/groups"
	"github.com/verse-pbc/groups-relay/internal/identity"
	"github.com/verse-pbc/groups-relay/internal/logger"
	"github.com/verse-pbc/groups-relay/internal/relay"
	"github.com/verse-pbc/groups-relay/internal/storage"
	"go.uber.org/zap"
)

// Node ties together the components needed to run the relay: the scoped
// event store, the group registry and dispatcher, and the WebSocket server.
type Node struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg        *config.Config
	db         *storage.DB
	id         *identity.RelayIdentity
	registry   *groups.Registry
	dispatcher *groups.Dispatcher

	wsConns   map[domain.WebSocketConnection]bool
	wsConnsMu sync.RWMutex

	startTime time.Time
}

var _ domain.NodeInterface = (*Node)(nil)

// New creates and configures a Node using the NodeBuilder.
func New(ctx context.Context, cfg *config.Config) (*Node, error) {
	builder := NewNodeBuilder(ctx, cfg)

	if err := builder.BuildIdentity(); err != nil {
		return nil, err
	}
	if err := builder.BuildDB(); err != nil {
		return nil, err
	}
	if err := builder.BuildGroups(); err != nil {
		return nil, err
	}
	return builder.Build()
}

// Start launches the relay server in the background and returns without
// waiting for the listener; the server lives until the node context is
// canceled.
func (n *Node) Start(ctx context.Context) error {
	go func() {
		server := relay.NewServer(n.cfg, n)
		if err := server.ListenAndServe(n.ctx, n.cfg.Relay.WSAddr); err != nil {
			if err.Error() != "http: Server closed" {
				logger.Error("Server error", zap.Error(err))
			}
		}
	}()

	// Keep the privacy gauges fresh without touching the hot path.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-n.ctx.Done():
				return
			case <-ticker.C:
				n.registry.UpdatePrivacyMetrics()
			}
		}
	}()

	logger.Info("Node started",
		zap.String("relay_pubkey", n.id.PublicKey),
		zap.String("ws_addr", n.cfg.Relay.WSAddr))
	return nil
}

// Shutdown closes connections, stops the server and releases the store.
func (n *Node) Shutdown() {
	logger.Info("Initiating graceful shutdown...")

	n.wsConnsMu.Lock()
	conns := make([]domain.WebSocketConnection, 0, len(n.wsConns))
	for conn := range n.wsConns {
		conns = append(conns, conn)
	}
	n.wsConns = make(map[domain.WebSocketConnection]bool)
	n.wsConnsMu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}

	if n.cancel != nil {
		n.cancel()
	}
	if n.db != nil {
		n.db.Close()
	}

	logger.Info("Node shut down")
}

// --- domain.NodeInterface ---

func (n *Node) DB() *storage.DB                 { return n.db }
func (n *Node) Config() *config.Config          { return n.cfg }
func (n *Node) Groups() *groups.Registry        { return n.registry }
func (n *Node) Dispatcher() *groups.Dispatcher  { return n.dispatcher }
func (n *Node) RelayPubkey() string             { return n.id.PublicKey }
func (n *Node) GetStartTime() time.Time         { return n.startTime }

func (n *Node) RegisterConn(conn domain.WebSocketConnection) {
	n.wsConnsMu.Lock()
	defer n.wsConnsMu.Unlock()
	n.wsConns[conn] = true
}

func (n *Node) UnregisterConn(conn domain.WebSocketConnection) {
	n.wsConnsMu.Lock()
	defer n.wsConnsMu.Unlock()
	delete(n.wsConns, conn)
}

func (n *Node) GetConnectionCount() int {
	n.wsConnsMu.RLock()
	defer n.wsConnsMu.RUnlock()
	return len(n.wsConns)
}
