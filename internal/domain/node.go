package domain

import (
	"time"

	"github.com/verse-pbc/groups-relay/internal/config"
	"github.com/verse-pbc/groups-relay/internal/groups"
	"github.com/verse-pbc/groups-relay/internal/storage"
)

// NodeInterface defines the core capabilities the relay surface needs from
// the assembled node.
type NodeInterface interface {
	DB() *storage.DB
	Config() *config.Config

	// Group state machine access
	Groups() *groups.Registry
	Dispatcher() *groups.Dispatcher
	RelayPubkey() string

	// Connection management
	RegisterConn(conn WebSocketConnection)
	UnregisterConn(conn WebSocketConnection)
	GetConnectionCount() int
	GetStartTime() time.Time
}

// WebSocketConnection represents a client WebSocket connection as seen by
// the node.
type WebSocketConnection interface {
	Close()
	RemoteAddr() string
}
