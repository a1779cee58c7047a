package relay

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/verse-pbc/groups-relay/internal/config"
	"github.com/verse-pbc/groups-relay/internal/domain"
	"github.com/verse-pbc/groups-relay/internal/errors"
	"github.com/verse-pbc/groups-relay/internal/groups"
	"github.com/verse-pbc/groups-relay/internal/logger"
	"github.com/verse-pbc/groups-relay/internal/metrics"
	"github.com/verse-pbc/groups-relay/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// generateClientID returns a random id for the publish-bus registration.
func generateClientID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// handleWebSocketConnection upgrades an HTTP request and starts the message
// loop for it.
func handleWebSocketConnection(ctx context.Context, w http.ResponseWriter, r *http.Request, upgrader websocket.Upgrader, node domain.NodeInterface, cfg *config.Config) {
	if node.GetConnectionCount() >= cfg.Relay.Throttling.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed",
			zap.Error(err),
			zap.String("client", r.RemoteAddr))
		return
	}

	scope := groups.ScopeFromHost(r.Host, cfg.Relay.BaseDomainParts)
	conn := NewWsConnection(ctx, wsConn, node, cfg, r.RemoteAddr, scope)
	node.RegisterConn(conn)
	metrics.ActiveConnections.Inc()

	logger.Debug("WebSocket connection established",
		zap.String("client", r.RemoteAddr),
		zap.String("scope", scope.String()))

	go conn.HandleMessages(ctx)
}

// WsConnection is a single client connection: its scope, auth state and
// subscription table.
type WsConnection struct {
	ws     *websocket.Conn
	node   domain.NodeInterface
	cfg    *config.Config
	scope  groups.Scope
	remote string

	authMu       sync.RWMutex
	challenge    string
	authedPubkey string

	subMu         sync.RWMutex
	subscriptions map[string][]nostr.Filter

	writeMu  sync.Mutex
	closeMu  sync.Once
	limiter  *rate.Limiter
	isClosed atomic.Bool

	lastActivity atomic.Int64

	clientID  string
	busCancel context.CancelFunc
}

var _ domain.WebSocketConnection = (*WsConnection)(nil)

// NewWsConnection initializes the connection state and starts the live
// delivery loop.
func NewWsConnection(ctx context.Context, ws *websocket.Conn, node domain.NodeInterface, cfg *config.Config, remote string, scope groups.Scope) *WsConnection {
	busCtx, busCancel := context.WithCancel(ctx)

	c := &WsConnection{
		ws:            ws,
		node:          node,
		cfg:           cfg,
		scope:         scope,
		remote:        remote,
		subscriptions: make(map[string][]nostr.Filter),
		limiter: rate.NewLimiter(
			rate.Limit(cfg.Relay.Throttling.MaxEventsPerSecond),
			cfg.Relay.Throttling.BurstSize,
		),
		clientID:  generateClientID(),
		busCancel: busCancel,
	}
	c.lastActivity.Store(time.Now().Unix())

	// A fresh challenge is offered on connect so clients can authenticate
	// up front.
	c.rotateChallenge()
	c.sendAuthChallenge()

	ch := node.DB().Bus.Subscribe(c.clientID, 256)
	go c.processLiveEvents(busCtx, ch)

	ws.SetReadLimit(int64(cfg.Relay.MaxContentLen * 2))
	ws.SetPingHandler(func(appData string) error {
		c.lastActivity.Store(time.Now().Unix())
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return c.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	return c
}

// RemoteAddr returns the client address.
func (c *WsConnection) RemoteAddr() string { return c.remote }

// Scope returns the tenant scope derived from the connection's host header.
func (c *WsConnection) Scope() groups.Scope { return c.scope }

// AuthedPubkey returns the NIP-42 authenticated pubkey, empty if none.
func (c *WsConnection) AuthedPubkey() string {
	c.authMu.RLock()
	defer c.authMu.RUnlock()
	return c.authedPubkey
}

func (c *WsConnection) setAuthedPubkey(pk string) {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	c.authedPubkey = pk
}

// --- Outbound ---

func (c *WsConnection) sendMessage(msgType string, args ...interface{}) {
	if c.isClosed.Load() {
		return
	}
	raw, err := json.Marshal(append([]interface{}{msgType}, args...))
	if err != nil {
		logger.Warn("Failed to marshal message", zap.Error(err))
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.isClosed.Load() {
		return
	}

	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
		logger.Debug("Failed to write message, closing",
			zap.Error(err),
			zap.String("client", c.remote))
		c.Close()
		return
	}
	metrics.MessagesSent.Inc()
}

func (c *WsConnection) sendNotice(message string) {
	c.sendMessage("NOTICE", message)
}

func (c *WsConnection) sendClosed(subID, reason string) {
	c.sendMessage("CLOSED", subID, reason)
}

func (c *WsConnection) sendOK(eventID string, accepted bool, message string) {
	c.sendMessage("OK", eventID, accepted, message)
}

func (c *WsConnection) sendEOSE(subID string) {
	c.sendMessage("EOSE", subID)
}

func (c *WsConnection) sendEvent(subID string, evt *nostr.Event) {
	c.sendMessage("EVENT", subID, evt)
}

// --- Inbound ---

// HandleMessages runs the read loop until the connection dies.
func (c *WsConnection) HandleMessages(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic in message handler",
				zap.Any("panic", r),
				zap.String("client", c.remote))
		}
		c.Close()
		c.node.UnregisterConn(c)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.Relay.IdleTimeout))
		_, rawMsg, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("WS read error, disconnecting client",
					zap.Error(err),
					zap.String("client", c.remote))
			}
			return
		}

		metrics.MessagesReceived.Inc()
		c.lastActivity.Store(time.Now().Unix())

		var arr []interface{}
		if err := json.Unmarshal(rawMsg, &arr); err != nil {
			c.sendNotice("invalid: malformed JSON from client")
			continue
		}
		if len(arr) == 0 {
			c.sendNotice("invalid: empty command array")
			continue
		}
		cmdType, ok := arr[0].(string)
		if !ok {
			c.sendNotice("invalid: command must be a string")
			continue
		}

		metrics.CommandsReceived.WithLabelValues(cmdType).Inc()
		start := time.Now()
		switch cmdType {
		case "EVENT":
			c.handleEvent(ctx, arr)
		case "REQ":
			c.handleRequest(ctx, arr)
		case "CLOSE":
			c.handleClose(arr)
		case "AUTH":
			c.handleAuth(arr)
		default:
			c.sendNotice("invalid: unknown command '" + cmdType + "'")
		}
		metrics.CommandProcessingDuration.WithLabelValues(cmdType).Observe(time.Since(start).Seconds())
	}
}

// handleEvent processes one EVENT frame: verify, dispatch through the group
// state machine, apply the command batch, answer with exactly one OK.
func (c *WsConnection) handleEvent(ctx context.Context, arr []interface{}) {
	if len(arr) < 2 {
		c.sendNotice("invalid: EVENT message missing event")
		return
	}

	eventData, err := json.Marshal(arr[1])
	if err != nil {
		c.sendNotice("invalid: malformed event")
		return
	}
	var evt nostr.Event
	if err := json.Unmarshal(eventData, &evt); err != nil {
		c.sendNotice("invalid: malformed event")
		return
	}

	if !c.limiter.Allow() {
		c.sendOK(evt.ID, false, "rate-limited: too many events")
		return
	}

	if ok, err := evt.CheckSignature(); err != nil || !ok {
		c.sendOK(evt.ID, false, "invalid: bad signature")
		metrics.EventsRejected.WithLabelValues("invalid").Inc()
		return
	}

	commands, err := c.node.Dispatcher().ProcessEvent(ctx, &evt, c.scope, c.AuthedPubkey())
	if err != nil {
		c.rejectEvent(&evt, err)
		return
	}

	if err := c.node.DB().ApplyCommands(ctx, commands); err != nil {
		logger.Error("Failed to apply store commands",
			zap.String("event_id", evt.ID),
			zap.Error(err))
		c.sendOK(evt.ID, false, errors.Internal(err).ClientMessage())
		metrics.EventsRejected.WithLabelValues("internal").Inc()
		return
	}

	c.sendOK(evt.ID, true, "")
}

// rejectEvent translates a ProtocolError into the single OK=false answer.
// An auth-required rejection also re-sends the pending challenge.
func (c *WsConnection) rejectEvent(evt *nostr.Event, err error) {
	pe := errors.AsProtocol(err)
	if pe.Kind == errors.KindInternal {
		logger.Error("Internal error processing event",
			zap.String("event_id", evt.ID),
			zap.Error(err))
	}
	c.sendOK(evt.ID, false, pe.ClientMessage())
	metrics.EventsRejected.WithLabelValues(rejectionLabel(pe.Kind)).Inc()

	if pe.Kind == errors.KindAuthRequired {
		c.sendAuthChallenge()
	}
}

func rejectionLabel(kind errors.Kind) string {
	switch kind {
	case errors.KindAuthRequired:
		return "auth-required"
	case errors.KindRestricted:
		return "restricted"
	case errors.KindInvalid:
		return "invalid"
	case errors.KindInternal:
		return "internal"
	default:
		return "notice"
	}
}

// --- Live delivery ---

// processLiveEvents fans newly stored events into matching subscriptions.
// Non-visible events are dropped silently.
func (c *WsConnection) processLiveEvents(ctx context.Context, ch <-chan storage.StoredEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case stored, ok := <-ch:
			if !ok {
				return
			}
			if c.isClosed.Load() || stored.Scope != c.scope {
				continue
			}
			c.deliverLiveEvent(stored.Event)
		}
	}
}

func (c *WsConnection) deliverLiveEvent(evt *nostr.Event) {
	c.subMu.RLock()
	type match struct{ subID string }
	var matches []match
	for subID, filters := range c.subscriptions {
		for _, f := range filters {
			if f.Matches(evt) {
				matches = append(matches, match{subID: subID})
				break
			}
		}
	}
	c.subMu.RUnlock()

	if len(matches) == 0 {
		return
	}

	visible, err := c.node.Groups().CanSeeEvent(evt, c.scope, c.AuthedPubkey())
	if err != nil || !visible {
		return
	}

	for _, m := range matches {
		c.sendEvent(m.subID, evt)
	}
}

// --- Lifecycle ---

// Close shuts down the connection once.
func (c *WsConnection) Close() {
	c.closeMu.Do(func() {
		c.isClosed.Store(true)
		c.busCancel()
		c.node.DB().Bus.Unsubscribe(c.clientID)

		c.subMu.Lock()
		oldSubs := len(c.subscriptions)
		c.subscriptions = make(map[string][]nostr.Filter)
		c.subMu.Unlock()

		metrics.ActiveSubscriptions.Sub(float64(oldSubs))
		metrics.ActiveConnections.Dec()

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()

		_ = c.ws.Close()
		logger.Debug("WebSocket connection closed", zap.String("client", c.remote))
	})
}
