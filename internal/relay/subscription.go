package relay

import (
	"context"
	"encoding/json"
	"time"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/verse-pbc/groups-relay/internal/errors"
	"github.com/verse-pbc/groups-relay/internal/logger"
	"github.com/verse-pbc/groups-relay/internal/metrics"
	"go.uber.org/zap"
)

// handleRequest processes a REQ frame: verify every filter, register the
// subscription, replay stored matches and finish with EOSE.
func (c *WsConnection) handleRequest(ctx context.Context, arr []interface{}) {
	if len(arr) < 3 {
		c.sendNotice("invalid: REQ message missing subscription ID or filter")
		return
	}

	subID, ok := arr[1].(string)
	if !ok || subID == "" {
		c.sendNotice("invalid: REQ subscription ID must be a string")
		return
	}
	if len(subID) > 64 {
		c.sendNotice("invalid: subscription ID too long")
		return
	}

	var filters []nostr.Filter
	for _, raw := range arr[2:] {
		f, err := parseFilterFromRaw(raw)
		if err != nil {
			c.sendClosed(subID, "invalid: "+err.Error())
			return
		}
		filters = append(filters, f)
	}

	// Access control runs before the subscription exists; an auth-required
	// violation also re-sends the pending challenge.
	authed := c.AuthedPubkey()
	for _, f := range filters {
		if err := c.node.Groups().VerifyFilter(authed, c.scope, f); err != nil {
			pe := errors.AsProtocol(err)
			if pe.Kind == errors.KindAuthRequired {
				c.sendAuthChallenge()
			}
			c.sendClosed(subID, pe.ClientMessage())
			return
		}
	}

	c.subMu.Lock()
	if _, exists := c.subscriptions[subID]; exists {
		metrics.ActiveSubscriptions.Dec()
	}
	c.subscriptions[subID] = filters
	c.subMu.Unlock()
	metrics.ActiveSubscriptions.Inc()

	go c.replayStoredEvents(ctx, subID, filters)
}

// replayStoredEvents streams historical matches newest first, then EOSE.
// Per-event access control drops non-visible events silently.
func (c *WsConnection) replayStoredEvents(ctx context.Context, subID string, filters []nostr.Filter) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	authed := c.AuthedPubkey()
	seen := make(map[string]struct{})
	sent := 0

	for _, f := range filters {
		if f.Limit <= 0 || f.Limit > c.cfg.Relay.QueryLimit {
			f.Limit = c.cfg.Relay.QueryLimit
		}

		events, err := c.node.DB().QueryEvents(queryCtx, f, c.scope)
		if err != nil {
			logger.Error("Failed to query events",
				zap.String("sub_id", subID),
				zap.Error(err),
				zap.String("client", c.remote))
			c.sendClosed(subID, errors.Internal(err).ClientMessage())
			return
		}

		for i := range events {
			if c.isClosed.Load() {
				return
			}
			evt := &events[i]
			if _, dup := seen[evt.ID]; dup {
				continue
			}
			seen[evt.ID] = struct{}{}

			visible, err := c.node.Groups().CanSeeEvent(evt, c.scope, authed)
			if err != nil || !visible {
				continue
			}
			c.sendEvent(subID, evt)
			sent++
		}
	}

	logger.Debug("Subscription replay complete",
		zap.String("sub_id", subID),
		zap.Int("sent", sent),
		zap.String("client", c.remote))

	if !c.isClosed.Load() {
		c.sendEOSE(subID)
	}
}

// handleClose removes a subscription and confirms with CLOSED.
func (c *WsConnection) handleClose(arr []interface{}) {
	if len(arr) < 2 {
		c.sendNotice("invalid: CLOSE message missing subscription ID")
		return
	}
	subID, ok := arr[1].(string)
	if !ok {
		c.sendNotice("invalid: CLOSE subscription ID must be a string")
		return
	}

	c.subMu.Lock()
	_, exists := c.subscriptions[subID]
	if exists {
		delete(c.subscriptions, subID)
	}
	c.subMu.Unlock()

	if !exists {
		c.sendClosed(subID, "subscription not found")
		return
	}
	metrics.ActiveSubscriptions.Dec()
	c.sendClosed(subID, "subscription closed")
}

// parseFilterFromRaw merges "#h", "#d" and other tag keys into Filter.Tags
// so Filter.Matches can check them.
func parseFilterFromRaw(raw interface{}) (nostr.Filter, error) {
	var f nostr.Filter

	data, err := json.Marshal(raw)
	if err != nil {
		return f, err
	}
	if err = json.Unmarshal(data, &f); err != nil {
		return f, err
	}

	var partial map[string]json.RawMessage
	if err = json.Unmarshal(data, &partial); err != nil {
		return f, err
	}

	if f.Tags == nil {
		f.Tags = make(nostr.TagMap)
	}
	for k, v := range partial {
		if len(k) > 1 && k[0] == '#' {
			var values []string
			if err := json.Unmarshal(v, &values); err == nil {
				f.Tags[k[1:]] = values
			}
		}
	}

	return f, nil
}
