package relay

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip42"
	"github.com/verse-pbc/groups-relay/internal/logger"
	"go.uber.org/zap"
)

// NIP-42 authentication. Private groups require an authenticated pubkey;
// a fresh challenge is offered on connect and re-sent whenever an
// auth-required rejection goes out.

func newChallenge() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}

func (c *WsConnection) rotateChallenge() {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	c.challenge = newChallenge()
}

func (c *WsConnection) currentChallenge() string {
	c.authMu.RLock()
	defer c.authMu.RUnlock()
	return c.challenge
}

// sendAuthChallenge sends ["AUTH", <challenge>] for the pending challenge.
func (c *WsConnection) sendAuthChallenge() {
	if challenge := c.currentChallenge(); challenge != "" {
		c.sendMessage("AUTH", challenge)
	}
}

// handleAuth validates a signed kind-22242 challenge response.
func (c *WsConnection) handleAuth(arr []interface{}) {
	if len(arr) < 2 {
		c.sendNotice("invalid: AUTH message missing event")
		return
	}

	eventData, err := json.Marshal(arr[1])
	if err != nil {
		c.sendNotice("invalid: malformed auth event")
		return
	}
	var evt nostr.Event
	if err := json.Unmarshal(eventData, &evt); err != nil {
		c.sendNotice("invalid: malformed auth event")
		return
	}

	pubkey, ok := nip42.ValidateAuthEvent(&evt, c.currentChallenge(), c.cfg.Relay.PublicURL)
	if !ok {
		c.sendOK(evt.ID, false, "auth-required: challenge validation failed")
		return
	}

	c.setAuthedPubkey(strings.ToLower(pubkey))
	logger.Debug("Client authenticated",
		zap.String("pubkey", pubkey),
		zap.String("client", c.remote))
	c.sendOK(evt.ID, true, "")
}
