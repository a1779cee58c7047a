package relay

import (
	"encoding/json"
	"net/http"

	"github.com/nbd-wtf/go-nostr/nip11"
	"github.com/verse-pbc/groups-relay/internal/config"
	"github.com/verse-pbc/groups-relay/internal/logger"
	"go.uber.org/zap"
)

// relayInformationDocument builds the NIP-11 document advertised on
// Accept: application/nostr+json requests.
func relayInformationDocument(cfg *config.Config, relayPubkey string) nip11.RelayInformationDocument {
	return nip11.RelayInformationDocument{
		Name:          cfg.Relay.Name,
		Description:   cfg.Relay.Description,
		PubKey:        relayPubkey,
		Contact:       cfg.Relay.Contact,
		Icon:          cfg.Relay.Icon,
		SupportedNIPs: []any{1, 9, 11, 29, 42},
		Software:      "https://github.com/verse-pbc/groups-relay",
		Version:       config.Version,
	}
}

// serveRelayInformation writes the NIP-11 document.
func serveRelayInformation(w http.ResponseWriter, doc nip11.RelayInformationDocument) {
	w.Header().Set("Content-Type", "application/nostr+json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		logger.Warn("Failed to encode relay information document", zap.Error(err))
	}
}
