package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/verse-pbc/groups-relay/internal/config"
	"github.com/verse-pbc/groups-relay/internal/domain"
	"github.com/verse-pbc/groups-relay/internal/logger"
	"github.com/verse-pbc/groups-relay/internal/web"
	"go.uber.org/zap"
)

// Server serves the WebSocket relay plus the HTTP surface: relay info,
// health, metrics and the scope listing endpoints.
type Server struct {
	cfg        *config.Config
	node       domain.NodeInterface
	webHandler *web.Handler
}

// NewServer constructs a Server for the given node.
func NewServer(cfg *config.Config, node domain.NodeInterface) *Server {
	return &Server{
		cfg:        cfg,
		node:       node,
		webHandler: web.NewHandler(cfg, logger.New("web")),
	}
}

// ListenAndServe starts the server and blocks until the context is
// canceled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	upgrader := websocket.Upgrader{
		ReadBufferSize:    1024 * 1024,
		WriteBufferSize:   1024 * 1024,
		CheckOrigin:       func(r *http.Request) bool { return true },
		EnableCompression: true,
		HandshakeTimeout:  10 * time.Second,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case isWebSocketRequest(r):
			handleWebSocketConnection(ctx, w, r, upgrader, s.node, s.cfg)
		case r.URL.Path == "/" && r.Header.Get("Accept") == "application/nostr+json":
			serveRelayInformation(w, relayInformationDocument(s.cfg, s.node.RelayPubkey()))
		case r.URL.Path == "/":
			s.webHandler.HandleLanding(w, r)
		case r.URL.Path == "/health":
			s.handleHealth(w, r)
		case r.URL.Path == "/metrics" && s.cfg.Metrics.Enabled:
			promhttp.Handler().ServeHTTP(w, r)
		case r.URL.Path == "/subdomains":
			s.handleSubdomains(w, r)
		case r.URL.Path == "/config":
			s.handleConfig(w, r)
		default:
			http.NotFound(w, r)
		}
	})

	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down WebSocket server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("Relay WebSocket server listening", zap.String("address", addr))
	return httpSrv.ListenAndServe()
}

func isWebSocketRequest(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade") &&
		strings.ToLower(r.Header.Get("Upgrade")) == "websocket"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.node.DB().Ping(ctx); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("OK"))
}

// handleSubdomains lists the named scopes that currently contain groups.
func (s *Server) handleSubdomains(w http.ResponseWriter, _ *http.Request) {
	var subdomains []string
	for _, scope := range s.node.Groups().Scopes() {
		if !scope.IsDefault() {
			subdomains = append(subdomains, scope.Name())
		}
	}
	if subdomains == nil {
		subdomains = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string][]string{"subdomains": subdomains})
}

// handleConfig exposes how many host labels make up the base domain, so
// clients can derive scope URLs.
func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"base_domain_parts": s.cfg.Relay.BaseDomainParts})
}
