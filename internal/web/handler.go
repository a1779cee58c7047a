package web

import (
	_ "embed"
	"html/template"
	"net/http"

	"github.com/verse-pbc/groups-relay/internal/config"
	"go.uber.org/zap"
)

//go:embed static/index.html
var landingHTML string

var landingTemplate = template.Must(template.New("landing").Parse(landingHTML))

// Handler serves the static landing page shown to browsers hitting the
// relay root.
type Handler struct {
	cfg *config.Config
	log *zap.Logger
}

func NewHandler(cfg *config.Config, log *zap.Logger) *Handler {
	return &Handler{cfg: cfg, log: log}
}

// HandleLanding renders the landing page.
func (h *Handler) HandleLanding(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")

	data := struct {
		Name        string
		Description string
		PublicURL   string
	}{
		Name:        h.cfg.Relay.Name,
		Description: h.cfg.Relay.Description,
		PublicURL:   h.cfg.Relay.PublicURL,
	}
	if err := landingTemplate.Execute(w, data); err != nil {
		h.log.Warn("Failed to render landing page", zap.Error(err))
	}
}
