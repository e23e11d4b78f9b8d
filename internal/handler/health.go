package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the service banner, the health check and the JSON
// fallbacks for unknown routes.
type HealthHandler struct {
	db      Pinger
	version string
	logger  *slog.Logger
}

func NewHealthHandler(db Pinger, version string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, version: version, logger: logger}
}

type bannerResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	Version string `json:"version"`
}

type healthResponse struct {
	Status string    `json:"status"`
	TS     time.Time `json:"ts"`
}

// HandleRoot handles GET /.
func (h *HealthHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, bannerResponse{OK: true, Service: "recipebox", Version: h.version})
}

// HandleHealth handles GET /health. It answers 503 when the database does
// not respond within two seconds.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", TS: time.Now().UTC()})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", TS: time.Now().UTC()})
}

// HandleNotFound answers unknown routes with the standard error body.
func (h *HealthHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{
		Error:   "not_found",
		Message: r.Method + " " + r.URL.RequestURI(),
	})
}

// HandleMethodNotAllowed answers a known path with an unsupported method.
func (h *HealthHandler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
		Error:   "method_not_allowed",
		Message: r.Method + " " + r.URL.Path,
	})
}
