package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/homecinema/homecinema/internal/api/middleware"
	"github.com/homecinema/homecinema/internal/api/response"
)

const healthTimeout = 2 * time.Second

// DBPinger checks database connectivity.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles the GET /health endpoint.
type HealthHandler struct {
	db      DBPinger
	version string
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db DBPinger, version string) *HealthHandler {
	return &HealthHandler{db: db, version: version}
}

type databaseStatus struct {
	Connected bool `json:"connected"`
}

type healthData struct {
	Status   string         `json:"status"`
	Version  string         `json:"version"`
	Database databaseStatus `json:"database"`
}

// ServeHTTP reports "healthy" when the database answers and "degraded"
// otherwise. It always responds 200 so the body can be read.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	data := healthData{Status: "healthy", Version: h.version, Database: databaseStatus{Connected: true}}
	if err := h.db.Ping(ctx); err != nil {
		slog.Warn("database ping failed", "error", err)
		data.Status = "degraded"
		data.Database.Connected = false
	}

	response.Success(w, http.StatusOK, data, requestID)
}
