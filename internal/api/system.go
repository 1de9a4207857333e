package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/izposoja/internal/lending"
)

// SystemHandler serves health checks and operator actions.
type SystemHandler struct {
	DB     *sql.DB
	Engine *lending.Engine
}

// Health handles GET /healthz.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.PingContext(r.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		jsonError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Reconcile handles POST /api/reconcile. It runs one reconciler pass
// immediately instead of waiting for the next scheduled one.
func (h *SystemHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	result, err := h.Engine.Reconciler.Tick(r.Context())
	if err != nil {
		lendingError(w, r, err)
		return
	}
	slog.Info("manual reconcile", "user", staffName(r), "overdue", result.Overdue, "expired", result.Expired, "failed", result.Failed)
	jsonResponse(w, http.StatusOK, result)
}
