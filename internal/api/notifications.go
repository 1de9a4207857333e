package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

// NotificationsHandler exposes reader inboxes filled by the lending engine.
type NotificationsHandler struct {
	DB *sql.DB
}

// List handles GET /api/readers/{id}/notifications.
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	notes, err := store.ListNotifications(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to list notifications", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if notes == nil {
		notes = []model.Notification{}
	}
	jsonResponse(w, http.StatusOK, notes)
}

// MarkRead handles POST /api/readers/{id}/notifications/{nid}/read.
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	readerID, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := pathID(r, "nid")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	ok, err := store.MarkNotificationRead(r.Context(), h.DB, readerID, id, time.Now().UTC())
	if err != nil {
		slog.Error("failed to mark notification read", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		jsonError(w, http.StatusNotFound, "unread notification not found")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "notification marked read"})
}
