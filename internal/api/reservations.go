package api

import (
	"net/http"
	"time"

	"github.com/erazemk/izposoja/internal/lending"
	"github.com/erazemk/izposoja/internal/model"
)

// ReservationsHandler exposes the reservation queue.
type ReservationsHandler struct {
	Engine *lending.Engine
}

type reserveRequest struct {
	ReaderID        int64     `json:"reader_id" validate:"required,gt=0"`
	BookID          int64     `json:"book_id" validate:"required,gt=0"`
	CopyID          *int64    `json:"copy_id" validate:"omitempty,gt=0"`
	ReservationDate time.Time `json:"reservation_date"`
	ExpiryDate      time.Time `json:"expiry_date"`
	Priority        *int      `json:"priority" validate:"omitempty,gte=1"`
	Notes           string    `json:"notes" validate:"max=1000"`
}

type fulfillRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// Reserve handles POST /api/reservations.
func (h *ReservationsHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.Engine.Reservations.Reserve(r.Context(), lending.ReserveRequest{
		ReaderID:        req.ReaderID,
		BookID:          req.BookID,
		CopyID:          req.CopyID,
		ReservationDate: req.ReservationDate,
		ExpiryDate:      req.ExpiryDate,
		Priority:        req.Priority,
		Notes:           req.Notes,
	})
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, res)
}

// Get handles GET /api/reservations/{id}.
func (h *ReservationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.Engine.Reservations.Get(r.Context(), id)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// Fulfill handles POST /api/reservations/{id}/fulfill.
func (h *ReservationsHandler) Fulfill(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req fulfillRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.Engine.Reservations.Fulfill(r.Context(), id, staffID(r), req.Notes)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// Cancel handles POST /api/reservations/{id}/cancel.
func (h *ReservationsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req cancelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.Engine.Reservations.Cancel(r.Context(), id, staffID(r), req.Reason)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// Queue handles GET /api/books/{id}/queue.
func (h *ReservationsHandler) Queue(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	queue, err := h.Engine.Reservations.Queue(r.Context(), id)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	if queue == nil {
		queue = []model.Reservation{}
	}
	jsonResponse(w, http.StatusOK, queue)
}
