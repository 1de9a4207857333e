package api

import (
	"net/http"

	"github.com/erazemk/izposoja/internal/lending"
	"github.com/erazemk/izposoja/internal/model"
)

// CopiesHandler exposes copy availability.
type CopiesHandler struct {
	Engine *lending.Engine
}

type outOfServiceRequest struct {
	Status    model.CopyStatus `json:"status" validate:"required,oneof=DAMAGED LOST MAINTENANCE"`
	Condition string           `json:"condition" validate:"max=200"`
}

type returnToServiceRequest struct {
	Condition string `json:"condition" validate:"max=200"`
}

type returnToServiceResponse struct {
	Copy      *model.Copy        `json:"copy"`
	OfferedTo *model.Reservation `json:"offered_to,omitempty"`
}

// Get handles GET /api/copies/{id}.
func (h *CopiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	cp, err := h.Engine.Copies.Get(r.Context(), id)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, cp)
}

// History handles GET /api/copies/{id}/history.
func (h *CopiesHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := h.Engine.Copies.History(r.Context(), id)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	if events == nil {
		events = []model.CopyEvent{}
	}
	jsonResponse(w, http.StatusOK, events)
}

// Verify handles GET /api/copies/{id}/verify.
func (h *CopiesHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	check, err := h.Engine.Copies.Verify(r.Context(), id)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, check)
}

// OutOfService handles POST /api/copies/{id}/out-of-service.
func (h *CopiesHandler) OutOfService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req outOfServiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	cp, err := h.Engine.Copies.SetOutOfService(r.Context(), id, req.Status, req.Condition)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, cp)
}

// ReturnToService handles POST /api/copies/{id}/return-to-service.
func (h *CopiesHandler) ReturnToService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req returnToServiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	cp, offered, err := h.Engine.Copies.ReturnToService(r.Context(), id, req.Condition)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, returnToServiceResponse{Copy: cp, OfferedTo: offered})
}
