package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/erazemk/izposoja/internal/imaging"
	"github.com/erazemk/izposoja/internal/lending"
	"github.com/erazemk/izposoja/internal/model"
)

// FinesHandler exposes fine assessment, payment and evidence photos.
type FinesHandler struct {
	Engine *lending.Engine
}

type assessOverdueRequest struct {
	OverdueDays int             `json:"overdue_days" validate:"gte=1"`
	DailyRate   decimal.Decimal `json:"daily_rate"`
}

type assessChargeRequest struct {
	Kind   model.FineKind  `json:"kind" validate:"required,oneof=DAMAGE LOSS"`
	Amount decimal.Decimal `json:"amount"`
	Notes  string          `json:"notes" validate:"max=1000"`
}

type payFineRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" validate:"required,max=50"`
	TxnID  string          `json:"txn_id" validate:"max=100"`
}

type waiveFineRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

type outstandingResponse struct {
	Total decimal.Decimal `json:"total"`
	Fines []model.Fine    `json:"fines"`
}

// AssessOverdue handles POST /api/borrows/{id}/fines/overdue.
func (h *FinesHandler) AssessOverdue(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req assessOverdueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	fine, err := h.Engine.Fines.AssessOverdue(r.Context(), id, req.OverdueDays, req.DailyRate)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, fine)
}

// AssessCharge handles POST /api/borrows/{id}/fines/charge.
func (h *FinesHandler) AssessCharge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req assessChargeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	fine, err := h.Engine.Fines.AssessCharge(r.Context(), id, req.Kind, req.Amount, req.Notes)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, fine)
}

// ListForBorrow handles GET /api/borrows/{id}/fines.
func (h *FinesHandler) ListForBorrow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	fines, err := h.Engine.Fines.ListForBorrow(r.Context(), id)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	if fines == nil {
		fines = []model.Fine{}
	}
	jsonResponse(w, http.StatusOK, fines)
}

// Get handles GET /api/fines/{id}.
func (h *FinesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	fine, err := h.Engine.Fines.Get(r.Context(), id)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, fine)
}

// Pay handles POST /api/fines/{id}/payments.
func (h *FinesHandler) Pay(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req payFineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	fine, err := h.Engine.Fines.Pay(r.Context(), id, lending.Payment{
		Amount: req.Amount,
		Method: req.Method,
		TxnID:  req.TxnID,
	})
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, fine)
}

// Payments handles GET /api/fines/{id}/payments.
func (h *FinesHandler) Payments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	payments, err := h.Engine.Fines.Payments(r.Context(), id)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	if payments == nil {
		payments = []model.FinePayment{}
	}
	jsonResponse(w, http.StatusOK, payments)
}

// Waive handles POST /api/fines/{id}/waive.
func (h *FinesHandler) Waive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req waiveFineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	fine, err := h.Engine.Fines.Waive(r.Context(), id, req.Notes)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, fine)
}

// UploadEvidence handles PUT /api/fines/{id}/evidence. The photo is sent as
// the multipart field "image".
func (h *FinesHandler) UploadEvidence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Leave room for the multipart framing around the file.
	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxInputBytes+64<<10)
	file, _, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, http.StatusRequestEntityTooLarge, imaging.ErrTooLarge.Error())
			return
		}
		jsonError(w, http.StatusBadRequest, "missing image field")
		return
	}
	defer file.Close()

	fine, err := h.Engine.Fines.AttachEvidence(r.Context(), id, file)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, fine)
}

// Evidence handles GET /api/fines/{id}/evidence.
func (h *FinesHandler) Evidence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, mime, err := h.Engine.Fines.Evidence(r.Context(), id)
	if err != nil {
		lendingError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Outstanding handles GET /api/readers/{id}/fines.
func (h *FinesHandler) Outstanding(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	total, fines, err := h.Engine.Fines.Outstanding(r.Context(), id)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	if fines == nil {
		fines = []model.Fine{}
	}
	jsonResponse(w, http.StatusOK, outstandingResponse{Total: total, Fines: fines})
}
