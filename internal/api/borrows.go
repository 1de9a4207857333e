package api

import (
	"net/http"
	"time"

	"github.com/erazemk/izposoja/internal/lending"
	"github.com/erazemk/izposoja/internal/model"
)

// BorrowsHandler exposes the borrow lifecycle and renewals.
type BorrowsHandler struct {
	Engine *lending.Engine
}

type createBorrowRequest struct {
	ReaderID   int64     `json:"reader_id" validate:"required,gt=0"`
	CopyID     int64     `json:"copy_id" validate:"required,gt=0"`
	BorrowDate time.Time `json:"borrow_date"`
	DueDate    time.Time `json:"due_date"`
	Notes      string    `json:"notes" validate:"max=1000"`
}

type returnBorrowRequest struct {
	Notes   string `json:"notes" validate:"max=1000"`
	Damaged bool   `json:"damaged"`
	Lost    bool   `json:"lost" validate:"excluded_with=Damaged"`
}

type updateBorrowRequest struct {
	Notes      *string    `json:"notes" validate:"omitempty,max=1000"`
	BorrowDate *time.Time `json:"borrow_date"`
	DueDate    *time.Time `json:"due_date"`
}

type renewRequest struct {
	NewDueDate time.Time `json:"new_due_date" validate:"required"`
	Reason     string    `json:"reason" validate:"max=500"`
}

type decideRenewalRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// Create handles POST /api/borrows.
func (h *BorrowsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBorrowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.Engine.Borrows.Create(r.Context(), lending.CreateBorrow{
		ReaderID:    req.ReaderID,
		CopyID:      req.CopyID,
		LibrarianID: staffID(r),
		BorrowDate:  req.BorrowDate,
		DueDate:     req.DueDate,
		Notes:       req.Notes,
	})
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, rec)
}

// Get handles GET /api/borrows/{id}.
func (h *BorrowsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.Engine.Borrows.Get(r.Context(), id)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, rec)
}

// Return handles POST /api/borrows/{id}/return.
func (h *BorrowsHandler) Return(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req returnBorrowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.Engine.Borrows.Return(r.Context(), id, lending.ReturnOptions{
		Notes:   req.Notes,
		Damaged: req.Damaged,
		Lost:    req.Lost,
	})
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, rec)
}

// Update handles PATCH /api/borrows/{id}.
func (h *BorrowsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req updateBorrowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.Engine.Borrows.Update(r.Context(), id, lending.BorrowUpdate{
		Notes:      req.Notes,
		BorrowDate: req.BorrowDate,
		DueDate:    req.DueDate,
	})
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, rec)
}

// ListForReader handles GET /api/readers/{id}/borrows. ?active=true limits
// the list to copies still out.
func (h *BorrowsHandler) ListForReader(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"

	recs, err := h.Engine.Borrows.ListForReader(r.Context(), id, activeOnly)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	if recs == nil {
		recs = []model.BorrowRecord{}
	}
	jsonResponse(w, http.StatusOK, recs)
}

// Renew handles POST /api/borrows/{id}/renew.
func (h *BorrowsHandler) Renew(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req renewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.Engine.Renewals.Renew(r.Context(), id, req.NewDueDate, staffID(r), req.Reason)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, rec)
}

// RequestRenewal handles POST /api/borrows/{id}/renewals.
func (h *BorrowsHandler) RequestRenewal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req renewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	ren, err := h.Engine.Renewals.Request(r.Context(), id, req.NewDueDate, staffID(r), req.Reason)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, ren)
}

// ListRenewals handles GET /api/borrows/{id}/renewals.
func (h *BorrowsHandler) ListRenewals(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	renewals, err := h.Engine.Renewals.List(r.Context(), id)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	if renewals == nil {
		renewals = []model.Renewal{}
	}
	jsonResponse(w, http.StatusOK, renewals)
}

// ApproveRenewal handles POST /api/renewals/{id}/approve.
func (h *BorrowsHandler) ApproveRenewal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.Engine.Renewals.Approve(r.Context(), id, staffID(r))
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, rec)
}

// RejectRenewal handles POST /api/renewals/{id}/reject.
func (h *BorrowsHandler) RejectRenewal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req decideRenewalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	ren, err := h.Engine.Renewals.Reject(r.Context(), id, staffID(r), req.Reason)
	if err != nil {
		lendingError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, ren)
}
