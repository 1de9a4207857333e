package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/izposoja/internal/lending"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

// CatalogHandler registers the readers, books and copies the lending engine
// works with. Search and bulk import live elsewhere.
type CatalogHandler struct {
	DB     *sql.DB
	Engine *lending.Engine
}

type createReaderRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"omitempty,email"`
}

type readerActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type createBookRequest struct {
	Title  string `json:"title" validate:"required,max=500"`
	Author string `json:"author" validate:"max=200"`
	ISBN   string `json:"isbn" validate:"omitempty,isbn"`
}

type createCopyRequest struct {
	Barcode   string `json:"barcode" validate:"required,max=64"`
	Condition string `json:"condition" validate:"max=200"`
}

// CreateReader handles POST /api/readers.
func (h *CatalogHandler) CreateReader(w http.ResponseWriter, r *http.Request) {
	var req createReaderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	reader, err := store.CreateReader(r.Context(), h.DB, req.Name, req.Email)
	if err != nil {
		if store.IsUniqueViolation(err) {
			jsonError(w, http.StatusConflict, "email already registered")
			return
		}
		slog.Error("failed to create reader", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create reader")
		return
	}

	slog.Info("reader registered", "user", staffName(r), "reader", reader.ID)
	jsonResponse(w, http.StatusCreated, reader)
}

// GetReader handles GET /api/readers/{id}.
func (h *CatalogHandler) GetReader(w http.ResponseWriter, r *http.Request) {
	reader := h.reader(w, r)
	if reader == nil {
		return
	}
	jsonResponse(w, http.StatusOK, reader)
}

// SetReaderActive handles PUT /api/readers/{id}/active. Suspended readers
// cannot borrow or reserve.
func (h *CatalogHandler) SetReaderActive(w http.ResponseWriter, r *http.Request) {
	reader := h.reader(w, r)
	if reader == nil {
		return
	}

	var req readerActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetReaderActive(r.Context(), h.DB, reader.ID, *req.Active); err != nil {
		slog.Error("failed to update reader", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update reader")
		return
	}
	reader.Active = *req.Active

	slog.Info("reader status changed", "user", staffName(r), "reader", reader.ID, "active", reader.Active)
	jsonResponse(w, http.StatusOK, reader)
}

// DeleteReader handles DELETE /api/readers/{id}.
func (h *CatalogHandler) DeleteReader(w http.ResponseWriter, r *http.Request) {
	reader := h.reader(w, r)
	if reader == nil {
		return
	}

	if err := store.DeleteReader(r.Context(), h.DB, reader.ID); err != nil {
		jsonError(w, http.StatusConflict, err.Error())
		return
	}

	slog.Info("reader deleted", "user", staffName(r), "reader", reader.ID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "reader deleted"})
}

func (h *CatalogHandler) reader(w http.ResponseWriter, r *http.Request) *model.Reader {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	reader, err := store.GetReader(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get reader", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	if reader == nil || reader.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "reader not found")
		return nil
	}
	return reader
}

// CreateBook handles POST /api/books.
func (h *CatalogHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req createBookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := store.CreateBook(r.Context(), h.DB, req.Title, req.Author, req.ISBN)
	if err != nil {
		slog.Error("failed to create book", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create book")
		return
	}

	slog.Info("book added", "user", staffName(r), "book", book.ID, "title", book.Title)
	jsonResponse(w, http.StatusCreated, book)
}

// GetBook handles GET /api/books/{id}.
func (h *CatalogHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	book := h.book(w, r)
	if book == nil {
		return
	}
	jsonResponse(w, http.StatusOK, book)
}

// ListCopies handles GET /api/books/{id}/copies.
func (h *CatalogHandler) ListCopies(w http.ResponseWriter, r *http.Request) {
	book := h.book(w, r)
	if book == nil {
		return
	}

	copies, err := store.ListBookCopies(r.Context(), h.DB, book.ID)
	if err != nil {
		slog.Error("failed to list copies", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list copies")
		return
	}
	if copies == nil {
		copies = []model.Copy{}
	}
	jsonResponse(w, http.StatusOK, copies)
}

// CreateCopy handles POST /api/books/{id}/copies. A new copy is immediately
// offered to the book's reservation queue.
func (h *CatalogHandler) CreateCopy(w http.ResponseWriter, r *http.Request) {
	book := h.book(w, r)
	if book == nil {
		return
	}

	var req createCopyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	cp, err := store.CreateCopy(r.Context(), h.DB, book.ID, req.Barcode, req.Condition)
	if err != nil {
		if store.IsUniqueViolation(err) {
			jsonError(w, http.StatusConflict, "barcode already exists")
			return
		}
		slog.Error("failed to create copy", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create copy")
		return
	}

	slog.Info("copy added", "user", staffName(r), "copy", cp.ID, "book", book.ID, "barcode", cp.Barcode)

	// The copy stays stored if the offer fails.
	if offered, err := h.Engine.Reservations.Offer(r.Context(), book.ID); err != nil {
		slog.Error("offering new copy", "copy", cp.ID, "error", err)
	} else if offered != nil && *offered.CopyID == cp.ID {
		cp.Status = model.CopyReserved
	}
	jsonResponse(w, http.StatusCreated, cp)
}

// ArchiveCopy handles DELETE /api/copies/{id}. Copies on loan or on hold
// cannot be archived.
func (h *CatalogHandler) ArchiveCopy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	ok, err := store.ArchiveCopy(r.Context(), h.DB, id, time.Now().UTC())
	if err != nil {
		slog.Error("failed to archive copy", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to archive copy")
		return
	}
	if !ok {
		cp, err := h.Engine.Copies.Get(r.Context(), id)
		if err != nil {
			lendingError(w, r, err)
			return
		}
		if cp.Archived {
			jsonError(w, http.StatusConflict, "copy already archived")
			return
		}
		jsonError(w, http.StatusConflict, "copy cannot be archived while "+string(cp.Status))
		return
	}

	slog.Info("copy archived", "user", staffName(r), "copy", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "copy archived"})
}

func (h *CatalogHandler) book(w http.ResponseWriter, r *http.Request) *model.Book {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	book, err := store.GetBook(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get book", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	if book == nil || book.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "book not found")
		return nil
	}
	return book
}
