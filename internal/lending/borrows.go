package lending

import (
	"context"
	"strings"
	"time"

	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

// Borrows is the borrow record state machine:
// BORROWED -> RENEWED* -> (OVERDUE) -> RETURNED.
type Borrows struct {
	e *Engine
}

// CreateBorrow describes a loan. A zero BorrowDate means now; a zero DueDate
// means BorrowDate plus the loan period.
type CreateBorrow struct {
	ReaderID    int64
	CopyID      int64
	LibrarianID *int64
	BorrowDate  time.Time
	DueDate     time.Time
	Notes       string
}

// ReturnOptions describes how a copy came back. Damaged and Lost send the copy
// out of service instead of back to the shelf.
type ReturnOptions struct {
	Notes   string
	Damaged bool
	Lost    bool
}

// BorrowUpdate holds the editable fields of an active borrow. Nil fields are
// left unchanged.
type BorrowUpdate struct {
	Notes      *string
	BorrowDate *time.Time
	DueDate    *time.Time
}

// Create lends a copy to a reader. The copy must be AVAILABLE, or RESERVED
// and held for this reader, in which case the reservation is fulfilled by the
// same unit.
func (b *Borrows) Create(ctx context.Context, req CreateBorrow) (*model.BorrowRecord, error) {
	if err := b.e.mustReader(ctx, req.ReaderID, true); err != nil {
		return nil, err
	}
	if err := b.e.mustCopy(ctx, req.CopyID); err != nil {
		return nil, err
	}

	var rec *model.BorrowRecord
	err := b.e.run(ctx, "create_borrow", func(ctx context.Context, u *unit) error {
		borrowDate := req.BorrowDate.UTC()
		if req.BorrowDate.IsZero() {
			borrowDate = u.now
		}
		dueDate := req.DueDate.UTC()
		if req.DueDate.IsZero() {
			dueDate = borrowDate.Add(b.e.policy.LoanPeriod)
		}
		if !dueDate.After(borrowDate) {
			return badRequest("borrow", 0, "due date must be after borrow date")
		}

		held, err := b.heldFor(ctx, u, req.CopyID, req.ReaderID)
		if err != nil {
			return err
		}

		rec = &model.BorrowRecord{
			ReaderID:    req.ReaderID,
			CopyID:      req.CopyID,
			LibrarianID: req.LibrarianID,
			BorrowDate:  borrowDate,
			DueDate:     dueDate,
			Status:      model.BorrowBorrowed,
			Notes:       req.Notes,
			CreatedAt:   u.now,
			UpdatedAt:   u.now,
		}

		if held != nil {
			if _, err := b.e.Copies.ConvertHold(ctx, u, req.CopyID, ref("reservation", held.ID)); err != nil {
				return err
			}
			rec.ReservationID = &held.ID
		} else if _, err := b.e.Copies.Acquire(ctx, u, req.CopyID, PurposeBorrow, ""); err != nil {
			return err
		}

		rec.ID, err = insertBorrow(ctx, u, rec)
		if err != nil {
			return err
		}

		if held != nil {
			held.Status = model.ReservationFulfilled
			held.FulfillmentDate = &u.now
			held.FulfilledBy = req.LibrarianID
			held.BorrowID = &rec.ID
			return store.SaveReservation(ctx, u.tx, held)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.e.logger.Info("borrow created", "borrow", rec.ID, "reader", rec.ReaderID, "copy", rec.CopyID,
		"due", rec.DueDate.Format(time.DateOnly))
	return rec, nil
}

// heldFor returns the pending reservation of readerID that copyID is held
// for, or nil if the copy is not held for that reader.
func (b *Borrows) heldFor(ctx context.Context, u *unit, copyID, readerID int64) (*model.Reservation, error) {
	cp, err := store.GetCopy(ctx, u.tx, copyID)
	if err != nil {
		return nil, err
	}
	if cp == nil || cp.Status != model.CopyReserved {
		return nil, nil
	}
	res, err := store.HeldReservationForCopy(ctx, u.tx, copyID)
	if err != nil {
		return nil, err
	}
	if res == nil || res.ReaderID != readerID {
		return nil, nil
	}
	return res, nil
}

// insertBorrow stores a new active record. The partial unique index on
// active copy_id turns a second active borrow into ErrConflict.
func insertBorrow(ctx context.Context, u *unit, rec *model.BorrowRecord) (int64, error) {
	id, err := store.InsertBorrow(ctx, u.tx, rec)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return 0, &Error{Err: ErrConflict, Entity: "copy", ID: rec.CopyID,
				Detail: "copy already has an active borrow"}
		}
		return 0, err
	}
	return id, nil
}

// Return closes a borrow. The copy goes back to the shelf and is offered to
// the reservation queue, unless it came back damaged or was lost. A borrow
// returned overdue has its overdue fine finalized from the due date to the
// return date.
func (b *Borrows) Return(ctx context.Context, id int64, opts ReturnOptions) (*model.BorrowRecord, error) {
	if opts.Damaged && opts.Lost {
		return nil, badRequest("borrow", id, "a copy cannot be both damaged and lost")
	}

	var (
		rec     *model.BorrowRecord
		offered *model.Reservation
	)
	err := b.e.run(ctx, "return_borrow", func(ctx context.Context, u *unit) error {
		var err error
		rec, err = store.GetBorrow(ctx, u.tx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return notFound("borrow", id)
		}
		if rec.Status == model.BorrowReturned {
			return &Error{Err: ErrAlreadyReturned, Entity: "borrow", ID: id, State: string(rec.Status), Action: "return"}
		}

		late := rec.OverdueAt(u.now)
		rec.ReturnDate = &u.now
		rec.Status = model.BorrowReturned
		rec.Notes = appendNote(rec.Notes, opts.Notes)
		rec.UpdatedAt = u.now
		if err := store.SaveBorrow(ctx, u.tx, rec); err != nil {
			return err
		}

		reference := ref("borrow", id)
		switch {
		case opts.Damaged:
			err = b.e.Copies.retire(ctx, u, rec.CopyID, model.CopyDamaged, reference)
		case opts.Lost:
			err = b.e.Copies.retire(ctx, u, rec.CopyID, model.CopyLost, reference)
		default:
			offered, err = b.e.Copies.Release(ctx, u, rec.CopyID, reference)
		}
		if err != nil {
			return err
		}

		if late {
			return b.e.Fines.finalizeOverdue(ctx, u, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.e.logger.Info("borrow returned", "borrow", id, "copy", rec.CopyID, "damaged", opts.Damaged,
		"lost", opts.Lost, "offered_to", reservationID(offered))
	return rec, nil
}

// Update edits notes and dates of an active borrow. Returned records are
// immutable. Dates can only change while the borrow is not overdue.
func (b *Borrows) Update(ctx context.Context, id int64, upd BorrowUpdate) (*model.BorrowRecord, error) {
	var rec *model.BorrowRecord
	err := b.e.run(ctx, "update_borrow", func(ctx context.Context, u *unit) error {
		var err error
		rec, err = store.GetBorrow(ctx, u.tx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return notFound("borrow", id)
		}
		if rec.Status == model.BorrowReturned {
			return invalidState("borrow", id, rec.Status, "update")
		}

		if upd.BorrowDate != nil || upd.DueDate != nil {
			if rec.Status == model.BorrowOverdue {
				return invalidState("borrow", id, rec.Status, "change dates")
			}
			if upd.BorrowDate != nil {
				rec.BorrowDate = upd.BorrowDate.UTC()
			}
			if upd.DueDate != nil {
				rec.DueDate = upd.DueDate.UTC()
			}
			if !rec.DueDate.After(rec.BorrowDate) {
				return badRequest("borrow", id, "due date must be after borrow date")
			}
		}
		if upd.Notes != nil {
			rec.Notes = *upd.Notes
		}

		rec.UpdatedAt = u.now
		return store.SaveBorrow(ctx, u.tx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// MarkOverdue flips a BORROWED or RENEWED record past its due date to
// OVERDUE and notifies the reader. It reports whether the record changed; an
// already OVERDUE record is left alone. No fine is created.
func (b *Borrows) MarkOverdue(ctx context.Context, id int64) (*model.BorrowRecord, bool, error) {
	var (
		rec     *model.BorrowRecord
		changed bool
	)
	err := b.e.run(ctx, "mark_overdue", func(ctx context.Context, u *unit) error {
		var err error
		changed = false
		rec, err = store.GetBorrow(ctx, u.tx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return notFound("borrow", id)
		}

		switch rec.Status {
		case model.BorrowOverdue:
			return nil
		case model.BorrowReturned:
			return invalidState("borrow", id, rec.Status, "mark overdue")
		}
		if !rec.DueDate.Before(u.now) {
			return badRequest("borrow", id, "not yet due (due %s)", rec.DueDate.Format(time.RFC3339))
		}

		rec.Status = model.BorrowOverdue
		rec.UpdatedAt = u.now
		if err := store.SaveBorrow(ctx, u.tx, rec); err != nil {
			return err
		}
		changed = true

		u.notify(rec.ReaderID, model.NoticeBorrowOverdue, map[string]any{
			"borrow_id": rec.ID,
			"copy_id":   rec.CopyID,
			"due_date":  rec.DueDate,
		})
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		b.e.logger.Info("borrow overdue", "borrow", id, "reader", rec.ReaderID)
	}
	return rec, changed, nil
}

// Get returns a borrow record.
func (b *Borrows) Get(ctx context.Context, id int64) (*model.BorrowRecord, error) {
	rec, err := store.GetBorrow(ctx, b.e.db, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, notFound("borrow", id)
	}
	return rec, nil
}

// ListForReader returns a reader's borrows, newest first.
func (b *Borrows) ListForReader(ctx context.Context, readerID int64, activeOnly bool) ([]model.BorrowRecord, error) {
	if err := b.e.mustReader(ctx, readerID, false); err != nil {
		return nil, err
	}
	return store.ListReaderBorrows(ctx, b.e.db, readerID, activeOnly)
}

func appendNote(existing, note string) string {
	note = strings.TrimSpace(note)
	switch {
	case note == "":
		return existing
	case existing == "":
		return note
	}
	return existing + "\n" + note
}

func reservationID(r *model.Reservation) int64 {
	if r == nil {
		return 0
	}
	return r.ID
}

func idOrZero(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
