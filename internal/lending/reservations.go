package lending

import (
	"context"
	"errors"
	"time"

	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

// Reservations is the per-book priority queue of pending reservations.
type Reservations struct {
	e *Engine
}

// ReserveRequest describes a new reservation. Zero dates default to now and
// now plus the policy's reservation period. A nil Priority joins the back of
// the queue; an explicit one lets staff place a reader ahead.
type ReserveRequest struct {
	ReaderID        int64
	BookID          int64
	CopyID          *int64
	ReservationDate time.Time
	ExpiryDate      time.Time
	Priority        *int
	Notes           string
}

// Reserve queues a reader for a book. If a matching copy is AVAILABLE it is
// offered straight away.
func (r *Reservations) Reserve(ctx context.Context, req ReserveRequest) (*model.Reservation, error) {
	if err := r.e.mustReader(ctx, req.ReaderID, true); err != nil {
		return nil, err
	}
	if err := r.e.mustBook(ctx, req.BookID); err != nil {
		return nil, err
	}
	if req.CopyID != nil {
		if err := r.e.mustCopy(ctx, *req.CopyID); err != nil {
			return nil, err
		}
	}
	if req.Priority != nil && *req.Priority < 1 {
		return nil, badRequest("reservation", 0, "priority must be at least 1")
	}

	var res *model.Reservation
	err := r.e.run(ctx, "reserve", func(ctx context.Context, u *unit) error {
		resDate := req.ReservationDate.UTC()
		if req.ReservationDate.IsZero() {
			resDate = u.now
		}
		expiry := req.ExpiryDate.UTC()
		if req.ExpiryDate.IsZero() {
			expiry = resDate.Add(r.e.policy.ReservationPeriod)
		}
		if !expiry.After(resDate) {
			return badRequest("reservation", 0, "expiry date must be after reservation date")
		}

		if req.CopyID != nil {
			cp, err := store.GetCopy(ctx, u.tx, *req.CopyID)
			if err != nil {
				return err
			}
			if cp == nil {
				return notFound("copy", *req.CopyID)
			}
			if cp.BookID != req.BookID {
				return badRequest("reservation", 0, "copy %d is not a copy of book %d", cp.ID, req.BookID)
			}
		}

		existing, err := store.PendingReservationFor(ctx, u.tx, req.ReaderID, req.BookID)
		if err != nil {
			return err
		}
		if existing != nil {
			return &Error{Err: ErrDuplicateReservation, Entity: "reservation", ID: existing.ID,
				Detail: "reader already has a pending reservation for this book"}
		}

		// The write lock is held from BEGIN, so no other unit can take the
		// same priority between this read and the insert.
		priority := 0
		if req.Priority != nil {
			priority = *req.Priority
		} else {
			last, err := store.MaxPendingPriority(ctx, u.tx, req.BookID)
			if err != nil {
				return err
			}
			priority = last + 1
		}

		res = &model.Reservation{
			ReaderID:        req.ReaderID,
			BookID:          req.BookID,
			CopyID:          req.CopyID,
			ReservationDate: resDate,
			ExpiryDate:      expiry,
			Priority:        priority,
			Status:          model.ReservationPending,
			Notes:           req.Notes,
		}
		res.ID, err = store.InsertReservation(ctx, u.tx, res)
		if err != nil {
			if store.IsUniqueViolation(err) {
				return &Error{Err: ErrDuplicateReservation, Entity: "reservation",
					Detail: "reader already has a pending reservation for this book"}
			}
			return err
		}

		if err := r.offerAvailable(ctx, u, req.BookID, req.CopyID); err != nil {
			return err
		}
		res, err = store.GetReservation(ctx, u.tx, res.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.e.logger.Info("reservation created", "reservation", res.ID, "reader", res.ReaderID, "book", res.BookID,
		"priority", res.Priority, "held", res.Held())
	return res, nil
}

// offerAvailable offers a free copy of the book, or the targeted copy, to the
// head of the queue.
func (r *Reservations) offerAvailable(ctx context.Context, u *unit, bookID int64, target *int64) error {
	var copyID int64
	if target != nil {
		cp, err := store.GetCopy(ctx, u.tx, *target)
		if err != nil {
			return err
		}
		if cp != nil && cp.Status == model.CopyAvailable && !cp.Archived {
			copyID = cp.ID
		}
	} else {
		var err error
		copyID, err = store.FirstAvailableCopy(ctx, u.tx, bookID)
		if err != nil {
			return err
		}
	}
	if copyID == 0 {
		return nil
	}
	_, err := r.OfferNext(ctx, u, bookID, copyID)
	return err
}

// OfferNext holds copyID for the first pending, unexpired reservation of the
// book that can take it. The reservation stays PENDING, now linked to the
// copy, until a librarian fulfills it. It returns nil if no reservation
// takes the copy.
func (r *Reservations) OfferNext(ctx context.Context, u *unit, bookID, copyID int64) (*model.Reservation, error) {
	res, err := store.NextOfferable(ctx, u.tx, bookID, copyID, u.now)
	if err != nil || res == nil {
		return nil, err
	}

	if _, err := r.e.Copies.Acquire(ctx, u, copyID, PurposeReserve, ref("reservation", res.ID)); err != nil {
		if errors.Is(err, ErrCopyUnavailable) {
			return nil, nil
		}
		return nil, err
	}

	res.CopyID = &copyID
	res.ReadyAt = &u.now
	if err := store.SaveReservation(ctx, u.tx, res); err != nil {
		return nil, err
	}

	u.notify(res.ReaderID, model.NoticeReservationReady, map[string]any{
		"reservation_id": res.ID,
		"book_id":        bookID,
		"copy_id":        copyID,
		"expiry_date":    res.ExpiryDate,
	})
	r.e.logger.Info("copy held for reservation", "reservation", res.ID, "copy", copyID, "reader", res.ReaderID)
	return res, nil
}

// Offer holds a free copy of the book for the head of its queue, if both
// exist. It is used when copies are added to the catalog.
func (r *Reservations) Offer(ctx context.Context, bookID int64) (*model.Reservation, error) {
	if err := r.e.mustBook(ctx, bookID); err != nil {
		return nil, err
	}

	var offered *model.Reservation
	err := r.e.run(ctx, "offer_copy", func(ctx context.Context, u *unit) error {
		offered = nil
		copyID, err := store.FirstAvailableCopy(ctx, u.tx, bookID)
		if err != nil || copyID == 0 {
			return err
		}
		offered, err = r.OfferNext(ctx, u, bookID, copyID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return offered, nil
}

// Fulfill completes a pending reservation. If a copy is held for it, the
// copy is handed to the reader as a new borrow due after the loan period.
func (r *Reservations) Fulfill(ctx context.Context, id int64, librarianID *int64, notes string) (*model.Reservation, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.e.mustReader(ctx, current.ReaderID, true); err != nil {
		return nil, err
	}

	var res *model.Reservation
	err = r.e.run(ctx, "fulfill_reservation", func(ctx context.Context, u *unit) error {
		var err error
		res, err = r.pending(ctx, u, id, "fulfill")
		if err != nil {
			return err
		}

		if res.Held() {
			if _, err := r.e.Copies.ConvertHold(ctx, u, *res.CopyID, ref("reservation", id)); err != nil {
				return err
			}
			b := &model.BorrowRecord{
				ReaderID:      res.ReaderID,
				CopyID:        *res.CopyID,
				LibrarianID:   librarianID,
				ReservationID: &res.ID,
				BorrowDate:    u.now,
				DueDate:       u.now.Add(r.e.policy.LoanPeriod),
				Status:        model.BorrowBorrowed,
				CreatedAt:     u.now,
				UpdatedAt:     u.now,
			}
			borrowID, err := insertBorrow(ctx, u, b)
			if err != nil {
				return err
			}
			res.BorrowID = &borrowID
		}

		res.Status = model.ReservationFulfilled
		res.FulfillmentDate = &u.now
		res.FulfilledBy = librarianID
		if notes != "" {
			res.Notes = notes
		}
		return store.SaveReservation(ctx, u.tx, res)
	})
	if err != nil {
		return nil, err
	}

	r.e.logger.Info("reservation fulfilled", "reservation", id, "borrow", idOrZero(res.BorrowID))
	return res, nil
}

// Cancel ends a pending reservation on a librarian's or reader's request.
// A held copy is released and offered to the next reservation.
func (r *Reservations) Cancel(ctx context.Context, id int64, librarianID *int64, reason string) (*model.Reservation, error) {
	var res *model.Reservation
	err := r.e.run(ctx, "cancel_reservation", func(ctx context.Context, u *unit) error {
		var err error
		res, err = r.pending(ctx, u, id, "cancel")
		if err != nil {
			return err
		}
		res.CancelledBy = librarianID
		res.CancellationReason = reason
		return r.close(ctx, u, res, model.ReservationCancelled)
	})
	if err != nil {
		return nil, err
	}

	r.e.logger.Info("reservation cancelled", "reservation", id)
	return res, nil
}

// Expire ends a pending reservation on behalf of the system.
func (r *Reservations) Expire(ctx context.Context, id int64) (*model.Reservation, error) {
	var res *model.Reservation
	err := r.e.run(ctx, "expire_reservation", func(ctx context.Context, u *unit) error {
		var err error
		res, err = r.pending(ctx, u, id, "expire")
		if err != nil {
			return err
		}
		res.CancellationReason = "expired on " + res.ExpiryDate.Format(time.DateOnly)
		if err := r.close(ctx, u, res, model.ReservationExpired); err != nil {
			return err
		}
		u.notify(res.ReaderID, model.NoticeReservationExpired, map[string]any{
			"reservation_id": res.ID,
			"book_id":        res.BookID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.e.logger.Info("reservation expired", "reservation", id)
	return res, nil
}

// close moves a pending reservation to a terminal status and frees its held
// copy, if any.
func (r *Reservations) close(ctx context.Context, u *unit, res *model.Reservation, status model.ReservationStatus) error {
	held := res.Held()
	res.Status = status
	if err := store.SaveReservation(ctx, u.tx, res); err != nil {
		return err
	}
	if !held {
		return nil
	}
	_, err := r.e.Copies.ReleaseHold(ctx, u, *res.CopyID, ref("reservation", res.ID))
	return err
}

// pending re-reads a reservation inside u and checks it is still PENDING.
func (r *Reservations) pending(ctx context.Context, u *unit, id int64, action string) (*model.Reservation, error) {
	res, err := store.GetReservation(ctx, u.tx, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, notFound("reservation", id)
	}
	if res.Status.Terminal() {
		return nil, invalidState("reservation", id, res.Status, action)
	}
	return res, nil
}

// Get returns a reservation.
func (r *Reservations) Get(ctx context.Context, id int64) (*model.Reservation, error) {
	res, err := store.GetReservation(ctx, r.e.db, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, notFound("reservation", id)
	}
	return res, nil
}

// Queue returns a book's pending reservations in serving order.
func (r *Reservations) Queue(ctx context.Context, bookID int64) ([]model.Reservation, error) {
	if err := r.e.mustBook(ctx, bookID); err != nil {
		return nil, err
	}
	return store.ListQueue(ctx, r.e.db, bookID)
}
