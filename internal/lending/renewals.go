package lending

import (
	"context"
	"fmt"
	"time"

	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

// Renewals extends due dates, either immediately or through a
// request/approve workflow. Both paths go through checkRenewable.
type Renewals struct {
	e *Engine
}

// checkRenewable is the single owner of the renewal rules.
func checkRenewable(b *model.BorrowRecord, newDue, now time.Time) error {
	switch {
	case b.Status == model.BorrowReturned:
		return invalidState("borrow", b.ID, b.Status, "renew")
	case b.OverdueAt(now):
		return &Error{Err: ErrBadRequest, Entity: "borrow", ID: b.ID, State: string(model.BorrowOverdue), Action: "renew",
			Detail: "overdue items must be returned or fined"}
	case b.RenewalCount >= model.MaxRenewals:
		return &Error{Err: ErrRenewalLimitExceeded, Entity: "borrow", ID: b.ID,
			Detail: fmt.Sprintf("already renewed %d times", b.RenewalCount)}
	case !newDue.After(b.DueDate):
		return &Error{Err: ErrInvalidRenewalDate, Entity: "borrow", ID: b.ID,
			Detail: fmt.Sprintf("new due date must be after %s", b.DueDate.Format(time.RFC3339))}
	}
	return nil
}

// loadBorrow re-reads a borrow inside u.
func loadBorrow(ctx context.Context, u *unit, id int64) (*model.BorrowRecord, error) {
	b, err := store.GetBorrow(ctx, u.tx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, notFound("borrow", id)
	}
	return b, nil
}

// extend applies an approved renewal to its borrow.
func (r *Renewals) extend(ctx context.Context, u *unit, b *model.BorrowRecord, newDue time.Time) error {
	b.RenewalCount++
	b.DueDate = newDue
	b.Status = model.BorrowRenewed
	b.UpdatedAt = u.now
	if err := store.SaveBorrow(ctx, u.tx, b); err != nil {
		return err
	}
	u.notify(b.ReaderID, model.NoticeBorrowRenewed, map[string]any{
		"borrow_id":     b.ID,
		"due_date":      b.DueDate,
		"renewal_count": b.RenewalCount,
	})
	return nil
}

// Renew extends a borrow's due date at once and logs an APPROVED renewal.
func (r *Renewals) Renew(ctx context.Context, borrowID int64, newDue time.Time, librarianID *int64, reason string) (*model.BorrowRecord, error) {
	newDue = newDue.UTC()

	var b *model.BorrowRecord
	err := r.e.run(ctx, "renew", func(ctx context.Context, u *unit) error {
		var err error
		b, err = loadBorrow(ctx, u, borrowID)
		if err != nil {
			return err
		}
		if err := checkRenewable(b, newDue, u.now); err != nil {
			return err
		}

		_, err = store.InsertRenewal(ctx, u.tx, &model.Renewal{
			BorrowID:        b.ID,
			PreviousDueDate: b.DueDate,
			NewDueDate:      newDue,
			RenewalNumber:   b.RenewalCount + 1,
			Status:          model.RenewalApproved,
			RequestedBy:     librarianID,
			DecidedBy:       librarianID,
			DecidedAt:       &u.now,
			Reason:          reason,
			CreatedAt:       u.now,
		})
		if err != nil {
			return err
		}
		return r.extend(ctx, u, b, newDue)
	})
	if err != nil {
		return nil, err
	}

	r.e.logger.Info("borrow renewed", "borrow", borrowID, "renewal", b.RenewalCount,
		"due", b.DueDate.Format(time.DateOnly))
	return b, nil
}

// Request records a PENDING renewal for later approval. The borrow is not
// changed. Only one request may be pending per borrow.
func (r *Renewals) Request(ctx context.Context, borrowID int64, newDue time.Time, requestedBy *int64, reason string) (*model.Renewal, error) {
	newDue = newDue.UTC()

	var ren *model.Renewal
	err := r.e.run(ctx, "request_renewal", func(ctx context.Context, u *unit) error {
		b, err := loadBorrow(ctx, u, borrowID)
		if err != nil {
			return err
		}
		if err := checkRenewable(b, newDue, u.now); err != nil {
			return err
		}

		pending, err := store.PendingRenewal(ctx, u.tx, borrowID)
		if err != nil {
			return err
		}
		if pending != nil {
			return &Error{Err: ErrConflict, Entity: "renewal", ID: pending.ID,
				Detail: "borrow already has a pending renewal request"}
		}

		ren = &model.Renewal{
			BorrowID:        b.ID,
			PreviousDueDate: b.DueDate,
			NewDueDate:      newDue,
			RenewalNumber:   b.RenewalCount + 1,
			Status:          model.RenewalPending,
			RequestedBy:     requestedBy,
			Reason:          reason,
			CreatedAt:       u.now,
		}
		ren.ID, err = store.InsertRenewal(ctx, u.tx, ren)
		if err != nil && store.IsUniqueViolation(err) {
			return &Error{Err: ErrConflict, Entity: "renewal", Detail: "borrow already has a pending renewal request"}
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	r.e.logger.Info("renewal requested", "renewal", ren.ID, "borrow", borrowID)
	return ren, nil
}

// pendingRenewal re-reads a renewal inside u and checks it is undecided.
func pendingRenewal(ctx context.Context, u *unit, id int64, action string) (*model.Renewal, error) {
	ren, err := store.GetRenewal(ctx, u.tx, id)
	if err != nil {
		return nil, err
	}
	if ren == nil {
		return nil, notFound("renewal", id)
	}
	if ren.Status != model.RenewalPending {
		return nil, invalidState("renewal", id, ren.Status, action)
	}
	return ren, nil
}

// Approve applies a pending renewal. Eligibility is checked again against
// the borrow's current state; if it fails the request stays pending.
func (r *Renewals) Approve(ctx context.Context, renewalID int64, librarianID *int64) (*model.BorrowRecord, error) {
	var b *model.BorrowRecord
	err := r.e.run(ctx, "approve_renewal", func(ctx context.Context, u *unit) error {
		ren, err := pendingRenewal(ctx, u, renewalID, "approve")
		if err != nil {
			return err
		}
		b, err = loadBorrow(ctx, u, ren.BorrowID)
		if err != nil {
			return err
		}
		if err := checkRenewable(b, ren.NewDueDate, u.now); err != nil {
			return err
		}

		ok, err := store.DecideRenewal(ctx, u.tx, renewalID, model.RenewalApproved, b.RenewalCount+1,
			librarianID, u.now, "")
		if err != nil {
			return err
		}
		if !ok {
			return invalidState("renewal", renewalID, "decided", "approve")
		}
		return r.extend(ctx, u, b, ren.NewDueDate)
	})
	if err != nil {
		return nil, err
	}

	r.e.logger.Info("renewal approved", "renewal", renewalID, "borrow", b.ID)
	return b, nil
}

// Reject declines a pending renewal. The borrow is left untouched.
func (r *Renewals) Reject(ctx context.Context, renewalID int64, librarianID *int64, reason string) (*model.Renewal, error) {
	var ren *model.Renewal
	err := r.e.run(ctx, "reject_renewal", func(ctx context.Context, u *unit) error {
		var err error
		ren, err = pendingRenewal(ctx, u, renewalID, "reject")
		if err != nil {
			return err
		}
		ok, err := store.DecideRenewal(ctx, u.tx, renewalID, model.RenewalRejected, ren.RenewalNumber,
			librarianID, u.now, reason)
		if err != nil {
			return err
		}
		if !ok {
			return invalidState("renewal", renewalID, "decided", "reject")
		}
		ren, err = store.GetRenewal(ctx, u.tx, renewalID)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.e.logger.Info("renewal rejected", "renewal", renewalID)
	return ren, nil
}

// Get returns a renewal.
func (r *Renewals) Get(ctx context.Context, id int64) (*model.Renewal, error) {
	ren, err := store.GetRenewal(ctx, r.e.db, id)
	if err != nil {
		return nil, err
	}
	if ren == nil {
		return nil, notFound("renewal", id)
	}
	return ren, nil
}

// List returns the renewal log of a borrow.
func (r *Renewals) List(ctx context.Context, borrowID int64) ([]model.Renewal, error) {
	if _, err := r.e.Borrows.Get(ctx, borrowID); err != nil {
		return nil, err
	}
	return store.ListRenewals(ctx, r.e.db, borrowID)
}
