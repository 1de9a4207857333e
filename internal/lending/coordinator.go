package lending

import (
	"context"
	"slices"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Purpose is what a copy is acquired for.
type Purpose string

// Acquisition purposes.
const (
	PurposeBorrow  Purpose = "borrow"
	PurposeReserve Purpose = "reserve"
)

func (p Purpose) target() (model.CopyStatus, string, bool) {
	switch p {
	case PurposeBorrow:
		return model.CopyBorrowed, model.ReasonBorrow, true
	case PurposeReserve:
		return model.CopyReserved, model.ReasonHold, true
	}
	return "", "", false
}

// offerer hands a freed copy to the reservation queue.
type offerer interface {
	OfferNext(ctx context.Context, u *unit, bookID, copyID int64) (*model.Reservation, error)
}

// Coordinator owns physical copy status. No other component writes it.
type Coordinator struct {
	e       *Engine
	offerer offerer
}

// CopyCheck compares a copy's stored status with the status derived from the
// records that reference it.
type CopyCheck struct {
	CopyID     int64            `json:"copy_id"`
	Stored     model.CopyStatus `json:"stored"`
	Derived    model.CopyStatus `json:"derived"`
	Consistent bool             `json:"consistent"`
}

// move changes a copy's status from one of from to to, records the event and
// queues the transition metric. failWith is returned, with the copy's current
// state, when the copy is not in an acceptable state.
func (c *Coordinator) move(ctx context.Context, u *unit, copyID int64, from []model.CopyStatus, to model.CopyStatus, reason, reference string, failWith error) (*model.Copy, error) {
	cp, err := store.GetCopy(ctx, u.tx, copyID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, notFound("copy", copyID)
	}

	refuse := func() error {
		state := string(cp.Status)
		if cp.Archived {
			state = "archived"
		}
		return &Error{Err: failWith, Entity: "copy", ID: copyID, State: state, Action: reason}
	}
	if cp.Archived || !slices.Contains(from, cp.Status) {
		return nil, refuse()
	}

	ok, err := store.CompareAndSetCopyStatus(ctx, u.tx, copyID, from, to, u.now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, refuse()
	}

	payload, err := json.MarshalToString(map[string]any{"version": cp.Version + 1, "book_id": cp.BookID})
	if err != nil {
		return nil, err
	}
	err = store.InsertCopyEvent(ctx, u.tx, &model.CopyEvent{
		ID:         uuid.NewString(),
		CopyID:     copyID,
		From:       cp.Status,
		To:         to,
		Reason:     reason,
		Reference:  reference,
		Payload:    payload,
		OccurredAt: u.now,
	})
	if err != nil {
		return nil, err
	}

	u.transitions = append(u.transitions, transition{from: cp.Status, to: to})
	prev := cp.Status
	cp.Status = to
	cp.Version++
	cp.UpdatedAt = u.now
	c.e.logger.Debug("copy status changed", "copy", copyID, "from", prev, "to", to, "reason", reason)
	return cp, nil
}

// Acquire atomically takes an AVAILABLE copy for purpose within u. Any other
// state, or an archived copy, fails with ErrCopyUnavailable.
func (c *Coordinator) Acquire(ctx context.Context, u *unit, copyID int64, purpose Purpose, reference string) (*model.Copy, error) {
	to, reason, ok := purpose.target()
	if !ok {
		return nil, badRequest("copy", copyID, "unknown acquisition purpose %q", purpose)
	}
	return c.move(ctx, u, copyID, []model.CopyStatus{model.CopyAvailable}, to, reason, reference, ErrCopyUnavailable)
}

// AcquireCopy runs Acquire as its own unit.
func (c *Coordinator) AcquireCopy(ctx context.Context, copyID int64, purpose Purpose) (*model.Copy, error) {
	var cp *model.Copy
	err := c.e.run(ctx, "acquire_copy", func(ctx context.Context, u *unit) error {
		var err error
		cp, err = c.Acquire(ctx, u, copyID, purpose, "")
		return err
	})
	return cp, err
}

// Release returns a BORROWED copy to AVAILABLE and immediately offers it to
// the book's reservation queue. It returns the reservation the copy was
// offered to, if any. A copy still referenced by an active borrow cannot be
// released.
func (c *Coordinator) Release(ctx context.Context, u *unit, copyID int64, reference string) (*model.Reservation, error) {
	n, err := store.CountActiveBorrowsForCopy(ctx, u.tx, copyID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, &Error{Err: ErrInvalidState, Entity: "copy", ID: copyID, State: "on loan", Action: model.ReasonReturn,
			Detail: "return the borrow record instead"}
	}

	cp, err := c.move(ctx, u, copyID, []model.CopyStatus{model.CopyBorrowed}, model.CopyAvailable,
		model.ReasonReturn, reference, ErrInvalidState)
	if err != nil {
		return nil, err
	}
	return c.offerer.OfferNext(ctx, u, cp.BookID, copyID)
}

// ReleaseCopy runs Release as its own unit.
func (c *Coordinator) ReleaseCopy(ctx context.Context, copyID int64) (*model.Reservation, error) {
	var offered *model.Reservation
	err := c.e.run(ctx, "release_copy", func(ctx context.Context, u *unit) error {
		var err error
		offered, err = c.Release(ctx, u, copyID, "")
		return err
	})
	return offered, err
}

// retire moves a BORROWED copy straight out of service, for copies returned
// damaged or reported lost. The copy is not offered to the queue.
func (c *Coordinator) retire(ctx context.Context, u *unit, copyID int64, to model.CopyStatus, reference string) error {
	_, err := c.move(ctx, u, copyID, []model.CopyStatus{model.CopyBorrowed}, to, model.ReasonOutOfService, reference, ErrInvalidState)
	return err
}

// ReleaseHold frees a RESERVED copy whose reservation ended without pickup and
// offers it to the next reservation.
func (c *Coordinator) ReleaseHold(ctx context.Context, u *unit, copyID int64, reference string) (*model.Reservation, error) {
	cp, err := c.move(ctx, u, copyID, []model.CopyStatus{model.CopyReserved}, model.CopyAvailable,
		model.ReasonHoldReleased, reference, ErrInvalidState)
	if err != nil {
		return nil, err
	}
	return c.offerer.OfferNext(ctx, u, cp.BookID, copyID)
}

// ConvertHold hands a RESERVED copy to the reader it was held for.
func (c *Coordinator) ConvertHold(ctx context.Context, u *unit, copyID int64, reference string) (*model.Copy, error) {
	return c.move(ctx, u, copyID, []model.CopyStatus{model.CopyReserved}, model.CopyBorrowed,
		model.ReasonHoldConverted, reference, ErrCopyUnavailable)
}

// PeekStatus returns a copy's current status.
func (c *Coordinator) PeekStatus(ctx context.Context, copyID int64) (model.CopyStatus, error) {
	cp, err := store.GetCopy(ctx, c.e.db, copyID)
	if err != nil {
		return "", err
	}
	if cp == nil {
		return "", notFound("copy", copyID)
	}
	return cp.Status, nil
}

// Get returns a copy.
func (c *Coordinator) Get(ctx context.Context, copyID int64) (*model.Copy, error) {
	cp, err := store.GetCopy(ctx, c.e.db, copyID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, notFound("copy", copyID)
	}
	return cp, nil
}

// History returns the status change log of a copy.
func (c *Coordinator) History(ctx context.Context, copyID int64) ([]model.CopyEvent, error) {
	if _, err := c.Get(ctx, copyID); err != nil {
		return nil, err
	}
	return store.ListCopyEvents(ctx, c.e.db, copyID)
}

// SetOutOfService takes an AVAILABLE copy out of circulation as DAMAGED, LOST
// or MAINTENANCE. condition, if set, replaces the recorded condition.
func (c *Coordinator) SetOutOfService(ctx context.Context, copyID int64, status model.CopyStatus, condition string) (*model.Copy, error) {
	if !status.OutOfService() {
		return nil, badRequest("copy", copyID, "%s is not an out-of-service status", status)
	}

	var cp *model.Copy
	err := c.e.run(ctx, "copy_out_of_service", func(ctx context.Context, u *unit) error {
		var err error
		cp, err = c.move(ctx, u, copyID, []model.CopyStatus{model.CopyAvailable}, status,
			model.ReasonOutOfService, "", ErrCopyUnavailable)
		if err != nil {
			return err
		}
		if condition != "" {
			cp.Condition = condition
			return store.UpdateCopyCondition(ctx, u.tx, copyID, condition, u.now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.e.logger.Info("copy taken out of service", "copy", copyID, "status", status)
	return cp, nil
}

// ReturnToService puts a DAMAGED, LOST or MAINTENANCE copy back into
// circulation and offers it to the queue.
func (c *Coordinator) ReturnToService(ctx context.Context, copyID int64, condition string) (*model.Copy, *model.Reservation, error) {
	var (
		cp      *model.Copy
		offered *model.Reservation
	)
	err := c.e.run(ctx, "copy_return_to_service", func(ctx context.Context, u *unit) error {
		var err error
		cp, err = c.move(ctx, u, copyID,
			[]model.CopyStatus{model.CopyDamaged, model.CopyLost, model.CopyMaintenance},
			model.CopyAvailable, model.ReasonReturnToService, "", ErrInvalidState)
		if err != nil {
			return err
		}
		if condition != "" {
			cp.Condition = condition
			if err := store.UpdateCopyCondition(ctx, u.tx, copyID, condition, u.now); err != nil {
				return err
			}
		}
		offered, err = c.offerer.OfferNext(ctx, u, cp.BookID, copyID)
		if err != nil {
			return err
		}
		if offered != nil {
			cp, err = store.GetCopy(ctx, u.tx, copyID)
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	c.e.logger.Info("copy returned to service", "copy", copyID)
	return cp, offered, nil
}

// Verify derives the status a copy should have from its active borrow and
// held reservation and compares it with the stored status.
func (c *Coordinator) Verify(ctx context.Context, copyID int64) (*CopyCheck, error) {
	cp, err := c.Get(ctx, copyID)
	if err != nil {
		return nil, err
	}
	active, err := store.CountActiveBorrowsForCopy(ctx, c.e.db, copyID)
	if err != nil {
		return nil, err
	}
	held, err := store.HeldReservationForCopy(ctx, c.e.db, copyID)
	if err != nil {
		return nil, err
	}

	derived := model.DeriveCopyStatus(cp.Status, active > 0, held != nil)
	check := &CopyCheck{
		CopyID:     copyID,
		Stored:     cp.Status,
		Derived:    derived,
		Consistent: derived == cp.Status && active <= 1,
	}
	if !check.Consistent {
		c.e.logger.Warn("copy status drift", "copy", copyID, "stored", cp.Status, "derived", derived, "active_borrows", active)
	}
	return check, nil
}
