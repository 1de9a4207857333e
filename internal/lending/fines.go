package lending

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/izposoja/internal/imaging"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

// Fines assesses and collects penalties tied to borrow records. Amounts are
// exact decimals and a fine's status is always re-derived from its amounts.
type Fines struct {
	e *Engine
}

// Payment is one payment towards a fine.
type Payment struct {
	Amount decimal.Decimal
	Method string
	TxnID  string
}

// AssessOverdue creates an overdue fine of overdueDays times dailyRate. A zero
// dailyRate uses the policy rate. The borrow must be overdue or have been
// returned late, and must not already have an open overdue fine.
func (f *Fines) AssessOverdue(ctx context.Context, borrowID int64, overdueDays int, dailyRate decimal.Decimal) (*model.Fine, error) {
	if overdueDays <= 0 {
		return nil, badRequest("borrow", borrowID, "overdue days must be positive")
	}
	if dailyRate.Sign() < 0 {
		return nil, badRequest("borrow", borrowID, "daily rate must not be negative")
	}
	if dailyRate.IsZero() {
		dailyRate = f.e.policy.DailyFineRate
	}

	var fine *model.Fine
	err := f.e.run(ctx, "assess_overdue_fine", func(ctx context.Context, u *unit) error {
		b, err := loadBorrow(ctx, u, borrowID)
		if err != nil {
			return err
		}
		if !b.OverdueAt(u.now) && !b.ReturnedLate() {
			return &Error{Err: ErrBadRequest, Entity: "borrow", ID: borrowID, State: string(b.Status),
				Action: "assess overdue fine", Detail: "borrow is not overdue"}
		}

		open, err := store.OpenFine(ctx, u.tx, borrowID, model.FineOverdue)
		if err != nil {
			return err
		}
		if open != nil {
			return &Error{Err: ErrDuplicateFine, Entity: "fine", ID: open.ID, State: string(open.Status),
				Detail: fmt.Sprintf("borrow %d already has an open overdue fine", borrowID)}
		}

		fine, err = f.insert(ctx, u, b, &model.Fine{
			Kind:        model.FineOverdue,
			Amount:      dailyRate.Mul(decimal.NewFromInt(int64(overdueDays))),
			OverdueDays: overdueDays,
			DailyRate:   dailyRate,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	f.e.logger.Info("overdue fine assessed", "fine", fine.ID, "borrow", borrowID, "amount", fine.Amount.String())
	return fine, nil
}

// AssessCharge creates a DAMAGE or LOSS fine for a fixed amount.
func (f *Fines) AssessCharge(ctx context.Context, borrowID int64, kind model.FineKind, amount decimal.Decimal, notes string) (*model.Fine, error) {
	if kind != model.FineDamage && kind != model.FineLoss {
		return nil, badRequest("borrow", borrowID, "charge kind must be DAMAGE or LOSS, got %q", kind)
	}
	if amount.Sign() <= 0 {
		return nil, badRequest("borrow", borrowID, "charge amount must be positive")
	}

	var fine *model.Fine
	err := f.e.run(ctx, "assess_charge", func(ctx context.Context, u *unit) error {
		b, err := loadBorrow(ctx, u, borrowID)
		if err != nil {
			return err
		}
		fine, err = f.insert(ctx, u, b, &model.Fine{
			Kind:      kind,
			Amount:    amount,
			DailyRate: decimal.Zero,
			Notes:     notes,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	f.e.logger.Info("charge assessed", "fine", fine.ID, "borrow", borrowID, "kind", kind, "amount", amount.String())
	return fine, nil
}

// insert fills in the common fields of a new fine and stores it.
func (f *Fines) insert(ctx context.Context, u *unit, b *model.BorrowRecord, fine *model.Fine) (*model.Fine, error) {
	due := u.now.Add(f.e.policy.FineDuePeriod)
	fine.BorrowID = b.ID
	fine.PaidAmount = decimal.Zero
	fine.Status = model.DeriveFineStatus(fine)
	fine.DueDate = &due
	fine.CreatedAt = u.now
	fine.UpdatedAt = u.now

	id, err := store.InsertFine(ctx, u.tx, fine)
	if err != nil {
		return nil, err
	}
	fine.ID = id

	u.fines = append(u.fines, fine.Kind)
	u.notify(b.ReaderID, model.NoticeFineAssessed, map[string]any{
		"fine_id":   fine.ID,
		"borrow_id": b.ID,
		"kind":      fine.Kind,
		"amount":    fine.Amount.String(),
		"due_date":  due,
	})
	return fine, nil
}

// finalizeOverdue settles the overdue fine of a borrow returned late. An
// open overdue fine is recomputed over the full late period; if the borrow
// never had one, one is created at the policy rate. Paid or waived fines
// are left as they are.
func (f *Fines) finalizeOverdue(ctx context.Context, u *unit, b *model.BorrowRecord) error {
	days := overdueDays(b.DueDate, *b.ReturnDate)

	open, err := store.OpenFine(ctx, u.tx, b.ID, model.FineOverdue)
	if err != nil {
		return err
	}
	if open != nil {
		rate := open.DailyRate
		if rate.IsZero() {
			rate = f.e.policy.DailyFineRate
		}
		amount := rate.Mul(decimal.NewFromInt(int64(days)))
		if amount.LessThan(open.PaidAmount) {
			amount = open.PaidAmount
		}
		open.Amount = amount
		open.DailyRate = rate
		open.OverdueDays = days
		open.Status = model.DeriveFineStatus(open)
		open.UpdatedAt = u.now
		if err := store.SaveFine(ctx, u.tx, open); err != nil {
			return err
		}
		f.e.logger.Info("overdue fine finalized", "fine", open.ID, "borrow", b.ID, "days", days, "amount", amount.String())
		return nil
	}

	n, err := store.CountFines(ctx, u.tx, b.ID, model.FineOverdue)
	if err != nil {
		return err
	}
	if n > 0 || f.e.policy.DailyFineRate.Sign() <= 0 {
		return nil
	}

	rate := f.e.policy.DailyFineRate
	fine, err := f.insert(ctx, u, b, &model.Fine{
		Kind:        model.FineOverdue,
		Amount:      rate.Mul(decimal.NewFromInt(int64(days))),
		OverdueDays: days,
		DailyRate:   rate,
		Notes:       "assessed on return",
	})
	if err != nil {
		return err
	}
	f.e.logger.Info("overdue fine assessed on return", "fine", fine.ID, "borrow", b.ID, "days", days)
	return nil
}

// overdueDays counts started days between due and returned, at least one.
func overdueDays(due, returned time.Time) int {
	days := int(math.Ceil(returned.Sub(due).Hours() / 24))
	if days < 1 {
		days = 1
	}
	return days
}

// loadFine re-reads a fine inside u.
func loadFine(ctx context.Context, u *unit, id int64) (*model.Fine, error) {
	fine, err := store.GetFine(ctx, u.tx, id)
	if err != nil {
		return nil, err
	}
	if fine == nil {
		return nil, notFound("fine", id)
	}
	return fine, nil
}

// Pay applies a payment. A payment that would take the paid amount above the
// fine amount is rejected whole, which includes any payment on a fine that
// is already PAID. Waived fines take no payments.
func (f *Fines) Pay(ctx context.Context, fineID int64, p Payment) (*model.Fine, error) {
	if p.Amount.Sign() <= 0 {
		return nil, badRequest("fine", fineID, "payment amount must be positive")
	}
	method := strings.TrimSpace(p.Method)
	if method == "" {
		return nil, badRequest("fine", fineID, "payment method is required")
	}

	var fine *model.Fine
	err := f.e.run(ctx, "pay_fine", func(ctx context.Context, u *unit) error {
		var err error
		fine, err = loadFine(ctx, u, fineID)
		if err != nil {
			return err
		}
		switch fine.Status {
		case model.FineWaived:
			return invalidState("fine", fineID, fine.Status, "pay")
		case model.FinePaid:
			return &Error{Err: ErrOverpaymentRejected, Entity: "fine", ID: fineID, State: string(fine.Status),
				Detail: "fine is already paid in full"}
		}

		paid := fine.PaidAmount.Add(p.Amount)
		if paid.GreaterThan(fine.Amount) {
			return &Error{Err: ErrOverpaymentRejected, Entity: "fine", ID: fineID, State: string(fine.Status),
				Detail: fmt.Sprintf("payment %s exceeds outstanding %s", p.Amount.String(), fine.Outstanding().String())}
		}

		fine.PaidAmount = paid
		fine.Status = model.DeriveFineStatus(fine)
		fine.PaymentMethod = method
		fine.TxnID = p.TxnID
		fine.PaymentDate = &u.now
		fine.UpdatedAt = u.now
		if err := store.SaveFine(ctx, u.tx, fine); err != nil {
			return err
		}
		_, err = store.InsertFinePayment(ctx, u.tx, &model.FinePayment{
			FineID: fineID,
			Amount: p.Amount,
			Method: method,
			TxnID:  p.TxnID,
			PaidAt: u.now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	f.e.logger.Info("fine payment", "fine", fineID, "amount", p.Amount.String(), "status", fine.Status)
	return fine, nil
}

// Waive forgives a fine that has not been fully paid.
func (f *Fines) Waive(ctx context.Context, fineID int64, notes string) (*model.Fine, error) {
	var fine *model.Fine
	err := f.e.run(ctx, "waive_fine", func(ctx context.Context, u *unit) error {
		var err error
		fine, err = loadFine(ctx, u, fineID)
		if err != nil {
			return err
		}
		if !fine.Status.Open() {
			return invalidState("fine", fineID, fine.Status, "waive")
		}
		fine.Status = model.FineWaived
		fine.Notes = appendNote(fine.Notes, notes)
		fine.UpdatedAt = u.now
		return store.SaveFine(ctx, u.tx, fine)
	})
	if err != nil {
		return nil, err
	}

	f.e.logger.Info("fine waived", "fine", fineID)
	return fine, nil
}

// AttachEvidence stores a photo documenting a damage or loss charge. The
// image is validated and re-encoded before it is stored.
func (f *Fines) AttachEvidence(ctx context.Context, fineID int64, r io.Reader) (*model.Fine, error) {
	img, err := imaging.Normalize(r)
	if err != nil {
		return nil, badRequest("fine", fineID, "%v", err)
	}

	var fine *model.Fine
	err = f.e.run(ctx, "attach_fine_evidence", func(ctx context.Context, u *unit) error {
		var err error
		fine, err = loadFine(ctx, u, fineID)
		if err != nil {
			return err
		}
		if fine.Kind == model.FineOverdue {
			return badRequest("fine", fineID, "evidence can only be attached to damage or loss charges")
		}
		fine.EvidenceMime = img.MIME
		return store.SetFineEvidence(ctx, u.tx, fineID, img.Data, img.MIME)
	})
	if err != nil {
		return nil, err
	}
	return fine, nil
}

// Evidence returns a fine's evidence photo and its MIME type.
func (f *Fines) Evidence(ctx context.Context, fineID int64) ([]byte, string, error) {
	data, mime, err := store.GetFineEvidence(ctx, f.e.db, fineID)
	if err != nil {
		return nil, "", err
	}
	if data == nil {
		return nil, "", notFound("fine evidence", fineID)
	}
	return data, mime, nil
}

// Get returns a fine.
func (f *Fines) Get(ctx context.Context, id int64) (*model.Fine, error) {
	fine, err := store.GetFine(ctx, f.e.db, id)
	if err != nil {
		return nil, err
	}
	if fine == nil {
		return nil, notFound("fine", id)
	}
	return fine, nil
}

// ListForBorrow returns every fine attached to a borrow.
func (f *Fines) ListForBorrow(ctx context.Context, borrowID int64) ([]model.Fine, error) {
	if _, err := f.e.Borrows.Get(ctx, borrowID); err != nil {
		return nil, err
	}
	return store.ListBorrowFines(ctx, f.e.db, borrowID)
}

// Payments returns the payment ledger of a fine.
func (f *Fines) Payments(ctx context.Context, fineID int64) ([]model.FinePayment, error) {
	if _, err := f.Get(ctx, fineID); err != nil {
		return nil, err
	}
	return store.ListFinePayments(ctx, f.e.db, fineID)
}

// Outstanding returns a reader's open fines and the total still owed.
func (f *Fines) Outstanding(ctx context.Context, readerID int64) (decimal.Decimal, []model.Fine, error) {
	if err := f.e.mustReader(ctx, readerID, false); err != nil {
		return decimal.Zero, nil, err
	}
	fines, err := store.ListReaderOpenFines(ctx, f.e.db, readerID)
	if err != nil {
		return decimal.Zero, nil, err
	}
	total := decimal.Zero
	for i := range fines {
		total = total.Add(fines[i].Outstanding())
	}
	return total, fines, nil
}
