package lending

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/izposoja/internal/model"
)

// overdueBorrow returns a borrow that is days past due.
func (f *fixture) overdueBorrow(reader int64, days int) *model.BorrowRecord {
	f.t.Helper()
	_, copies := f.book("Alamut", 1)
	rec := f.borrow(reader, copies[0])
	f.clock.Advance(14*day + time.Duration(days)*day)
	return rec
}

// Scenario: a fine is paid off in two parts, then a further payment bounces.
func TestPayFineInParts(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	rec := f.overdueBorrow(reader, 10)

	fine, err := f.engine.Fines.AssessOverdue(f.ctx, rec.ID, 10, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, "50000", fine.Amount.String())
	assert.Equal(t, model.FineUnpaid, fine.Status)
	require.NotNil(t, fine.DueDate)
	assert.True(t, fine.DueDate.Equal(f.clock.Now().Add(30*day)))
	assert.Contains(t, f.notes.kinds(reader), model.NoticeFineAssessed)

	fine, err = f.engine.Fines.Pay(f.ctx, fine.ID, Payment{Amount: decimal.NewFromInt(20000), Method: "cash"})
	require.NoError(t, err)
	assert.Equal(t, model.FinePartiallyPaid, fine.Status)
	assert.Equal(t, "30000", fine.Outstanding().String())

	fine, err = f.engine.Fines.Pay(f.ctx, fine.ID, Payment{Amount: decimal.NewFromInt(30000), Method: "card", TxnID: "T-889"})
	require.NoError(t, err)
	assert.Equal(t, model.FinePaid, fine.Status)
	assert.Equal(t, "T-889", fine.TxnID)

	_, err = f.engine.Fines.Pay(f.ctx, fine.ID, Payment{Amount: decimal.NewFromInt(1), Method: "cash"})
	assert.ErrorIs(t, err, ErrOverpaymentRejected)

	payments, err := f.engine.Fines.Payments(f.ctx, fine.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "20000", payments[0].Amount.String())
	assert.Equal(t, "card", payments[1].Method)
}

func TestOverpaymentIsRejectedWhole(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	rec := f.overdueBorrow(reader, 2)

	fine, err := f.engine.Fines.AssessOverdue(f.ctx, rec.ID, 2, decimal.Zero)
	require.NoError(t, err)

	_, err = f.engine.Fines.Pay(f.ctx, fine.ID, Payment{Amount: decimal.NewFromInt(10001), Method: "cash"})
	assert.ErrorIs(t, err, ErrOverpaymentRejected)

	got, err := f.engine.Fines.Get(f.ctx, fine.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.IsZero())
	assert.Equal(t, model.FineUnpaid, got.Status)

	payments, err := f.engine.Fines.Payments(f.ctx, fine.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestPayValidation(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	rec := f.overdueBorrow(reader, 1)

	fine, err := f.engine.Fines.AssessOverdue(f.ctx, rec.ID, 1, decimal.Zero)
	require.NoError(t, err)

	_, err = f.engine.Fines.Pay(f.ctx, fine.ID, Payment{Amount: decimal.Zero, Method: "cash"})
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = f.engine.Fines.Pay(f.ctx, fine.ID, Payment{Amount: decimal.NewFromInt(-5), Method: "cash"})
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = f.engine.Fines.Pay(f.ctx, fine.ID, Payment{Amount: decimal.NewFromInt(5), Method: "  "})
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = f.engine.Fines.Pay(f.ctx, 999, Payment{Amount: decimal.NewFromInt(5), Method: "cash"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFractionalAmounts(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	rec := f.overdueBorrow(reader, 3)

	fine, err := f.engine.Fines.AssessOverdue(f.ctx, rec.ID, 3, decimal.RequireFromString("0.10"))
	require.NoError(t, err)
	assert.True(t, fine.Amount.Equal(decimal.RequireFromString("0.3")))

	for i := 0; i < 3; i++ {
		fine, err = f.engine.Fines.Pay(f.ctx, fine.ID, Payment{Amount: decimal.RequireFromString("0.1"), Method: "cash"})
		require.NoError(t, err)
	}
	assert.Equal(t, model.FinePaid, fine.Status)
	assert.True(t, fine.Outstanding().IsZero())
}

func TestAssessOverdueRules(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	rec := f.overdueBorrow(reader, 1)

	_, err := f.engine.Fines.AssessOverdue(f.ctx, rec.ID, 0, decimal.Zero)
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = f.engine.Fines.AssessOverdue(f.ctx, rec.ID, 1, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = f.engine.Fines.AssessOverdue(f.ctx, 999, 1, decimal.Zero)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.Fines.AssessOverdue(f.ctx, rec.ID, 1, decimal.Zero)
	require.NoError(t, err)

	_, err = f.engine.Fines.AssessOverdue(f.ctx, rec.ID, 1, decimal.Zero)
	assert.ErrorIs(t, err, ErrDuplicateFine)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestWaiveFine(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	rec := f.overdueBorrow(reader, 4)

	fine, err := f.engine.Fines.AssessOverdue(f.ctx, rec.ID, 4, decimal.Zero)
	require.NoError(t, err)
	_, err = f.engine.Fines.Pay(f.ctx, fine.ID, Payment{Amount: decimal.NewFromInt(5000), Method: "cash"})
	require.NoError(t, err)

	waived, err := f.engine.Fines.Waive(f.ctx, fine.ID, "hardship")
	require.NoError(t, err)
	assert.Equal(t, model.FineWaived, waived.Status)
	assert.Contains(t, waived.Notes, "hardship")

	_, err = f.engine.Fines.Waive(f.ctx, fine.ID, "")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.engine.Fines.Pay(f.ctx, fine.ID, Payment{Amount: decimal.NewFromInt(1), Method: "cash"})
	assert.ErrorIs(t, err, ErrInvalidState)

	// A waived overdue fine is not open, so another may be assessed.
	_, err = f.engine.Fines.AssessOverdue(f.ctx, rec.ID, 4, decimal.Zero)
	assert.NoError(t, err)
}

func TestWaivePaidFine(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	rec := f.overdueBorrow(reader, 1)

	fine, err := f.engine.Fines.AssessOverdue(f.ctx, rec.ID, 1, decimal.Zero)
	require.NoError(t, err)
	_, err = f.engine.Fines.Pay(f.ctx, fine.ID, Payment{Amount: fine.Amount, Method: "cash"})
	require.NoError(t, err)

	_, err = f.engine.Fines.Waive(f.ctx, fine.ID, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestChargesAndOutstanding(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	_, copies := f.book("Alamut", 1)
	rec := f.borrow(reader, copies[0])

	_, err := f.engine.Fines.AssessCharge(f.ctx, rec.ID, model.FineOverdue, decimal.NewFromInt(100), "")
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = f.engine.Fines.AssessCharge(f.ctx, rec.ID, model.FineDamage, decimal.Zero, "")
	assert.ErrorIs(t, err, ErrBadRequest)

	damage, err := f.engine.Fines.AssessCharge(f.ctx, rec.ID, model.FineDamage, decimal.NewFromInt(12000), "torn cover")
	require.NoError(t, err)
	assert.Equal(t, model.FineUnpaid, damage.Status)

	// Charges are not limited to one per kind.
	_, err = f.engine.Fines.AssessCharge(f.ctx, rec.ID, model.FineDamage, decimal.NewFromInt(3000), "coffee stain")
	require.NoError(t, err)

	_, err = f.engine.Fines.Pay(f.ctx, damage.ID, Payment{Amount: decimal.NewFromInt(2000), Method: "cash"})
	require.NoError(t, err)

	total, open, err := f.engine.Fines.Outstanding(f.ctx, reader)
	require.NoError(t, err)
	assert.Len(t, open, 2)
	assert.Equal(t, "13000", total.String())

	all, err := f.engine.Fines.ListForBorrow(f.ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, _, err = f.engine.Fines.Outstanding(f.ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFineEvidence(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	_, copies := f.book("Alamut", 1)
	rec := f.borrow(reader, copies[0])

	damage, err := f.engine.Fines.AssessCharge(f.ctx, rec.ID, model.FineDamage, decimal.NewFromInt(5000), "")
	require.NoError(t, err)

	_, _, err = f.engine.Fines.Evidence(f.ctx, damage.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	img.Set(3, 3, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	got, err := f.engine.Fines.AttachEvidence(f.ctx, damage.ID, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.NotEmpty(t, got.EvidenceMime)

	data, mime, err := f.engine.Fines.Evidence(f.ctx, damage.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, got.EvidenceMime, mime)

	_, err = f.engine.Fines.AttachEvidence(f.ctx, damage.ID, bytes.NewReader([]byte("not an image")))
	assert.ErrorIs(t, err, ErrBadRequest)

	f.clock.Advance(15 * day)
	overdue, err := f.engine.Fines.AssessOverdue(f.ctx, rec.ID, 1, decimal.Zero)
	require.NoError(t, err)
	_, err = f.engine.Fines.AttachEvidence(f.ctx, overdue.ID, bytes.NewReader(buf.Bytes()))
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestReturnAssessesFineWhenNoneExists(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	rec := f.overdueBorrow(reader, 3)

	_, err := f.engine.Borrows.Return(f.ctx, rec.ID, ReturnOptions{})
	require.NoError(t, err)

	fines, err := f.engine.Fines.ListForBorrow(f.ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, fines, 1)
	assert.Equal(t, 3, fines[0].OverdueDays)
	assert.Equal(t, "15000", fines[0].Amount.String())
	assert.Equal(t, "assessed on return", fines[0].Notes)

	// Returned late, so an overdue fine can still be assessed after the fact
	// once the automatic one is settled.
	_, err = f.engine.Fines.Waive(f.ctx, fines[0].ID, "")
	require.NoError(t, err)
	_, err = f.engine.Fines.AssessOverdue(f.ctx, rec.ID, 3, decimal.Zero)
	assert.NoError(t, err)
}
