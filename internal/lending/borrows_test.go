package lending

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

func TestCreateBorrow(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	librarian := f.librarian("mojca")
	_, copies := f.book("Alamut", 2)
	now := f.clock.Now()

	rec, err := f.engine.Borrows.Create(f.ctx, CreateBorrow{
		ReaderID:    reader,
		CopyID:      copies[0],
		LibrarianID: librarian,
		Notes:       "first loan",
	})
	require.NoError(t, err)

	assert.Equal(t, model.BorrowBorrowed, rec.Status)
	assert.True(t, rec.BorrowDate.Equal(now))
	assert.True(t, rec.DueDate.Equal(now.Add(14*day)))
	assert.Zero(t, rec.RenewalCount)
	assert.Equal(t, model.CopyBorrowed, f.status(copies[0]))
	assert.Equal(t, model.CopyAvailable, f.status(copies[1]))

	got, err := f.engine.Borrows.Get(f.ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, *librarian, *got.LibrarianID)
	assert.Equal(t, "first loan", got.Notes)
	assert.True(t, got.DueDate.Equal(rec.DueDate))
}

func TestCreateBorrowValidatesDates(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	_, copies := f.book("Alamut", 1)
	now := f.clock.Now()

	for _, due := range []time.Time{now, now.Add(-day)} {
		_, err := f.engine.Borrows.Create(f.ctx, CreateBorrow{ReaderID: reader, CopyID: copies[0], BorrowDate: now, DueDate: due})
		assert.ErrorIs(t, err, ErrBadRequest)
	}
	assert.Equal(t, model.CopyAvailable, f.status(copies[0]))
}

func TestCreateBorrowOnTakenCopy(t *testing.T) {
	f := newFixture(t)
	ana, bor := f.reader("Ana"), f.reader("Bor")
	_, copies := f.book("Alamut", 1)
	f.borrow(ana, copies[0])

	_, err := f.engine.Borrows.Create(f.ctx, CreateBorrow{ReaderID: bor, CopyID: copies[0]})
	assert.ErrorIs(t, err, ErrCopyUnavailable)
}

func TestConcurrentBorrowsOfOneCopy(t *testing.T) {
	f := newFixture(t)
	_, copies := f.book("Alamut", 1)

	const n = 8
	readers := make([]int64, n)
	for i := range readers {
		readers[i] = f.reader("reader")
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		others []error
	)
	for _, r := range readers {
		wg.Add(1)
		go func(reader int64) {
			defer wg.Done()
			_, err := f.engine.Borrows.Create(f.ctx, CreateBorrow{ReaderID: reader, CopyID: copies[0]})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if !errors.Is(err, ErrCopyUnavailable) {
				others = append(others, err)
			}
		}(r)
	}
	wg.Wait()

	assert.Empty(t, others)
	assert.Equal(t, 1, wins)
	n2, err := store.CountActiveBorrowsForCopy(f.ctx, f.db, copies[0])
	require.NoError(t, err)
	assert.Equal(t, 1, n2)
	f.assertConsistent(copies[0])
}

func TestReturnBorrow(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	_, copies := f.book("Alamut", 1)
	rec := f.borrow(reader, copies[0])

	f.clock.Advance(3 * day)
	returned, err := f.engine.Borrows.Return(f.ctx, rec.ID, ReturnOptions{Notes: "spine creased"})
	require.NoError(t, err)

	assert.Equal(t, model.BorrowReturned, returned.Status)
	require.NotNil(t, returned.ReturnDate)
	assert.True(t, returned.ReturnDate.Equal(f.clock.Now()))
	assert.Equal(t, "spine creased", returned.Notes)
	assert.Equal(t, model.CopyAvailable, f.status(copies[0]))

	// Returned on time: no fine.
	fines, err := f.engine.Fines.ListForBorrow(f.ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, fines)

	_, err = f.engine.Borrows.Return(f.ctx, rec.ID, ReturnOptions{})
	assert.ErrorIs(t, err, ErrAlreadyReturned)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.engine.Borrows.Return(f.ctx, 999, ReturnOptions{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReturnDamagedCopyIsNotOffered(t *testing.T) {
	f := newFixture(t)
	ana, bor := f.reader("Ana"), f.reader("Bor")
	book, copies := f.book("Alamut", 1)
	rec := f.borrow(ana, copies[0])

	res, err := f.engine.Reservations.Reserve(f.ctx, ReserveRequest{ReaderID: bor, BookID: book})
	require.NoError(t, err)

	_, err = f.engine.Borrows.Return(f.ctx, rec.ID, ReturnOptions{Damaged: true})
	require.NoError(t, err)

	assert.Equal(t, model.CopyDamaged, f.status(copies[0]))
	got, err := f.engine.Reservations.Get(f.ctx, res.ID)
	require.NoError(t, err)
	assert.False(t, got.Held())
	f.assertConsistent(copies[0])

	_, err = f.engine.Borrows.Return(f.ctx, rec.ID, ReturnOptions{Damaged: true, Lost: true})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestReturnLostCopy(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	_, copies := f.book("Alamut", 1)
	rec := f.borrow(reader, copies[0])

	_, err := f.engine.Borrows.Return(f.ctx, rec.ID, ReturnOptions{Lost: true, Notes: "reported lost"})
	require.NoError(t, err)
	assert.Equal(t, model.CopyLost, f.status(copies[0]))
}

func TestUpdateBorrow(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	_, copies := f.book("Alamut", 1)
	rec := f.borrow(reader, copies[0])

	notes := "kept at front desk"
	due := rec.DueDate.Add(2 * day)
	got, err := f.engine.Borrows.Update(f.ctx, rec.ID, BorrowUpdate{Notes: &notes, DueDate: &due})
	require.NoError(t, err)
	assert.Equal(t, notes, got.Notes)
	assert.True(t, got.DueDate.Equal(due))

	early := rec.BorrowDate.Add(-time.Hour)
	_, err = f.engine.Borrows.Update(f.ctx, rec.ID, BorrowUpdate{DueDate: &early})
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = f.engine.Borrows.Return(f.ctx, rec.ID, ReturnOptions{})
	require.NoError(t, err)

	_, err = f.engine.Borrows.Update(f.ctx, rec.ID, BorrowUpdate{Notes: &notes})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestMarkOverdue(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	_, copies := f.book("Alamut", 1)
	rec := f.borrow(reader, copies[0])

	_, _, err := f.engine.Borrows.MarkOverdue(f.ctx, rec.ID)
	assert.ErrorIs(t, err, ErrBadRequest)

	f.clock.Advance(15 * day)
	got, changed, err := f.engine.Borrows.MarkOverdue(f.ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.BorrowOverdue, got.Status)
	assert.Contains(t, f.notes.kinds(reader), model.NoticeBorrowOverdue)

	_, changed, err = f.engine.Borrows.MarkOverdue(f.ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	// Dates of an overdue loan are frozen.
	due := f.clock.Now().Add(day)
	_, err = f.engine.Borrows.Update(f.ctx, rec.ID, BorrowUpdate{DueDate: &due})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestListForReader(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	_, copies := f.book("Alamut", 2)
	first := f.borrow(reader, copies[0])
	f.borrow(reader, copies[1])

	_, err := f.engine.Borrows.Return(f.ctx, first.ID, ReturnOptions{})
	require.NoError(t, err)

	all, err := f.engine.Borrows.ListForReader(f.ctx, reader, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := f.engine.Borrows.ListForReader(f.ctx, reader, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, copies[1], active[0].CopyID)
}

// Scenario: borrow, renew twice, then try to fine before the due date.
func TestScenarioRenewTwiceThenEarlyFine(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	_, copies := f.book("Alamut", 1)
	rec := f.borrow(reader, copies[0])
	due := rec.DueDate

	for i := 1; i <= 2; i++ {
		next := due.Add(7 * day)
		got, err := f.engine.Renewals.Renew(f.ctx, rec.ID, next, nil, "")
		require.NoError(t, err)
		assert.True(t, got.DueDate.After(due))
		assert.Equal(t, i, got.RenewalCount)
		assert.Equal(t, model.BorrowRenewed, got.Status)
		due = got.DueDate
	}

	_, err := f.engine.Fines.AssessOverdue(f.ctx, rec.ID, 3, testPolicy.DailyFineRate)
	assert.ErrorIs(t, err, ErrBadRequest)
}

// Scenario: a borrow goes overdue, cannot be renewed, and its return settles
// the fine.
func TestScenarioOverdueReturnFinalizesFine(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	_, copies := f.book("Alamut", 1)
	rec := f.borrow(reader, copies[0])

	f.clock.Advance(15 * day)
	result, err := f.engine.Reconciler.Tick(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Overdue)

	got, err := f.engine.Borrows.Get(f.ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BorrowOverdue, got.Status)

	_, err = f.engine.Renewals.Renew(f.ctx, rec.ID, got.DueDate.Add(7*day), nil, "")
	assert.ErrorIs(t, err, ErrBadRequest)

	returned, err := f.engine.Borrows.Return(f.ctx, rec.ID, ReturnOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.BorrowReturned, returned.Status)

	fines, err := f.engine.Fines.ListForBorrow(f.ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, fines, 1)
	assert.Equal(t, model.FineOverdue, fines[0].Kind)
	assert.Equal(t, 1, fines[0].OverdueDays)
	assert.Equal(t, "5000", fines[0].Amount.String())
	assert.Equal(t, model.FineUnpaid, fines[0].Status)
}

func TestReturnRecomputesOpenOverdueFine(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	_, copies := f.book("Alamut", 1)
	rec := f.borrow(reader, copies[0])

	f.clock.Advance(15 * day)
	_, _, err := f.engine.Borrows.MarkOverdue(f.ctx, rec.ID)
	require.NoError(t, err)

	fine, err := f.engine.Fines.AssessOverdue(f.ctx, rec.ID, 1, decimal.NewFromInt(2500))
	require.NoError(t, err)
	assert.Equal(t, "2500", fine.DailyRate.String())

	_, err = f.engine.Fines.Pay(f.ctx, fine.ID, Payment{Amount: fine.Amount, Method: "cash"})
	require.NoError(t, err)

	// Paid in full before return: finalization leaves it alone.
	f.clock.Advance(2 * day)
	_, err = f.engine.Borrows.Return(f.ctx, rec.ID, ReturnOptions{})
	require.NoError(t, err)

	got, err := f.engine.Fines.Get(f.ctx, fine.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FinePaid, got.Status)
	assert.Equal(t, "2500", got.Amount.String())

	fines, err := f.engine.Fines.ListForBorrow(f.ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, fines, 1)
}

func TestReturnExtendsPartiallyPaidFine(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	_, copies := f.book("Alamut", 1)
	rec := f.borrow(reader, copies[0])

	f.clock.Advance(14*day + time.Hour)
	fine, err := f.engine.Fines.AssessOverdue(f.ctx, rec.ID, 1, testPolicy.DailyFineRate)
	require.NoError(t, err)
	_, err = f.engine.Fines.Pay(f.ctx, fine.ID, Payment{Amount: decimal.NewFromInt(2500), Method: "card"})
	require.NoError(t, err)

	// Returned 3 days and 1 hour late: 4 started days.
	f.clock.Advance(3 * day)
	_, err = f.engine.Borrows.Return(f.ctx, rec.ID, ReturnOptions{})
	require.NoError(t, err)

	got, err := f.engine.Fines.Get(f.ctx, fine.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.OverdueDays)
	assert.Equal(t, "20000", got.Amount.String())
	assert.Equal(t, "2500", got.PaidAmount.String())
	assert.Equal(t, model.FinePartiallyPaid, got.Status)
}

func TestOverdueDays(t *testing.T) {
	due := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, overdueDays(due, due.Add(time.Minute)))
	assert.Equal(t, 1, overdueDays(due, due.Add(day)))
	assert.Equal(t, 2, overdueDays(due, due.Add(day+time.Second)))
	assert.Equal(t, 1, overdueDays(due, due.Add(-time.Hour)))
}
