package lending

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

func TestAcquireAndRelease(t *testing.T) {
	f := newFixture(t)
	_, copies := f.book("Alamut", 1)
	c := copies[0]

	cp, err := f.engine.Copies.AcquireCopy(f.ctx, c, PurposeBorrow)
	require.NoError(t, err)
	assert.Equal(t, model.CopyBorrowed, cp.Status)
	assert.Equal(t, int64(2), cp.Version)

	_, err = f.engine.Copies.AcquireCopy(f.ctx, c, PurposeReserve)
	var le *Error
	require.ErrorAs(t, err, &le)
	assert.ErrorIs(t, err, ErrCopyUnavailable)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, string(model.CopyBorrowed), le.State)

	offered, err := f.engine.Copies.ReleaseCopy(f.ctx, c)
	require.NoError(t, err)
	assert.Nil(t, offered)
	assert.Equal(t, model.CopyAvailable, f.status(c))

	events, err := f.engine.Copies.History(f.ctx, c)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.CopyAvailable, events[0].From)
	assert.Equal(t, model.CopyBorrowed, events[0].To)
	assert.Equal(t, model.ReasonReturn, events[1].Reason)
	assert.NotEmpty(t, events[0].ID)
	assert.JSONEq(t, `{"version":2,"book_id":1}`, events[0].Payload)
}

func TestReleaseRequiresBorrowedCopy(t *testing.T) {
	f := newFixture(t)
	_, copies := f.book("Alamut", 1)

	_, err := f.engine.Copies.ReleaseCopy(f.ctx, copies[0])
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.engine.Copies.ReleaseCopy(f.ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReleaseRefusesCopyOnLoan(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	_, copies := f.book("Alamut", 1)
	f.borrow(reader, copies[0])

	_, err := f.engine.Copies.ReleaseCopy(f.ctx, copies[0])
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, model.CopyBorrowed, f.status(copies[0]))
	f.assertConsistent(copies[0])
}

func TestAcquireArchivedCopy(t *testing.T) {
	f := newFixture(t)
	_, copies := f.book("Alamut", 1)

	ok, err := store.ArchiveCopy(f.ctx, f.db, copies[0], f.clock.Now())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.engine.Copies.AcquireCopy(f.ctx, copies[0], PurposeBorrow)
	var le *Error
	require.ErrorAs(t, err, &le)
	assert.ErrorIs(t, err, ErrCopyUnavailable)
	assert.Equal(t, "archived", le.State)
}

func TestConcurrentAcquireHasOneWinner(t *testing.T) {
	f := newFixture(t)
	_, copies := f.book("Alamut", 1)

	const n = 12
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		wins, fails int
		others      []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Copies.AcquireCopy(f.ctx, copies[0], PurposeBorrow)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrCopyUnavailable):
				fails++
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, others)
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, fails)

	events, err := f.engine.Copies.History(f.ctx, copies[0])
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestOutOfServiceAndBack(t *testing.T) {
	f := newFixture(t)
	reader := f.reader("Ana")
	book, copies := f.book("Alamut", 1)
	c := copies[0]

	_, err := f.engine.Copies.SetOutOfService(f.ctx, c, model.CopyAvailable, "")
	assert.ErrorIs(t, err, ErrBadRequest)

	cp, err := f.engine.Copies.SetOutOfService(f.ctx, c, model.CopyMaintenance, "rebinding")
	require.NoError(t, err)
	assert.Equal(t, model.CopyMaintenance, cp.Status)
	assert.Equal(t, "rebinding", cp.Condition)

	// A reservation made while the copy is away stays unheld.
	res, err := f.engine.Reservations.Reserve(f.ctx, ReserveRequest{ReaderID: reader, BookID: book})
	require.NoError(t, err)
	assert.False(t, res.Held())

	_, err = f.engine.Copies.SetOutOfService(f.ctx, c, model.CopyLost, "")
	assert.ErrorIs(t, err, ErrCopyUnavailable)

	cp, offered, err := f.engine.Copies.ReturnToService(f.ctx, c, "good")
	require.NoError(t, err)
	require.NotNil(t, offered)
	assert.Equal(t, res.ID, offered.ID)
	assert.Equal(t, model.CopyReserved, cp.Status)
	assert.Equal(t, "good", cp.Condition)
	f.assertConsistent(c)

	_, _, err = f.engine.Copies.ReturnToService(f.ctx, c, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestVerifyDetectsDrift(t *testing.T) {
	f := newFixture(t)
	_, copies := f.book("Alamut", 1)

	// Simulate a write that bypassed the coordinator.
	_, err := f.db.Exec(`UPDATE copies SET status = 'BORROWED' WHERE id = ?`, copies[0])
	require.NoError(t, err)

	check, err := f.engine.Copies.Verify(f.ctx, copies[0])
	require.NoError(t, err)
	assert.False(t, check.Consistent)
	assert.Equal(t, model.CopyBorrowed, check.Stored)
	assert.Equal(t, model.CopyAvailable, check.Derived)
}
