package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

const reservationColumns = `id, reader_id, book_id, copy_id, reservation_date, expiry_date, priority,
	status, ready_at, fulfillment_date, fulfilled_by, cancelled_by, cancellation_reason, borrow_id,
	notes, created_at`

// queueOrder is the serving order of a book's pending reservations.
const queueOrder = `ORDER BY priority, reservation_date, id`

// InsertReservation creates a reservation and returns its ID.
func InsertReservation(ctx context.Context, q Querier, r *model.Reservation) (int64, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO reservations
		   (reader_id, book_id, copy_id, reservation_date, expiry_date, priority, status, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ReaderID, r.BookID, r.CopyID, r.ReservationDate, r.ExpiryDate, r.Priority, r.Status,
		nullString(r.Notes),
	)
	if err != nil {
		return 0, fmt.Errorf("creating reservation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting reservation id: %w", err)
	}
	return id, nil
}

// GetReservation returns a reservation by ID.
func GetReservation(ctx context.Context, q Querier, id int64) (*model.Reservation, error) {
	r, err := scanReservation(q.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting reservation: %w", err)
	}
	return r, nil
}

// SaveReservation writes back the mutable fields of a reservation.
func SaveReservation(ctx context.Context, q Querier, r *model.Reservation) error {
	_, err := q.ExecContext(ctx,
		`UPDATE reservations
		 SET copy_id = ?, status = ?, ready_at = ?, fulfillment_date = ?, fulfilled_by = ?,
		     cancelled_by = ?, cancellation_reason = ?, borrow_id = ?, notes = ?
		 WHERE id = ?`,
		r.CopyID, r.Status, r.ReadyAt, r.FulfillmentDate, r.FulfilledBy,
		r.CancelledBy, nullString(r.CancellationReason), r.BorrowID, nullString(r.Notes),
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("updating reservation: %w", err)
	}
	return nil
}

// PendingReservationFor returns a reader's PENDING reservation for a book.
func PendingReservationFor(ctx context.Context, q Querier, readerID, bookID int64) (*model.Reservation, error) {
	r, err := scanReservation(q.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE reader_id = ? AND book_id = ? AND status = 'PENDING'`, readerID, bookID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting pending reservation: %w", err)
	}
	return r, nil
}

// MaxPendingPriority returns the highest priority number among a book's
// PENDING reservations, or 0 if the queue is empty.
func MaxPendingPriority(ctx context.Context, q Querier, bookID int64) (int, error) {
	var last int
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(priority), 0) FROM reservations
		 WHERE book_id = ? AND status = 'PENDING'`, bookID,
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("getting max priority: %w", err)
	}
	return last, nil
}

// NextOfferable returns the first PENDING, unexpired reservation of a book
// that is not yet holding a copy and either targets copyID or no copy at all.
func NextOfferable(ctx context.Context, q Querier, bookID, copyID int64, now time.Time) (*model.Reservation, error) {
	r, err := scanReservation(q.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE book_id = ? AND status = 'PENDING' AND ready_at IS NULL AND expiry_date > ?
		   AND (copy_id IS NULL OR copy_id = ?)
		 `+queueOrder+` LIMIT 1`, bookID, now, copyID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding next reservation: %w", err)
	}
	return r, nil
}

// HeldReservationForCopy returns the PENDING reservation a copy is held for.
func HeldReservationForCopy(ctx context.Context, q Querier, copyID int64) (*model.Reservation, error) {
	r, err := scanReservation(q.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE copy_id = ? AND status = 'PENDING' AND ready_at IS NOT NULL`, copyID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting held reservation: %w", err)
	}
	return r, nil
}

// ListQueue returns a book's PENDING reservations in serving order.
func ListQueue(ctx context.Context, q Querier, bookID int64) ([]model.Reservation, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE book_id = ? AND status = 'PENDING' `+queueOrder, bookID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing reservation queue: %w", err)
	}
	defer rows.Close()

	var queue []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reservation: %w", err)
		}
		queue = append(queue, *r)
	}
	return queue, rows.Err()
}

// ListExpiredPending returns IDs of PENDING reservations whose expiry date is
// before t.
func ListExpiredPending(ctx context.Context, q Querier, t time.Time) ([]int64, error) {
	return queryIDs(ctx, q, "listing expired reservations",
		`SELECT id FROM reservations
		 WHERE status = 'PENDING' AND expiry_date < ?
		 ORDER BY expiry_date, id`, t,
	)
}

func scanReservation(row rowScanner) (*model.Reservation, error) {
	r := &model.Reservation{}
	var reason, notes sql.NullString
	err := row.Scan(&r.ID, &r.ReaderID, &r.BookID, &r.CopyID, &r.ReservationDate, &r.ExpiryDate,
		&r.Priority, &r.Status, &r.ReadyAt, &r.FulfillmentDate, &r.FulfilledBy, &r.CancelledBy,
		&reason, &r.BorrowID, &notes, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.CancellationReason = reason.String
	r.Notes = notes.String
	return r, nil
}
