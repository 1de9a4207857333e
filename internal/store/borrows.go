package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

const borrowColumns = `id, reader_id, copy_id, librarian_id, reservation_id, borrow_date, due_date,
	return_date, status, renewal_count, notes, created_at, updated_at`

// InsertBorrow creates a borrow record and returns its ID.
func InsertBorrow(ctx context.Context, q Querier, b *model.BorrowRecord) (int64, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO borrow_records
		   (reader_id, copy_id, librarian_id, reservation_id, borrow_date, due_date, status,
		    renewal_count, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ReaderID, b.CopyID, b.LibrarianID, b.ReservationID, b.BorrowDate, b.DueDate, b.Status,
		b.RenewalCount, nullString(b.Notes), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("creating borrow record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting borrow record id: %w", err)
	}
	return id, nil
}

// GetBorrow returns a borrow record by ID.
func GetBorrow(ctx context.Context, q Querier, id int64) (*model.BorrowRecord, error) {
	b, err := scanBorrow(q.QueryRowContext(ctx,
		`SELECT `+borrowColumns+` FROM borrow_records WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting borrow record: %w", err)
	}
	return b, nil
}

// ActiveBorrowForCopy returns the borrow record currently holding a copy.
func ActiveBorrowForCopy(ctx context.Context, q Querier, copyID int64) (*model.BorrowRecord, error) {
	b, err := scanBorrow(q.QueryRowContext(ctx,
		`SELECT `+borrowColumns+` FROM borrow_records
		 WHERE copy_id = ? AND status IN ('BORROWED', 'RENEWED', 'OVERDUE')`, copyID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting active borrow record: %w", err)
	}
	return b, nil
}

// SaveBorrow writes back every mutable field of a borrow record.
func SaveBorrow(ctx context.Context, q Querier, b *model.BorrowRecord) error {
	_, err := q.ExecContext(ctx,
		`UPDATE borrow_records
		 SET borrow_date = ?, due_date = ?, return_date = ?, status = ?, renewal_count = ?,
		     notes = ?, updated_at = ?
		 WHERE id = ?`,
		b.BorrowDate, b.DueDate, b.ReturnDate, b.Status, b.RenewalCount,
		nullString(b.Notes), b.UpdatedAt, b.ID,
	)
	if err != nil {
		return fmt.Errorf("updating borrow record: %w", err)
	}
	return nil
}

// ListBorrowsDueBefore returns IDs of BORROWED or RENEWED records whose due
// date is before t.
func ListBorrowsDueBefore(ctx context.Context, q Querier, t time.Time) ([]int64, error) {
	return queryIDs(ctx, q, "listing due borrow records",
		`SELECT id FROM borrow_records
		 WHERE status IN ('BORROWED', 'RENEWED') AND due_date < ?
		 ORDER BY due_date, id`, t,
	)
}

// ListReaderBorrows returns a reader's borrow records, newest first.
func ListReaderBorrows(ctx context.Context, q Querier, readerID int64, activeOnly bool) ([]model.BorrowRecord, error) {
	query := `SELECT ` + borrowColumns + ` FROM borrow_records WHERE reader_id = ?`
	if activeOnly {
		query += ` AND status IN ('BORROWED', 'RENEWED', 'OVERDUE')`
	}
	query += ` ORDER BY borrow_date DESC, id DESC`

	rows, err := q.QueryContext(ctx, query, readerID)
	if err != nil {
		return nil, fmt.Errorf("listing borrow records: %w", err)
	}
	defer rows.Close()

	var records []model.BorrowRecord
	for rows.Next() {
		b, err := scanBorrow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning borrow record: %w", err)
		}
		records = append(records, *b)
	}
	return records, rows.Err()
}

// CountActiveBorrowsForCopy counts active borrow records referencing a copy.
func CountActiveBorrowsForCopy(ctx context.Context, q Querier, copyID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM borrow_records
		 WHERE copy_id = ? AND status IN ('BORROWED', 'RENEWED', 'OVERDUE')`, copyID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting active borrow records: %w", err)
	}
	return n, nil
}

func scanBorrow(row rowScanner) (*model.BorrowRecord, error) {
	b := &model.BorrowRecord{}
	var notes sql.NullString
	err := row.Scan(&b.ID, &b.ReaderID, &b.CopyID, &b.LibrarianID, &b.ReservationID, &b.BorrowDate,
		&b.DueDate, &b.ReturnDate, &b.Status, &b.RenewalCount, &notes, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Notes = notes.String
	return b, nil
}

func queryIDs(ctx context.Context, q Querier, what, query string, args ...any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", what, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
