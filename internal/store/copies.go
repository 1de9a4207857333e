package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

const copyColumns = `c.id, c.book_id, c.barcode, c.status, c.condition, c.archived, c.version,
	c.created_at, c.updated_at, b.title`

// CreateCopy adds a new physical copy of a book. New copies start AVAILABLE.
func CreateCopy(ctx context.Context, db *sql.DB, bookID int64, barcode, condition string) (*model.Copy, error) {
	if condition == "" {
		condition = "good"
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO copies (book_id, barcode, condition) VALUES (?, ?, ?)`,
		bookID, barcode, condition,
	)
	if err != nil {
		return nil, fmt.Errorf("creating copy: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting copy id: %w", err)
	}

	return GetCopy(ctx, db, id)
}

// GetCopy returns a copy by ID.
func GetCopy(ctx context.Context, q Querier, id int64) (*model.Copy, error) {
	c, err := scanCopy(q.QueryRowContext(ctx,
		`SELECT `+copyColumns+`
		 FROM copies c JOIN books b ON b.id = c.book_id
		 WHERE c.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting copy: %w", err)
	}
	return c, nil
}

// ListBookCopies returns every non-archived copy of a book.
func ListBookCopies(ctx context.Context, q Querier, bookID int64) ([]model.Copy, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+copyColumns+`
		 FROM copies c JOIN books b ON b.id = c.book_id
		 WHERE c.book_id = ? AND c.archived = 0
		 ORDER BY c.id`, bookID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing copies: %w", err)
	}
	defer rows.Close()

	var copies []model.Copy
	for rows.Next() {
		c, err := scanCopy(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning copy: %w", err)
		}
		copies = append(copies, *c)
	}
	return copies, rows.Err()
}

// FirstAvailableCopy returns the lowest-numbered AVAILABLE copy of a book, or
// 0 if none is free.
func FirstAvailableCopy(ctx context.Context, q Querier, bookID int64) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		`SELECT id FROM copies
		 WHERE book_id = ? AND status = 'AVAILABLE' AND archived = 0
		 ORDER BY id LIMIT 1`, bookID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("finding available copy: %w", err)
	}
	return id, nil
}

// CompareAndSetCopyStatus moves a non-archived copy to status `to` only if
// its current status is one of `from`. It reports whether the row changed.
// This single conditional UPDATE is the only write path for copy status.
func CompareAndSetCopyStatus(ctx context.Context, q Querier, id int64, from []model.CopyStatus, to model.CopyStatus, at time.Time) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("no source status given")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	args := []any{to, at, id}
	for _, s := range from {
		args = append(args, s)
	}

	result, err := q.ExecContext(ctx,
		`UPDATE copies SET status = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND archived = 0 AND status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("updating copy status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking copy update: %w", err)
	}
	return n == 1, nil
}

// UpdateCopyCondition records the physical condition of a copy.
func UpdateCopyCondition(ctx context.Context, q Querier, id int64, condition string, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE copies SET condition = ?, updated_at = ? WHERE id = ?`,
		condition, at, id,
	)
	if err != nil {
		return fmt.Errorf("updating copy condition: %w", err)
	}
	return nil
}

// ArchiveCopy withdraws an AVAILABLE or out-of-service copy from circulation.
// It reports whether the copy was archived.
func ArchiveCopy(ctx context.Context, q Querier, id int64, at time.Time) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE copies SET archived = 1, version = version + 1, updated_at = ?
		 WHERE id = ? AND archived = 0
		   AND status IN ('AVAILABLE', 'DAMAGED', 'LOST', 'MAINTENANCE')`,
		at, id,
	)
	if err != nil {
		return false, fmt.Errorf("archiving copy: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking copy archive: %w", err)
	}
	return n == 1, nil
}

func scanCopy(row rowScanner) (*model.Copy, error) {
	c := &model.Copy{}
	err := row.Scan(&c.ID, &c.BookID, &c.Barcode, &c.Status, &c.Condition, &c.Archived, &c.Version,
		&c.CreatedAt, &c.UpdatedAt, &c.BookTitle)
	if err != nil {
		return nil, err
	}
	return c, nil
}
