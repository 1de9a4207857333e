package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/izposoja/internal/model"
)

// CreateReader creates a new active reader.
func CreateReader(ctx context.Context, db *sql.DB, name, email string) (*model.Reader, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO readers (name, email) VALUES (?, ?)`,
		name, nullString(email),
	)
	if err != nil {
		return nil, fmt.Errorf("creating reader: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting reader id: %w", err)
	}

	return GetReader(ctx, db, id)
}

// GetReader returns a reader by ID.
func GetReader(ctx context.Context, q Querier, id int64) (*model.Reader, error) {
	r := &model.Reader{}
	var email sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT id, name, email, active, created_at, deleted_at
		 FROM readers WHERE id = ?`, id,
	).Scan(&r.ID, &r.Name, &email, &r.Active, &r.CreatedAt, &r.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting reader: %w", err)
	}
	r.Email = email.String
	return r, nil
}

// SetReaderActive suspends or reactivates a reader.
func SetReaderActive(ctx context.Context, db *sql.DB, id int64, active bool) error {
	_, err := db.ExecContext(ctx,
		`UPDATE readers SET active = ? WHERE id = ? AND deleted_at IS NULL`,
		active, id,
	)
	if err != nil {
		return fmt.Errorf("updating reader: %w", err)
	}
	return nil
}

// DeleteReader soft-deletes a reader. Fails if the reader still has books out.
func DeleteReader(ctx context.Context, db *sql.DB, id int64) error {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM borrow_records
		 WHERE reader_id = ? AND status IN ('BORROWED', 'RENEWED', 'OVERDUE')`, id,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking reader borrows: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("cannot delete reader: still has %d active borrows", count)
	}

	_, err = db.ExecContext(ctx,
		`UPDATE readers SET deleted_at = CURRENT_TIMESTAMP, active = 0 WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting reader: %w", err)
	}
	return nil
}
