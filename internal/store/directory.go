package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Directory answers existence and eligibility questions about readers, books
// and copies from the local tables.
type Directory struct {
	DB *sql.DB
}

// ReaderExists reports whether a non-deleted reader exists.
func (d *Directory) ReaderExists(ctx context.Context, readerID int64) (bool, error) {
	return d.exists(ctx, "reader",
		`SELECT 1 FROM readers WHERE id = ? AND deleted_at IS NULL`, readerID)
}

// ReaderActive reports whether a reader may borrow or reserve.
func (d *Directory) ReaderActive(ctx context.Context, readerID int64) (bool, error) {
	return d.exists(ctx, "reader",
		`SELECT 1 FROM readers WHERE id = ? AND deleted_at IS NULL AND active = 1`, readerID)
}

// BookExists reports whether a non-deleted book exists.
func (d *Directory) BookExists(ctx context.Context, bookID int64) (bool, error) {
	return d.exists(ctx, "book",
		`SELECT 1 FROM books WHERE id = ? AND deleted_at IS NULL`, bookID)
}

// CopyExists reports whether a copy exists, archived or not.
func (d *Directory) CopyExists(ctx context.Context, copyID int64) (bool, error) {
	return d.exists(ctx, "copy",
		`SELECT 1 FROM copies WHERE id = ?`, copyID)
}

func (d *Directory) exists(ctx context.Context, what, query string, id int64) (bool, error) {
	var one int
	err := d.DB.QueryRowContext(ctx, query, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking %s %d: %w", what, id, err)
	}
	return true, nil
}
