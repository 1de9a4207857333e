package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/izposoja/internal/model"
)

// CreateBook creates a new catalog title.
func CreateBook(ctx context.Context, db *sql.DB, title, author, isbn string) (*model.Book, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO books (title, author, isbn) VALUES (?, ?, ?)`,
		title, nullString(author), nullString(isbn),
	)
	if err != nil {
		return nil, fmt.Errorf("creating book: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting book id: %w", err)
	}

	return GetBook(ctx, db, id)
}

// GetBook returns a book by ID.
func GetBook(ctx context.Context, q Querier, id int64) (*model.Book, error) {
	b := &model.Book{}
	var author, isbn sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT id, title, author, isbn, created_at, deleted_at
		 FROM books WHERE id = ?`, id,
	).Scan(&b.ID, &b.Title, &author, &isbn, &b.CreatedAt, &b.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting book: %w", err)
	}
	b.Author = author.String
	b.ISBN = isbn.String
	return b, nil
}
