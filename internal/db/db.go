package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite"
)

// pragmas are applied to every pooled connection through the DSN, not once
// through Exec, so that all connections share the same locking behaviour.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"foreign_keys(ON)",
	"synchronous(NORMAL)",
}

// Open opens a SQLite database and configures pragmas and transaction locking.
//
// Transactions start with BEGIN IMMEDIATE, so the write lock is taken before the
// first read of a transaction. Every read-then-write unit in the lending engine
// relies on this to be linearizable.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return db, nil
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	q.Set("_txlock", "immediate")
	q.Set("_time_format", "sqlite")

	if strings.HasPrefix(path, "file:") {
		return path + "?" + q.Encode()
	}
	return "file:" + path + "?" + q.Encode()
}
