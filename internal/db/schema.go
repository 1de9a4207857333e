package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'clerk' CHECK (role IN ('admin', 'librarian', 'clerk')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS readers (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    email      TEXT,
    active     INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

CREATE TABLE IF NOT EXISTS books (
    id         INTEGER PRIMARY KEY,
    title      TEXT NOT NULL,
    author     TEXT,
    isbn       TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

CREATE TABLE IF NOT EXISTS copies (
    id         INTEGER PRIMARY KEY,
    book_id    INTEGER NOT NULL REFERENCES books(id),
    barcode    TEXT NOT NULL UNIQUE,
    status     TEXT NOT NULL DEFAULT 'AVAILABLE'
               CHECK (status IN ('AVAILABLE', 'BORROWED', 'RESERVED', 'DAMAGED', 'LOST', 'MAINTENANCE')),
    condition  TEXT NOT NULL DEFAULT 'good',
    archived   INTEGER NOT NULL DEFAULT 0,
    version    INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_copies_book ON copies(book_id, status);

CREATE TABLE IF NOT EXISTS copy_events (
    id          TEXT PRIMARY KEY,
    copy_id     INTEGER NOT NULL REFERENCES copies(id),
    from_status TEXT NOT NULL,
    to_status   TEXT NOT NULL,
    reason      TEXT NOT NULL,
    reference   TEXT,
    payload     TEXT,
    occurred_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_copy_events_copy ON copy_events(copy_id, occurred_at);

CREATE TABLE IF NOT EXISTS reservations (
    id                  INTEGER PRIMARY KEY,
    reader_id           INTEGER NOT NULL REFERENCES readers(id),
    book_id             INTEGER NOT NULL REFERENCES books(id),
    copy_id             INTEGER REFERENCES copies(id),
    reservation_date    DATETIME NOT NULL,
    expiry_date         DATETIME NOT NULL,
    priority            INTEGER NOT NULL,
    status              TEXT NOT NULL DEFAULT 'PENDING'
                        CHECK (status IN ('PENDING', 'FULFILLED', 'CANCELLED', 'EXPIRED')),
    ready_at            DATETIME,
    fulfillment_date    DATETIME,
    fulfilled_by        INTEGER REFERENCES users(id),
    cancelled_by        INTEGER REFERENCES users(id),
    cancellation_reason TEXT,
    borrow_id           INTEGER,
    notes               TEXT,
    created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK (expiry_date > reservation_date)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_pending_reader_book
    ON reservations(reader_id, book_id) WHERE status = 'PENDING';

CREATE INDEX IF NOT EXISTS idx_reservations_queue
    ON reservations(book_id, status, priority, reservation_date);

CREATE TABLE IF NOT EXISTS borrow_records (
    id             INTEGER PRIMARY KEY,
    reader_id      INTEGER NOT NULL REFERENCES readers(id),
    copy_id        INTEGER NOT NULL REFERENCES copies(id),
    librarian_id   INTEGER REFERENCES users(id),
    reservation_id INTEGER REFERENCES reservations(id),
    borrow_date    DATETIME NOT NULL,
    due_date       DATETIME NOT NULL,
    return_date    DATETIME,
    status         TEXT NOT NULL DEFAULT 'BORROWED'
                   CHECK (status IN ('BORROWED', 'RENEWED', 'OVERDUE', 'RETURNED')),
    renewal_count  INTEGER NOT NULL DEFAULT 0 CHECK (renewal_count BETWEEN 0 AND 3),
    notes          TEXT,
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK (due_date > borrow_date)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_borrow_records_active_copy
    ON borrow_records(copy_id) WHERE status IN ('BORROWED', 'RENEWED', 'OVERDUE');

CREATE INDEX IF NOT EXISTS idx_borrow_records_due
    ON borrow_records(status, due_date);

CREATE TABLE IF NOT EXISTS renewals (
    id                INTEGER PRIMARY KEY,
    borrow_id         INTEGER NOT NULL REFERENCES borrow_records(id),
    previous_due_date DATETIME NOT NULL,
    new_due_date      DATETIME NOT NULL,
    renewal_number    INTEGER NOT NULL CHECK (renewal_number BETWEEN 1 AND 3),
    status            TEXT NOT NULL CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED')),
    requested_by      INTEGER REFERENCES users(id),
    decided_by        INTEGER REFERENCES users(id),
    decided_at        DATETIME,
    reason            TEXT,
    created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_renewals_pending_borrow
    ON renewals(borrow_id) WHERE status = 'PENDING';

CREATE TABLE IF NOT EXISTS fines (
    id             INTEGER PRIMARY KEY,
    borrow_id      INTEGER NOT NULL REFERENCES borrow_records(id),
    kind           TEXT NOT NULL CHECK (kind IN ('OVERDUE', 'DAMAGE', 'LOSS')),
    fine_amount    TEXT NOT NULL,
    paid_amount    TEXT NOT NULL DEFAULT '0',
    status         TEXT NOT NULL DEFAULT 'UNPAID'
                   CHECK (status IN ('UNPAID', 'PARTIALLY_PAID', 'PAID', 'WAIVED')),
    overdue_days   INTEGER NOT NULL DEFAULT 0,
    daily_rate     TEXT NOT NULL DEFAULT '0',
    due_date       DATETIME,
    payment_method TEXT,
    txn_id         TEXT,
    payment_date   DATETIME,
    notes          TEXT,
    evidence       BLOB,
    evidence_mime  TEXT,
    created_at     DATETIME NOT NULL,
    updated_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fines_borrow ON fines(borrow_id, kind, status);

CREATE TABLE IF NOT EXISTS fine_payments (
    id      INTEGER PRIMARY KEY,
    fine_id INTEGER NOT NULL REFERENCES fines(id),
    amount  TEXT NOT NULL,
    method  TEXT NOT NULL,
    txn_id  TEXT,
    paid_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
    id         INTEGER PRIMARY KEY,
    reader_id  INTEGER NOT NULL REFERENCES readers(id),
    kind       TEXT NOT NULL,
    payload    TEXT NOT NULL,
    read_at    DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
