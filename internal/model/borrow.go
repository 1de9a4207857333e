package model

import "time"

// BorrowStatus is the lifecycle state of a borrow record.
type BorrowStatus string

// Borrow statuses.
const (
	BorrowBorrowed BorrowStatus = "BORROWED"
	BorrowRenewed  BorrowStatus = "RENEWED"
	BorrowOverdue  BorrowStatus = "OVERDUE"
	BorrowReturned BorrowStatus = "RETURNED"
)

// Active reports whether the record still holds its copy.
func (s BorrowStatus) Active() bool {
	return s == BorrowBorrowed || s == BorrowRenewed || s == BorrowOverdue
}

// MaxRenewals is the number of times a single borrow may be renewed.
const MaxRenewals = 3

// BorrowRecord is one lending episode of a copy to a reader.
type BorrowRecord struct {
	ID            int64        `json:"id"`
	ReaderID      int64        `json:"reader_id"`
	CopyID        int64        `json:"copy_id"`
	LibrarianID   *int64       `json:"librarian_id,omitempty"`
	ReservationID *int64       `json:"reservation_id,omitempty"`
	BorrowDate    time.Time    `json:"borrow_date"`
	DueDate       time.Time    `json:"due_date"`
	ReturnDate    *time.Time   `json:"return_date,omitempty"`
	Status        BorrowStatus `json:"status"`
	RenewalCount  int          `json:"renewal_count"`
	Notes         string       `json:"notes,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// OverdueAt reports whether the record is past due at t. Returned records
// are never overdue.
func (b *BorrowRecord) OverdueAt(t time.Time) bool {
	if b.Status == BorrowReturned {
		return false
	}
	return b.Status == BorrowOverdue || b.DueDate.Before(t)
}

// ReturnedLate reports whether a returned record came back after its due date.
func (b *BorrowRecord) ReturnedLate() bool {
	return b.ReturnDate != nil && b.ReturnDate.After(b.DueDate)
}

// RenewalStatus is the approval state of a renewal.
type RenewalStatus string

// Renewal statuses.
const (
	RenewalPending  RenewalStatus = "PENDING"
	RenewalApproved RenewalStatus = "APPROVED"
	RenewalRejected RenewalStatus = "REJECTED"
)

// Renewal is an append-only log entry extending a borrow's due date.
type Renewal struct {
	ID              int64         `json:"id"`
	BorrowID        int64         `json:"borrow_id"`
	PreviousDueDate time.Time     `json:"previous_due_date"`
	NewDueDate      time.Time     `json:"new_due_date"`
	RenewalNumber   int           `json:"renewal_number"`
	Status          RenewalStatus `json:"status"`
	RequestedBy     *int64        `json:"requested_by,omitempty"`
	DecidedBy       *int64        `json:"decided_by,omitempty"`
	DecidedAt       *time.Time    `json:"decided_at,omitempty"`
	Reason          string        `json:"reason,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}
