package model

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

// Reservation statuses.
const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationFulfilled ReservationStatus = "FULFILLED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// Terminal reports whether no further transitions are allowed.
func (s ReservationStatus) Terminal() bool {
	return s != ReservationPending
}

// Reservation is a reader's place in the queue for a book.
type Reservation struct {
	ID                 int64             `json:"id"`
	ReaderID           int64             `json:"reader_id"`
	BookID             int64             `json:"book_id"`
	CopyID             *int64            `json:"copy_id,omitempty"`
	ReservationDate    time.Time         `json:"reservation_date"`
	ExpiryDate         time.Time         `json:"expiry_date"`
	Priority           int               `json:"priority"`
	Status             ReservationStatus `json:"status"`
	ReadyAt            *time.Time        `json:"ready_at,omitempty"`
	FulfillmentDate    *time.Time        `json:"fulfillment_date,omitempty"`
	FulfilledBy        *int64            `json:"fulfilled_by,omitempty"`
	CancelledBy        *int64            `json:"cancelled_by,omitempty"`
	CancellationReason string            `json:"cancellation_reason,omitempty"`
	BorrowID           *int64            `json:"borrow_id,omitempty"`
	Notes              string            `json:"notes,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}

// Held reports whether a copy has been set aside for the reservation.
func (r *Reservation) Held() bool {
	return r.ReadyAt != nil && r.CopyID != nil
}

// ExpiredAt reports whether a pending reservation has passed its expiry at t.
func (r *Reservation) ExpiredAt(t time.Time) bool {
	return r.Status == ReservationPending && r.ExpiryDate.Before(t)
}

// Notification kinds sent to readers.
const (
	NoticeReservationReady   = "reservation_ready"
	NoticeReservationExpired = "reservation_expired"
	NoticeBorrowOverdue      = "borrow_overdue"
	NoticeFineAssessed       = "fine_assessed"
	NoticeBorrowRenewed      = "borrow_renewed"
)

// Notification is a message stored in a reader's inbox.
type Notification struct {
	ID        int64      `json:"id"`
	ReaderID  int64      `json:"reader_id"`
	Kind      string     `json:"kind"`
	Payload   string     `json:"payload"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
