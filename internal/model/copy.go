package model

import "time"

// CopyStatus is the availability state of a physical copy.
type CopyStatus string

// Copy statuses.
const (
	CopyAvailable   CopyStatus = "AVAILABLE"
	CopyBorrowed    CopyStatus = "BORROWED"
	CopyReserved    CopyStatus = "RESERVED"
	CopyDamaged     CopyStatus = "DAMAGED"
	CopyLost        CopyStatus = "LOST"
	CopyMaintenance CopyStatus = "MAINTENANCE"
)

// Valid reports whether s is a known copy status.
func (s CopyStatus) Valid() bool {
	switch s {
	case CopyAvailable, CopyBorrowed, CopyReserved, CopyDamaged, CopyLost, CopyMaintenance:
		return true
	}
	return false
}

// OutOfService reports whether s takes a copy out of circulation without a
// borrower or reservation holding it.
func (s CopyStatus) OutOfService() bool {
	return s == CopyDamaged || s == CopyLost || s == CopyMaintenance
}

// Copy is a single physical, trackable instance of a book.
type Copy struct {
	ID        int64      `json:"id"`
	BookID    int64      `json:"book_id"`
	Barcode   string     `json:"barcode"`
	Status    CopyStatus `json:"status"`
	Condition string     `json:"condition"`
	Archived  bool       `json:"archived"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Joined fields (not always populated).
	BookTitle string `json:"book_title,omitempty"`
}

// DeriveCopyStatus computes the status a copy must have given the records
// that reference it. base is the stored status and only matters when neither
// an active borrow nor a held reservation references the copy: out-of-service
// states survive, everything else collapses to AVAILABLE.
func DeriveCopyStatus(base CopyStatus, activeBorrow, heldReservation bool) CopyStatus {
	switch {
	case activeBorrow:
		return CopyBorrowed
	case heldReservation:
		return CopyReserved
	case base.OutOfService():
		return base
	default:
		return CopyAvailable
	}
}

// CopyEvent is an audit record of a copy status change.
type CopyEvent struct {
	ID         string     `json:"id"`
	CopyID     int64      `json:"copy_id"`
	From       CopyStatus `json:"from"`
	To         CopyStatus `json:"to"`
	Reason     string     `json:"reason"`
	Reference  string     `json:"reference,omitempty"`
	Payload    string     `json:"payload,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Copy event reasons.
const (
	ReasonBorrow          = "borrow"
	ReasonReturn          = "return"
	ReasonHold            = "hold"
	ReasonHoldReleased    = "hold_released"
	ReasonHoldConverted   = "hold_converted"
	ReasonOutOfService    = "out_of_service"
	ReasonReturnToService = "return_to_service"
)
