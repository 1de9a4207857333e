package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FineStatus is the payment state of a fine.
type FineStatus string

// Fine statuses.
const (
	FineUnpaid        FineStatus = "UNPAID"
	FinePartiallyPaid FineStatus = "PARTIALLY_PAID"
	FinePaid          FineStatus = "PAID"
	FineWaived        FineStatus = "WAIVED"
)

// Open reports whether the fine still expects payment.
func (s FineStatus) Open() bool {
	return s == FineUnpaid || s == FinePartiallyPaid
}

// FineKind is what a fine was charged for.
type FineKind string

// Fine kinds.
const (
	FineOverdue FineKind = "OVERDUE"
	FineDamage  FineKind = "DAMAGE"
	FineLoss    FineKind = "LOSS"
)

// Fine is a monetary penalty tied to a borrow record.
type Fine struct {
	ID            int64           `json:"id"`
	BorrowID      int64           `json:"borrow_id"`
	Kind          FineKind        `json:"kind"`
	Amount        decimal.Decimal `json:"fine_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Status        FineStatus      `json:"status"`
	OverdueDays   int             `json:"overdue_days,omitempty"`
	DailyRate     decimal.Decimal `json:"daily_rate"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	TxnID         string          `json:"txn_id,omitempty"`
	PaymentDate   *time.Time      `json:"payment_date,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	EvidenceMime  string          `json:"evidence_mime,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Outstanding is the amount still owed.
func (f *Fine) Outstanding() decimal.Decimal {
	if f.Status == FineWaived {
		return decimal.Zero
	}
	return f.Amount.Sub(f.PaidAmount)
}

// DeriveFineStatus computes a fine's status from its amounts. A waived fine
// stays waived; otherwise the status follows paid against owed exactly, with
// no tolerance.
func DeriveFineStatus(f *Fine) FineStatus {
	if f.Status == FineWaived {
		return FineWaived
	}
	switch {
	case f.PaidAmount.Sign() <= 0:
		return FineUnpaid
	case f.PaidAmount.Cmp(f.Amount) >= 0:
		return FinePaid
	default:
		return FinePartiallyPaid
	}
}

// FinePayment is one payment applied to a fine.
type FinePayment struct {
	ID     int64           `json:"id"`
	FineID int64           `json:"fine_id"`
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
	TxnID  string          `json:"txn_id,omitempty"`
	PaidAt time.Time       `json:"paid_at"`
}
