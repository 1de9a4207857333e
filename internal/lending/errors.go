package lending

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Every rule violation returned by the engine wraps exactly
// one of these in an *Error.
var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrBadRequest           = errors.New("bad request")
	ErrInvalidState         = errors.New("invalid state")
	ErrRenewalLimitExceeded = errors.New("renewal limit exceeded")
	ErrOverpaymentRejected  = errors.New("overpayment rejected")

	ErrCopyUnavailable      = errors.New("copy unavailable")
	ErrAlreadyReturned      = errors.New("already returned")
	ErrInvalidRenewalDate   = errors.New("invalid renewal date")
	ErrDuplicateFine        = errors.New("duplicate fine")
	ErrDuplicateReservation = errors.New("duplicate reservation")
)

// family maps specific sentinels to the broader class they belong to, so that
// errors.Is(err, ErrConflict) also holds for a duplicate reservation.
var family = map[error]error{
	ErrCopyUnavailable:      ErrConflict,
	ErrDuplicateFine:        ErrConflict,
	ErrDuplicateReservation: ErrConflict,
	ErrAlreadyReturned:      ErrInvalidState,
	ErrInvalidRenewalDate:   ErrBadRequest,
}

// Error is a lending rule violation with enough context to tell the caller
// what was refused and why.
type Error struct {
	Err    error  // one of the sentinels above
	Entity string // "copy", "borrow", "renewal", "fine", "reservation", "reader", "book"
	ID     int64
	State  string // current state of the entity, if relevant
	Action string // attempted transition
	Detail string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Entity != "" {
		b.WriteString(e.Entity)
		if e.ID != 0 {
			fmt.Fprintf(&b, " %d", e.ID)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Err.Error())
	switch {
	case e.Action != "" && e.State != "":
		fmt.Fprintf(&b, " (cannot %s while %s)", e.Action, e.State)
	case e.Action != "":
		fmt.Fprintf(&b, " (%s)", e.Action)
	case e.State != "":
		fmt.Fprintf(&b, " (state %s)", e.State)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports family membership; exact sentinel matches go through Unwrap.
func (e *Error) Is(target error) bool {
	return family[e.Err] == target
}

// Family returns the broad class of err: ErrNotFound, ErrConflict,
// ErrBadRequest, ErrInvalidState, ErrRenewalLimitExceeded or
// ErrOverpaymentRejected. It returns nil for errors that are not lending
// rule violations.
func Family(err error) error {
	var le *Error
	if !errors.As(err, &le) {
		return nil
	}
	if f, ok := family[le.Err]; ok {
		return f
	}
	return le.Err
}

// Label is a short metric-friendly name for err's family.
func Label(err error) string {
	switch Family(err) {
	case nil:
		if err == nil {
			return "ok"
		}
		return "internal"
	case ErrNotFound:
		return "not_found"
	case ErrConflict:
		return "conflict"
	case ErrBadRequest:
		return "bad_request"
	case ErrInvalidState:
		return "invalid_state"
	case ErrRenewalLimitExceeded:
		return "renewal_limit"
	case ErrOverpaymentRejected:
		return "overpayment"
	}
	return "internal"
}

func notFound(entity string, id int64) error {
	return &Error{Err: ErrNotFound, Entity: entity, ID: id}
}

func badRequest(entity string, id int64, format string, args ...any) error {
	return &Error{Err: ErrBadRequest, Entity: entity, ID: id, Detail: fmt.Sprintf(format, args...)}
}

func invalidState(entity string, id int64, state any, action string) error {
	return &Error{Err: ErrInvalidState, Entity: entity, ID: id, State: fmt.Sprint(state), Action: action}
}
