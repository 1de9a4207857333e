package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

const renewalColumns = `id, borrow_id, previous_due_date, new_due_date, renewal_number, status,
	requested_by, decided_by, decided_at, reason, created_at`

// InsertRenewal appends a renewal entry and returns its ID.
func InsertRenewal(ctx context.Context, q Querier, r *model.Renewal) (int64, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO renewals
		   (borrow_id, previous_due_date, new_due_date, renewal_number, status, requested_by,
		    decided_by, decided_at, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.BorrowID, r.PreviousDueDate, r.NewDueDate, r.RenewalNumber, r.Status, r.RequestedBy,
		r.DecidedBy, r.DecidedAt, nullString(r.Reason), r.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("creating renewal: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting renewal id: %w", err)
	}
	return id, nil
}

// GetRenewal returns a renewal by ID.
func GetRenewal(ctx context.Context, q Querier, id int64) (*model.Renewal, error) {
	r, err := scanRenewal(q.QueryRowContext(ctx,
		`SELECT `+renewalColumns+` FROM renewals WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting renewal: %w", err)
	}
	return r, nil
}

// PendingRenewal returns the undecided renewal request for a borrow, if any.
func PendingRenewal(ctx context.Context, q Querier, borrowID int64) (*model.Renewal, error) {
	r, err := scanRenewal(q.QueryRowContext(ctx,
		`SELECT `+renewalColumns+` FROM renewals WHERE borrow_id = ? AND status = 'PENDING'`, borrowID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting pending renewal: %w", err)
	}
	return r, nil
}

// DecideRenewal records the approval or rejection of a pending renewal.
// It reports whether the renewal was still pending.
func DecideRenewal(ctx context.Context, q Querier, id int64, status model.RenewalStatus, renewalNumber int, decidedBy *int64, decidedAt time.Time, reason string) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE renewals
		 SET status = ?, renewal_number = ?, decided_by = ?, decided_at = ?, reason = COALESCE(?, reason)
		 WHERE id = ? AND status = 'PENDING'`,
		status, renewalNumber, decidedBy, decidedAt, nullString(reason), id,
	)
	if err != nil {
		return false, fmt.Errorf("deciding renewal: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking renewal decision: %w", err)
	}
	return n == 1, nil
}

// ListRenewals returns the renewal log of a borrow record, oldest first.
func ListRenewals(ctx context.Context, q Querier, borrowID int64) ([]model.Renewal, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+renewalColumns+` FROM renewals WHERE borrow_id = ? ORDER BY id`, borrowID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing renewals: %w", err)
	}
	defer rows.Close()

	var renewals []model.Renewal
	for rows.Next() {
		r, err := scanRenewal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning renewal: %w", err)
		}
		renewals = append(renewals, *r)
	}
	return renewals, rows.Err()
}

func scanRenewal(row rowScanner) (*model.Renewal, error) {
	r := &model.Renewal{}
	var reason sql.NullString
	err := row.Scan(&r.ID, &r.BorrowID, &r.PreviousDueDate, &r.NewDueDate, &r.RenewalNumber, &r.Status,
		&r.RequestedBy, &r.DecidedBy, &r.DecidedAt, &reason, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Reason = reason.String
	return r, nil
}
