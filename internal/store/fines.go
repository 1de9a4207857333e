package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/izposoja/internal/model"
)

const fineColumns = `f.id, f.borrow_id, f.kind, f.fine_amount, f.paid_amount, f.status, f.overdue_days,
	f.daily_rate, f.due_date, f.payment_method, f.txn_id, f.payment_date, f.notes, f.evidence_mime,
	f.created_at, f.updated_at`

// InsertFine creates a fine and returns its ID.
func InsertFine(ctx context.Context, q Querier, f *model.Fine) (int64, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO fines
		   (borrow_id, kind, fine_amount, paid_amount, status, overdue_days, daily_rate, due_date,
		    notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.BorrowID, f.Kind, f.Amount, f.PaidAmount, f.Status, f.OverdueDays, f.DailyRate, f.DueDate,
		nullString(f.Notes), f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("creating fine: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting fine id: %w", err)
	}
	return id, nil
}

// GetFine returns a fine by ID.
func GetFine(ctx context.Context, q Querier, id int64) (*model.Fine, error) {
	f, err := scanFine(q.QueryRowContext(ctx,
		`SELECT `+fineColumns+` FROM fines f WHERE f.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting fine: %w", err)
	}
	return f, nil
}

// OpenFine returns the UNPAID or PARTIALLY_PAID fine of the given kind for a
// borrow record, if any.
func OpenFine(ctx context.Context, q Querier, borrowID int64, kind model.FineKind) (*model.Fine, error) {
	f, err := scanFine(q.QueryRowContext(ctx,
		`SELECT `+fineColumns+` FROM fines f
		 WHERE f.borrow_id = ? AND f.kind = ? AND f.status IN ('UNPAID', 'PARTIALLY_PAID')
		 ORDER BY f.id DESC LIMIT 1`, borrowID, kind,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting open fine: %w", err)
	}
	return f, nil
}

// CountFines counts fines of a kind for a borrow record, in any status.
func CountFines(ctx context.Context, q Querier, borrowID int64, kind model.FineKind) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fines WHERE borrow_id = ? AND kind = ?`, borrowID, kind,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting fines: %w", err)
	}
	return n, nil
}

// SaveFine writes back the amounts, status and payment fields of a fine.
func SaveFine(ctx context.Context, q Querier, f *model.Fine) error {
	_, err := q.ExecContext(ctx,
		`UPDATE fines
		 SET fine_amount = ?, paid_amount = ?, status = ?, overdue_days = ?, daily_rate = ?,
		     due_date = ?, payment_method = ?, txn_id = ?, payment_date = ?, notes = ?, updated_at = ?
		 WHERE id = ?`,
		f.Amount, f.PaidAmount, f.Status, f.OverdueDays, f.DailyRate,
		f.DueDate, nullString(f.PaymentMethod), nullString(f.TxnID), f.PaymentDate, nullString(f.Notes), f.UpdatedAt,
		f.ID,
	)
	if err != nil {
		return fmt.Errorf("updating fine: %w", err)
	}
	return nil
}

// ListBorrowFines returns all fines attached to a borrow record.
func ListBorrowFines(ctx context.Context, q Querier, borrowID int64) ([]model.Fine, error) {
	return queryFines(ctx, q,
		`SELECT `+fineColumns+` FROM fines f WHERE f.borrow_id = ? ORDER BY f.id`, borrowID,
	)
}

// ListReaderOpenFines returns every UNPAID or PARTIALLY_PAID fine of a reader.
func ListReaderOpenFines(ctx context.Context, q Querier, readerID int64) ([]model.Fine, error) {
	return queryFines(ctx, q,
		`SELECT `+fineColumns+` FROM fines f
		 JOIN borrow_records b ON b.id = f.borrow_id
		 WHERE b.reader_id = ? AND f.status IN ('UNPAID', 'PARTIALLY_PAID')
		 ORDER BY f.id`, readerID,
	)
}

// InsertFinePayment appends a payment to the fine's ledger.
func InsertFinePayment(ctx context.Context, q Querier, p *model.FinePayment) (int64, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO fine_payments (fine_id, amount, method, txn_id, paid_at) VALUES (?, ?, ?, ?, ?)`,
		p.FineID, p.Amount, p.Method, nullString(p.TxnID), p.PaidAt,
	)
	if err != nil {
		return 0, fmt.Errorf("recording fine payment: %w", err)
	}
	return result.LastInsertId()
}

// ListFinePayments returns the payments applied to a fine, oldest first.
func ListFinePayments(ctx context.Context, q Querier, fineID int64) ([]model.FinePayment, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, fine_id, amount, method, txn_id, paid_at
		 FROM fine_payments WHERE fine_id = ? ORDER BY id`, fineID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing fine payments: %w", err)
	}
	defer rows.Close()

	var payments []model.FinePayment
	for rows.Next() {
		var p model.FinePayment
		var txnID sql.NullString
		if err := rows.Scan(&p.ID, &p.FineID, &p.Amount, &p.Method, &txnID, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("scanning fine payment: %w", err)
		}
		p.TxnID = txnID.String
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// SetFineEvidence stores a photo documenting a damage or loss charge.
func SetFineEvidence(ctx context.Context, q Querier, id int64, image []byte, mime string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE fines SET evidence = ?, evidence_mime = ? WHERE id = ?`,
		image, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting fine evidence: %w", err)
	}
	return nil
}

// GetFineEvidence returns a fine's evidence photo and MIME type.
func GetFineEvidence(ctx context.Context, q Querier, id int64) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT evidence, evidence_mime FROM fines WHERE id = ?`, id,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting fine evidence: %w", err)
	}
	return image, mime.String, nil
}

func queryFines(ctx context.Context, q Querier, query string, args ...any) ([]model.Fine, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing fines: %w", err)
	}
	defer rows.Close()

	var fines []model.Fine
	for rows.Next() {
		f, err := scanFine(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning fine: %w", err)
		}
		fines = append(fines, *f)
	}
	return fines, rows.Err()
}

func scanFine(row rowScanner) (*model.Fine, error) {
	f := &model.Fine{}
	var method, txnID, notes, evidenceMime sql.NullString
	err := row.Scan(&f.ID, &f.BorrowID, &f.Kind, &f.Amount, &f.PaidAmount, &f.Status, &f.OverdueDays,
		&f.DailyRate, &f.DueDate, &method, &txnID, &f.PaymentDate, &notes, &evidenceMime,
		&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.PaymentMethod = method.String
	f.TxnID = txnID.String
	f.Notes = notes.String
	f.EvidenceMime = evidenceMime.String
	return f, nil
}
