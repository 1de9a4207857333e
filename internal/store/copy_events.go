package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/izposoja/internal/model"
)

// InsertCopyEvent records a copy status change.
func InsertCopyEvent(ctx context.Context, q Querier, e *model.CopyEvent) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO copy_events (id, copy_id, from_status, to_status, reason, reference, payload, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CopyID, e.From, e.To, e.Reason, nullString(e.Reference), nullString(e.Payload), e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("recording copy event: %w", err)
	}
	return nil
}

// ListCopyEvents returns the status history of a copy, oldest first.
func ListCopyEvents(ctx context.Context, q Querier, copyID int64) ([]model.CopyEvent, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, copy_id, from_status, to_status, reason, reference, payload, occurred_at
		 FROM copy_events
		 WHERE copy_id = ?
		 ORDER BY occurred_at, rowid`, copyID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing copy events: %w", err)
	}
	defer rows.Close()

	var events []model.CopyEvent
	for rows.Next() {
		var e model.CopyEvent
		var reference, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.CopyID, &e.From, &e.To, &e.Reason, &reference, &payload, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scanning copy event: %w", err)
		}
		e.Reference = reference.String
		e.Payload = payload.String
		events = append(events, e)
	}
	return events, rows.Err()
}
