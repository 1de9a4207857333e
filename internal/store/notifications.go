package store

import (
	"context"
	"fmt"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

// CreateNotification stores a message in a reader's inbox.
func CreateNotification(ctx context.Context, q Querier, readerID int64, kind, payload string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO notifications (reader_id, kind, payload) VALUES (?, ?, ?)`,
		readerID, kind, payload,
	)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}
	return nil
}

// ListNotifications returns a reader's notifications, newest first.
func ListNotifications(ctx context.Context, q Querier, readerID int64) ([]model.Notification, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, reader_id, kind, payload, read_at, created_at
		 FROM notifications WHERE reader_id = ?
		 ORDER BY id DESC`, readerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var notes []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.ReaderID, &n.Kind, &n.Payload, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// MarkNotificationRead marks one of a reader's notifications as read. It
// reports whether an unread notification was found.
func MarkNotificationRead(ctx context.Context, q Querier, readerID, id int64, at time.Time) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE notifications SET read_at = ? WHERE id = ? AND reader_id = ? AND read_at IS NULL`,
		at, id, readerID,
	)
	if err != nil {
		return false, fmt.Errorf("marking notification read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking notification update: %w", err)
	}
	return n == 1, nil
}
