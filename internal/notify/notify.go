// Package notify delivers reader notices raised by the lending engine.
//
// Transport (email, SMS) is not handled here. Inbox stores notices in the
// notifications table for staff tools and readers to pick up; LogGateway only
// logs them.
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	jsoniter "github.com/json-iterator/go"

	"github.com/erazemk/izposoja/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Inbox writes notices to the notifications table.
type Inbox struct {
	DB *sql.DB
}

// NewInbox returns an Inbox backed by db.
func NewInbox(db *sql.DB) *Inbox {
	return &Inbox{DB: db}
}

// Notify stores a notice for readerID. The payload is encoded as JSON.
func (i *Inbox) Notify(ctx context.Context, readerID int64, kind string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s notice: %w", kind, err)
	}
	if err := store.CreateNotification(ctx, i.DB, readerID, kind, string(body)); err != nil {
		return err
	}
	slog.Debug("notice stored", "reader", readerID, "kind", kind)
	return nil
}

// LogGateway logs notices instead of delivering them.
type LogGateway struct {
	Logger *slog.Logger
}

// Notify logs the notice at INFO level.
func (g LogGateway) Notify(_ context.Context, readerID int64, kind string, payload map[string]any) error {
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("reader notice", "reader", readerID, "kind", kind, "payload", payload)
	return nil
}
