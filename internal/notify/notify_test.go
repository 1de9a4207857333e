package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/izposoja/internal/db"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

func TestInboxStoresJSONPayload(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	reader, err := store.CreateReader(ctx, database, "Ana", "ana@example.com")
	require.NoError(t, err)

	inbox := NewInbox(database)
	err = inbox.Notify(ctx, reader.ID, model.NoticeReservationReady, map[string]any{
		"reservation_id": 7,
		"copy_id":        3,
	})
	require.NoError(t, err)

	notes, err := store.ListNotifications(ctx, database, reader.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, model.NoticeReservationReady, notes[0].Kind)
	assert.JSONEq(t, `{"reservation_id":7,"copy_id":3}`, notes[0].Payload)

	ok, err := store.MarkNotificationRead(ctx, database, reader.ID, notes[0].ID, notes[0].CreatedAt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.MarkNotificationRead(ctx, database, reader.ID, notes[0].ID, notes[0].CreatedAt)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInboxUnknownReaderFails(t *testing.T) {
	database := db.NewTestDB(t)

	err := NewInbox(database).Notify(context.Background(), 404, model.NoticeBorrowOverdue, nil)
	assert.Error(t, err)
}

func TestLogGatewayLogs(t *testing.T) {
	var buf bytes.Buffer
	gw := LogGateway{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, gw.Notify(context.Background(), 5, model.NoticeBorrowOverdue, map[string]any{"borrow_id": 9}))
	assert.Contains(t, buf.String(), "kind=borrow_overdue")
	assert.Contains(t, buf.String(), "reader=5")
}
