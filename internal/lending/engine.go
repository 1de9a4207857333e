// Package lending implements the lending lifecycle: copy availability,
// borrows, renewals, fines, the reservation queue and the periodic reconciler.
//
// Every state-changing operation runs as one unit: a single SQLite
// transaction opened with BEGIN IMMEDIATE, so the unit holds the write lock
// from its first read to its commit. Copy status is only ever written through
// the Coordinator. Reader notices and metrics are emitted after commit.
package lending

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/izposoja/internal/config"
	"github.com/erazemk/izposoja/internal/metrics"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/notify"
	"github.com/erazemk/izposoja/internal/retry"
	"github.com/erazemk/izposoja/internal/store"
)

// ReaderDirectory answers questions about library readers.
type ReaderDirectory interface {
	ReaderExists(ctx context.Context, readerID int64) (bool, error)
	ReaderActive(ctx context.Context, readerID int64) (bool, error)
}

// BookCatalog answers questions about catalog titles.
type BookCatalog interface {
	BookExists(ctx context.Context, bookID int64) (bool, error)
}

// CopyCatalog answers questions about physical copies.
type CopyCatalog interface {
	CopyExists(ctx context.Context, copyID int64) (bool, error)
}

// NotificationGateway delivers notices to readers. Delivery is best effort:
// errors are logged and never undo a committed operation.
type NotificationGateway interface {
	Notify(ctx context.Context, readerID int64, kind string, payload map[string]any) error
}

// Policy is the library's loan and fine policy.
type Policy struct {
	LoanPeriod        time.Duration
	FineDuePeriod     time.Duration
	ReservationPeriod time.Duration
	DailyFineRate     decimal.Decimal
}

// PolicyFromConfig converts the [lending] config section.
func PolicyFromConfig(c config.Lending) Policy {
	return Policy{
		LoanPeriod:        c.LoanPeriod(),
		FineDuePeriod:     c.FineDuePeriod(),
		ReservationPeriod: c.ReservationPeriod(),
		DailyFineRate:     c.DailyFineRate,
	}
}

// Engine wires the lending components to one database.
type Engine struct {
	db       *sql.DB
	policy   Policy
	now      func() time.Time
	readers  ReaderDirectory
	books    BookCatalog
	copies   CopyCatalog
	notifier NotificationGateway
	logger   *slog.Logger
	retry    []retry.Option

	Copies       *Coordinator
	Borrows      *Borrows
	Renewals     *Renewals
	Fines        *Fines
	Reservations *Reservations
	Reconciler   *Reconciler
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now. Returned times are converted to UTC.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDirectory sets the reader, book and copy lookups.
func WithDirectory(r ReaderDirectory, b BookCatalog, c CopyCatalog) Option {
	return func(e *Engine) {
		e.readers, e.books, e.copies = r, b, c
	}
}

// WithNotifier sets the notification gateway.
func WithNotifier(n NotificationGateway) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLogger sets the logger used for operation and failure logs.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRetry bounds how often a unit is re-run after SQLITE_BUSY.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(e *Engine) {
		e.retry = []retry.Option{retry.WithMaxAttempts(maxAttempts), retry.WithBaseDelay(baseDelay)}
	}
}

// New creates an Engine. Unless overridden, readers, books and copies are
// looked up in the same database and notices go to the log.
func New(db *sql.DB, policy Policy, opts ...Option) *Engine {
	dir := &store.Directory{DB: db}
	e := &Engine{
		db:       db,
		policy:   policy,
		now:      time.Now,
		readers:  dir,
		books:    dir,
		copies:   dir,
		notifier: notify.LogGateway{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.Copies = &Coordinator{e: e}
	e.Reservations = &Reservations{e: e}
	e.Borrows = &Borrows{e: e}
	e.Renewals = &Renewals{e: e}
	e.Fines = &Fines{e: e}
	e.Reconciler = &Reconciler{e: e}

	e.Copies.offerer = e.Reservations
	return e
}

// Now returns the engine's current time in UTC.
func (e *Engine) Now() time.Time {
	return e.now().UTC()
}

// unit is one transaction plus the side effects to publish once it commits.
type unit struct {
	tx          *sql.Tx
	now         time.Time
	transitions []transition
	notices     []notice
	fines       []model.FineKind
}

type transition struct {
	from, to model.CopyStatus
}

type notice struct {
	readerID int64
	kind     string
	payload  map[string]any
}

func (u *unit) notify(readerID int64, kind string, payload map[string]any) {
	u.notices = append(u.notices, notice{readerID: readerID, kind: kind, payload: payload})
}

// run executes fn in a fresh unit, retrying the whole unit on lock contention.
// op names the operation in logs and metrics.
func (e *Engine) run(ctx context.Context, op string, fn func(ctx context.Context, u *unit) error) error {
	var u *unit
	opts := append([]retry.Option{
		retry.WithRetryable(store.IsBusy),
		retry.WithOnRetry(func(attempt int, err error) {
			metrics.Retries.WithLabelValues(op).Inc()
			e.logger.Warn("database busy, retrying", "op", op, "attempt", attempt, "error", err)
		}),
	}, e.retry...)

	err := retry.Do(ctx, func(ctx context.Context) error {
		u = &unit{now: e.Now()}
		return store.WithTx(ctx, e.db, func(tx *sql.Tx) error {
			u.tx = tx
			return fn(ctx, u)
		})
	}, opts...)

	metrics.Operations.WithLabelValues(op, Label(err)).Inc()
	if err != nil {
		if Family(err) == nil {
			e.logger.Error("lending operation failed", "op", op, "error", err)
		}
		return err
	}

	e.publish(ctx, u)
	return nil
}

// publish emits the side effects of a committed unit.
func (e *Engine) publish(ctx context.Context, u *unit) {
	for _, t := range u.transitions {
		metrics.CopyTransitions.WithLabelValues(string(t.from), string(t.to)).Inc()
	}
	for _, k := range u.fines {
		metrics.FinesAssessed.WithLabelValues(string(k)).Inc()
	}
	for _, n := range u.notices {
		if err := e.notifier.Notify(ctx, n.readerID, n.kind, n.payload); err != nil {
			metrics.NotificationFailures.Inc()
			e.logger.Warn("notifying reader", "reader", n.readerID, "kind", n.kind, "error", err)
		}
	}
}

// mustReader checks that a reader exists and, if active is set, may borrow.
func (e *Engine) mustReader(ctx context.Context, readerID int64, active bool) error {
	ok, err := e.readers.ReaderExists(ctx, readerID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("reader", readerID)
	}
	if !active {
		return nil
	}
	ok, err = e.readers.ReaderActive(ctx, readerID)
	if err != nil {
		return err
	}
	if !ok {
		return invalidState("reader", readerID, "inactive", "borrow or reserve")
	}
	return nil
}

func (e *Engine) mustBook(ctx context.Context, bookID int64) error {
	ok, err := e.books.BookExists(ctx, bookID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("book", bookID)
	}
	return nil
}

func (e *Engine) mustCopy(ctx context.Context, copyID int64) error {
	ok, err := e.copies.CopyExists(ctx, copyID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("copy", copyID)
	}
	return nil
}

func ref(entity string, id int64) string {
	return fmt.Sprintf("%s:%d", entity, id)
}
