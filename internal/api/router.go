package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/erazemk/izposoja/internal/auth"
	"github.com/erazemk/izposoja/internal/lending"
	"github.com/erazemk/izposoja/internal/model"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, engine *lending.Engine, issuer *auth.Issuer) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, Issuer: issuer}
	usersHandler := &UsersHandler{DB: db}
	catalogHandler := &CatalogHandler{DB: db, Engine: engine}
	copiesHandler := &CopiesHandler{Engine: engine}
	borrowsHandler := &BorrowsHandler{Engine: engine}
	finesHandler := &FinesHandler{Engine: engine}
	reservationsHandler := &ReservationsHandler{Engine: engine}
	notificationsHandler := &NotificationsHandler{DB: db}
	systemHandler := &SystemHandler{DB: db, Engine: engine}

	authMW := AuthMiddleware(issuer, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireLibrarian := RequireRole(model.RoleLibrarian)

	// Any signed-in staff member.
	staff := func(h http.HandlerFunc) http.Handler { return authMW(h) }
	librarian := func(h http.HandlerFunc) http.Handler { return authMW(requireLibrarian(h)) }
	admin := func(h http.HandlerFunc) http.Handler { return authMW(requireAdmin(h)) }

	// Public.
	mux.HandleFunc("GET /healthz", systemHandler.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	mux.Handle("PUT /api/auth/password", staff(authHandler.ChangePassword))
	mux.Handle("POST /api/auth/logout", staff(authHandler.Logout))

	// Users (admin only).
	mux.Handle("GET /api/users", admin(usersHandler.List))
	mux.Handle("POST /api/users", admin(usersHandler.Create))
	mux.Handle("GET /api/users/{id}", admin(usersHandler.Get))
	mux.Handle("PUT /api/users/{id}", admin(usersHandler.Update))
	mux.Handle("PUT /api/users/{id}/password", admin(usersHandler.ResetPassword))
	mux.Handle("DELETE /api/users/{id}", admin(usersHandler.Delete))

	// Readers: desk staff register and look up, librarians suspend and remove.
	mux.Handle("POST /api/readers", staff(catalogHandler.CreateReader))
	mux.Handle("GET /api/readers/{id}", staff(catalogHandler.GetReader))
	mux.Handle("PUT /api/readers/{id}/active", librarian(catalogHandler.SetReaderActive))
	mux.Handle("DELETE /api/readers/{id}", librarian(catalogHandler.DeleteReader))
	mux.Handle("GET /api/readers/{id}/borrows", staff(borrowsHandler.ListForReader))
	mux.Handle("GET /api/readers/{id}/fines", staff(finesHandler.Outstanding))
	mux.Handle("GET /api/readers/{id}/notifications", staff(notificationsHandler.List))
	mux.Handle("POST /api/readers/{id}/notifications/{nid}/read", staff(notificationsHandler.MarkRead))

	// Books and copies: read (all), write (librarian+).
	mux.Handle("POST /api/books", librarian(catalogHandler.CreateBook))
	mux.Handle("GET /api/books/{id}", staff(catalogHandler.GetBook))
	mux.Handle("GET /api/books/{id}/copies", staff(catalogHandler.ListCopies))
	mux.Handle("POST /api/books/{id}/copies", librarian(catalogHandler.CreateCopy))
	mux.Handle("GET /api/books/{id}/queue", staff(reservationsHandler.Queue))
	mux.Handle("GET /api/copies/{id}", staff(copiesHandler.Get))
	mux.Handle("DELETE /api/copies/{id}", librarian(catalogHandler.ArchiveCopy))
	mux.Handle("GET /api/copies/{id}/history", staff(copiesHandler.History))
	mux.Handle("GET /api/copies/{id}/verify", librarian(copiesHandler.Verify))
	mux.Handle("POST /api/copies/{id}/out-of-service", librarian(copiesHandler.OutOfService))
	mux.Handle("POST /api/copies/{id}/return-to-service", librarian(copiesHandler.ReturnToService))

	// Borrows: the desk lends and takes back, librarians amend and renew.
	mux.Handle("POST /api/borrows", staff(borrowsHandler.Create))
	mux.Handle("GET /api/borrows/{id}", staff(borrowsHandler.Get))
	mux.Handle("PATCH /api/borrows/{id}", librarian(borrowsHandler.Update))
	mux.Handle("POST /api/borrows/{id}/return", staff(borrowsHandler.Return))
	mux.Handle("POST /api/borrows/{id}/renew", librarian(borrowsHandler.Renew))
	mux.Handle("GET /api/borrows/{id}/renewals", staff(borrowsHandler.ListRenewals))
	mux.Handle("POST /api/borrows/{id}/renewals", staff(borrowsHandler.RequestRenewal))
	mux.Handle("POST /api/renewals/{id}/approve", librarian(borrowsHandler.ApproveRenewal))
	mux.Handle("POST /api/renewals/{id}/reject", librarian(borrowsHandler.RejectRenewal))

	// Fines: read and take payments (all), assess and waive (librarian+).
	mux.Handle("GET /api/borrows/{id}/fines", staff(finesHandler.ListForBorrow))
	mux.Handle("POST /api/borrows/{id}/fines/overdue", librarian(finesHandler.AssessOverdue))
	mux.Handle("POST /api/borrows/{id}/fines/charge", librarian(finesHandler.AssessCharge))
	mux.Handle("GET /api/fines/{id}", staff(finesHandler.Get))
	mux.Handle("GET /api/fines/{id}/payments", staff(finesHandler.Payments))
	mux.Handle("POST /api/fines/{id}/payments", staff(finesHandler.Pay))
	mux.Handle("POST /api/fines/{id}/waive", librarian(finesHandler.Waive))
	mux.Handle("PUT /api/fines/{id}/evidence", librarian(finesHandler.UploadEvidence))
	mux.Handle("GET /api/fines/{id}/evidence", staff(finesHandler.Evidence))

	// Reservations (all roles).
	mux.Handle("POST /api/reservations", staff(reservationsHandler.Reserve))
	mux.Handle("GET /api/reservations/{id}", staff(reservationsHandler.Get))
	mux.Handle("POST /api/reservations/{id}/fulfill", staff(reservationsHandler.Fulfill))
	mux.Handle("POST /api/reservations/{id}/cancel", staff(reservationsHandler.Cancel))

	mux.Handle("POST /api/reconcile", admin(systemHandler.Reconcile))

	return middleware.RequestID(middleware.Recoverer(LoggingMiddleware(mux)))
}
