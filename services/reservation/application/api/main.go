package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ghuser/campusreserve/pkg/app"
	"github.com/ghuser/campusreserve/pkg/auth"
	"github.com/ghuser/campusreserve/services/reservation/application/handlers"
	appsvcs "github.com/ghuser/campusreserve/services/reservation/application/services"
)

// Middleware wraps the reservation routes.
type Middleware struct {
	RequireAuth func(http.Handler) http.Handler
	// LimitOpens throttles POST /reservations. Nil disables it.
	LimitOpens func(http.Handler) http.Handler
}

// ReservationRoutes registers item and reservation endpoints on the provided chi router.
func ReservationRoutes(r chi.Router, a *app.Application) {
	svcs := appsvcs.New(a)
	tokens := auth.NewTokens(a.Config.JWTSecret, a.Config.JWTTokenTTL)
	mw := Middleware{RequireAuth: auth.RequireAuth(tokens, a.SessionStore, a.Logger)}
	if a.Config.OpensPerMinute > 0 {
		mw.LimitOpens = auth.LimitByUser(a.Config.OpensPerMinute, time.Minute)
	}
	Mount(r, svcs, mw)
}

// Mount registers the routes behind mw.RequireAuth.
func Mount(r chi.Router, svcs *appsvcs.Services, mw Middleware) {
	limitOpens := mw.LimitOpens
	if limitOpens == nil {
		limitOpens = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAuth)

		r.Route("/items", func(r chi.Router) {
			r.Get("/", handlers.NewGetItemsHandler(svcs).Execute)
			r.Get("/{itemID}", handlers.NewGetItemHandler(svcs).Execute)
			r.Delete("/{itemID}/reservation", handlers.NewDeleteItemReservationHandler(svcs).Execute)
		})

		r.Route("/reservations", func(r chi.Router) {
			r.With(limitOpens).Post("/", handlers.NewPostReservationHandler(svcs).Execute)
			r.Get("/", handlers.NewGetReservationsHandler(svcs).Execute)
			r.Get("/fines", handlers.NewGetFinesHandler(svcs).Execute)
			r.Get("/{id}", handlers.NewGetReservationHandler(svcs).Execute)
			r.Post("/{id}/close", handlers.NewPostCloseReservationHandler(svcs).Execute)
			r.Post("/{id}/cancel", handlers.NewPostCancelReservationHandler(svcs).Execute)
			r.With(auth.RequireRole(auth.RoleStaff)).
				Post("/{id}/activate", handlers.NewPostActivateReservationHandler(svcs).Execute)
		})
	})
}
