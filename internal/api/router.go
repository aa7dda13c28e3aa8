package api

import (
	"context"
	"net/http"
	"time"

	"classbook/internal/config"
	"classbook/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Handler serves the booking, generator and user APIs.
type Handler struct {
	bookings  domain.BookingService
	generator domain.GeneratorService
	users     domain.UserService
	identity  domain.IdentityOracle
	validator *requestValidator
	sheetName string
	ready     func(ctx context.Context) error
	now       func() time.Time
	logger    *zerolog.Logger
}

type Deps struct {
	Bookings  domain.BookingService
	Generator domain.GeneratorService
	Users     domain.UserService
	Identity  domain.IdentityOracle
	SheetName string
	// Ready reports whether backing stores are reachable; nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *zerolog.Logger
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		bookings:  deps.Bookings,
		generator: deps.Generator,
		users:     deps.Users,
		identity:  deps.Identity,
		validator: newRequestValidator(),
		sheetName: deps.SheetName,
		ready:     deps.Ready,
		now:       time.Now,
		logger:    deps.Logger,
	}
}

func NewRouter(h *Handler, cfg config.APIConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestContext(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", h.readyz)

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(newClientLimiter(cfg.RateLimit)))

		r.Route("/booking-service", func(r chi.Router) {
			r.Get("/bookings", h.listBookings)
			r.Post("/bookings", h.createBooking)
			r.Get("/bookings/export", h.exportBookings)
			r.Get("/bookings/{id}", h.getBooking)
			r.Delete("/bookings/{id}", h.deleteBooking)

			r.Group(func(r chi.Router) {
				r.Use(h.requireCaller)
				r.Put("/bookings/make/{id}", h.makeReservation)
				r.Put("/bookings/cancel/{id}", h.cancelReservation)
				r.Get("/my-reservations", h.myReservations)
			})
		})

		r.Route("/generate-service", func(r chi.Router) {
			r.Post("/generate-bookings", h.generateRange)
			r.Post("/generate-exact-bookings", h.generateExact)
			r.Delete("/clear-all-bookings", h.clearAll)
		})

		r.Route("/user-service", func(r chi.Router) {
			r.Get("/users", h.listUsers)
			r.Get("/users/{id}", h.getUser)
			r.Delete("/users/{id}", h.deleteUser)
			r.Post("/register", h.register)
			r.Post("/login", h.login)
		})
	})

	return r
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "NOT_READY", "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
