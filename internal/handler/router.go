package handler

import (
	"net/http"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// RouterConfig carries everything NewRouter wires together.
type RouterConfig struct {
	Events         *service.EventService
	Registrations  *service.RegistrationService
	Auth           *Authenticator
	Health         Pinger
	Logger         zerolog.Logger
	AllowedOrigins []string
}

// NewRouter builds the chi router. Event reads, health and metrics are
// public; everything else requires a bearer token.
func NewRouter(cfg RouterConfig) http.Handler {
	eventHandler := NewEventHandler(cfg.Events)
	regHandler := NewRegistrationHandler(cfg.Registrations)

	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(cfg.Logger))
	r.Use(CORS(cfg.AllowedOrigins))
	r.Use(metrics.Middleware)

	r.Get("/health", HealthCheck(cfg.Health))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/events", func(r chi.Router) {
		r.Get("/", eventHandler.ListEvents)
		r.Get("/{id}", eventHandler.GetEvent)

		r.Group(func(r chi.Router) {
			r.Use(cfg.Auth.RequireUser)
			r.Post("/", eventHandler.CreateEvent)
			r.Post("/{id}/register", regHandler.Register)
			r.Get("/{id}/registrations", eventHandler.ListRegistrations)
		})
	})

	r.With(cfg.Auth.RequireUser).Get("/me/tickets", regHandler.MyTickets)

	return r
}
