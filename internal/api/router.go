package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/glowdesk/salon-capacity/internal/booking"
	"github.com/glowdesk/salon-capacity/internal/settings"
)

type RouterConfig struct {
	Booking  *booking.Service
	Settings *settings.Service
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Env      string
	Version  string
	Logger   zerolog.Logger

	// Timezone interprets date query parameters. Must match the zone the
	// booking service was built with.
	Timezone *time.Location
}

func NewRouter(cfg RouterConfig) http.Handler {
	loc := cfg.Timezone
	if loc == nil {
		loc = time.Local
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Booking endpoints
	r.Post("/bookings", bookHandler(cfg.Booking))
	r.Get("/bookings", listAppointmentsHandler(cfg.Booking, loc))
	r.Get("/bookings/{id}", getAppointmentHandler(cfg.Booking))
	r.Post("/bookings/{id}/confirm", transitionHandler(cfg.Booking.Confirm))
	r.Post("/bookings/{id}/cancel", transitionHandler(cfg.Booking.Cancel))
	r.Post("/bookings/{id}/complete", transitionHandler(cfg.Booking.Complete))

	// Availability and capacity views
	r.Get("/availability", availabilityHandler(cfg.Booking, loc))
	r.Get("/capacity/check", capacityCheckHandler(cfg.Booking))
	r.Get("/capacity/dashboard", dashboardHandler(cfg.Booking, loc))

	// Settings management (admin collaborator surface)
	r.Get("/settings", getSettingsHandler(cfg.Settings))
	r.Put("/settings", updateSettingsHandler(cfg.Settings))

	return r
}
