package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mcqkaramu/server/internal/auth"
	"github.com/mcqkaramu/server/internal/http/handlers"
	"github.com/mcqkaramu/server/internal/middleware"
)

// RouterDeps are the collaborators mounted by NewRouter
type RouterDeps struct {
	Auth         *handlers.AuthHandler
	Subscription *handlers.SubscriptionHandler
	Health       *handlers.HealthHandler
	Oracle       auth.IdentityOracle
	Sessions     middleware.DeviceValidator
	RateLimiter  *middleware.RateLimiter
	Metrics      http.Handler
	Logger       *slog.Logger
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(d RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(d.Logger))
	r.Use(chimw.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"apiStatus":"error","message":"Page not found"}`))
	})

	r.Get("/health", d.Health.ServeHTTP)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Group(func(r chi.Router) {
		if d.RateLimiter != nil {
			r.Use(d.RateLimiter.Middleware())
		}
		r.Use(middleware.AuthMiddleware(d.Oracle))

		// device registration must work from a new device, so /auth is not device-locked
		r.Route("/auth", func(r chi.Router) {
			r.Get("/subscriber-id", d.Auth.HandleGetSubscriberID)
			r.Post("/update-device", d.Auth.HandleUpdateDevice)
			r.Get("/check-device", d.Auth.HandleCheckDevice)
		})

		r.Route("/subscription", func(r chi.Router) {
			r.Use(middleware.SessionMiddleware(d.Sessions))
			r.Post("/otp/request", d.Subscription.HandleOTPRequest)
			r.Post("/otp/verify", d.Subscription.HandleOTPVerify)
			r.Post("/unsubscribe", d.Subscription.HandleUnsubscribe)
			r.Post("/get-status", d.Subscription.HandleGetStatus)
			r.Post("/get-charging-info", d.Subscription.HandleGetChargingInfo)
		})
	})

	return r
}
