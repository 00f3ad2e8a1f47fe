package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	ahotel "github.com/Strob0t/AppHub/internal/adapter/otel"
	"github.com/Strob0t/AppHub/internal/middleware"
	"github.com/Strob0t/AppHub/internal/port/cache"
)

// RouterOptions configures the middleware stack built by NewRouter.
type RouterOptions struct {
	CORSOrigin     string
	RequestTimeout time.Duration
	ServiceName    string
	// RateLimiter is optional; nil disables per-IP limiting.
	RateLimiter *middleware.RateLimiter
	// IdempotencyStore is optional; nil disables Idempotency-Key replay.
	IdempotencyStore cache.Cache
	IdempotencyTTL   time.Duration
}

// NewRouter builds the chi router with the standard middleware stack and all
// routes mounted.
func NewRouter(h *Handlers, opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(CORS(opts.CORSOrigin))
	r.Use(SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger)
	r.Use(chimw.Recoverer)
	if opts.ServiceName != "" {
		r.Use(ahotel.HTTPMiddleware(opts.ServiceName))
	}
	if opts.RateLimiter != nil {
		r.Use(opts.RateLimiter.Handler)
	}
	r.Use(middleware.AccountID)

	r.Get("/health", h.HealthCheck)

	// Websocket connections outlive the request timeout.
	r.Get("/ws", h.HandleWS)

	r.Group(func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(chimw.Timeout(opts.RequestTimeout))
		}
		MountRoutes(r, h, opts)
	})
	return r
}

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, opts RouterOptions) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Installed apps
		r.Get("/installed-apps", h.ListInstalledApps)
		if opts.IdempotencyStore != nil {
			r.With(middleware.Idempotency(opts.IdempotencyStore, opts.IdempotencyTTL)).
				Post("/installed-apps", h.InstallApp)
		} else {
			r.Post("/installed-apps", h.InstallApp)
		}
		r.Delete("/installed-apps/{id}", h.UninstallApp)
		r.Patch("/installed-apps/{id}", h.UpdateInstalledApp)
		r.Post("/installed-apps/{id}/usage", h.RecordUsage)

		// Tenants
		r.Patch("/tenants/{id}", h.RenameTenant)
	})
}
