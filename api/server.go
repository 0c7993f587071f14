/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from X-Forwarded-For / X-Real-IP
  3. Logger:     zap access log (middleware.go)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the timesheet frontend
  6. RateLimit:  Per-user token bucket, 429 when exhausted

ROUTE GROUPS:
  /api/toil/recompute, /api/toil/durations   Pure engine, no user needed
  /api/employees/{id}/toil/*                 Employee's own week, balance, submissions
  /api/toil/submissions/*                    Cancel and approver actions
  /api/toil/balances/{id}                    Opening balance, set by someone else
  /healthz                                   Liveness + database ping

SECURITY NOTE:
  Authentication is not part of this service. The acting user arrives in
  the X-User-ID header, set by the gateway in front of it.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// RouterOptions carries the tunable parts of the middleware stack.
type RouterOptions struct {
	AllowedOrigins []string
	RateLimit      rate.Limit
	RateBurst      int
}

// DefaultRouterOptions matches the configuration defaults.
func DefaultRouterOptions() RouterOptions {
	return RouterOptions{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		RateLimit:      10,
		RateBurst:      20,
	}
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", UserHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimit(NewRateLimiter(opts.RateLimit, opts.RateBurst)))

		// Pure engine
		r.Route("/toil", func(r chi.Router) {
			r.Post("/recompute", h.Recompute)
			r.Get("/durations", h.NormalizeDuration)

			// Submission actions by id
			r.Route("/submissions", func(r chi.Router) {
				r.Use(RequireUser)
				r.Get("/pending", h.ListPendingSubmissions)
				r.Get("/{sid}", h.GetSubmission)
				r.Post("/{sid}/cancel", h.CancelSubmission)
				r.Post("/{sid}/approve", h.ApproveSubmission)
				r.Post("/{sid}/reject", h.RejectSubmission)
			})

			// Administrative balance changes, never on one's own balance
			r.With(RequireUser).Put("/balances/{id}", h.SetBalance)
		})

		// Employee's own lieu time
		r.Route("/employees/{id}/toil", func(r chi.Router) {
			r.Use(RequireUser)
			r.Use(RequireSelf)
			r.Get("/balance", h.GetBalance)
			r.Get("/weeks/{date}", h.GetWeek)
			r.Post("/weeks/{date}/submit", h.SubmitWeek)
			r.Put("/entries/{date}", h.SaveEntry)
			r.Get("/submissions", h.ListUserSubmissions)
		})
	})

	return r
}
