package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/palaver-chat/palaver/internal/api/middleware"
	"github.com/palaver-chat/palaver/internal/gateway"
	"github.com/palaver-chat/palaver/internal/handlers"
)

// NewRouter creates and configures the HTTP router. redisClient may be
// nil, which disables rate limiting.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, gw *gateway.Gateway, redisClient *redis.Client) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	r.Use(middleware.SecurityHeaders)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	limiter := middleware.NewRateLimiter(redisClient, logger)
	r.Use(limiter.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/health", h.Health)
	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodySize(8 * 1024))
		r.Use(middleware.ValidateRequest)

		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/password/reset", h.ResetPassword)
		r.Post("/password/redeem", h.RedeemReset)
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(h.Tokens.RequireAuth)

		// The upgrade and uploads carry their own body handling.
		r.Get("/ws", gw.Handle)
		r.Post("/uploads", h.Upload)
		r.Delete("/uploads/*", h.DeleteUpload)

		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodySize(64 * 1024))
			r.Use(middleware.ValidateRequest)

			r.Get("/accounts", h.ListAccounts)
			r.Get("/accounts/find", h.FindByPhone)
			r.Get("/accounts/{id}", h.GetAccount)
			r.Put("/profile", h.UpdateProfile)

			r.Get("/contacts", h.ListContacts)
			r.Post("/contacts", h.AddContact)
			r.Get("/presence/{id}", h.GetPresence)

			r.Post("/conversations", h.CreateGroup)
			r.Get("/conversations", h.ListGroups)
			r.Get("/conversations/direct/{userId}", h.ResolveDirect)
			r.Post("/conversations/{id}/members", h.AddMember)
			r.Post("/conversations/{id}/background", h.SetBackground)
			r.Get("/conversations/{id}/messages", h.GetMessages)
			r.Post("/conversations/{id}/messages", h.PostMessage)
			r.Post("/conversations/{id}/messages/{msgID}/seen", h.MarkSeen)
			r.Get("/conversations/{id}/media", h.GetMedia)
		})
	})

	return r
}
