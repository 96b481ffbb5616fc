package api

import (
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/go-chi/chi/v5"

	"github.com/homecinema/homecinema/internal/api/handler"
	"github.com/homecinema/homecinema/internal/api/middleware"
	"github.com/homecinema/homecinema/internal/authz"
	"github.com/homecinema/homecinema/internal/catalog"
	"github.com/homecinema/homecinema/internal/media"
	"github.com/homecinema/homecinema/internal/membership"
	"github.com/homecinema/homecinema/internal/ratelimit"
)

// authenticateRoute labels the login rate limiter in keys and metrics.
const authenticateRoute = "/api/account/authenticate"

// MetricsRecorder instruments the router. *metrics.Metrics satisfies it.
type MetricsRecorder interface {
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
	ObserveRateLimited(route string)
}

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Membership        handler.MembershipService
	Gate              middleware.Authorizer
	Catalog           catalog.Repository
	Images            media.ImageStore // nil disables image upload
	DBPinger          handler.DBPinger
	Metrics           MetricsRecorder // optional
	LoginLimiter      ratelimit.Limiter // optional
	RegistrationRoles []int
	MaxUploadBytes    int64
	Version           string
	OpenAPISpec       []byte
}

// NewRouter creates and configures a Chi router with all middleware and routes.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(chimiddleware.Logger)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	healthHandler := handler.NewHealthHandler(deps.DBPinger, deps.Version)
	r.Get("/health", healthHandler.ServeHTTP)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	if len(deps.OpenAPISpec) > 0 {
		openapiHandler := handler.NewOpenAPIHandler(deps.OpenAPISpec)
		r.Get("/openapi.json", openapiHandler.ServeHTTP)
	}

	admin := middleware.Authorize(deps.Gate, authz.RequireRoles(membership.RoleAdmin))

	accountHandler := handler.NewAccountHandler(deps.Membership, deps.RegistrationRoles)
	userHandler := handler.NewUserHandler(deps.Membership)
	movieHandler := handler.NewMovieHandler(deps.Catalog)

	r.Route("/api", func(r chi.Router) {
		r.Route("/account", func(r chi.Router) {
			r.With(loginLimit(deps)...).Post("/authenticate", accountHandler.Authenticate)
			r.Post("/register", accountHandler.Register)
		})

		r.Get("/genres", movieHandler.Genres)
		r.Get("/movies", movieHandler.List)
		r.Get("/movies/latest", movieHandler.Latest)

		r.Group(func(r chi.Router) {
			r.Use(admin)

			r.Get("/roles", userHandler.ListRoles)
			r.Post("/users", userHandler.Create)
			r.Get("/users/{id}", userHandler.GetByID)
			r.Get("/users/{id}/roles", userHandler.Roles)
			r.Put("/users/{id}/lock", userHandler.SetLocked)

			r.Post("/movies", movieHandler.Create)
			r.Get("/movies/{id}", movieHandler.GetByID)
			r.Put("/movies/{id}", movieHandler.Update)

			if deps.Images != nil {
				uploadHandler := handler.NewUploadHandler(deps.Catalog, deps.Images, deps.MaxUploadBytes)
				r.Post("/movies/{id}/image", uploadHandler.Upload)
			}
		})
	})

	return r
}

func loginLimit(deps RouterDeps) []func(http.Handler) http.Handler {
	if deps.LoginLimiter == nil {
		return nil
	}
	var onLimited func(string)
	if deps.Metrics != nil {
		onLimited = deps.Metrics.ObserveRateLimited
	}
	return []func(http.Handler) http.Handler{middleware.RateLimit(deps.LoginLimiter, authenticateRoute, onLimited)}
}
