package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/pribylovaa/go-local-auth/internal/http/handlers"
	"github.com/pribylovaa/go-local-auth/internal/http/middleware"
	"github.com/pribylovaa/go-local-auth/internal/metrics"
	"github.com/pribylovaa/go-local-auth/internal/token"
)

// Options: параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // например, "/api"; если пустой: роуты регистрируются на корне.
	Metrics  *metrics.Metrics
	// CORSOrigins: пустой список отключает CORS.
	CORSOrigins []string
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc handlers.AuthService, tm *token.Manager, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	// Recover внутри Logging и Metrics: восстановленная паника попадает
	// в запись "http" и в счётчик как 500.
	root.Use(
		middleware.RequestID(),          // до логирования, чтобы id попал в логгер
		middleware.Logging(opts.Logger), // request-scoped логгер в контексте
		middleware.Metrics(opts.Metrics),
		middleware.Recover(),
		middleware.Timeout(opts.Timeout),
	)

	h := handlers.New(svc)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, tm)
		root.Mount(opts.BasePath, sub)
	} else {
		registerRoutes(root, h, tm)
	}

	if len(opts.CORSOrigins) == 0 {
		return root
	}

	return cors.New(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
	}).Handler(root)
}

// registerRoutes: единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, tm *token.Manager) {
	// public
	r.Group(func(r chi.Router) {
		r.Post("/auth/local/signup", h.SignUp)
		r.Post("/auth/local/signin", h.SignIn)
	})

	// access token
	r.Group(func(r chi.Router) {
		r.Use(middleware.AccessGuard(tm))
		r.Post("/auth/logout", h.Logout)
		r.Get("/auth/me", h.Me)
	})

	// refresh token
	r.Group(func(r chi.Router) {
		r.Use(middleware.RefreshGuard(tm))
		r.Post("/auth/refresh", h.Refresh)
	})
}
