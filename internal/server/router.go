package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ZargorNET/sponsormanager/internal/middleware"
)

// DefaultCookieMaxAge is the lifetime of the federated session cookie.
const DefaultCookieMaxAge = 30 * 24 * time.Hour

// RouterOptions controls the construction of the HTTP router.
type RouterOptions struct {
	IAMService     iamService
	Health         *HealthChecker
	FrontendURL    string
	CookieMaxAge   time.Duration
	CORSOptions    *cors.Options
	Middleware     []func(http.Handler) http.Handler
	MetricsHandler http.Handler
	Logger         *zap.SugaredLogger
}

// DefaultCORSOptions returns the development CORS policy for the frontend.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// NewRouter assembles a chi.Router with shared middleware, CORS policy, and
// the API handlers mounted.
func NewRouter(opts RouterOptions) chi.Router {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	cookieMaxAge := opts.CookieMaxAge
	if cookieMaxAge <= 0 {
		cookieMaxAge = DefaultCookieMaxAge
	}
	frontendURL := opts.FrontendURL
	if frontendURL == "" {
		frontendURL = "/"
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(chimiddleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	if opts.MetricsHandler != nil {
		r.Handle("/metrics", opts.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		if opts.Health != nil {
			r.Get("/health", opts.Health.Handler())
		}

		if opts.IAMService == nil {
			log.Warnw("skipping auth routes: IAM service not available")
			return
		}
		svc := opts.IAMService

		r.Post("/login", HandleLogin(svc, log))
		r.Get("/login/oidc", HandleFederatedLogin(svc, log))
		r.Get("/login/code", HandleFederatedCallback(svc, frontendURL, cookieMaxAge, log))
		r.Post("/logout", HandleLogout())

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authn(svc, log))
			r.Get("/whoami", HandleWhoAmI(log))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin(log))
				r.Get("/settings/admins", HandleListAdmins(svc, log))
				r.Put("/settings/admins", HandleUpdateAdmins(svc, log))
			})
		})
	})

	return r
}

// requestLogger logs one line per request through zap.
func requestLogger(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		})
	}
}
