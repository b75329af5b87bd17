package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/aryangodara/secure_gate"
)

// RouterConfig aggregates dependencies shared by the router and its middleware.
type RouterConfig struct {
	Logger  *slog.Logger
	Handler *Handler
	// Limiter backs the per-IP throttle on /auth.
	Limiter *secure_gate.RateLimiter

	Production           bool
	IPLimitPerMinute     int
	AuthIPLimitPerMinute int
}

// NewRouter builds the chi router with the middleware chain installed.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		secureHeaders(logger, cfg.Production),
	)
	if cfg.IPLimitPerMinute > 0 {
		r.Use(httprate.LimitByIP(cfg.IPLimitPerMinute, time.Minute))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Route("/auth", func(r chi.Router) {
		if cfg.Limiter != nil && cfg.AuthIPLimitPerMinute > 0 {
			r.Use(secure_gate.NewHTTPRateLimiterMiddleware(&secure_gate.RateLimiterConfig{
				Extractor:   secure_gate.NewRemoteIPExtractor(),
				Limiter:     cfg.Limiter,
				KeyPrefix:   "http-auth-",
				Expiration:  time.Minute,
				MaxRequests: uint64(cfg.AuthIPLimitPerMinute),
				Logger:      logger,
			}))
		}
		cfg.Handler.MountAuthRoutes(r)
	})
	r.Route("/admin", cfg.Handler.MountAdminRoutes)

	return r
}

func secureHeaders(logger *slog.Logger, production bool) func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := secureMiddleware.Process(w, r); err != nil {
				logger.Warn("secure headers blocked request", slog.Any("error", err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
