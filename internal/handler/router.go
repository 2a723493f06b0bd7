// Package handler exposes the friend and split services over HTTP with chi.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/mmynk/splitbill/internal/auth"
	"github.com/mmynk/splitbill/internal/metrics"
	"github.com/mmynk/splitbill/internal/middleware"
	"github.com/mmynk/splitbill/internal/service"
)

// maxBodyBytes caps request bodies. Receipts with hundreds of lines stay well below it.
const maxBodyBytes = 1 << 20

// HealthChecker is satisfied by the store.
type HealthChecker interface {
	Ping(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int64, error)
}

// Config holds the options for NewRouter.
type Config struct {
	Friends *service.FriendService
	Splits  *service.SplitService
	Health  HealthChecker
	Metrics *metrics.Metrics

	// Auth validates API bearer tokens. Nil disables authentication.
	Auth *auth.JWTManager

	AllowedOrigins     []string
	RateLimitPerMinute int
}

// Handler serves the /v1 API.
type Handler struct {
	friends *service.FriendService
	splits  *service.SplitService
}

// NewRouter returns a chi.Mux with the standard middleware stack and every route mounted.
//
// Middleware order (outermost → innermost):
//  1. Recoverer     : turns panics into 500s
//  2. RequestID     : unique X-Request-Id per request
//  3. RequestLogger : logs and times every request
//  4. RealIP        : sets RemoteAddr from X-Forwarded-For
//  5. RateLimit     : per-IP requests per minute (0 disables)
//  6. CORS          : cross-origin preflight and headers
//
// /healthz and /metrics are outside bearer authentication.
func NewRouter(cfg Config) *chi.Mux {
	h := &Handler{friends: cfg.Friends, splits: cfg.Splits}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(
		chimw.Recoverer,
		chimw.RequestID,
		middleware.RequestLogger(cfg.Metrics),
		chimw.RealIP,
	)
	if cfg.RateLimitPerMinute > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", healthHandler(cfg.Health))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(cfg.Auth))
		r.Use(limitBody(maxBodyBytes))

		r.Route("/friends", func(r chi.Router) {
			r.Get("/", h.listFriends)
			r.Post("/", h.addFriend)
			r.Get("/me", h.getOwner)
			r.Get("/{id}", h.getFriend)
			r.Patch("/{id}", h.updateFriend)
			r.Delete("/{id}", h.deleteFriend)
		})

		r.Route("/splits", func(r chi.Router) {
			r.Get("/", h.listSplits)
			r.Post("/", h.saveSplit)
			r.Post("/calculate", h.calculateSplit)
			r.Get("/{id}", h.getSplit)
			r.Delete("/{id}", h.deleteSplit)
			r.Post("/{id}/share", h.shareSplit)
		})

		r.Post("/receipts/recognize", h.recognizeReceipt)
	})

	return r
}

// limitBody caps the request body at maxBytes.
func limitBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
