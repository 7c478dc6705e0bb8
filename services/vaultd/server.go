package vaultd

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"fracvault/core"
	"fracvault/observability"
	"fracvault/services/vaultd/journal"
	vaultmw "fracvault/services/vaultd/middleware"
)

// ServerConfig captures the dependencies required to construct the server.
type ServerConfig struct {
	Node       *core.Node
	Journal    *journal.Journal
	DB         *gorm.DB
	RateLimit  vaultmw.RateLimit
	Metrics    *observability.VaultMetrics
	Logger     *slog.Logger
	AdminToken string
}

// Server exposes the vault node over HTTP.
type Server struct {
	node       *core.Node
	journal    *journal.Journal
	db         *gorm.DB
	limiter    *vaultmw.RateLimiter
	metrics    *observability.VaultMetrics
	logger     *slog.Logger
	adminToken string

	router http.Handler
}

// NewServer builds the router around cfg.Node.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Node == nil {
		return nil, fmt.Errorf("vaultd: node required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		node:       cfg.Node,
		journal:    cfg.Journal,
		db:         cfg.DB,
		limiter:    vaultmw.NewRateLimiter(cfg.RateLimit, logger),
		metrics:    cfg.Metrics,
		logger:     logger,
		adminToken: strings.TrimSpace(cfg.AdminToken),
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(vaultmw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)
	r.Use(s.limiter.Middleware)
	r.Use(vaultmw.WithIdempotency(s.db))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "paused": s.node.Paused()})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/vaults", func(vr chi.Router) {
		vr.Post("/", s.Fractionalize)
		vr.Route("/{id}", func(one chi.Router) {
			one.Get("/", s.GetVault)
			one.Get("/holdings/{account}", s.GetHoldings)
			one.Get("/events", s.GetEvents)
			one.Post("/reclaim", s.InitiateReclaim)
			one.Post("/finalize", s.FinalizeReclaim)
			one.Post("/cancel", s.CancelReclaim)
			one.Post("/expire", s.ExpireReclaim)
			one.Post("/disburse", s.Disburse)
			one.Post("/close", s.Close)
			one.Post("/transfer", s.TransferFractions)
		})
	})
	r.Post("/accounts/{account}/deposit", s.DepositQuote)

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(s.requireAdmin)
		admin.Post("/pause", s.SetPause)
	})
	return r
}

// observe records per-route request counts and logs each request.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordHTTP(route, status)
		s.logger.Debug("http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", time.Since(started),
			"request_id", vaultmw.RequestIDFrom(r.Context()),
		)
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "admin api disabled"})
			return
		}
		presented := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if subtle.ConstantTimeCompare([]byte(presented), []byte(s.adminToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid admin token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
