// Package server exposes the engine over HTTP. Handlers stay thin: decode,
// delegate, map errors to status codes.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/hazard-engine/internal/engine"
	"github.com/sells-group/hazard-engine/internal/model"
)

// Config controls router behavior.
type Config struct {
	// Bounds is the default viewport when a request omits one.
	Bounds model.BBox
	// RouteRatePerS throttles route planning, the most expensive endpoint.
	// Zero disables the limiter.
	RouteRatePerS float64
	RouteRateBurst int
}

// Server holds the engine and request policy.
type Server struct {
	engine  *engine.Engine
	cfg     Config
	limiter *rate.Limiter
	log     *zap.Logger
}

// New creates a Server around the engine.
func New(e *engine.Engine, cfg Config) *Server {
	s := &Server{
		engine: e,
		cfg:    cfg,
		log:    zap.L().With(zap.String("component", "server")),
	}
	if cfg.RouteRatePerS > 0 {
		burst := cfg.RouteRateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RouteRatePerS), burst)
	}
	return s
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)

	r.Route("/issues", func(r chi.Router) {
		r.Post("/", s.handleSubmitIssue)
		r.Get("/nearby", s.handleNearby)
		r.Post("/assess-batch", s.handleBatchAssess)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetIssue)
			r.Patch("/status", s.handleUpdateStatus)
			r.Post("/assess", s.handleRecompute)
		})
	})

	r.Get("/clusters", s.handleClusters)
	r.Get("/heatmap", s.handleHeatmap)
	r.Get("/neighborhoods", s.handleNeighborhoods)
	r.Get("/alerts", s.handleAlerts)
	r.With(s.throttleRoutes).Post("/route", s.handlePlanRoute)

	return r
}

// requestLogger logs completed requests with latency.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// throttleRoutes rejects planning requests over the configured rate.
func (s *Server) throttleRoutes(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "route planning rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
