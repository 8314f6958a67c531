// internal/server/server.go
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-rpcmux/internal/solrpc"
)

// StatsSource produces the snapshot served on /stats.
type StatsSource interface {
	Stats() solrpc.Snapshot
}

// Server is the local admin surface: health, stats, recent events and
// Prometheus metrics. It is meant to listen on loopback.
type Server struct {
	router *chi.Mux
	server *http.Server
	addr   string
	stats  StatsSource
	logger *zap.Logger

	recent eventRing
}

// New builds the admin server. It does not start listening until Start.
func New(addr string, stats StatsSource, logger *zap.Logger) *Server {
	s := &Server{
		addr:   addr,
		stats:  stats,
		logger: logger.Named("admin"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})

	r.Get("/healthz", s.handleHealthz)
	r.Get("/stats", s.handleStats)
	r.Get("/events", s.handleEvents)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	s.router = r
	return s
}

// Start blocks serving HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting admin server", zap.String("addr", s.addr))
	return s.server.ListenAndServe()
}

// Shutdown stops the listener, letting in-flight requests drain.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("Shutting down admin server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}
