// Package server exposes lineage extraction over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/leapstack-labs/lineagekit/internal/connection"
	"github.com/leapstack-labs/lineagekit/internal/state"
	"github.com/leapstack-labs/lineagekit/pkg/core"
	"github.com/leapstack-labs/lineagekit/pkg/extractor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// RecordStore persists extracted metadata.
type RecordStore interface {
	SaveRecord(ctx context.Context, md *core.Metadata) (*state.Record, error)
	History(ctx context.Context, taskName string, limit int) ([]*state.Record, error)
}

// Server serves the extraction API.
type Server struct {
	extractors  *extractor.Extractors
	records     RecordStore
	connections connection.Resolver
	addr        string
	corsOrigins []string
	concurrency int
	logger      *slog.Logger
}

// Config holds configuration for the server.
type Config struct {
	Extractors *extractor.Extractors

	// Records, if set, stores every successful extraction and serves history.
	Records RecordStore

	// Connections, if set, serves connection lookups.
	Connections connection.Resolver

	Addr        string
	CORSOrigins []string

	// Concurrency caps parallel extractions in batch requests.
	Concurrency int

	Logger *slog.Logger
}

// New creates a server. A nil Extractors uses extractor.Default.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	extractors := cfg.Extractors
	if extractors == nil {
		extractors = extractor.Default(logger)
	}
	return &Server{
		extractors:  extractors,
		records:     cfg.Records,
		connections: cfg.Connections,
		addr:        cfg.Addr,
		corsOrigins: cfg.CORSOrigins,
		concurrency: cfg.Concurrency,
		logger:      logger,
	}
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		metricsMiddleware,
	)
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/extract", s.handleExtract)
		r.Post("/extract/batch", s.handleExtractBatch)
		r.Post("/parse", s.handleParse)
		r.Get("/dialects", s.handleDialects)
		r.Get("/connections/{id}", s.handleConnection)
		r.Get("/tasks/{name}/history", s.handleHistory)
	})

	return r
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until the context is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting lineage server", "addr", "http://"+ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down lineage server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
