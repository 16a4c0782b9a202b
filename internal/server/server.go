// Package server hosts the ordered store over HTTP: a REST API for reads
// and writes and a WebSocket snapshot stream per collection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/grocery-sync/internal/config"
	"github.com/vyrodovalexey/grocery-sync/internal/handler"
	"github.com/vyrodovalexey/grocery-sync/internal/middleware"
)

// HTTP limits applied to every connection.
const (
	readTimeout       = 15 * time.Second
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 15 * time.Second
	idleTimeout       = 60 * time.Second
	maxHeaderBytes    = 1 << 20
)

// Server exposes a store to remote clients.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	router  *mux.Router
	streams *handler.WebSocketHandler
	http    *http.Server
}

// New wires the REST and stream handlers for st behind the middleware chain.
func New(cfg *config.Config, logger *zap.Logger, st handler.Store) *Server {
	router := mux.NewRouter()

	// Recovery runs first so it also covers the other middleware.
	chain := []middleware.Middleware{
		middleware.Recovery(logger),
		middleware.RequestID(),
	}
	if cfg.MetricsEnabled {
		chain = append(chain, middleware.Metrics())
	}
	chain = append(chain, middleware.Logging(logger), middleware.CORS(cfg.CORSOrigins))
	router.Use(mux.MiddlewareFunc(middleware.Chain(chain...)))

	handler.NewRESTHandler(st, logger).RegisterRoutes(router)
	streams := handler.NewWebSocketHandler(st, logger)
	streams.RegisterRoutes(router)
	if cfg.MetricsEnabled {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	return &Server{
		cfg:     cfg,
		logger:  logger,
		router:  router,
		streams: streams,
		http: &http.Server{
			Addr:              cfg.Address(),
			Handler:           router,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: readHeaderTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
			MaxHeaderBytes:    maxHeaderBytes,
		},
	}
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("store server listening",
		zap.String("address", s.http.Addr),
		zap.Bool("metrics_enabled", s.cfg.MetricsEnabled),
		zap.Strings("cors_origins", s.cfg.CORSOrigins),
	)

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("serving store: %w", err)
}

// Shutdown ends snapshot streams, then drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	// Hijacked connections are invisible to http.Server.Shutdown.
	open := s.streams.ClientCount()
	s.streams.CloseAllConnections()
	s.logger.Info("snapshot streams closed", zap.Int("streams", open))

	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("draining requests: %w", err)
	}
	s.logger.Info("store server stopped")
	return nil
}

// Router returns the configured router, for in-process tests.
func (s *Server) Router() *mux.Router {
	return s.router
}
