// Package server exposes the backend's JSON-over-HTTP RPC surface
// (spec §6): quote reads, policy creation, capital commitment and
// withdrawal, and the status/lookup reads a frontend polls. Routing,
// CORS and lifecycle follow the pack's network-controls server
// (gorilla/mux + rs/cors + justinas/alice middleware chain, a
// *http.Server with explicit Read/WriteTimeout, graceful Shutdown).
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/bithedge/backend/internal/allocator"
	"github.com/bithedge/backend/internal/config"
	"github.com/bithedge/backend/internal/policy"
	"github.com/bithedge/backend/internal/quote"
	"github.com/bithedge/backend/internal/store"
	"github.com/bithedge/backend/internal/txengine"
)

// Server owns the RPC HTTP listener.
type Server struct {
	logger     zerolog.Logger
	httpServer *http.Server
	handler    *Handler
}

// New builds the router, wraps it with CORS + logging middleware, and
// prepares (but does not start) the HTTP listener.
func New(logger zerolog.Logger, cfg config.Server, db *store.DB, quoteEngine *quote.Engine, orchestrator *policy.Orchestrator, alloc *allocator.Allocator, engine *txengine.Engine) (*Server, error) {
	writeTimeout, err := config.ParseDuration(cfg.WriteTimeout, 15*time.Second)
	if err != nil {
		return nil, err
	}
	readTimeout, err := config.ParseDuration(cfg.ReadTimeout, 15*time.Second)
	if err != nil {
		return nil, err
	}

	h := NewHandler(logger, db, quoteEngine, orchestrator, alloc, engine)

	router := mux.NewRouter()
	h.RegisterRoutes(router)

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		Debug:            cfg.VerboseCORS,
	})

	chain := alice.New(loggingMiddleware(logger), corsMiddleware.Handler)

	return &Server{
		logger:  logger.With().Str("module", "rpc_server").Logger(),
		handler: h,
		httpServer: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      chain.Then(router),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}, nil
}

// Start runs the HTTP listener in a goroutine; ListenAndServe errors
// other than http.ErrServerClosed are logged, not returned, since this
// is meant to be launched as a background goroutine by cmd/bithedge.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("rpc server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("rpc server stopped unexpectedly")
		}
	}()
}

// Stop gracefully shuts the HTTP listener down, waiting up to 10s for
// in-flight requests to finish.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func loggingMiddleware(logger zerolog.Logger) alice.Constructor {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("elapsed", time.Since(start)).
				Msg("rpc request")
		})
	}
}
