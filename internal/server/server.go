// Package server wires the application together: routes, middleware,
// and the dependency chain from HTTP down to storage and Docker.
//
// This is the composition root. Everything below it receives interfaces
// and knows nothing about what implements them; everything above it
// (main.go) only loads configuration and calls Start.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/pairview/internal/config"
	"github.com/sakif/pairview/internal/coordinator"
	"github.com/sakif/pairview/internal/executor"
	"github.com/sakif/pairview/internal/gateway"
	"github.com/sakif/pairview/internal/handler"
	"github.com/sakif/pairview/internal/hub"
	"github.com/sakif/pairview/internal/language"
	"github.com/sakif/pairview/internal/middleware"
	sqliteRepo "github.com/sakif/pairview/internal/repository/sqlite"
	"github.com/sakif/pairview/internal/sandbox"
	"github.com/sakif/pairview/internal/ws"
)

// Server owns the HTTP surface and the resources that must be released
// on shutdown: the database, the Docker client, and the bus connection.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger

	db      *sqliteRepo.DB
	sandbox *sandbox.Runner // nil when no Docker runtime is available
	bus     *hub.RedisBus   // nil when running single-instance
}

// New assembles the full dependency chain.
//
// A missing Docker daemon is not fatal: the server comes up with the
// local execution path disabled and gateway languages still working.
// A configured-but-unreachable Redis IS fatal — the operator asked for
// cross-instance fan-out, silently degrading to single-instance would
// split sessions between nodes.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.Server.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
	}

	languages := language.NewTable(cfg.LanguageOverrides())

	var local executor.Executor
	limiter := sandbox.NewLimiter(cfg.Execution.MaxConcurrent, cfg.Execution.QueueWait)
	runner, err := sandbox.New(languages, limiter, logger)
	if err != nil {
		logger.Warn("local sandbox disabled, docker unavailable",
			slog.String("error", err.Error()))
	} else {
		s.sandbox = runner
		local = runner
	}

	remote := gateway.NewClient(cfg.Gateway.BaseURL, languages, gateway.RetryPolicy{
		MaxAttempts: cfg.Gateway.RetryCount,
		Delay:       cfg.Gateway.RetryDelay,
	}, logger)

	coord := coordinator.New(db, db, languages, local, remote, cfg.Execution.MaxCodeChars, logger)

	sessionHub := hub.New(coord, logger)
	if cfg.Bus.RedisAddr != "" {
		bus, err := hub.NewRedisBus(cfg.Bus.RedisAddr, cfg.Bus.Channel, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connecting to redis bus: %w", err)
		}
		s.bus = bus
		sessionHub.AttachBus(bus)
		logger.Info("cross-instance bus attached",
			slog.String("addr", cfg.Bus.RedisAddr),
			slog.String("channel", cfg.Bus.Channel),
		)
	}

	s.setupRoutes(coord, sessionHub, languages)

	return s, nil
}

func (s *Server) setupRoutes(coord *coordinator.Coordinator, sessionHub *hub.Hub, languages *language.Table) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	sessionHandler := handler.NewSessionHandler(s.db, languages, s.logger)
	executeHandler := handler.NewExecuteHandler(coord, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/languages", sessionHandler.HandleLanguages)
		r.Post("/sessions", sessionHandler.HandleCreate)
		r.Get("/sessions/{id}", sessionHandler.HandleGet)
		r.Post("/sessions/{id}/execute", executeHandler.HandleExecute)
		r.Get("/sessions/{id}/executions", executeHandler.HandleHistory)
	})

	s.router.Handle("/ws", ws.NewHandler(sessionHub, s.logger))
}

// Start runs the server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, give in-flight requests 30
// seconds, then release the database, Docker client, and bus.
func (s *Server) Start() error {
	defer s.close()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler: s.router,
		// ReadHeaderTimeout only — full read/write timeouts would kill
		// long-lived WebSocket connections.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Server.Port),
			slog.String("database", s.cfg.Server.DBPath),
			slog.Bool("localSandbox", s.sandbox != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) close() {
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.logger.Warn("closing bus", slog.String("error", err.Error()))
		}
	}
	if s.sandbox != nil {
		if err := s.sandbox.Close(); err != nil {
			s.logger.Warn("closing docker client", slog.String("error", err.Error()))
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}
