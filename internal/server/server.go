// Package server exposes chat command handling over HTTP, together with
// health, history and Prometheus endpoints, for chat bridges that cannot
// embed nodetalk directly.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/nodetalk/internal/command"
	"github.com/flemzord/nodetalk/internal/history"
)

// CommandRunner handles one chat command. *command.Pipeline implements it.
type CommandRunner interface {
	Run(ctx context.Context, cc command.CommandContext) command.Result
}

// HistoryReader lists recent invocations. *history.Store implements it.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Record, error)
}

// Config holds the server dependencies and settings.
type Config struct {
	Bind            string
	BearerToken     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	Commands CommandRunner

	// History is optional; without it /v1/history answers 404.
	History HistoryReader

	// Gatherer backs /metrics. Nil uses prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Probe reports gateway reachability for /health. Nil skips the check.
	Probe func(ctx context.Context) error

	Version string
	Logger  *slog.Logger
}

// Server is the HTTP command surface.
type Server struct {
	config    Config
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New validates cfg and builds a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Commands == nil {
		return nil, errors.New("server: no command runner configured")
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{config: cfg, logger: logger, startedAt: time.Now()}
	s.server = &http.Server{
		Addr:         cfg.Bind,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Run listens on the configured address and serves until ctx is done,
// then shuts down gracefully within ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Bind)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.config.Bind, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
