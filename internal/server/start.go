package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	reapInterval    = time.Minute
	mountIdleTime   = 2 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// StartBackground starts the browser bridge, the pusher and the reaper of
// abandoned dashboards. They run until ctx ends.
func (s *Server) StartBackground(ctx context.Context) error {
	go s.bridge.Run(ctx)
	if err := s.pusher.Start(ctx, s.bus); err != nil {
		return err
	}
	go s.reap(ctx)
	return nil
}

func (s *Server) reap(ctx context.Context) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.registry.Reap(mountIdleTime); n > 0 {
				slog.Info("Reaped abandoned dashboards", "count", n)
			}
		}
	}
}

// Start runs the HTTP server until SIGINT or SIGTERM, then shuts down.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Background work outlives the signal so Shutdown can still reach the
	// open dashboards.
	background, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	if err := s.StartBackground(background); err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", s.cfg.Addr, "backend", s.cfg.BackendURL)
		errc <- s.E.Start(s.cfg.Addr)
	}()

	var serveErr error
	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
		slog.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(serveErr, s.Shutdown(shutdownCtx))
}
