package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nfrund/weatherdash/internal/livesync"
)

// ShutdownNotice is shown on open dashboards when the server stops.
const ShutdownNotice = "The server is restarting. Reload the page in a moment."

// Shutdown warns open dashboards, stops accepting requests, unmounts every
// dashboard and closes the bus.
func (s *Server) Shutdown(ctx context.Context) error {
	notice := livesync.Notification{Level: livesync.LevelInfo, Message: ShutdownNotice}
	if err := s.pusher.Announce(ctx, notice); err != nil {
		slog.Warn("Failed to announce shutdown", "error", err)
	}

	var errs []error
	if err := s.E.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.registry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close dashboards: %w", err))
	}
	if err := s.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bus: %w", err))
	}
	return errors.Join(errs...)
}
