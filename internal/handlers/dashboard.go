package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/weatherdash/internal/auth"
	"github.com/nfrund/weatherdash/internal/backend"
	"github.com/nfrund/weatherdash/internal/domain"
	"github.com/nfrund/weatherdash/internal/forms"
	"github.com/nfrund/weatherdash/internal/livesync"
	"github.com/nfrund/weatherdash/internal/pubsub"
	"github.com/nfrund/weatherdash/internal/stream"
	"github.com/nfrund/weatherdash/internal/view"
	"github.com/nfrund/weatherdash/internal/websocket"
	"github.com/nfrund/weatherdash/web/templates/components"
	"github.com/nfrund/weatherdash/web/templates/pages"
)

// DashboardOptions tunes the synchronizers created for new dashboards.
type DashboardOptions struct {
	FilterPushes bool
	RetryDelay   time.Duration
}

// DashboardHandler serves the live dashboard: one synchronizer per page load,
// kept in the registry under a mount id the page carries around.
type DashboardHandler struct {
	registry *livesync.Registry
	fetcher  livesync.Fetcher
	dialer   stream.Dialer
	bus      pubsub.Publisher
	bridge   *websocket.Bridge
	opts     DashboardOptions
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(registry *livesync.Registry, fetcher livesync.Fetcher, dialer stream.Dialer, bus pubsub.Publisher, bridge *websocket.Bridge, opts DashboardOptions) *DashboardHandler {
	return &DashboardHandler{
		registry: registry,
		fetcher:  fetcher,
		dialer:   dialer,
		bus:      bus,
		bridge:   bridge,
		opts:     opts,
	}
}

// DashboardGet creates a mount, runs the initial fetch and renders the page.
// The stream is opened later, when the page's websocket connects.
func (h *DashboardHandler) DashboardGet(c echo.Context) error {
	ctx := c.Request().Context()
	p := auth.FromContext(ctx)
	user, _ := p.User()

	s := h.registry.Create(livesync.Config{
		Owner:        user.Subject,
		Fetcher:      h.fetcher,
		Dialer:       h.dialer,
		Tokens:       livesync.StaticToken(p.Token(ctx)),
		Publisher:    h.bus,
		FilterPushes: h.opts.FilterPushes,
		RetryDelay:   h.opts.RetryDelay,
	})

	flashes := view.GetFlashData(c)
	if err := s.Fetch(ctx); err != nil {
		if errors.Is(err, livesync.ErrSessionExpired) {
			_ = h.registry.Remove(s.ID())
			return expireSession(c)
		}
		flashes.Error = append(flashes.Error, backend.Message(err))
	}

	return render(c, http.StatusOK, pages.Dashboard(pages.DashboardPage{
		User:    user,
		Flashes: flashes,
		MountID: s.ID(),
		Filter:  s.Filter(),
		Records: s.Records(),
		Version: s.Version(),
	}))
}

// Records applies the filter bar's selection and returns the new region.
func (h *DashboardHandler) Records(c echo.Context) error {
	s, ok := h.lookup(c)
	if !ok {
		return reload(c)
	}

	f, err := parseFilter(c, s.Filter())
	if err != nil {
		return render(c, http.StatusOK, []any{
			regionOf(s, false),
			components.Toast(string(livesync.LevelError), err.Error()),
		})
	}

	if err := s.SetFilter(c.Request().Context(), f); err != nil {
		if errors.Is(err, livesync.ErrSessionExpired) {
			_ = h.registry.Remove(s.ID())
			return expireSession(c)
		}
		// The failure toast travels over the page's socket.
		logger(c).Warn("Filter fetch failed", "mount", s.ID(), "error", err)
	}
	return render(c, http.StatusOK, regionOf(s, false))
}

// EditPanel opens the edit panel for a record of the mount's list. It
// answers from the local list; nothing is fetched.
func (h *DashboardHandler) EditPanel(c echo.Context) error {
	s, ok := h.lookup(c)
	if !ok {
		return reload(c)
	}

	id, err := forms.RecordID(c.Param("id"))
	if err == nil {
		if r, found := s.Record(id); found {
			return render(c, http.StatusOK, components.EditPanel(id, forms.FromRecord(r), nil))
		}
	}
	return render(c, http.StatusOK, []any{
		components.ClosedEditPanel(),
		components.Toast(string(livesync.LevelError), "That reading is no longer available."),
	})
}

// Stream is the page's websocket. The mount's backend stream lives exactly as
// long as this connection.
func (h *DashboardHandler) Stream(c echo.Context) error {
	s, ok := h.lookup(c)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown dashboard")
	}

	if err := s.Mount(c.Request().Context()); err != nil {
		if errors.Is(err, livesync.ErrAlreadyMounted) {
			return echo.NewHTTPError(http.StatusConflict, "dashboard already open")
		}
		return err
	}
	defer func() {
		if err := h.registry.Release(s.ID()); err != nil {
			logger(c).Warn("Failed to release dashboard", "mount", s.ID(), "error", err)
		}
	}()

	return h.bridge.Serve(c, s.ID())
}

// lookup finds the mount named by the request and checks it belongs to the
// current user.
func (h *DashboardHandler) lookup(c echo.Context) (*livesync.Synchronizer, bool) {
	id := c.QueryParam("mount")
	if id == "" {
		id = c.FormValue("mount")
	}
	s, ok := h.registry.Get(id)
	if !ok {
		return nil, false
	}
	user, ok := auth.FromContext(c.Request().Context()).User()
	if !ok || user.Subject != s.Owner() {
		logger(c).Warn("Mount requested by another user", "mount", id)
		return nil, false
	}
	return s, true
}

func regionOf(s *livesync.Synchronizer, oob bool) any {
	return components.RecordsRegion(components.RegionData{
		MountID: s.ID(),
		Records: s.Records(),
		Version: s.Version(),
	}, oob)
}

// parseFilter reads the filter bar. Empty date inputs clear that bound; the
// inputs carry no zone and are read as UTC.
func parseFilter(c echo.Context, current domain.Filter) (domain.Filter, error) {
	f := domain.Filter{City: current.City}

	if raw := strings.TrimSpace(c.QueryParam("city")); raw != "" {
		city, ok := domain.LookupCity(raw)
		if !ok {
			return current, fmt.Errorf("%q is not a known city", raw)
		}
		f.City = city.Name
	}

	var err error
	if f.Start, err = parseBound(c.QueryParam("start")); err != nil {
		return current, fmt.Errorf("invalid start date: %w", err)
	}
	if f.End, err = parseBound(c.QueryParam("end")); err != nil {
		return current, fmt.Errorf("invalid end date: %w", err)
	}
	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		return current, errors.New("the end date is before the start date")
	}
	return f, nil
}

func parseBound(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(components.DateTimeLocal, raw, time.UTC)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
