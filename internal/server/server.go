package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/nfrund/weatherdash/internal/backend"
	"github.com/nfrund/weatherdash/internal/config"
	"github.com/nfrund/weatherdash/internal/handlers"
	"github.com/nfrund/weatherdash/internal/livesync"
	"github.com/nfrund/weatherdash/internal/middleware"
	"github.com/nfrund/weatherdash/internal/pubsub"
	"github.com/nfrund/weatherdash/internal/rendering"
	"github.com/nfrund/weatherdash/internal/stream"
	"github.com/nfrund/weatherdash/internal/websocket"
	"github.com/nfrund/weatherdash/web"
)

// Bus carries dashboard changes from synchronizers to the pusher.
type Bus interface {
	pubsub.Publisher
	pubsub.Subscriber
}

// Dependencies holds the collaborators the server is built from. Only Config
// is required; the rest default to production implementations.
type Dependencies struct {
	Config  *config.Config
	Backend *backend.Client
	Dialer  stream.Dialer
	Bus     Bus
	// Redis is required when Config.SessionStore is "redis".
	Redis redis.Cmdable
	Echo  *echo.Echo

	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	E   *echo.Echo
	cfg *config.Config

	registry *livesync.Registry
	bridge   *websocket.Bridge
	bus      Bus
	pusher   *handlers.Pusher
	renderer *rendering.UniversalRenderer
	sessions middleware.SessionStoreFactory
	gatherer prometheus.Gatherer

	authHandler      *handlers.AuthHandler
	dashboardHandler *handlers.DashboardHandler
	weatherHandler   *handlers.WeatherHandler
}

// New creates a new Server instance. Routes are added by RegisterRoutes.
func New(deps Dependencies) (*Server, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, errors.New("server: config is required")
	}
	if err := cfg.RequireServer(); err != nil {
		return nil, err
	}

	api := deps.Backend
	if api == nil {
		api = backend.New(cfg.BackendURL, cfg.HTTPTimeout)
	}
	dialer := deps.Dialer
	if dialer == nil {
		dialer = stream.NewDialer(cfg.BackendWSURL)
	}
	bus := deps.Bus
	if bus == nil {
		bus = pubsub.NewWatermillBridge()
	}
	e := deps.Echo
	if e == nil {
		e = echo.New()
	}
	registerer := deps.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	var sessionStores middleware.SessionStoreFactory
	switch cfg.SessionStore {
	case "redis":
		if deps.Redis == nil {
			return nil, errors.New("server: SESSION_STORE=redis needs a redis client")
		}
		sessionStores = middleware.RedisSessions(deps.Redis, cfg.SessionTTL)
	default:
		sessionStores = middleware.CookieSessions()
	}

	registry := livesync.NewRegistry()
	bridge := websocket.NewBridge()
	renderer := rendering.NewUniversalRenderer()

	s := &Server{
		E:        e,
		cfg:      cfg,
		registry: registry,
		bridge:   bridge,
		bus:      bus,
		pusher:   handlers.NewPusher(registry, bridge, renderer),
		renderer: renderer,
		sessions: sessionStores,
		gatherer: gatherer,

		authHandler: handlers.NewAuthHandler(api),
		dashboardHandler: handlers.NewDashboardHandler(registry, api, dialer, bus, bridge, handlers.DashboardOptions{
			FilterPushes: cfg.PushFilter,
			RetryDelay:   cfg.StreamRetry,
		}),
		weatherHandler: handlers.NewWeatherHandler(api),
	}

	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer
	setupErrorHandling(e)
	s.setupMiddleware(registerer)
	return s, nil
}

func (s *Server) setupMiddleware(registerer prometheus.Registerer) {
	s.E.Use(echomw.Recover())
	s.E.Use(echomw.RequestID())
	s.E.Use(middleware.Logger)
	s.E.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "weatherdash",
		Registerer: registerer,
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/metrics" || p == "/health" || strings.HasPrefix(p, "/static/")
		},
	}))

	store := sessions.NewCookieStore([]byte(s.cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(s.cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	s.E.Use(session.Middleware(store))
	s.E.Use(middleware.AuthState(s.sessions))

	s.E.StaticFS("/static", echo.MustSubFS(web.FS, "static"))
}

// Registry exposes the live dashboards, for tests and shutdown.
func (s *Server) Registry() *livesync.Registry {
	return s.registry
}
