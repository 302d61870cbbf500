package server

import (
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"

	"github.com/nfrund/weatherdash/internal/guard"
	"github.com/nfrund/weatherdash/internal/middleware"
	"github.com/nfrund/weatherdash/web/templates/pages"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	public := guard.PublicOnly()
	private := guard.PrivateOnly(func(c echo.Context) error {
		return c.Render(http.StatusOK, "", pages.Loading(c.Request().URL.RequestURI()))
	})
	rateLimiter := middleware.RateLimiter(s.cfg.AuthRate, s.cfg.AuthBurst)

	s.E.GET(guard.LoginPath, s.authHandler.LoginGet, public)
	s.E.POST("/login", s.authHandler.LoginPost, public, rateLimiter)
	s.E.GET("/signup", s.authHandler.SignupGet, public)
	s.E.POST("/signup", s.authHandler.SignupPost, public, rateLimiter)
	s.E.GET("/logout", s.authHandler.Logout)

	s.E.GET(guard.DashboardPath, s.dashboardHandler.DashboardGet, private)
	s.E.GET("/dashboard/records", s.dashboardHandler.Records, private)
	s.E.GET("/dashboard/records/:id/edit", s.dashboardHandler.EditPanel, private)
	s.E.GET("/dashboard/ws", s.dashboardHandler.Stream, private)

	s.E.POST("/weather", s.weatherHandler.Create, private)
	s.E.POST("/weather/:id", s.weatherHandler.Edit, private)
	s.E.POST("/weather/:id/delete", s.weatherHandler.Delete, private)

	s.E.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	s.E.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: s.gatherer}))
}
