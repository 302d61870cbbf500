// Package handlers holds the echo handlers of the dashboard. Handlers turn
// every failure the user can cause into a flash message or a toast; only
// programming errors reach echo's error handler.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/weatherdash/internal/auth"
	"github.com/nfrund/weatherdash/internal/guard"
	"github.com/nfrund/weatherdash/internal/middleware"
	"github.com/nfrund/weatherdash/internal/view"
)

// SessionExpiredMessage is flashed when the backend rejects the token.
const SessionExpiredMessage = "Your session has expired, please log in again."

// render writes a component through the echo renderer.
func render(c echo.Context, status int, component any) error {
	return c.Render(status, "", component)
}

func isHTMX(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true"
}

func logger(c echo.Context) *slog.Logger {
	return middleware.FromContext(c.Request().Context())
}

// expireSession logs the user out locally and sends them to the login page.
func expireSession(c echo.Context) error {
	ctx := c.Request().Context()
	if err := auth.FromContext(ctx).Logout(ctx); err != nil {
		logger(c).Warn("Failed to clear expired session", "error", err)
	}
	view.SetFlashError(c, SessionExpiredMessage)
	return guard.RedirectTo(c, guard.LoginPath)
}

// reload asks the browser to fetch a fresh dashboard.
func reload(c echo.Context) error {
	if isHTMX(c) {
		c.Response().Header().Set("HX-Refresh", "true")
		return c.NoContent(http.StatusOK)
	}
	return c.Redirect(http.StatusSeeOther, guard.DashboardPath)
}
