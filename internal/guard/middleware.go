package guard

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/weatherdash/internal/auth"
)

// LoadingRenderer writes the placeholder shown while the session restore is
// still running.
type LoadingRenderer func(c echo.Context) error

// PublicOnly applies Public to every request of the route group.
func PublicOnly() echo.MiddlewareFunc {
	return middlewareFor(Public, nil)
}

// PrivateOnly applies Private to every request of the route group.
func PrivateOnly(loading LoadingRenderer) echo.MiddlewareFunc {
	return middlewareFor(Private, loading)
}

func middlewareFor(decide func(auth.State) Decision, loading LoadingRenderer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := auth.FromContext(c.Request().Context())

			d := decide(p.State())
			switch d.Outcome {
			case Redirect:
				return RedirectTo(c, d.Target)
			case Loading:
				if loading != nil {
					return loading(c)
				}
				return c.String(http.StatusOK, "Loading...")
			default:
				return next(c)
			}
		}
	}
}

// RedirectTo navigates the client to target. HTMX requests get an
// HX-Redirect header so the whole page navigates instead of swapping a
// fragment.
func RedirectTo(c echo.Context, target string) error {
	if c.Request().Header.Get("HX-Request") == "true" {
		c.Response().Header().Set("HX-Redirect", target)
		return c.NoContent(http.StatusOK)
	}
	return c.Redirect(http.StatusSeeOther, target)
}
