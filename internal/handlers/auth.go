package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	cmp "maragu.dev/gomponents"

	"github.com/nfrund/weatherdash/internal/auth"
	"github.com/nfrund/weatherdash/internal/backend"
	"github.com/nfrund/weatherdash/internal/forms"
	"github.com/nfrund/weatherdash/internal/guard"
	"github.com/nfrund/weatherdash/internal/metrics"
	"github.com/nfrund/weatherdash/internal/view"
	"github.com/nfrund/weatherdash/web/templates/pages"
)

// Authenticator exchanges credentials for an access token.
type Authenticator interface {
	Login(ctx context.Context, creds backend.Credentials) (string, error)
	Signup(ctx context.Context, creds backend.Credentials) (string, error)
}

// AuthHandler handles the login, signup and logout routes.
type AuthHandler struct {
	api Authenticator
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(api Authenticator) *AuthHandler {
	return &AuthHandler{api: api}
}

// LoginGet renders the login page (GET /).
func (h *AuthHandler) LoginGet(c echo.Context) error {
	return render(c, http.StatusOK, pages.Login(pages.AuthPage{Flashes: view.GetFlashData(c)}))
}

// LoginPost handles POST /login.
func (h *AuthHandler) LoginPost(c echo.Context) error {
	return h.submit(c, "login", h.api.Login, pages.Login, guard.LoginPath)
}

// SignupGet renders the signup page.
func (h *AuthHandler) SignupGet(c echo.Context) error {
	return render(c, http.StatusOK, pages.Signup(pages.AuthPage{Flashes: view.GetFlashData(c)}))
}

// SignupPost handles POST /signup. A new account is logged in straight away.
func (h *AuthHandler) SignupPost(c echo.Context) error {
	return h.submit(c, "signup", h.api.Signup, pages.Signup, "/signup")
}

type exchangeFunc func(ctx context.Context, creds backend.Credentials) (string, error)

func (h *AuthHandler) submit(c echo.Context, name string, exchange exchangeFunc, page func(pages.AuthPage) cmp.Node, retry string) error {
	ctx := c.Request().Context()
	log := logger(c)

	var form forms.LoginForm
	if err := c.Bind(&form); err != nil {
		metrics.FormSubmissionsTotal.WithLabelValues(name, "invalid").Inc()
		view.SetFlashError(c, "Invalid form submission.")
		return guard.RedirectTo(c, retry)
	}

	creds, err := form.Credentials()
	if err != nil {
		metrics.FormSubmissionsTotal.WithLabelValues(name, "invalid").Inc()
		form = form.Normalize()
		form.Password = ""
		return render(c, http.StatusUnprocessableEntity, page(pages.AuthPage{
			Form:   form,
			Errors: forms.FieldErrors(err),
		}))
	}

	raw, err := exchange(ctx, creds)
	if err != nil {
		metrics.FormSubmissionsTotal.WithLabelValues(name, "failed").Inc()
		log.Warn("Credential exchange failed", "form", name, "username", creds.Username, "error", err)
		view.SetFlashError(c, backend.Message(err))
		return guard.RedirectTo(c, retry)
	}

	if err := auth.FromContext(ctx).Login(ctx, raw); err != nil {
		metrics.FormSubmissionsTotal.WithLabelValues(name, "failed").Inc()
		log.Error("Backend returned an unusable token", "form", name, "error", err)
		view.SetFlashError(c, "The server returned an invalid session, please try again.")
		return guard.RedirectTo(c, retry)
	}

	metrics.FormSubmissionsTotal.WithLabelValues(name, "ok").Inc()
	log.Info("User logged in", "form", name, "username", creds.Username)
	return guard.RedirectTo(c, guard.DashboardPath)
}

// Logout clears the local session. The backend is not told.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	if err := auth.FromContext(ctx).Logout(ctx); err != nil {
		logger(c).Error("Failed to clear session", "error", err)
	}
	view.SetFlashSuccess(c, "You have been logged out.")
	return guard.RedirectTo(c, guard.LoginPath)
}
