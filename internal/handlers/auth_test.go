package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/weatherdash/internal/backend"
	"github.com/nfrund/weatherdash/internal/handlers"
	"github.com/nfrund/weatherdash/internal/middleware"
	"github.com/nfrund/weatherdash/internal/rendering"
	"github.com/nfrund/weatherdash/internal/testutils"
)

// stubAuthenticator answers every exchange with token or err.
type stubAuthenticator struct {
	token string
	err   error
	calls int
}

func (s *stubAuthenticator) Login(context.Context, backend.Credentials) (string, error) {
	s.calls++
	return s.token, s.err
}

func (s *stubAuthenticator) Signup(context.Context, backend.Credentials) (string, error) {
	s.calls++
	return s.token, s.err
}

func setupAuthTest(t *testing.T, api handlers.Authenticator) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.Renderer = rendering.NewUniversalRenderer()
	e.Use(session.Middleware(sessions.NewCookieStore([]byte(testutils.TestSessionSecret))))
	e.Use(middleware.AuthState(middleware.CookieSessions()))

	h := handlers.NewAuthHandler(api)
	e.GET("/", h.LoginGet)
	e.POST("/login", h.LoginPost)
	e.GET("/signup", h.SignupGet)
	e.POST("/signup", h.SignupPost)
	e.GET("/logout", h.Logout)
	return e
}

func postForm(e *echo.Echo, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// followWithCookies replays the cookies set by rec on a GET of path.
func followWithCookies(e *echo.Echo, rec *httptest.ResponseRecorder, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	next := httptest.NewRecorder()
	e.ServeHTTP(next, req)
	return next
}

func TestLoginPost(t *testing.T) {
	valid := url.Values{"username": {"alice"}, "password": {"password123"}}

	t.Run("success stores the token and goes to the dashboard", func(t *testing.T) {
		api := &stubAuthenticator{token: testutils.MintToken(t, "alice", nil)}
		e := setupAuthTest(t, api)

		rec := postForm(e, "/login", valid)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/dashboard", rec.Header().Get(echo.HeaderLocation))
		assert.NotEmpty(t, rec.Result().Cookies())
	})

	t.Run("validation errors never reach the backend", func(t *testing.T) {
		api := &stubAuthenticator{}
		e := setupAuthTest(t, api)

		rec := postForm(e, "/login", url.Values{"username": {"alice"}})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "password is required")
		assert.Zero(t, api.calls)
	})

	t.Run("backend rejection is flashed", func(t *testing.T) {
		api := &stubAuthenticator{err: &backend.APIError{Status: http.StatusUnauthorized, Message: "Invalid credentials"}}
		e := setupAuthTest(t, api)

		rec := postForm(e, "/login", valid)
		require.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/", rec.Header().Get(echo.HeaderLocation))

		page := followWithCookies(e, rec, "/")
		assert.Contains(t, page.Body.String(), "Invalid credentials")
	})

	t.Run("network failures get the generic message", func(t *testing.T) {
		api := &stubAuthenticator{err: errors.New("dial tcp: connection refused")}
		e := setupAuthTest(t, api)

		rec := postForm(e, "/login", valid)
		page := followWithCookies(e, rec, "/")
		assert.Contains(t, page.Body.String(), backend.GenericFailure)
		assert.NotContains(t, page.Body.String(), "connection refused")
	})

	t.Run("undecodable token is not kept", func(t *testing.T) {
		api := &stubAuthenticator{token: "not-a-jwt"}
		e := setupAuthTest(t, api)

		rec := postForm(e, "/login", valid)
		require.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/", rec.Header().Get(echo.HeaderLocation))
		page := followWithCookies(e, rec, "/")
		assert.Contains(t, page.Body.String(), "invalid session")
	})
}

func TestSignupPost(t *testing.T) {
	api := &stubAuthenticator{err: &backend.APIError{Status: http.StatusBadRequest, Message: "User already exists"}}
	e := setupAuthTest(t, api)

	rec := postForm(e, "/signup", url.Values{"username": {"alice"}, "password": {"password123"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/signup", rec.Header().Get(echo.HeaderLocation))

	page := followWithCookies(e, rec, "/signup")
	assert.Contains(t, page.Body.String(), "User already exists")
	assert.Contains(t, page.Body.String(), `action="/signup"`)
}

func TestLogout(t *testing.T) {
	e := setupAuthTest(t, &stubAuthenticator{})

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("HX-Redirect"))
}
