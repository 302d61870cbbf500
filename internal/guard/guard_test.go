package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/weatherdash/internal/auth"
	"github.com/nfrund/weatherdash/internal/domain"
	"github.com/nfrund/weatherdash/internal/session"
)

func TestPrivate(t *testing.T) {
	user := &domain.User{Subject: "alice"}

	tests := []struct {
		name  string
		state auth.State
		want  Decision
	}{
		{"loading without user", auth.State{Loading: true}, Decision{Outcome: Loading}},
		{"loading with user", auth.State{Loading: true, User: user}, Decision{Outcome: Loading}},
		{"loaded without user", auth.State{}, Decision{Outcome: Redirect, Target: LoginPath}},
		{"loaded with user", auth.State{User: user}, Decision{Outcome: Render}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Private(tt.state))
		})
	}
}

func TestPublic(t *testing.T) {
	user := &domain.User{Subject: "alice"}

	tests := []struct {
		name  string
		state auth.State
		want  Decision
	}{
		{"user while loading", auth.State{Loading: true, User: user}, Decision{Outcome: Redirect, Target: DashboardPath}},
		{"user after loading", auth.State{User: user}, Decision{Outcome: Redirect, Target: DashboardPath}},
		{"anonymous while loading", auth.State{Loading: true}, Decision{Outcome: Render}},
		{"anonymous after loading", auth.State{}, Decision{Outcome: Render}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Public(tt.state))
		})
	}
}

// serve runs one request through a route guarded by mw, with p installed as
// the request's auth provider.
func serve(t *testing.T, p *auth.Provider, mw echo.MiddlewareFunc, hx bool) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.GET("/page", func(c echo.Context) error { return c.String(http.StatusOK, "content") }, mw)

	req := httptest.NewRequest(http.MethodGet, "/page", nil)
	if hx {
		req.Header.Set("HX-Request", "true")
	}
	req = req.WithContext(auth.WithProvider(req.Context(), p))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_ReevaluatesOnEveryRequest(t *testing.T) {
	ctx := context.Background()
	store := session.NewFileStore(afero.NewMemMapFs(), "/s.json")
	p := auth.NewProvider(store)

	loading := func(c echo.Context) error { return c.String(http.StatusOK, "please wait") }

	rec := serve(t, p, PrivateOnly(loading), false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "please wait", rec.Body.String())

	require.NoError(t, p.Init(ctx))
	rec = serve(t, p, PrivateOnly(loading), false)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, LoginPath, rec.Header().Get("Location"))

	// A token whose payload is {"sub":"alice"}.
	require.NoError(t, p.Login(ctx, "e30.eyJzdWIiOiJhbGljZSJ9.sig"))
	rec = serve(t, p, PrivateOnly(loading), false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "content", rec.Body.String())

	rec = serve(t, p, PublicOnly(), true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DashboardPath, rec.Header().Get("HX-Redirect"))
}

func TestMiddleware_PanicsWithoutProvider(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	h := PublicOnly()(func(c echo.Context) error { return nil })
	assert.Panics(t, func() { _ = h(c) })
}
