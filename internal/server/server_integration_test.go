package server_test

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/weatherdash/internal/domain"
	"github.com/nfrund/weatherdash/internal/handlers"
	"github.com/nfrund/weatherdash/internal/server"
	"github.com/nfrund/weatherdash/internal/testutils"
)

const waitFor = 5 * time.Second

type harness struct {
	t      *testing.T
	fb     *testutils.FakeBackend
	srv    *server.Server
	ts     *httptest.Server
	jar    http.CookieJar
	client *http.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	fb := testutils.NewFakeBackend(t)
	fb.AddUser(t, "alice", "password123")
	cfg := testutils.ConfigForTests(t, map[string]string{
		"BACKEND_URL":    fb.URL(),
		"BACKEND_WS_URL": fb.WSURL(),
	})

	reg := prometheus.NewRegistry()
	srv, err := server.New(server.Dependencies{Config: cfg, Registerer: reg, Gatherer: reg})
	require.NoError(t, err)
	srv.RegisterRoutes()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.StartBackground(ctx))
	ts := httptest.NewServer(srv.E)
	t.Cleanup(func() {
		cancel()
		ts.Close()
		shutdownCtx, done := context.WithTimeout(context.Background(), waitFor)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar:     jar,
		Timeout: waitFor,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &harness{t: t, fb: fb, srv: srv, ts: ts, jar: jar, client: client}
}

func (h *harness) do(method, path string, form url.Values, hx bool) (*http.Response, string) {
	h.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, h.ts.URL+path, body)
	require.NoError(h.t, err)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if hx {
		req.Header.Set("HX-Request", "true")
	}
	res, err := h.client.Do(req)
	require.NoError(h.t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(h.t, err)
	return res, string(data)
}

func (h *harness) get(path string) (*http.Response, string) {
	return h.do(http.MethodGet, path, nil, false)
}

func (h *harness) login(username, password string) {
	h.t.Helper()
	res, _ := h.do(http.MethodPost, "/login", url.Values{"username": {username}, "password": {password}}, false)
	require.Equal(h.t, http.StatusSeeOther, res.StatusCode)
	require.Equal(h.t, "/dashboard", res.Header.Get("Location"))
}

var mountPattern = regexp.MustCompile(`/dashboard/ws\?mount=([0-9a-f-]{36})`)

func (h *harness) openDashboard() (string, string) {
	h.t.Helper()
	res, body := h.get("/dashboard")
	require.Equal(h.t, http.StatusOK, res.StatusCode)
	m := mountPattern.FindStringSubmatch(body)
	require.Len(h.t, m, 2, "dashboard should carry a mount id")
	return m[1], body
}

func (h *harness) dialDashboard(mountID string) *gorilla.Conn {
	h.t.Helper()
	dialer := gorilla.Dialer{Jar: h.jar, HandshakeTimeout: waitFor}
	wsURL := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/dashboard/ws?mount=" + mountID
	conn, _, err := dialer.Dial(wsURL, nil)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *gorilla.Conn, substr string) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q", substr)
		if strings.Contains(string(msg), substr) {
			return string(msg)
		}
	}
}

func seed(fb *testutils.FakeBackend) []domain.WeatherRecord {
	return fb.Seed(
		domain.WeatherRecord{CityName: "Paris", Temperature: 18, FeelsLike: 17, Humidity: 60, Pressure: 1012, Description: "drizzle over the seine"},
		domain.WeatherRecord{CityName: "Tokyo", Temperature: 25, FeelsLike: 27, Humidity: 70, Pressure: 1008, Description: "humid evening"},
	)
}

func TestGuards(t *testing.T) {
	h := newHarness(t)

	res, _ := h.get("/dashboard")
	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/", res.Header.Get("Location"))

	res, _ = h.do(http.MethodPost, "/weather", url.Values{"city_name": {"Paris"}}, true)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "/", res.Header.Get("HX-Redirect"))

	res, body := h.get("/")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `action="/login"`)

	h.login("alice", "password123")

	res, _ = h.get("/")
	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/dashboard", res.Header.Get("Location"))

	res, _ = h.get("/signup")
	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	t.Run("invalid form stays on the page", func(t *testing.T) {
		res, body := h.do(http.MethodPost, "/login", url.Values{"username": {" a "}, "password": {"short"}}, false)
		assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
		assert.Contains(t, body, "username must be at least 2 characters")
		assert.Contains(t, body, "password must be at least 8 characters")
		assert.Contains(t, body, `value="a"`)
		assert.NotContains(t, body, `value="short"`)
	})

	t.Run("rejected credentials flash the server message", func(t *testing.T) {
		res, _ := h.do(http.MethodPost, "/login", url.Values{"username": {"alice"}, "password": {"wrong-password"}}, false)
		require.Equal(t, http.StatusSeeOther, res.StatusCode)
		assert.Equal(t, "/", res.Header.Get("Location"))

		_, body := h.get("/")
		assert.Contains(t, body, "Invalid credentials")

		_, body = h.get("/")
		assert.NotContains(t, body, "Invalid credentials", "flashes are shown once")
	})

	t.Run("success then logout", func(t *testing.T) {
		h.login("alice", "password123")

		_, body := h.openDashboard()
		assert.Contains(t, body, `class="avatar`)

		res, _ := h.get("/logout")
		require.Equal(t, http.StatusSeeOther, res.StatusCode)
		assert.Equal(t, "/", res.Header.Get("Location"))

		_, body = h.get("/")
		assert.Contains(t, body, "You have been logged out.")

		res, _ = h.get("/dashboard")
		assert.Equal(t, http.StatusSeeOther, res.StatusCode)
	})
}

func TestSignup(t *testing.T) {
	h := newHarness(t)

	res, _ := h.do(http.MethodPost, "/signup", url.Values{"username": {"alice"}, "password": {"password123"}}, false)
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/signup", res.Header.Get("Location"))
	_, body := h.get("/signup")
	assert.Contains(t, body, "User already exists")

	res, _ = h.do(http.MethodPost, "/signup", url.Values{"username": {"bob"}, "password": {"password456"}}, false)
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/dashboard", res.Header.Get("Location"))
}

func TestDashboard(t *testing.T) {
	h := newHarness(t)
	records := seed(h.fb)
	h.login("alice", "password123")

	mountID, body := h.openDashboard()
	assert.Contains(t, body, "drizzle over the seine")
	assert.NotContains(t, body, "humid evening")
	assert.Equal(t, 1, h.srv.Registry().Len())

	t.Run("filter replaces the region", func(t *testing.T) {
		res, body := h.do(http.MethodGet, "/dashboard/records?mount="+mountID+"&city=Tokyo&start=&end=", nil, true)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Contains(t, body, `id="records-region"`)
		assert.Contains(t, body, "humid evening")
		assert.NotContains(t, body, "drizzle over the seine")
	})

	t.Run("bad filter keeps the list and shows a toast", func(t *testing.T) {
		_, body := h.do(http.MethodGet, "/dashboard/records?mount="+mountID+"&city=Atlantis", nil, true)
		assert.Contains(t, body, "humid evening")
		assert.Contains(t, body, "not a known city")
	})

	t.Run("unknown mount reloads", func(t *testing.T) {
		res, _ := h.do(http.MethodGet, "/dashboard/records?mount=missing&city=Paris", nil, true)
		assert.Equal(t, "true", res.Header.Get("HX-Refresh"))
	})

	t.Run("edit panel comes from the local list", func(t *testing.T) {
		tokyo := records[1]
		path := "/dashboard/records/" + strconv.Itoa(tokyo.ID) + "/edit?mount=" + mountID
		fetches := h.fb.Fetches()
		_, body := h.do(http.MethodGet, path, nil, true)
		assert.Contains(t, body, `id="edit-panel"`)
		assert.Contains(t, body, `value="25"`)
		assert.Equal(t, fetches, h.fb.Fetches())

		_, body = h.do(http.MethodGet, "/dashboard/records/9999/edit?mount="+mountID, nil, true)
		assert.Contains(t, body, "no longer available")
	})
}

func TestDashboard_OtherUsersMount(t *testing.T) {
	alice := newHarness(t)
	alice.login("alice", "password123")
	mountID, _ := alice.openDashboard()

	// A second browser against the same server.
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	bob := *alice
	bob.jar = jar
	bob.client = &http.Client{Jar: jar, Timeout: waitFor, CheckRedirect: alice.client.CheckRedirect}
	bob.fb.AddUser(t, "bob", "password456")
	bob.login("bob", "password456")

	res, _ := bob.do(http.MethodGet, "/dashboard/records?mount="+mountID, nil, true)
	assert.Equal(t, "true", res.Header.Get("HX-Refresh"))
}

func TestDashboard_LiveUpdates(t *testing.T) {
	h := newHarness(t)
	records := seed(h.fb)
	h.login("alice", "password123")
	mountID, _ := h.openDashboard()

	conn := h.dialDashboard(mountID)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, h.fb.WaitForConns(ctx, 1))

	t.Run("create answers with a fresh form and the push updates the region", func(t *testing.T) {
		form := url.Values{
			"city_name":   {"paris"},
			"temperature": {"21.5"},
			"feels_like":  {"20"},
			"humidity":    {"55"},
			"pressure":    {"1015"},
			"description": {"sunny spell"},
		}
		res, body := h.do(http.MethodPost, "/weather", form, true)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "record-saved", res.Header.Get("HX-Trigger"))
		assert.Contains(t, body, `id="create-form"`)
		assert.Contains(t, body, "Reading saved.")

		msg := readUntil(t, conn, "sunny spell")
		assert.Contains(t, msg, `hx-swap-oob="true"`)
		assert.Contains(t, msg, "drizzle over the seine")
	})

	t.Run("invalid create re-renders the form without a request", func(t *testing.T) {
		before := len(h.fb.Records())
		_, body := h.do(http.MethodPost, "/weather", url.Values{"city_name": {"Paris"}, "temperature": {"warm"}}, true)
		assert.Contains(t, body, "temperature must be a number")
		assert.Contains(t, body, "feels like is required")
		assert.Len(t, h.fb.Records(), before)
	})

	t.Run("edit closes the panel", func(t *testing.T) {
		paris := records[0]
		form := url.Values{
			"city_name":   {"Paris"},
			"temperature": {"19"},
			"feels_like":  {"18"},
			"humidity":    {"61"},
			"pressure":    {"1011"},
			"description": {"clearing up"},
		}
		_, body := h.do(http.MethodPost, "/weather/"+strconv.Itoa(paris.ID), form, true)
		assert.Contains(t, body, "Reading updated.")
		assert.NotContains(t, body, "edit-panel open")
		readUntil(t, conn, "clearing up")
	})

	t.Run("delete", func(t *testing.T) {
		paris := records[0]
		_, body := h.do(http.MethodPost, "/weather/"+strconv.Itoa(paris.ID)+"/delete", url.Values{}, true)
		assert.Contains(t, body, "Reading deleted.")
		require.Eventually(t, func() bool {
			s, ok := h.srv.Registry().Get(mountID)
			if !ok {
				return false
			}
			_, found := s.Record(paris.ID)
			return !found
		}, waitFor, 10*time.Millisecond)
	})

	t.Run("backend failures become toasts", func(t *testing.T) {
		h.fb.FailNext(http.StatusInternalServerError, "database is down")
		_, body := h.do(http.MethodPost, "/weather/"+strconv.Itoa(records[1].ID)+"/delete", url.Values{}, true)
		assert.Contains(t, body, "database is down")
		assert.Contains(t, body, "toast-error")
	})

	t.Run("closing the page releases the stream", func(t *testing.T) {
		require.NoError(t, conn.Close())
		require.NoError(t, h.fb.WaitForConns(ctx, 0))
		s, ok := h.srv.Registry().Get(mountID)
		require.True(t, ok, "released mounts stay until reaped")
		assert.False(t, s.Mounted())
	})
}

func TestDashboard_SessionExpired(t *testing.T) {
	h := newHarness(t)
	h.login("alice", "password123")

	h.fb.FailNext(http.StatusUnauthorized, "Token has expired")
	res, _ := h.get("/dashboard")
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/", res.Header.Get("Location"))
	assert.Zero(t, h.srv.Registry().Len())

	_, body := h.get("/")
	assert.Contains(t, body, handlers.SessionExpiredMessage)

	res, _ = h.get("/dashboard")
	assert.Equal(t, http.StatusSeeOther, res.StatusCode, "the session was cleared")
}

func TestOpsEndpoints(t *testing.T) {
	h := newHarness(t)

	res, body := h.get("/health")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "OK", body)

	h.get("/")
	res, body = h.get("/metrics")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "requests_total")

	res, body = h.get("/static/app.css")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, ".records")
}

func TestNew_RequiresServerSettings(t *testing.T) {
	_, err := server.New(server.Dependencies{})
	assert.Error(t, err)

	cfg := testutils.ConfigForTests(t, map[string]string{"SESSION_SECRET": "short"})
	_, err = server.New(server.Dependencies{Config: cfg})
	assert.Error(t, err)

	cfg = testutils.ConfigForTests(t, map[string]string{"SESSION_STORE": "redis"})
	_, err = server.New(server.Dependencies{Config: cfg})
	assert.ErrorContains(t, err, "redis")
}

func TestShutdown_AnnouncesToOpenDashboards(t *testing.T) {
	h := newHarness(t)
	h.login("alice", "password123")
	mountID, _ := h.openDashboard()
	conn := h.dialDashboard(mountID)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, h.fb.WaitForConns(ctx, 1))

	// A pushed reading proves the browser socket is registered.
	require.NoError(t, h.fb.Push("send_newdata", domain.WeatherRecord{ID: 77, CityName: "Paris", Description: "before restart"}))
	readUntil(t, conn, "before restart")

	require.NoError(t, h.srv.Shutdown(ctx))
	msg := readUntil(t, conn, server.ShutdownNotice)
	assert.Contains(t, msg, "toast-info")
	require.NoError(t, h.fb.WaitForConns(ctx, 0), "dashboards are unmounted")
}
