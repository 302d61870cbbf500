package testutils

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/nfrund/weatherdash/internal/domain"
	"github.com/nfrund/weatherdash/internal/stream"
)

// FakeBackend is an in-memory weather API with the same routes and push
// channel as the real one. Mutations broadcast the backend's wire events to
// every connected stream client.
type FakeBackend struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	users     map[string]string
	tokens    map[string]string
	records   map[int]domain.WeatherRecord
	nextID    int
	conns     map[*websocket.Conn]struct{}
	failNext  *failure
	fetchHook func(city string)
	fetches   int
	dials     int
}

type failure struct {
	status  int
	message string
}

// NewFakeBackend starts a fake backend that is shut down with the test.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()

	fb := &FakeBackend{
		users:   map[string]string{},
		tokens:  map[string]string{},
		records: map[int]domain.WeatherRecord{},
		nextID:  1,
		conns:   map[*websocket.Conn]struct{}{},
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.POST("/login", fb.handleLogin)
	e.POST("/signup", fb.handleSignup)
	e.GET("/data", fb.handleStream)

	api := e.Group("/weather", fb.requireToken)
	api.GET("/city/:city", fb.handleFetch)
	api.POST("", fb.handleCreate)
	api.PATCH("", fb.handleEdit)
	api.DELETE("/:id", fb.handleDelete)

	fb.server = httptest.NewServer(e)
	t.Cleanup(fb.Close)
	return fb
}

// URL is the REST base URL.
func (fb *FakeBackend) URL() string { return fb.server.URL }

// WSURL is the push channel URL.
func (fb *FakeBackend) WSURL() string {
	return "ws" + strings.TrimPrefix(fb.server.URL, "http") + "/data"
}

// Close drops stream clients and stops the server.
func (fb *FakeBackend) Close() {
	fb.mu.Lock()
	for conn := range fb.conns {
		conn.Close()
	}
	fb.conns = map[*websocket.Conn]struct{}{}
	fb.mu.Unlock()
	fb.server.Close()
}

// AddUser registers credentials and returns a valid token for them.
func (fb *FakeBackend) AddUser(t *testing.T, username, password string) string {
	t.Helper()
	fb.mu.Lock()
	fb.users[username] = password
	fb.mu.Unlock()
	return fb.IssueToken(t, username)
}

// IssueToken mints a token the backend will accept.
func (fb *FakeBackend) IssueToken(t *testing.T, username string) string {
	t.Helper()
	token := MintToken(t, username, nil)
	fb.mu.Lock()
	fb.tokens[token] = username
	fb.mu.Unlock()
	return token
}

// Revoke makes token fail with 401 from now on.
func (fb *FakeBackend) Revoke(token string) {
	fb.mu.Lock()
	delete(fb.tokens, token)
	fb.mu.Unlock()
}

// Seed inserts records without broadcasting. Records with a zero ID get one.
func (fb *FakeBackend) Seed(records ...domain.WeatherRecord) []domain.WeatherRecord {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := make([]domain.WeatherRecord, 0, len(records))
	for _, r := range records {
		if r.ID == 0 {
			r.ID = fb.nextID
		}
		if r.ID >= fb.nextID {
			fb.nextID = r.ID + 1
		}
		if r.Timestamp == "" {
			r.Timestamp = time.Now().UTC().Format(time.RFC3339)
		}
		fb.records[r.ID] = r
		out = append(out, r)
	}
	return out
}

// Records returns every stored record ordered by id.
func (fb *FakeBackend) Records() []domain.WeatherRecord {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.sortedLocked(func(domain.WeatherRecord) bool { return true })
}

// FailNext makes the next /weather request fail with status and message.
func (fb *FakeBackend) FailNext(status int, message string) {
	fb.mu.Lock()
	fb.failNext = &failure{status: status, message: message}
	fb.mu.Unlock()
}

// OnFetch installs a hook run at the start of every record fetch, before the
// response is computed. Tests use it to hold a fetch open.
func (fb *FakeBackend) OnFetch(hook func(city string)) {
	fb.mu.Lock()
	fb.fetchHook = hook
	fb.mu.Unlock()
}

// Fetches is the number of record fetches served.
func (fb *FakeBackend) Fetches() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.fetches
}

// Conns is the number of open stream clients.
func (fb *FakeBackend) Conns() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.conns)
}

// Dials is the number of stream connections accepted so far.
func (fb *FakeBackend) Dials() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.dials
}

// Push broadcasts an arbitrary frame to stream clients.
func (fb *FakeBackend) Push(event string, data any) error {
	msg, err := stream.EncodeFrame(event, data)
	if err != nil {
		return err
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.broadcastLocked(msg)
	return nil
}

// PushRaw broadcasts msg untouched.
func (fb *FakeBackend) PushRaw(msg []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.broadcastLocked(msg)
}

// DropStreams closes every stream client from the server side.
func (fb *FakeBackend) DropStreams() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for conn := range fb.conns {
		conn.Close()
		delete(fb.conns, conn)
	}
}

func (fb *FakeBackend) broadcastLocked(msg []byte) {
	for conn := range fb.conns {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			conn.Close()
			delete(fb.conns, conn)
		}
	}
}

func (fb *FakeBackend) sortedLocked(keep func(domain.WeatherRecord) bool) []domain.WeatherRecord {
	out := []domain.WeatherRecord{}
	for _, r := range fb.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (fb *FakeBackend) handleLogin(c echo.Context) error {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&creds); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid request"})
	}

	fb.mu.Lock()
	password, ok := fb.users[creds.Username]
	fb.mu.Unlock()
	if !ok || password != creds.Password {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Invalid credentials"})
	}
	return fb.issue(c, creds.Username)
}

func (fb *FakeBackend) handleSignup(c echo.Context) error {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&creds); err != nil || creds.Username == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid request"})
	}

	fb.mu.Lock()
	_, exists := fb.users[creds.Username]
	if !exists {
		fb.users[creds.Username] = creds.Password
	}
	fb.mu.Unlock()
	if exists {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "User already exists"})
	}
	return fb.issue(c, creds.Username)
}

func (fb *FakeBackend) issue(c echo.Context, username string) error {
	token, err := mintToken(username, nil)
	if err != nil {
		return err
	}
	fb.mu.Lock()
	fb.tokens[token] = username
	fb.mu.Unlock()
	return c.JSON(http.StatusOK, echo.Map{"access_token": token})
}

func (fb *FakeBackend) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")

		fb.mu.Lock()
		_, ok := fb.tokens[token]
		fail := fb.failNext
		fb.failNext = nil
		fb.mu.Unlock()

		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"msg": "Token has expired"})
		}
		if fail != nil {
			return c.JSON(fail.status, echo.Map{"msg": fail.message})
		}
		return next(c)
	}
}

func (fb *FakeBackend) handleFetch(c echo.Context) error {
	city, err := url.PathUnescape(c.Param("city"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"msg": "bad city"})
	}

	fb.mu.Lock()
	hook := fb.fetchHook
	fb.fetches++
	fb.mu.Unlock()
	if hook != nil {
		hook(city)
	}

	f := domain.Filter{City: city}
	for param, dst := range map[string]**time.Time{"start_time": &f.Start, "end_time": &f.End} {
		if v := c.QueryParam(param); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return c.JSON(http.StatusBadRequest, echo.Map{"msg": "bad " + param})
			}
			*dst = &t
		}
	}

	fb.mu.Lock()
	out := fb.sortedLocked(f.Matches)
	fb.mu.Unlock()
	return c.JSON(http.StatusOK, out)
}

type recordBody struct {
	ID          int     `json:"id"`
	CityName    string  `json:"city_name"`
	Temperature string  `json:"temperature"`
	FeelsLike   string  `json:"feels_like"`
	Humidity    string  `json:"humidity"`
	Pressure    string  `json:"pressure"`
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

func (b recordBody) apply(r *domain.WeatherRecord) error {
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"temperature", b.Temperature, &r.Temperature},
		{"feels_like", b.FeelsLike, &r.FeelsLike},
		{"humidity", b.Humidity, &r.Humidity},
		{"pressure", b.Pressure, &r.Pressure},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number", f.name)
		}
		*f.dst = v
	}
	r.CityName = b.CityName
	r.Description = b.Description
	r.Latitude = b.Latitude
	r.Longitude = b.Longitude
	return nil
}

func (fb *FakeBackend) handleCreate(c echo.Context) error {
	var body recordBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"msg": "Invalid request"})
	}

	var rec domain.WeatherRecord
	if err := body.apply(&rec); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"msg": err.Error()})
	}

	fb.mu.Lock()
	rec.ID = fb.nextID
	fb.nextID++
	rec.Timestamp = time.Now().UTC().Format(time.RFC3339)
	fb.records[rec.ID] = rec
	fb.mu.Unlock()

	if err := fb.Push(stream.WireCreated, rec); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

func (fb *FakeBackend) handleEdit(c echo.Context) error {
	var body recordBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"msg": "Invalid request"})
	}

	fb.mu.Lock()
	rec, ok := fb.records[body.ID]
	fb.mu.Unlock()
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"msg": "Record not found"})
	}
	if err := body.apply(&rec); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"msg": err.Error()})
	}

	fb.mu.Lock()
	fb.records[rec.ID] = rec
	fb.mu.Unlock()

	if err := fb.Push(stream.WireUpdated, rec); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (fb *FakeBackend) handleDelete(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"msg": "bad id"})
	}

	fb.mu.Lock()
	_, ok := fb.records[id]
	delete(fb.records, id)
	fb.mu.Unlock()
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"msg": "Record not found"})
	}

	if err := fb.Push(stream.WireDeleted, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"msg": "Record deleted"})
}

func (fb *FakeBackend) handleStream(c echo.Context) error {
	conn, err := fb.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}

	fb.mu.Lock()
	fb.conns[conn] = struct{}{}
	fb.dials++
	fb.mu.Unlock()

	// Drain until the client goes away so closes are noticed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	fb.mu.Lock()
	delete(fb.conns, conn)
	fb.mu.Unlock()
	conn.Close()
	return nil
}

// WaitForConns blocks until exactly n stream clients are connected.
func (fb *FakeBackend) WaitForConns(ctx context.Context, n int) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if fb.Conns() == n {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d stream clients, have %d: %w", n, fb.Conns(), ctx.Err())
		case <-ticker.C:
		}
	}
}
