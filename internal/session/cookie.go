package session

import (
	"context"

	echosession "github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
)

// CookieSessionName is the gorilla session holding the browser's keys.
const CookieSessionName = "weatherdash-session"

// CookieStore stores keys in the browser's signed session cookie. It is bound
// to a single request/response pair; build one per request.
type CookieStore struct {
	c echo.Context
}

// NewCookieStore binds a CookieStore to the request in c. The echo-contrib
// session middleware must run before it is used.
func NewCookieStore(c echo.Context) *CookieStore {
	return &CookieStore{c: c}
}

// Get implements Store.
func (s *CookieStore) Get(ctx context.Context, key string) (string, error) {
	sess, err := echosession.Get(CookieSessionName, s.c)
	if err != nil {
		return "", err
	}
	v, ok := sess.Values[key].(string)
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set implements Store.
func (s *CookieStore) Set(ctx context.Context, key, value string) error {
	sess, err := echosession.Get(CookieSessionName, s.c)
	if err != nil {
		return err
	}
	sess.Values[key] = value
	return sess.Save(s.c.Request(), s.c.Response())
}

// Remove implements Store.
func (s *CookieStore) Remove(ctx context.Context, key string) error {
	sess, err := echosession.Get(CookieSessionName, s.c)
	if err != nil {
		return err
	}
	if _, ok := sess.Values[key]; !ok {
		return nil
	}
	delete(sess.Values, key)
	return sess.Save(s.c.Request(), s.c.Response())
}
