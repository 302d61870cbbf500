package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	echosession "github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/nfrund/weatherdash/internal/auth"
	"github.com/nfrund/weatherdash/internal/session"
)

// sessionIDKey names the cookie value that links a browser to its Redis keys.
const sessionIDKey = "sid"

// SessionStoreFactory builds the store holding the session token of the
// request in c.
type SessionStoreFactory func(c echo.Context) (session.Store, error)

// CookieSessions keeps the token in the signed session cookie itself.
func CookieSessions() SessionStoreFactory {
	return func(c echo.Context) (session.Store, error) {
		return session.NewCookieStore(c), nil
	}
}

// RedisSessions keeps the token in Redis; the cookie only carries a random
// session id, issued on first visit.
func RedisSessions(client redis.Cmdable, ttl time.Duration) SessionStoreFactory {
	return func(c echo.Context) (session.Store, error) {
		sess, err := echosession.Get(session.CookieSessionName, c)
		if err != nil {
			return nil, err
		}
		sid, _ := sess.Values[sessionIDKey].(string)
		if sid == "" {
			sid = uuid.NewString()
			sess.Values[sessionIDKey] = sid
			if err := sess.Save(c.Request(), c.Response()); err != nil {
				return nil, err
			}
		}
		return session.NewRedisStore(client, sid, ttl), nil
	}
}

// AuthState builds an auth.Provider over the request's session store, runs
// its restore and puts it on the request context for guards and handlers.
// The provider is closed when the request completes.
func AuthState(newStore SessionStoreFactory) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			store, err := newStore(c)
			if err != nil {
				slog.Error("Session store unavailable", "error", err)
				return echo.NewHTTPError(http.StatusInternalServerError, "session unavailable")
			}

			p := auth.NewProvider(store)
			defer p.Close()

			ctx := c.Request().Context()
			if err := p.Init(ctx); err != nil {
				FromContext(ctx).Warn("Session restore failed", "error", err)
			}

			c.SetRequest(c.Request().WithContext(auth.WithProvider(ctx, p)))
			return next(c)
		}
	}
}
