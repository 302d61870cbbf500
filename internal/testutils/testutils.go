// Package testutils holds helpers shared by package tests: configuration,
// token minting and an in-process fake of the weather backend.
package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/weatherdash/internal/config"
)

// TestSessionSecret satisfies config.RequireServer.
const TestSessionSecret = "test-session-secret-0123456789"

// ConfigForTests builds a config from defaults plus overrides without
// touching the process environment.
func ConfigForTests(t *testing.T, overrides map[string]string) *config.Config {
	t.Helper()

	env := map[string]string{
		"SESSION_SECRET": TestSessionSecret,
		"LOG_FORMAT":     "json",
		"LOG_LEVEL":      "error",
		"STREAM_RETRY":   "20ms",
		"AUTH_BURST":     "1000",
	}
	for k, v := range overrides {
		env[k] = v
	}

	cfg, err := config.Process(context.Background(), envconfig.MapLookuper(env))
	require.NoError(t, err)
	return cfg
}

// MintToken returns a signed JWT whose subject is sub. The signature is
// never verified client-side; it only needs to look like a real token.
func MintToken(t *testing.T, sub string, extra map[string]any) string {
	t.Helper()
	token, err := mintToken(sub, extra)
	require.NoError(t, err)
	return token
}

func mintToken(sub string, extra map[string]any) (string, error) {
	claims := jwt.MapClaims{
		"sub": sub,
		"iat": time.Now().Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("fake-backend"))
}
