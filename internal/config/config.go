package config

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds all configuration for the application.
type Config struct {
	Addr string `env:"ADDR, default=:3000"`

	// BackendURL is the weather API base, e.g. http://localhost:8080.
	BackendURL string `env:"BACKEND_URL, default=http://localhost:8080"`
	// BackendWSURL is the event-stream namespace, e.g. ws://localhost:8080/data.
	BackendWSURL string        `env:"BACKEND_WS_URL, default=ws://localhost:8080/data"`
	HTTPTimeout  time.Duration `env:"HTTP_TIMEOUT, default=10s"`
	StreamRetry  time.Duration `env:"STREAM_RETRY, default=2s"`
	// PushFilter drops pushed records outside the dashboard's active city.
	PushFilter bool `env:"PUSH_FILTER, default=false"`

	SessionSecret string `env:"SESSION_SECRET"`
	// SessionStore selects where browser tokens live: "cookie" or "redis".
	SessionStore string        `env:"SESSION_STORE, default=cookie"`
	SessionTTL   time.Duration `env:"SESSION_TTL, default=168h"`
	Redis        RedisConfig

	// AuthRate and AuthBurst bound login and signup posts per client IP.
	AuthRate  float64 `env:"AUTH_RATE, default=2"`
	AuthBurst int     `env:"AUTH_BURST, default=10"`

	LogFormat string `env:"LOG_FORMAT, default=text"`
	LogLevel  string `env:"LOG_LEVEL, default=debug"`

	// TokenFile is where the CLI keeps its session token.
	TokenFile string `env:"TOKEN_FILE"`
}

// RedisConfig configures the shared session store.
type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB, default=0"`
}

// Load reads .env (when present) and processes the environment into a Config.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return Process(ctx, envconfig.OsLookuper())
}

// Process builds a Config from an arbitrary lookuper. Tests use
// envconfig.MapLookuper.
func Process(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.SessionStore {
	case "cookie", "redis":
	default:
		return fmt.Errorf("config: SESSION_STORE must be cookie or redis, got %q", c.SessionStore)
	}
	if c.AuthRate <= 0 || c.AuthBurst < 1 {
		return fmt.Errorf("config: AUTH_RATE and AUTH_BURST must be positive")
	}
	return nil
}

// RequireServer checks the settings only the web server needs.
func (c *Config) RequireServer() error {
	if len(c.SessionSecret) < 16 {
		return fmt.Errorf("config: SESSION_SECRET must be set to at least 16 characters")
	}
	return nil
}

// New loads the configuration and exits when it is invalid.
func New() *Config {
	cfg, err := Load(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}
