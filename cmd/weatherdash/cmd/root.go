package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/nfrund/weatherdash/internal/auth"
	"github.com/nfrund/weatherdash/internal/backend"
	"github.com/nfrund/weatherdash/internal/config"
	"github.com/nfrund/weatherdash/internal/domain"
	"github.com/nfrund/weatherdash/internal/logging"
	"github.com/nfrund/weatherdash/internal/session"
)

var (
	// loadConfig and fs are replaced in tests.
	loadConfig = config.Load
	fs         = afero.NewOsFs()

	cfg *config.Config
)

var errNotLoggedIn = errors.New("not logged in, run `weatherdash login` first")

var errSessionExpired = errors.New("session expired, run `weatherdash login` again")

var rootCmd = &cobra.Command{
	Use:   "weatherdash",
	Short: "Weather dashboard client",
	Long: `weatherdash talks to the weather backend from the terminal.

Available commands:
  login, signup    Exchange credentials for a session token
  logout, whoami   Inspect or clear the stored session
  watch            Follow a city's readings live
  records          List, create, edit and delete readings

The session token is kept in TOKEN_FILE (default: the user config directory).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		logging.NewWithWriter(cmd.ErrOrStderr(), c.LogFormat, c.LogLevel)
		cfg = c
		return nil
	},
}

// Execute executes the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func tokenPath() (string, error) {
	if cfg.TokenFile != "" {
		return cfg.TokenFile, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w (set TOKEN_FILE)", err)
	}
	return filepath.Join(dir, "weatherdash", "session.json"), nil
}

// openSession restores the stored session. Callers close the provider.
func openSession(ctx context.Context) (*auth.Provider, *session.FileStore, error) {
	path, err := tokenPath()
	if err != nil {
		return nil, nil, err
	}
	store := session.NewFileStore(fs, path)
	p := auth.NewProvider(store)
	if err := p.Init(ctx); err != nil {
		p.Close()
		return nil, nil, err
	}
	return p, store, nil
}

func requireUser(p *auth.Provider) (*domain.User, error) {
	user, ok := p.User()
	if !ok {
		return nil, errNotLoggedIn
	}
	return user, nil
}

func apiClient() *backend.Client {
	return backend.New(cfg.BackendURL, cfg.HTTPTimeout)
}

// apiError turns a backend failure into the message the user sees. A 401
// also clears the stored session.
func apiError(ctx context.Context, p *auth.Provider, err error) error {
	if errors.Is(err, backend.ErrUnauthorized) {
		_ = p.Logout(ctx)
		return errSessionExpired
	}
	return errors.New(backend.Message(err))
}
