package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/nfrund/weatherdash/internal/auth"
	"github.com/nfrund/weatherdash/internal/livesync"
	"github.com/nfrund/weatherdash/internal/pubsub"
	"github.com/nfrund/weatherdash/internal/session"
	"github.com/nfrund/weatherdash/internal/stream"
	"github.com/nfrund/weatherdash/internal/token"
)

var (
	watchCity         string
	watchSince        string
	watchUntil        string
	watchFormat       string
	watchFilterPushes bool
)

var errLoggedOutElsewhere = errors.New("session ended: logged out elsewhere")

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a city's readings live",
	Long: `Fetch a city's readings, then keep the list current from the backend's
event stream. The list is reprinted after every change. The command ends on
Ctrl-C, when the session expires, or when the stored session is removed by
"weatherdash logout" in another terminal.

Examples:
  weatherdash watch --city Tokyo
  weatherdash watch --city Paris --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd)
	},
}

func runWatch(cmd *cobra.Command) error {
	ctx, cancel := context.WithCancelCause(cmd.Context())
	defer cancel(nil)

	filter, err := buildFilter(watchCity, watchSince, watchUntil)
	if err != nil {
		return err
	}

	p, store, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer p.Close()
	user, err := requireUser(p)
	if err != nil {
		return err
	}

	bus := pubsub.NewWatermillBridge()
	defer bus.Close()

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	var printMu sync.Mutex

	s := livesync.New(livesync.Config{
		ID:      "cli",
		Owner:   user.Subject,
		Fetcher: apiClient(),
		Dialer:  stream.NewDialer(cfg.BackendWSURL),
		Tokens:  p,
		Notifier: livesync.NotifierFunc(func(_ context.Context, n livesync.Notification) {
			printMu.Lock()
			defer printMu.Unlock()
			fmt.Fprintf(errOut, "[%s] %s\n", n.Level, n.Message)
		}),
		Publisher: bus,
		OnUnauthorized: func(ctx context.Context) {
			cancel(errSessionExpired)
			if err := p.Logout(ctx); err != nil {
				slog.Warn("Failed to clear expired session", "error", err)
			}
		},
		Filter:       filter,
		FilterPushes: watchFilterPushes || cfg.PushFilter,
		RetryDelay:   cfg.StreamRetry,
	})

	err = pubsub.Subscribe(ctx, bus, livesync.TopicRecordsChanged, func(_ context.Context, _ string, change livesync.RecordsChanged) error {
		printMu.Lock()
		defer printMu.Unlock()
		return printRecords(out, watchFormat, recordsSnapshot{
			City:    s.Filter().City,
			Version: change.Version,
			Cause:   change.Cause,
			Records: s.Records(),
		})
	})
	if err != nil {
		return err
	}

	unsubscribe := p.Subscribe(func(st auth.State) {
		if !st.Loading && !st.Authenticated() {
			cancel(errLoggedOutElsewhere)
		}
	})
	defer unsubscribe()

	stopWatching, err := watchTokenFile(ctx, store.Path(), func() {
		onTokenFileChange(ctx, p, store, s)
	})
	if err != nil {
		slog.Warn("Not watching the session file", "path", store.Path(), "error", err)
	} else {
		defer stopWatching()
	}

	if err := s.Mount(ctx); err != nil {
		return err
	}
	defer s.Unmount()

	if err := s.Fetch(ctx); err != nil {
		if errors.Is(err, livesync.ErrSessionExpired) {
			return errSessionExpired
		}
		// Already reported through the notifier; pushes still arrive.
		slog.Debug("Initial fetch failed", "error", err)
	}

	<-ctx.Done()
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

// onTokenFileChange follows edits made by other commands: a removed token
// ends the watch, a replaced one reconnects with it.
func onTokenFileChange(ctx context.Context, p *auth.Provider, store session.Store, s *livesync.Synchronizer) {
	raw := session.Token(ctx, store)
	if raw == "" {
		if err := p.Logout(ctx); err != nil && !errors.Is(err, auth.ErrClosed) {
			slog.Warn("Failed to clear session", "error", err)
		}
		return
	}

	user, _ := p.User()
	next, err := token.Decode(raw)
	if err != nil || user == nil || next.Subject == user.Subject {
		return
	}
	slog.Info("Session switched user, reconnecting", "user", next.Subject)
	if err := p.Login(ctx, raw); err != nil {
		slog.Warn("Stored session token is unusable", "error", err)
		return
	}
	if err := s.Unmount(); err != nil {
		slog.Warn("Failed to close stream", "error", err)
	}
	if err := s.Mount(ctx); err != nil {
		slog.Warn("Failed to reopen stream", "error", err)
		return
	}
	_ = s.Fetch(ctx)
}

// watchTokenFile calls onChange whenever path is written, replaced or
// removed. The directory is watched since editors and stores replace files.
func watchTokenFile(ctx context.Context, path string, onChange func()) (func() error, error) {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	const relevant = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) == filepath.Clean(path) && ev.Op&relevant != 0 {
					onChange()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("Session file watcher error", "error", err)
			}
		}
	}()
	return w.Close, nil
}

func init() {
	watchCmd.Flags().StringVar(&watchCity, "city", "", "city to follow (default Paris)")
	watchCmd.Flags().StringVar(&watchSince, "since", "", "only readings at or after this time")
	watchCmd.Flags().StringVar(&watchUntil, "until", "", "only readings at or before this time")
	watchCmd.Flags().StringVar(&watchFormat, "format", "table", "output format: table or json")
	watchCmd.Flags().BoolVar(&watchFilterPushes, "only-city", false, "ignore pushed readings of other cities")
	rootCmd.AddCommand(watchCmd)
}
