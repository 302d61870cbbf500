// Package livesync keeps a dashboard's record list in step with the backend:
// an initial REST fetch per filter plus create/update/delete pushes over the
// event stream.
package livesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nfrund/weatherdash/internal/backend"
	"github.com/nfrund/weatherdash/internal/domain"
	"github.com/nfrund/weatherdash/internal/metrics"
	"github.com/nfrund/weatherdash/internal/pubsub"
	"github.com/nfrund/weatherdash/internal/stream"
)

var (
	// ErrAlreadyMounted is returned by Mount on a mounted synchronizer.
	ErrAlreadyMounted = errors.New("livesync: already mounted")
	// ErrSessionExpired is returned by fetches the backend rejected with 401.
	ErrSessionExpired = errors.New("livesync: session expired")
)

// DefaultRetryDelay is used when Config.RetryDelay is zero.
const DefaultRetryDelay = 2 * time.Second

// Fetcher loads the records matching a filter.
type Fetcher interface {
	FetchRecords(ctx context.Context, token string, f domain.Filter) ([]domain.WeatherRecord, error)
}

// TokenSource supplies the bearer token for fetches and the stream.
// *auth.Provider satisfies it.
type TokenSource interface {
	Token(ctx context.Context) string
}

// StaticToken is a TokenSource for a token captured up front.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) string { return string(t) }

// Notifier receives transient messages meant for the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Config wires a Synchronizer. Fetcher, Dialer and Tokens are required.
type Config struct {
	ID string
	// Owner is the subject of the user the mount was created for.
	Owner   string
	Fetcher Fetcher
	Dialer  stream.Dialer
	Tokens  TokenSource

	// Notifier and Publisher are optional; both see every notification.
	Notifier  Notifier
	Publisher pubsub.Publisher
	// OnUnauthorized runs when a fetch comes back 401.
	OnUnauthorized func(ctx context.Context)

	// Filter is the initial selection; the zero value means domain.DefaultFilter.
	Filter domain.Filter
	// FilterPushes drops created/updated pushes for other cities.
	FilterPushes bool
	RetryDelay   time.Duration
	Logger       *slog.Logger
}

// Synchronizer owns one dashboard's record list.
type Synchronizer struct {
	id  string
	cfg Config
	log *slog.Logger

	mu      sync.RWMutex
	records []domain.WeatherRecord
	filter  domain.Filter
	version uint64

	generation atomic.Uint64

	mountMu sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an unmounted synchronizer with an empty list.
func New(cfg Config) *Synchronizer {
	if cfg.Filter.City == "" {
		cfg.Filter.City = domain.DefaultCity
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Synchronizer{
		id:      cfg.ID,
		cfg:     cfg,
		log:     logger.With("mount", cfg.ID),
		records: []domain.WeatherRecord{},
		filter:  cfg.Filter,
	}
}

// ID returns the mount id.
func (s *Synchronizer) ID() string { return s.id }

// Owner returns the subject the mount belongs to.
func (s *Synchronizer) Owner() string { return s.cfg.Owner }

// Records returns a copy of the current list.
func (s *Synchronizer) Records() []domain.WeatherRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.WeatherRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Record looks up a record of the list by id.
func (s *Synchronizer) Record(id int) (domain.WeatherRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.records[i], true
	}
	return domain.WeatherRecord{}, false
}

// Filter returns the active filter.
func (s *Synchronizer) Filter() domain.Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// Version increases with every change to the list. Views key their charts on it.
func (s *Synchronizer) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Mounted reports whether the stream loop is running.
func (s *Synchronizer) Mounted() bool {
	s.mountMu.Lock()
	defer s.mountMu.Unlock()
	return s.cancel != nil
}

// Mount opens the event stream and starts applying pushes. The connection
// lives until Unmount or until ctx ends.
func (s *Synchronizer) Mount(ctx context.Context) error {
	s.mountMu.Lock()
	defer s.mountMu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyMounted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	metrics.ActiveMounts.Inc()

	go s.run(loopCtx, s.done)
	return nil
}

// Unmount closes the stream and waits for the loop to exit. It is safe to
// call on an unmounted synchronizer.
func (s *Synchronizer) Unmount() error {
	s.mountMu.Lock()
	defer s.mountMu.Unlock()
	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	metrics.ActiveMounts.Dec()
	s.log.Debug("Dashboard unmounted")
	return nil
}

func (s *Synchronizer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	// Only the first failure of an outage is surfaced to the user.
	notified := false
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			metrics.StreamReconnectsTotal.Inc()
			s.log.Debug("Reconnecting event stream", "attempt", attempt)
		}

		conn, err := s.cfg.Dialer.Dial(ctx, s.cfg.Tokens.Token(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("Event stream connection failed", "error", err)
			if !notified {
				s.notify(ctx, Notification{Level: LevelError, Message: "Live updates are unavailable, retrying."})
				notified = true
			}
		} else {
			notified = false
			s.log.Info("Event stream connected")
			err = stream.Listen(ctx, conn, s.apply)
			conn.Close()
			if ctx.Err() != nil {
				return
			}
			if stream.IsNormalClosure(err) {
				s.log.Info("Event stream closed by backend")
			} else {
				s.log.Warn("Event stream disconnected", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.RetryDelay):
		}
	}
}

// SetFilter replaces the filter and refetches.
func (s *Synchronizer) SetFilter(ctx context.Context, f domain.Filter) error {
	if f.City == "" {
		f.City = domain.DefaultCity
	}
	s.mu.Lock()
	s.filter = f
	gen := s.generation.Add(1)
	s.mu.Unlock()
	return s.fetch(ctx, f, gen)
}

// Fetch reloads the list for the active filter. A response that arrives after
// a newer fetch was dispatched is discarded.
func (s *Synchronizer) Fetch(ctx context.Context) error {
	s.mu.Lock()
	f := s.filter
	gen := s.generation.Add(1)
	s.mu.Unlock()
	return s.fetch(ctx, f, gen)
}

func (s *Synchronizer) fetch(ctx context.Context, f domain.Filter, gen uint64) error {
	start := time.Now()
	records, err := s.cfg.Fetcher.FetchRecords(ctx, s.cfg.Tokens.Token(ctx), f)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())

	// A rejected token ends the session whichever fetch noticed it.
	if errors.Is(err, backend.ErrUnauthorized) {
		metrics.FetchesTotal.WithLabelValues("unauthorized").Inc()
		s.log.Warn("Fetch rejected, session expired", "city", f.City)
		if s.cfg.OnUnauthorized != nil {
			s.cfg.OnUnauthorized(ctx)
		}
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	s.mu.Lock()
	if s.generation.Load() != gen {
		s.mu.Unlock()
		metrics.FetchesTotal.WithLabelValues("stale").Inc()
		s.log.Debug("Discarding superseded fetch", "city", f.City, "generation", gen)
		return nil
	}
	if err == nil {
		s.records = append(make([]domain.WeatherRecord, 0, len(records)), records...)
		s.version++
	}
	version, count := s.version, len(s.records)
	s.mu.Unlock()

	switch {
	case err == nil:
		metrics.FetchesTotal.WithLabelValues("ok").Inc()
		s.publishChange(ctx, RecordsChanged{Version: version, Count: count, Cause: "fetch"})
		return nil
	default:
		metrics.FetchesTotal.WithLabelValues("error").Inc()
		s.log.Error("Fetch failed", "city", f.City, "error", err)
		s.notify(ctx, Notification{Level: LevelError, Message: backend.Message(err)})
		return fmt.Errorf("fetch %s: %w", f.City, err)
	}
}

// apply folds one push event into the list.
func (s *Synchronizer) apply(ev stream.Event) {
	s.mu.Lock()
	changed := s.applyLocked(ev)
	if changed {
		s.version++
	}
	version, count := s.version, len(s.records)
	s.mu.Unlock()

	result := "ignored"
	if changed {
		result = "applied"
	}
	metrics.StreamEventsTotal.WithLabelValues(string(ev.Kind), result).Inc()

	if changed {
		s.publishChange(context.Background(), RecordsChanged{Version: version, Count: count, Cause: string(ev.Kind)})
	}
}

func (s *Synchronizer) applyLocked(ev stream.Event) bool {
	switch ev.Kind {
	case stream.KindCreated:
		if s.cfg.FilterPushes && !s.filter.Matches(ev.Record) {
			return false
		}
		s.records = append(s.records, ev.Record)
		return true

	case stream.KindUpdated:
		i := s.indexLocked(ev.Record.ID)
		if i < 0 {
			return false
		}
		if s.cfg.FilterPushes && !s.filter.Matches(ev.Record) {
			s.removeLocked(i)
			return true
		}
		s.records[i] = ev.Record
		return true

	case stream.KindDeleted:
		i := s.indexLocked(ev.ID)
		if i < 0 {
			return false
		}
		s.removeLocked(i)
		return true

	case stream.KindLatest:
		changed := false
		for _, r := range ev.Records {
			if !s.filter.Matches(r) {
				continue
			}
			if i := s.indexLocked(r.ID); i >= 0 {
				s.records[i] = r
			} else {
				s.records = append(s.records, r)
			}
			changed = true
		}
		return changed
	}
	return false
}

func (s *Synchronizer) indexLocked(id int) int {
	for i, r := range s.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (s *Synchronizer) removeLocked(i int) {
	s.records = append(s.records[:i:i], s.records[i+1:]...)
}

func (s *Synchronizer) notify(ctx context.Context, n Notification) {
	if s.cfg.Notifier != nil {
		s.cfg.Notifier.Notify(ctx, n)
	}
	if s.cfg.Publisher != nil {
		if err := pubsub.Publish(context.WithoutCancel(ctx), s.cfg.Publisher, TopicNotifications, s.id, n); err != nil {
			s.log.Error("Failed to publish notification", "error", err)
		}
	}
}

func (s *Synchronizer) publishChange(ctx context.Context, change RecordsChanged) {
	if s.cfg.Publisher == nil {
		return
	}
	if err := pubsub.Publish(context.WithoutCancel(ctx), s.cfg.Publisher, TopicRecordsChanged, s.id, change); err != nil {
		s.log.Error("Failed to publish records change", "error", err)
	}
}
