package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/mapsync/internal/cache"
	"github.com/roach88/mapsync/internal/sign"
	"github.com/roach88/mapsync/internal/store"
)

// Defaults for Config durations left at zero.
const (
	DefaultSyncInterval   = 5 * time.Second
	DefaultSyncWarmup     = time.Second
	DefaultSyncTimeout    = 10 * time.Second
	DefaultSinceSkew      = 500 * time.Millisecond
	DefaultRequestTimeout = 10 * time.Second
	DefaultRetryBackoff   = 5 * time.Second
	DefaultResignWindow   = 10 * time.Second
	pausePollInterval     = 100 * time.Millisecond
)

// Config describes one map session.
type Config struct {
	// Scheme is "https" or "http". Defaults to https.
	Scheme string
	// Domain is host[:port].
	Domain string
	// MapID may be empty for account-only sessions; sync is disabled then.
	MapID string
	// APIVersion selects the path layout: 1 (the default when zero), or
	// any negative value for the legacy /rest/ API.
	APIVersion int

	// Signed requests need the credential id and base64 key.
	Signed    bool
	ID        string
	Key       string
	AccountID string

	DefaultBlocking bool
	CoordCheck      CoordCheck

	// Sync disables the background poller when false.
	Sync           bool
	SyncInterval   time.Duration
	SyncWarmup     time.Duration
	SyncTimeout    time.Duration
	SinceSkew      time.Duration
	RequestTimeout time.Duration
	RetryBackoff   time.Duration
	ResignWindow   time.Duration
}

func (c *Config) applyDefaults() {
	if c.Scheme == "" {
		c.Scheme = "https"
	}
	if c.APIVersion == 0 {
		c.APIVersion = 1
	}
	setDefault(&c.SyncInterval, DefaultSyncInterval)
	setDefault(&c.SyncWarmup, DefaultSyncWarmup)
	setDefault(&c.SyncTimeout, DefaultSyncTimeout)
	setDefault(&c.SinceSkew, DefaultSinceSkew)
	setDefault(&c.RequestTimeout, DefaultRequestTimeout)
	setDefault(&c.RetryBackoff, DefaultRetryBackoff)
	setDefault(&c.ResignWindow, DefaultResignWindow)
}

func setDefault(d *time.Duration, v time.Duration) {
	if *d <= 0 {
		*d = v
	}
}

// Journal persists queued entries so they survive restarts. *store.Store
// implements it.
type Journal interface {
	AppendEntry(ctx context.Context, e store.Entry) error
	DeleteEntry(ctx context.Context, id string) error
	PendingEntries(ctx context.Context) ([]store.Entry, error)
	RecordSync(ctx context.Context, r store.SyncRecord) error
}

// Option configures a Session.
type Option func(*Session)

// WithNotifier installs notification callbacks.
func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notify = n }
}

// WithJournal persists queued entries.
func WithJournal(j Journal) Option {
	return func(s *Session) { s.journal = j }
}

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithHTTPClient overrides the HTTP client. Its cookie jar, if any, is the
// session's shared cookie state.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.client = c }
}

// WithLogger overrides slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithIDGenerator overrides the queue entry id generator.
func WithIDGenerator(g EntryIDGenerator) Option {
	return func(s *Session) { s.ids = g }
}

// Session is the sync engine for one map: the cache, the dispatcher, the
// sync loop and the queue worker.
//
// Concurrency: exchangeMu serializes every request together with the cache
// changes its response causes. Blocking sends, sync polls and queue
// deliveries all hold it, so a poll can never merge a snapshot taken
// before a concurrent local change was acknowledged.
type Session struct {
	cfg     Config
	signer  *sign.Signer
	client  *http.Client
	cache   *cache.Cache
	queue   *entryQueue
	notify  Notifier
	journal Journal
	clock   Clock
	ids     EntryIDGenerator
	log     *slog.Logger

	exchangeMu sync.Mutex
	paused     atomic.Bool

	stateMu      sync.Mutex
	disconnected bool
	lastSync     int64 // server timestamp of the last successful poll, ms
	closed       bool
	cancel       context.CancelFunc
}

// New validates cfg and builds a session. Configuration errors fail here.
func New(cfg Config, opts ...Option) (*Session, error) {
	cfg.applyDefaults()

	if cfg.Domain == "" {
		return nil, newError(ErrCodeConfig, "domain is required", nil)
	}
	if cfg.MapID != "" && !mapIDPattern.MatchString(cfg.MapID) {
		return nil, newError(ErrCodeConfig, fmt.Sprintf("invalid map id %q", cfg.MapID), nil)
	}

	s := &Session{
		cfg:   cfg,
		cache: cache.New(),
		queue: newEntryQueue(),
		clock: SystemClock{},
		ids:   UUIDv7Generator{},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.Signed {
		signer, err := sign.New(cfg.ID, cfg.Key, sign.WithClock(s.clock.Now))
		if err != nil {
			return nil, newError(ErrCodeConfig, "signed session needs credentials", err)
		}
		s.signer = signer
	}

	if s.client == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		s.client = &http.Client{Jar: jar}
	}

	s.log = s.log.With("map", cfg.MapID)
	return s, nil
}

// Cache returns the session's map mirror.
func (s *Session) Cache() *cache.Cache {
	return s.cache
}

// Config returns the effective configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// Run restores journaled entries, then runs the queue worker and, when
// enabled, the sync loop until ctx is cancelled or the map is closed.
func (s *Session) Run(ctx context.Context) error {
	s.stateMu.Lock()
	if s.closed {
		s.stateMu.Unlock()
		return newError(ErrCodeClosed, "map is closed", nil)
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stateMu.Unlock()
	defer cancel()

	if err := s.restoreJournal(ctx); err != nil {
		s.log.Error("journal restore failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.runQueue(gctx) })
	if s.cfg.Sync && s.cfg.MapID != "" {
		g.Go(func() error { return s.runSync(gctx) })
	}

	s.log.Info("session running", "sync", s.cfg.Sync, "interval", s.cfg.SyncInterval)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	s.log.Info("session stopped")
	return err
}

// Close stops the workers, clears the cache and fires MapClosed.
func (s *Session) Close() {
	s.closeMap("closed by caller")
}

func (s *Session) closeMap(reason string) {
	s.stateMu.Lock()
	if s.closed {
		s.stateMu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.queue.Close()
	s.cache.Reset()
	s.log.Info("map closed", "reason", reason)
	s.notify.mapClosed()
}

// Closed reports whether the map was closed.
func (s *Session) Closed() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.closed
}

// Pause stops background network activity until Resume.
func (s *Session) Pause() { s.paused.Store(true) }

// Resume undoes Pause.
func (s *Session) Resume() { s.paused.Store(false) }

// Disconnected reports the debounced connection state.
func (s *Session) Disconnected() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.disconnected
}

// LastSync returns the server timestamp of the last successful poll.
func (s *Session) LastSync() int64 {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.lastSync
}

// QueueLen returns the number of undelivered queued requests.
func (s *Session) QueueLen() int {
	return s.queue.Len()
}

// markDisconnected fires Disconnected on the connected→disconnected edge.
func (s *Session) markDisconnected(reason error) {
	s.stateMu.Lock()
	was := s.disconnected
	s.disconnected = true
	s.stateMu.Unlock()

	if was {
		return
	}
	disconnects.Inc()
	s.log.Warn("disconnected", "error", reason)
	s.notify.disconnected()
}

// markConnected fires Reconnected on the disconnected→connected edge.
func (s *Session) markConnected() {
	s.stateMu.Lock()
	was := s.disconnected
	s.disconnected = false
	s.stateMu.Unlock()

	if !was {
		return
	}
	s.log.Info("reconnected")
	s.notify.reconnected()
}
