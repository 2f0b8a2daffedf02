// Package odwatch monitors an open-data catalog: it stores raw snapshots of
// the catalog, reconciles them into one canonical table, derives deltas and
// aggregates, and publishes RSS/Atom feeds and social posts about new
// datasets.
//
//	cfg, _ := odwatch.LoadConfig()
//	client := odwatch.New(cfg, odwatch.WithLogger(log))
//	if _, err := client.Fetch(ctx); err != nil { ... }
//	if _, err := client.Reconcile(ctx); err != nil { ... }
package odwatch

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hkloudou/odwatch/internal/cache"
	"github.com/hkloudou/odwatch/internal/catalog"
	"github.com/hkloudou/odwatch/internal/config"
	"github.com/hkloudou/odwatch/internal/ledger"
	"github.com/hkloudou/odwatch/internal/snapshot"
	"github.com/hkloudou/odwatch/internal/social"
	"github.com/hkloudou/odwatch/internal/storage"
	"github.com/jonboulle/clockwork"
)

// Config is the odwatch configuration
type Config = config.Config

// LoadConfig reads the configuration from the environment and an optional .env
func LoadConfig() (*Config, error) {
	return config.Load()
}

// DefaultConfig returns the built-in defaults without reading the environment
func DefaultConfig() *Config {
	return config.Default()
}

// Client runs the odwatch stages against one configuration
type Client struct {
	cfg   *Config
	log   *slog.Logger
	clock clockwork.Clock
	runID string
	loc   *time.Location

	// Lazy-loaded components
	mu      sync.RWMutex
	storage storage.Storage
	cache   cache.Cache
	store   *snapshot.Store
	catalog catalog.Fetcher
	poster  social.Poster
	ledger  ledger.Ledger
}

// Option holds components injected in place of the configured ones
type Option struct {
	Storage       storage.Storage
	CacheProvider cache.Cache
	Logger        *slog.Logger
	Clock         clockwork.Clock
	Catalog       catalog.Fetcher
	Poster        social.Poster
	Ledger        ledger.Ledger
}

// New creates a client. Backends not supplied through options are built
// from cfg on first use.
func New(cfg *Config, opts ...func(*Option)) *Client {
	if cfg == nil {
		cfg = config.Default()
	}

	option := &Option{}
	for _, opt := range opts {
		opt(option)
	}

	log := option.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	clock := option.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	runID := uuid.NewString()
	return &Client{
		cfg:     cfg,
		log:     log.With("run", runID),
		clock:   clock,
		runID:   runID,
		storage: option.Storage, // May be nil, will be loaded lazily
		cache:   option.CacheProvider,
		catalog: option.Catalog,
		poster:  option.Poster,
		ledger:  option.Ledger,
	}
}

// WithStorage returns an option function that sets the snapshot storage
func WithStorage(storage storage.Storage) func(*Option) {
	return func(opt *Option) {
		opt.Storage = storage
	}
}

// WithCache returns an option function that sets the blob cache
func WithCache(cacheProvider cache.Cache) func(*Option) {
	return func(opt *Option) {
		opt.CacheProvider = cacheProvider
	}
}

// WithLogger returns an option function that sets the logger
func WithLogger(log *slog.Logger) func(*Option) {
	return func(opt *Option) {
		opt.Logger = log
	}
}

// WithClock returns an option function that sets the clock used for scrape
// timestamps and post pacing
func WithClock(clock clockwork.Clock) func(*Option) {
	return func(opt *Option) {
		opt.Clock = clock
	}
}

// WithCatalog returns an option function that sets the catalog fetcher
func WithCatalog(fetcher catalog.Fetcher) func(*Option) {
	return func(opt *Option) {
		opt.Catalog = fetcher
	}
}

// WithPoster returns an option function that sets the social backend
func WithPoster(poster social.Poster) func(*Option) {
	return func(opt *Option) {
		opt.Poster = poster
	}
}

// WithLedger returns an option function that sets the posted-ids ledger
func WithLedger(l ledger.Ledger) func(*Option) {
	return func(opt *Option) {
		opt.Ledger = l
	}
}

// RunID identifies this client in logs
func (c *Client) RunID() string {
	return c.runID
}

// Close releases the snapshot read pool. A client that never ran a stage
// has nothing to release.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store != nil {
		c.store.Close()
		c.store = nil
	}
}

// ensureInitialized builds storage, cache and the snapshot store
func (c *Client) ensureInitialized() error {
	c.mu.RLock()
	if c.store != nil {
		c.mu.RUnlock()
		return nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if c.store != nil {
		return nil
	}

	loc, err := c.cfg.Location()
	if err != nil {
		return err
	}
	c.loc = loc

	if c.storage == nil {
		stor, err := c.cfg.CreateStorage()
		if err != nil {
			return fmt.Errorf("failed to create %s storage: %w", c.cfg.Storage, err)
		}
		c.storage = stor
	}

	if c.cache == nil {
		cc, err := c.cfg.CreateCache(c.log)
		if err != nil {
			return fmt.Errorf("failed to create %s cache: %w", c.cfg.Cache, err)
		}
		c.cache = cc
	}

	c.store = snapshot.NewStore(c.storage,
		snapshot.WithCache(c.cache),
		snapshot.WithConcurrency(c.cfg.Concurrency),
		snapshot.WithLogger(c.log),
	)
	c.log.Debug("initialized", "storage", c.storage.Namespace(), "cache", c.cfg.Cache)
	return nil
}

func (c *Client) ensureCatalog() catalog.Fetcher {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.catalog == nil {
		c.catalog = catalog.New(c.cfg.CatalogConfig(c.log))
	}
	return c.catalog
}

func (c *Client) ensureSocial() (social.Poster, ledger.Ledger, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.poster == nil {
		p, err := c.cfg.CreatePoster()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create %s poster: %w", c.cfg.Social, err)
		}
		c.poster = p
	}
	if c.ledger == nil {
		l, err := c.cfg.CreateLedger()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create %s ledger: %w", c.cfg.Ledger, err)
		}
		c.ledger = l
	}
	return c.poster, c.ledger, nil
}

// reportCache logs hit/miss counters for caches that keep them
func (c *Client) reportCache() {
	if s, ok := c.cache.(interface{ Stat() *cache.CacheStat }); ok {
		s.Stat().Report()
	}
}

func (c *Client) cleanPath(name string) string {
	return filepath.Join(c.cfg.CleanDir(), name)
}
