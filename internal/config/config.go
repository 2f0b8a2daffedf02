// Package config loads odwatch settings from the environment (and an
// optional .env file) and builds the backends they select.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // America/New_York on hosts without zoneinfo

	"github.com/hkloudou/odwatch/internal/catalog"
	"github.com/hkloudou/odwatch/internal/feed"
	"github.com/hkloudou/odwatch/internal/social"
	"github.com/joho/godotenv"
)

// Config represents odwatch configuration
type Config struct {
	DataDir  string `json:"DataDir"`
	Timezone string `json:"Timezone"` // scrape timestamps and day buckets

	// Snapshot storage
	Storage     string `json:"Storage"` // "file" | "memory" | "oss"
	Bucket      string `json:"Bucket"`
	Endpoint    string `json:"Endpoint"`
	AccessKey   string `json:"AccessKey"`
	SecretKey   string `json:"SecretKey"`
	Prefix      string `json:"Prefix"`
	OSSInternal bool   `json:"OSSInternal"`
	AESKey      string `json:"AESKey"`

	// Catalog API
	CatalogURL    string        `json:"CatalogURL"`
	Domains       []string      `json:"Domains"`
	SearchContext string        `json:"SearchContext"`
	Limit         int           `json:"Limit"`
	Order         string        `json:"Order"`
	UserAgent     string        `json:"UserAgent"`
	RetryAttempts uint          `json:"RetryAttempts"`
	RetryInitial  time.Duration `json:"RetryInitial"`
	RetryMax      time.Duration `json:"RetryMax"`

	// Blob cache and Redis
	Cache       string        `json:"Cache"` // "none" | "memory" | "redis"
	CacheTTL    time.Duration `json:"CacheTTL"`
	RedisURL    string        `json:"RedisURL"`
	Concurrency int           `json:"Concurrency"`

	// Feed
	FeedTitle       string `json:"FeedTitle"`
	FeedLink        string `json:"FeedLink"`
	FeedDescription string `json:"FeedDescription"`
	FeedLimit       int    `json:"FeedLimit"`

	// Social
	Social               string        `json:"Social"` // "mastodon" | "slack" | "dry-run"
	SocialDelay          time.Duration `json:"SocialDelay"`
	Ledger               string        `json:"Ledger"` // "none" | "memory" | "file" | "redis"
	MastodonServer       string        `json:"MastodonServer"`
	MastodonClientID     string        `json:"MastodonClientID"`
	MastodonClientSecret string        `json:"MastodonClientSecret"`
	MastodonAccessToken  string        `json:"MastodonAccessToken"`
	SlackWebhookURL      string        `json:"SlackWebhookURL"`
}

// Default returns a configuration that works out of the box against the
// NYC portal with everything stored under ./data
func Default() *Config {
	retry := catalog.DefaultRetryPolicy()
	fo := feed.DefaultOptions()
	return &Config{
		DataDir:  "data",
		Timezone: "America/New_York",

		Storage: "file",

		CatalogURL:    catalog.DefaultBaseURL,
		Domains:       []string{catalog.DefaultDomain},
		SearchContext: catalog.DefaultDomain,
		Limit:         catalog.DefaultLimit,
		Order:         catalog.DefaultOrder,
		UserAgent:     "odwatch",
		RetryAttempts: retry.MaxAttempts,
		RetryInitial:  retry.InitialInterval,
		RetryMax:      retry.MaxInterval,

		Cache:       "none",
		CacheTTL:    24 * time.Hour,
		Concurrency: 4,

		FeedTitle:       fo.Title,
		FeedLink:        fo.Link,
		FeedDescription: fo.Description,
		FeedLimit:       fo.Limit,

		Social:         "mastodon",
		SocialDelay:    social.DefaultDelay,
		Ledger:         "file",
		MastodonServer: "https://mastodon.palewi.re",
	}
}

// Load reads .env (if present) and then the environment on top of Default
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	e := &envReader{}

	e.str("ODWATCH_DATA_DIR", &cfg.DataDir)
	e.str("ODWATCH_TIMEZONE", &cfg.Timezone)

	e.str("ODWATCH_STORAGE", &cfg.Storage)
	e.str("ODWATCH_OSS_BUCKET", &cfg.Bucket)
	e.str("ODWATCH_OSS_ENDPOINT", &cfg.Endpoint)
	e.str("ODWATCH_OSS_ACCESS_KEY", &cfg.AccessKey)
	e.str("ODWATCH_OSS_SECRET_KEY", &cfg.SecretKey)
	e.str("ODWATCH_OSS_PREFIX", &cfg.Prefix)
	e.boolean("ODWATCH_OSS_INTERNAL", &cfg.OSSInternal)
	e.str("ODWATCH_AES_KEY", &cfg.AESKey)

	e.str("ODWATCH_CATALOG_URL", &cfg.CatalogURL)
	e.list("ODWATCH_DOMAINS", &cfg.Domains)
	e.str("ODWATCH_SEARCH_CONTEXT", &cfg.SearchContext)
	e.integer("ODWATCH_LIMIT", &cfg.Limit)
	e.str("ODWATCH_ORDER", &cfg.Order)
	e.str("ODWATCH_USER_AGENT", &cfg.UserAgent)
	e.uinteger("ODWATCH_RETRY_ATTEMPTS", &cfg.RetryAttempts)
	e.duration("ODWATCH_RETRY_INITIAL", &cfg.RetryInitial)
	e.duration("ODWATCH_RETRY_MAX", &cfg.RetryMax)

	e.str("ODWATCH_CACHE", &cfg.Cache)
	e.duration("ODWATCH_CACHE_TTL", &cfg.CacheTTL)
	e.str("REDIS_URL", &cfg.RedisURL)
	e.integer("ODWATCH_CONCURRENCY", &cfg.Concurrency)

	e.str("ODWATCH_FEED_TITLE", &cfg.FeedTitle)
	e.str("ODWATCH_FEED_LINK", &cfg.FeedLink)
	e.str("ODWATCH_FEED_DESCRIPTION", &cfg.FeedDescription)
	e.integer("ODWATCH_FEED_LIMIT", &cfg.FeedLimit)

	e.str("ODWATCH_SOCIAL", &cfg.Social)
	e.duration("ODWATCH_SOCIAL_DELAY", &cfg.SocialDelay)
	e.str("ODWATCH_LEDGER", &cfg.Ledger)
	e.str("MASTODON_SERVER", &cfg.MastodonServer)
	e.str("MASTODON_CLIENT_KEY", &cfg.MastodonClientID)
	e.str("MASTODON_CLIENT_SECRET", &cfg.MastodonClientSecret)
	e.str("MASTODON_ACCESS_TOKEN", &cfg.MastodonAccessToken)
	e.str("SLACK_WEBHOOK_URL", &cfg.SlackWebhookURL)

	if e.err != nil {
		return nil, e.err
	}
	return cfg, cfg.Validate()
}

// Validate checks the enumerated settings
func (cfg *Config) Validate() error {
	checks := []struct {
		name, value string
		allowed     []string
	}{
		{"ODWATCH_STORAGE", cfg.Storage, []string{"file", "memory", "oss"}},
		{"ODWATCH_CACHE", cfg.Cache, []string{"none", "memory", "redis"}},
		{"ODWATCH_SOCIAL", cfg.Social, []string{"mastodon", "slack", "dry-run"}},
		{"ODWATCH_LEDGER", cfg.Ledger, []string{"none", "memory", "file", "redis"}},
	}
	for _, c := range checks {
		ok := false
		for _, a := range c.allowed {
			if c.value == a {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("invalid %s %q (want one of %s)", c.name, c.value, strings.Join(c.allowed, ", "))
		}
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	return nil
}

// RawDir holds the snapshot blobs
func (cfg *Config) RawDir() string { return filepath.Join(cfg.DataDir, "raw") }

// CleanDir holds the published CSV and feed files
func (cfg *Config) CleanDir() string { return filepath.Join(cfg.DataDir, "clean") }

// StateDir holds the posted-ids ledger
func (cfg *Config) StateDir() string { return filepath.Join(cfg.DataDir, "state") }

// Location resolves Timezone
func (cfg *Config) Location() (*time.Location, error) {
	if cfg.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid ODWATCH_TIMEZONE %q: %w", cfg.Timezone, err)
	}
	return loc, nil
}

// CatalogConfig builds the catalog client settings
func (cfg *Config) CatalogConfig(log *slog.Logger) catalog.Config {
	return catalog.Config{
		BaseURL:   cfg.CatalogURL,
		UserAgent: cfg.UserAgent,
		Logger:    log,
		Retry: catalog.RetryPolicy{
			MaxAttempts:     cfg.RetryAttempts,
			InitialInterval: cfg.RetryInitial,
			MaxInterval:     cfg.RetryMax,
			Multiplier:      2,
		},
	}
}

// Query builds the catalog query
func (cfg *Config) Query() catalog.Query {
	return catalog.Query{
		Domains:       cfg.Domains,
		SearchContext: cfg.SearchContext,
		Limit:         cfg.Limit,
		Order:         cfg.Order,
	}
}

// FeedOptions builds the feed channel settings
func (cfg *Config) FeedOptions() feed.Options {
	return feed.Options{
		Title:       cfg.FeedTitle,
		Link:        cfg.FeedLink,
		Description: cfg.FeedDescription,
		Limit:       cfg.FeedLimit,
	}
}

// envReader collects the first parse error
type envReader struct {
	err error
}

func (e *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) fail(key, v string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) uinteger(key string, dst *uint) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = uint(n)
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}
