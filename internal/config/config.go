// Package config loads mapsync configuration files.
//
// A file is YAML. It is checked against an embedded CUE schema before it is
// decoded, so type errors and unknown keys are reported with their path.
// Credentials missing from the file are read from MAPSYNC_ID, MAPSYNC_KEY
// and MAPSYNC_ACCOUNT.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/mapsync/internal/session"
)

//go:embed schema.cue
var schemaCUE string

// Environment variables consulted for credentials.
const (
	EnvID      = "MAPSYNC_ID"
	EnvKey     = "MAPSYNC_KEY"
	EnvAccount = "MAPSYNC_ACCOUNT"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config mirrors the file layout.
type Config struct {
	Domain     string `yaml:"domain"`
	Scheme     string `yaml:"scheme,omitempty"`
	MapID      string `yaml:"map_id,omitempty"`
	APIVersion int    `yaml:"api_version,omitempty"`
	Signed     bool   `yaml:"signed,omitempty"`

	Credentials Credentials `yaml:"credentials,omitempty"`

	DefaultBlocking bool   `yaml:"default_blocking,omitempty"`
	CoordCheck      string `yaml:"coord_check,omitempty"`

	Sync Sync `yaml:"sync,omitempty"`

	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
	RetryBackoff   time.Duration `yaml:"retry_backoff,omitempty"`
	ResignWindow   time.Duration `yaml:"resign_window,omitempty"`

	// Journal is the SQLite path for queued mutations; empty disables it.
	Journal     string `yaml:"journal,omitempty"`
	LogLevel    string `yaml:"log_level,omitempty"`
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// Credentials are the signing id and base64 key, plus the account used for
// map creation.
type Credentials struct {
	ID        string `yaml:"id,omitempty"`
	Key       string `yaml:"key,omitempty"`
	AccountID string `yaml:"account_id,omitempty"`
}

// Sync configures the background poller. Enabled defaults to true.
type Sync struct {
	Enabled   *bool         `yaml:"enabled,omitempty"`
	Interval  time.Duration `yaml:"interval,omitempty"`
	Warmup    time.Duration `yaml:"warmup,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
	SinceSkew time.Duration `yaml:"since_skew,omitempty"`
}

// Load reads, validates and decodes the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes YAML config data, then fills credentials
// from the environment.
func Parse(data []byte) (*Config, error) {
	if err := validate(data); err != nil {
		return nil, err
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	cfg.fromEnv()
	if cfg.Signed && (cfg.Credentials.ID == "" || cfg.Credentials.Key == "") {
		return nil, fmt.Errorf("%w: signed sessions need credentials.id and credentials.key (or %s/%s)", ErrInvalid, EnvID, EnvKey)
	}
	return &cfg, nil
}

// validate checks raw YAML against the #Config definition.
func validate(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if raw == nil {
		return fmt.Errorf("%w: empty file", ErrInvalid)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (c *Config) fromEnv() {
	if c.Credentials.ID == "" {
		c.Credentials.ID = os.Getenv(EnvID)
	}
	if c.Credentials.Key == "" {
		c.Credentials.Key = os.Getenv(EnvKey)
	}
	if c.Credentials.AccountID == "" {
		c.Credentials.AccountID = os.Getenv(EnvAccount)
	}
}

// SessionConfig converts the file into a session configuration. Zero
// durations fall back to the session defaults.
func (c *Config) SessionConfig() session.Config {
	mode, _ := session.ParseCoordCheck(c.CoordCheck)
	enabled := c.Sync.Enabled == nil || *c.Sync.Enabled

	return session.Config{
		Scheme:          c.Scheme,
		Domain:          c.Domain,
		MapID:           c.MapID,
		APIVersion:      c.APIVersion,
		Signed:          c.Signed,
		ID:              c.Credentials.ID,
		Key:             c.Credentials.Key,
		AccountID:       c.Credentials.AccountID,
		DefaultBlocking: c.DefaultBlocking,
		CoordCheck:      mode,
		Sync:            enabled,
		SyncInterval:    c.Sync.Interval,
		SyncWarmup:      c.Sync.Warmup,
		SyncTimeout:     c.Sync.Timeout,
		SinceSkew:       c.Sync.SinceSkew,
		RequestTimeout:  c.RequestTimeout,
		RetryBackoff:    c.RetryBackoff,
		ResignWindow:    c.ResignWindow,
	}
}

// Level returns the slog level named by log_level, Info by default.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
