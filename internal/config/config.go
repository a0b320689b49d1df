// Package config loads and validates the synchronizer's environment
// configuration (SPEC_FULL.md §4.11). Validation happens once, at
// startup, before any I/O: a misconfigured run exits before touching
// either side.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend selects which objectstore.Store implementation to construct.
type Backend string

const (
	BackendAzure Backend = "azure"
	BackendS3    Backend = "s3"
	BackendGCS   Backend = "gcs"
)

// Config is the fully validated, resolved configuration for one run.
type Config struct {
	StorageAccount string
	StorageKey     string
	Container      string
	WritePrefix    string
	NoWrite        bool
	Verbosity      int
	Stdout         bool
	Syslog         bool

	Backend          Backend
	MaxConcurrency   int
	RateBytesPerSec  int
	CacheFile        string
}

var (
	// ErrMissingContainer is returned when AZURE_SYNC_CONTAINER is unset.
	ErrMissingContainer = errors.New("config: AZURE_SYNC_CONTAINER is required")
	// ErrBadBackend is returned for an unrecognized AZURE_SYNC_BACKEND value.
	ErrBadBackend = errors.New("config: AZURE_SYNC_BACKEND must be one of azure, s3, gcs")
)

const defaultWritePrefix = "/tmp/azure-sync-writes"

// Load reads and validates configuration from the process environment.
// Load only knows about environment variables; backend and concurrency
// have no CLI flag override. The per-invocation CLI knobs (exclude
// globs, every duration) travel separately, in RunOptions.
func Load() (Config, error) {
	cfg := Config{
		StorageAccount: os.Getenv("AZURE_STORAGE_ACCOUNT"),
		StorageKey:     os.Getenv("AZURE_STORAGE_KEY"),
		Container:      os.Getenv("AZURE_SYNC_CONTAINER"),
		WritePrefix:    envOr("AZURE_SYNC_WRITE_PREFIX", defaultWritePrefix),
		NoWrite:        os.Getenv("AZURE_SYNC_NOWRITE") != "",
		Stdout:         envBool("AZURE_SYNC_STDOUT", true),
		Syslog:         envBool("AZURE_SYNC_SYSLOG", false),

		Backend:         Backend(envOr("AZURE_SYNC_BACKEND", string(BackendAzure))),
		MaxConcurrency:  8,
		RateBytesPerSec: 0,
	}
	cfg.CacheFile = envOr("AZURE_SYNC_CACHE_FILE", cfg.WritePrefix+"/.azure-sync-cache")

	if cfg.Container == "" {
		return Config{}, ErrMissingContainer
	}

	verbosity, err := envInt("AZURE_SYNC_VERBOSE", 0)
	if err != nil {
		return Config{}, fmt.Errorf("config: AZURE_SYNC_VERBOSE: %w", err)
	}
	cfg.Verbosity = verbosity

	if mc, err := envIntOptional("AZURE_SYNC_MAX_CONCURRENCY"); err != nil {
		return Config{}, fmt.Errorf("config: AZURE_SYNC_MAX_CONCURRENCY: %w", err)
	} else if mc != nil {
		cfg.MaxConcurrency = *mc
	}

	if rb, err := envIntOptional("AZURE_SYNC_RATE_BYTES_PER_SEC"); err != nil {
		return Config{}, fmt.Errorf("config: AZURE_SYNC_RATE_BYTES_PER_SEC: %w", err)
	} else if rb != nil {
		cfg.RateBytesPerSec = *rb
	}

	switch cfg.Backend {
	case BackendAzure, BackendS3, BackendGCS:
	default:
		return Config{}, ErrBadBackend
	}

	return cfg, nil
}

// Mode is the push/pull/delete flag combination, resolved and validated
// independently of environment config (these come from CLI flags).
type Mode struct {
	Push   bool
	Pull   bool
	Delete bool
}

// ErrIllegalModeCombination is returned for push+pull+delete together.
var ErrIllegalModeCombination = errors.New("config: --push, --pull and --delete together is not a legal combination")

// Validate rejects the one illegal mode combination (spec.md §4.9):
// nuke mode must accompany exactly one of push/pull, never both.
func (m Mode) Validate() error {
	if m.Push && m.Pull && m.Delete {
		return ErrIllegalModeCombination
	}
	return nil
}

// RunOptions bundles the per-invocation knobs that come from CLI flags
// rather than the environment: exclude globs and the optional repeat
// interval (SPEC_FULL.md §4.11/§4.14).
type RunOptions struct {
	Mode
	Exclude []string
	Every   time.Duration
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", v, err)
	}
	return n, nil
}

func envIntOptional(key string) (*int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("invalid integer %q: %w", v, err)
	}
	return &n, nil
}
