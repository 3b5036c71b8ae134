// Package config holds the process-wide configuration for a flowruntime
// instance — listen address, default buffer sizing, logging, and the
// optional TLS/ACME settings for the control surface — behind a
// thread-safe wrapper the way the rest of the stack guards its config.
package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Config is the complete process configuration.
type Config struct {
	Listen  ListenConfig  `json:"listen"`
	Logging LoggingConfig `json:"logging"`
	Runtime RuntimeConfig `json:"runtime"`
	TLS     TLSConfig     `json:"tls,omitempty"`
}

// ListenConfig is the control surface's bind address.
type ListenConfig struct {
	Address string `json:"address"` // e.g. ":8080"
}

// LoggingConfig holds a logger level and output format. The process entry
// point builds its logger from the -log-level and -log-format flags and
// does not read this block.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// RuntimeConfig holds runtime sizing settings. The process entry point
// reads MetricsInterval (the metrics engine's sampling period) and
// StopTimeout (the control surface's HTTP shutdown deadline).
// DefaultBufferCapacity is only checked by Validate and VideoJPEGQuality
// is not read at all: channels are created at channel.DefaultCapacity,
// and video-sink takes its JPEG quality from its own node config.
type RuntimeConfig struct {
	DefaultBufferCapacity int           `json:"default_buffer_capacity"`
	MetricsInterval       time.Duration `json:"metrics_interval"`
	VideoJPEGQuality      int           `json:"video_jpeg_quality"`
	StopTimeout           time.Duration `json:"stop_timeout"`
}

// TLSConfig controls optional TLS termination on the control surface,
// either via a static cert/key pair or an ACME-issued one.
type TLSConfig struct {
	Enabled  bool       `json:"enabled"`
	CertFile string     `json:"cert_file,omitempty"`
	KeyFile  string     `json:"key_file,omitempty"`
	ACME     ACMEConfig `json:"acme,omitempty"`
}

// ACMEConfig configures automatic certificate issuance via an ACME CA.
type ACMEConfig struct {
	Enabled  bool     `json:"enabled"`
	Email    string   `json:"email,omitempty"`
	Domains  []string `json:"domains,omitempty"`
	CADirURL string   `json:"ca_dir_url,omitempty"`
	CacheDir string   `json:"cache_dir,omitempty"`
}

// Default returns the configuration used when none is supplied — a
// listener on port 8080 of every interface, with the spec's default buffer
// capacity and metrics interval.
func Default() *Config {
	return &Config{
		Listen:  ListenConfig{Address: ":8080"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Runtime: RuntimeConfig{
			DefaultBufferCapacity: 64,
			MetricsInterval:       500 * time.Millisecond,
			VideoJPEGQuality:      80,
			StopTimeout:           5 * time.Second,
		},
	}
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if c.Listen.Address == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.Runtime.DefaultBufferCapacity <= 0 {
		return fmt.Errorf("runtime.default_buffer_capacity must be positive")
	}
	if c.Runtime.MetricsInterval <= 0 {
		return fmt.Errorf("runtime.metrics_interval must be positive")
	}
	if c.TLS.Enabled && c.TLS.ACME.Enabled && len(c.TLS.ACME.Domains) == 0 {
		return fmt.Errorf("tls.acme.domains must list at least one domain when ACME is enabled")
	}
	return nil
}

// Clone returns a deep copy of c via JSON round-trip, the same technique
// the rest of the stack uses for its own config clone.
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// SafeConfig provides thread-safe access to a Config that is static
// after startup — this runtime has no live-reload watch, since
// cross-process distribution and persistence are out of scope, so
// Update exists only for the rare case of a supervising process
// re-applying validated configuration at a controlled point.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps cfg (or Default() if nil) for concurrent access.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update validates and atomically replaces the wrapped configuration.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}
