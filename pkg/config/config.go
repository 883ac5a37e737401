// Package config provides configuration file support for the proctoring
// controller, the round-flow backend and the operator CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/enftaurus/vidyamitra/pkg/webhook"
)

// TerminationPolicy selects what the controller does to the round flow when
// a session is terminated for an integrity violation.
type TerminationPolicy string

const (
	// TerminateReset clears every round and sends the candidate to the hub.
	TerminateReset TerminationPolicy = "reset"
	// TerminateAdvance submits the current round as completed instead.
	TerminateAdvance TerminationPolicy = "advance"
)

// DefaultPath is where the CLI looks for a configuration file.
const DefaultPath = "vidyamitra.yaml"

// Config represents the full configuration file.
type Config struct {
	Proctoring ProctoringConfig     `yaml:"proctoring"`
	Backend    BackendConfig        `yaml:"backend"`
	Detector   DetectorConfig       `yaml:"detector"`
	Store      StoreConfig          `yaml:"store"`
	Server     ServerConfig         `yaml:"server"`
	Logging    LoggingConfig        `yaml:"logging"`
	Metrics    MetricsConfig        `yaml:"metrics"`
	Webhooks   []webhook.HookConfig `yaml:"webhooks,omitempty"`
	Audit      AuditConfig          `yaml:"audit"`
}

// ProctoringConfig holds the integrity thresholds of one session.
type ProctoringConfig struct {
	MaxProctorWarnings int               `yaml:"max_proctor_warnings"`
	MultiFaceThreshold int               `yaml:"multi_face_threshold"`
	NoFaceThreshold    int               `yaml:"no_face_threshold"`
	// TabSwitchGap is the minimum spacing between counted tab switches.
	// Zero means the default; a negative value disables the gap.
	TabSwitchGap       time.Duration     `yaml:"tab_switch_gap"`
	SampleInterval     time.Duration     `yaml:"sample_interval"`
	TerminationPolicy  TerminationPolicy `yaml:"termination_policy"`
	ResetTimeout       time.Duration     `yaml:"reset_timeout"`
}

// BackendConfig points clients at the round-flow backend.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DetectorConfig points the presence sampler at the face-check capability.
type DetectorConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects the round-flow persistence driver.
type StoreConfig struct {
	Driver    string        `yaml:"driver"` // memory, redis
	RedisAddr string        `yaml:"redis_addr"`
	RedisDB   int           `yaml:"redis_db"`
	TTL       time.Duration `yaml:"ttl"`
}

// ServerConfig configures the HTTP listener used by `serve`.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// AllowedOrigins restricts which pages may open the session bridge.
	// Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// AuditConfig locates the hash-chained trail of integrity events. An empty
// path disables it.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig toggles Prometheus export.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Proctoring: ProctoringConfig{
			MaxProctorWarnings: 5,
			MultiFaceThreshold: 2,
			NoFaceThreshold:    3,
			TabSwitchGap:       800 * time.Millisecond,
			SampleInterval:     1800 * time.Millisecond,
			TerminationPolicy:  TerminateReset,
			ResetTimeout:       5 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL: "http://127.0.0.1:8000",
			Timeout: 10 * time.Second,
		},
		Detector: DetectorConfig{
			URL:     "http://127.0.0.1:8000/proctoring/face-check",
			Timeout: 5 * time.Second,
		},
		Store: StoreConfig{
			Driver:    "memory",
			RedisAddr: "127.0.0.1:6379",
			TTL:       24 * time.Hour,
		},
		Server: ServerConfig{
			Addr: ":8000",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load loads configuration from path.
// Returns default config if file doesn't exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil // No config file is OK, use defaults
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to path.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return writeAtomic(path, data)
}

// writeAtomic replaces path through a synced temp file in the same
// directory so a crash never leaves a half-written config behind.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	done := false
	defer func() {
		if !done {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	done = true
	return nil
}

// Validate rejects values the controller cannot run with.
func (c *Config) Validate() error {
	p := c.Proctoring
	if p.MaxProctorWarnings < 1 {
		return fmt.Errorf("proctoring.max_proctor_warnings must be >= 1, got %d", p.MaxProctorWarnings)
	}
	if p.MultiFaceThreshold < 1 || p.NoFaceThreshold < 1 {
		return fmt.Errorf("proctoring face thresholds must be >= 1")
	}
	if p.SampleInterval <= 0 {
		return fmt.Errorf("proctoring.sample_interval must be positive")
	}
	switch p.TerminationPolicy {
	case TerminateReset, TerminateAdvance:
	default:
		return fmt.Errorf("proctoring.termination_policy %q is not one of reset, advance", p.TerminationPolicy)
	}
	switch c.Store.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("store.driver %q is not one of memory, redis", c.Store.Driver)
	}
	return nil
}
