// Package config loads the buildwrap configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/buildwrap/internal/classify"
)

// DefaultPath is the config file consulted when -c is not given.
const DefaultPath = ".buildwrap.yaml"

// Config represents the application configuration.
type Config struct {
	Build   BuildConfig     `yaml:"build"`
	Rules   []classify.Rule `yaml:"rules,omitempty"`
	Watch   WatchConfig     `yaml:"watch"`
	History HistoryConfig   `yaml:"history"`
	Metrics MetricsConfig   `yaml:"metrics"`
}

// BuildConfig describes the wrapped build command.
type BuildConfig struct {
	// Command is the build executable name, resolved via PATH.
	Command string `yaml:"command"`
	// LocaleOverride is forced into LANG for the child so diagnostic
	// prefixes stay unlocalized and the substring rules keep matching.
	// Empty string is the intended default, not "unset".
	LocaleOverride string `yaml:"locale_override"`
}

// Duration wraps time.Duration with YAML decoding of "500ms" style strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// WatchConfig controls the watch command.
type WatchConfig struct {
	Paths    []string `yaml:"paths,omitempty"`
	Debounce Duration `yaml:"debounce,omitempty"`
}

// HistoryConfig controls local run recording.
type HistoryConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// RecordingEnabled reports whether runs should be persisted (default true).
func (h HistoryConfig) RecordingEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// MetricsConfig configures the optional Pushgateway export.
type MetricsConfig struct {
	Gateway string `yaml:"gateway,omitempty"`
	Job     string `yaml:"job,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Build.Command == "" {
		cfg.Build.Command = "make"
	}
	if len(cfg.Rules) == 0 {
		cfg.Rules = classify.DefaultRules()
	}
	if len(cfg.Watch.Paths) == 0 {
		cfg.Watch.Paths = []string{"."}
	}
	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = Duration(500 * time.Millisecond)
	}
	if cfg.History.Path == "" {
		cfg.History.Path = ".buildwrap.db"
	}
	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = "buildwrap"
	}
}

// Load reads the configuration from configPath. A missing file is not an
// error: the defaults apply, keeping plain `buildwrap [args...]` usable in
// any directory. Environment variables in the YAML are expanded, and a .env
// file (if present) is loaded first.
func Load(configPath string) (*Config, error) {
	loadEnvFile()

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Build.Command == "" {
		return fmt.Errorf("build.command must not be empty")
	}
	seen := make(map[string]bool, len(cfg.Rules))
	for i, r := range cfg.Rules {
		if r.Category == "" {
			return fmt.Errorf("rules[%d]: category must not be empty", i)
		}
		if r.Pattern == "" {
			return fmt.Errorf("rules[%d]: pattern must not be empty", i)
		}
		if seen[r.Category] {
			return fmt.Errorf("rules[%d]: duplicate category %q", i, r.Category)
		}
		seen[r.Category] = true
	}
	return nil
}

const exampleConfig = `# buildwrap configuration
build:
  # Build executable invoked with the wrapper's arguments appended verbatim.
  command: make
  # Forced into LANG for the child process; keep empty so "error: " and
  # "warning: " prefixes are not localized away from the rules below.
  locale_override: ""

# Ordered classification rules; literal case-sensitive substrings.
rules:
  - category: error
    pattern: "error: "
  - category: warning
    pattern: "warning: "

watch:
  paths: ["."]
  debounce: 500ms

history:
  enabled: true
  path: .buildwrap.db

# Optional: push run metrics to a Prometheus Pushgateway after each build.
# metrics:
#   gateway: http://localhost:9091
#   job: buildwrap
`

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
