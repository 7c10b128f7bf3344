// Package config loads the daemon configuration from
// ~/.config/nextmeeting/config.yaml and fills in defaults for
// everything the file leaves out.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chmouel/nextmeetingd/internal/provider"
)

// Duration is a time.Duration that reads and writes Go duration
// strings ("5m", "30s") in YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Notify configures the notification engine.
type Notify struct {
	Enabled bool `yaml:"enabled"`
	// Minutes lists the lead times before a meeting start, largest
	// first by convention though order does not matter.
	Minutes           []int  `yaml:"minutes"`
	EndWarningMinutes int    `yaml:"end_warning_minutes,omitempty"`
	MorningAgenda     string `yaml:"morning_agenda,omitempty"` // "HH:MM", empty disables
	Command           string `yaml:"command,omitempty"`        // external notifier, empty logs instead
}

// Provider configures one calendar source.
type Provider struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"` // "static" or "disabled"
	EventsFile string `yaml:"events_file,omitempty"`
}

// Config is the full daemon configuration.
type Config struct {
	SocketPath string `yaml:"socket_path,omitempty"`
	PIDPath    string `yaml:"pid_path,omitempty"`

	RefreshInterval   Duration `yaml:"refresh_interval"`
	CacheTTL          Duration `yaml:"cache_ttl"`
	FetchTimeout      Duration `yaml:"fetch_timeout"`
	ConnectionTimeout Duration `yaml:"connection_timeout"`
	MaxConnections    int      `yaml:"max_connections"`

	// MetricsAddr enables the Prometheus scrape listener when set,
	// e.g. "127.0.0.1:9187".
	MetricsAddr string `yaml:"metrics_addr,omitempty"`

	Notify    Notify     `yaml:"notify"`
	Providers []Provider `yaml:"providers"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		RefreshInterval:   Duration(5 * time.Minute),
		CacheTTL:          Duration(5 * time.Minute),
		FetchTimeout:      Duration(30 * time.Second),
		ConnectionTimeout: Duration(30 * time.Second),
		MaxConnections:    100,
		Notify: Notify{
			Enabled: true,
			Minutes: []int{15, 5, 1},
		},
	}
}

// DefaultPath returns ~/.config/nextmeeting/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, ".config", "nextmeeting", "config.yaml"), nil
}

// Load reads path and overlays it on the defaults. A missing file is
// not an error: the defaults apply as-is.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg.finish()
	}
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg.finish()
}

// finish validates and resolves runtime paths.
func (c *Config) finish() (*Config, error) {
	if c.RefreshInterval <= 0 {
		return nil, fmt.Errorf("refresh_interval must be positive")
	}
	if c.CacheTTL <= 0 {
		return nil, fmt.Errorf("cache_ttl must be positive")
	}
	if c.FetchTimeout <= 0 {
		return nil, fmt.Errorf("fetch_timeout must be positive")
	}
	if c.MaxConnections <= 0 {
		return nil, fmt.Errorf("max_connections must be positive")
	}
	for _, m := range c.Notify.Minutes {
		if m <= 0 {
			return nil, fmt.Errorf("notify minutes must be positive, got %d", m)
		}
	}
	for i, p := range c.Providers {
		if p.Name == "" {
			return nil, fmt.Errorf("provider %d has no name", i)
		}
	}
	if c.SocketPath == "" {
		c.SocketPath = filepath.Join(RuntimeDir(), "nextmeetingd.sock")
	}
	if c.PIDPath == "" {
		c.PIDPath = filepath.Join(RuntimeDir(), "nextmeetingd.pid")
	}
	return c, nil
}

// RuntimeDir picks where the socket and pid file live:
// $XDG_RUNTIME_DIR when set, otherwise /tmp/nextmeeting-$UID.
func RuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("nextmeeting-%d", os.Getuid()))
}

// ProviderSpecs converts the configured providers for the registry.
func (c *Config) ProviderSpecs() []provider.Spec {
	specs := make([]provider.Spec, 0, len(c.Providers))
	for _, p := range c.Providers {
		specs = append(specs, provider.Spec{
			Name:       p.Name,
			Type:       p.Type,
			EventsFile: p.EventsFile,
		})
	}
	return specs
}
