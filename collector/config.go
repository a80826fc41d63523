package collector

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings ("30s",
// "5m") or bare numbers (seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!int" || node.Tag == "!!float" {
		var secs float64
		if err := node.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("collector: bad duration %q: %w", raw, err)
	}
	*d = Duration(v)
	return nil
}

// D converts to the standard duration type.
func (d Duration) D() time.Duration { return time.Duration(d) }

// SessionConfig selects and addresses the automation backend.
type SessionConfig struct {
	// Backend is "wire" (device automation server) or "rodweb" (browser).
	Backend string `yaml:"backend"`
	// ServerURL is the automation server base URL for the wire backend,
	// e.g. http://127.0.0.1:4723. Overridden per bot by the store's
	// session_host/session_port when set.
	ServerURL string `yaml:"server_url"`
	// AppID is the application identifier to activate/terminate (bundle id
	// for wire, app URL for rodweb).
	AppID string `yaml:"app_id"`
	// DeviceUDID pins the wire backend to one device. Usually left empty
	// and filled from the bot config row.
	DeviceUDID string `yaml:"device_udid"`
}

// CountsConfig sets how many units each strategy attempts per cycle.
type CountsConfig struct {
	Recommended     int `yaml:"recommended"`
	Searched        int `yaml:"searched"`
	TestRecommended int `yaml:"test_recommended"`
	TestSearched    int `yaml:"test_searched"`
}

// StatusConfig configures the diagnostics HTTP listener.
type StatusConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:8650". Empty disables
	// the listener.
	Addr string `yaml:"addr"`
}

// Config is the collector's process configuration. Store-resolved values
// (locale, like threshold, device) are merged in at runtime and do not
// appear here.
type Config struct {
	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path"`

	Session SessionConfig `yaml:"session"`
	Counts  CountsConfig  `yaml:"counts"`
	Status  StatusConfig  `yaml:"status"`

	// Strategies lists which collection strategies run, in alternation
	// order. Valid entries: "search", "recommended".
	Strategies []string `yaml:"strategies"`

	// TestMode shrinks per-cycle unit counts to the test_* values.
	TestMode bool `yaml:"test_mode"`

	// DefaultMinLikes is the popularity floor used when the store has no
	// threshold row for the bot's locale.
	DefaultMinLikes int `yaml:"default_min_likes"`

	// CycleSleep is the pause between successful cycles.
	CycleSleep Duration `yaml:"cycle_sleep"`
	// ErrorCooldown is the pause after a failed cycle, before resources
	// are reinitialised.
	ErrorCooldown Duration `yaml:"error_cooldown"`
	// ReinitCooldown is the longer pause applied when reinitialisation
	// itself fails.
	ReinitCooldown Duration `yaml:"reinit_cooldown"`

	// UISettle is the pause after menu and screen transitions.
	UISettle Duration `yaml:"ui_settle"`
	// RebootSettle is the wait after an app reboot for launch ads and
	// popups to clear.
	RebootSettle Duration `yaml:"reboot_settle"`
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "clipminer.db"
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "wire"
	}
	if c.Session.ServerURL == "" {
		c.Session.ServerURL = "http://127.0.0.1:4723"
	}
	if c.Counts.Recommended == 0 {
		c.Counts.Recommended = 10
	}
	if c.Counts.Searched == 0 {
		c.Counts.Searched = 10
	}
	if c.Counts.TestRecommended == 0 {
		c.Counts.TestRecommended = 2
	}
	if c.Counts.TestSearched == 0 {
		c.Counts.TestSearched = 2
	}
	if len(c.Strategies) == 0 {
		c.Strategies = []string{"search", "recommended"}
	}
	if c.DefaultMinLikes == 0 {
		c.DefaultMinLikes = 500
	}
	if c.CycleSleep == 0 {
		c.CycleSleep = Duration(10 * time.Second)
	}
	if c.ErrorCooldown == 0 {
		c.ErrorCooldown = Duration(60 * time.Second)
	}
	if c.ReinitCooldown == 0 {
		c.ReinitCooldown = Duration(5 * time.Minute)
	}
	if c.UISettle == 0 {
		c.UISettle = Duration(defaultSettle)
	}
	if c.RebootSettle == 0 {
		c.RebootSettle = Duration(defaultRebootSettle)
	}
}

func (c *Config) validate() error {
	switch c.Session.Backend {
	case "wire", "rodweb":
	default:
		return fmt.Errorf("collector: unknown session backend %q", c.Session.Backend)
	}
	for _, s := range c.Strategies {
		if s != "search" && s != "recommended" {
			return fmt.Errorf("collector: unknown strategy %q", s)
		}
	}
	return nil
}

// LoadConfigFile reads a YAML config, applies defaults, and validates. An
// empty path yields the defaults.
func LoadConfigFile(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("collector: read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("collector: parse config %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// unitCount returns the per-cycle unit budget for a strategy, honouring
// test mode.
func (c *Config) unitCount(strategy string) int {
	if strategy == "search" {
		if c.TestMode {
			return c.Counts.TestSearched
		}
		return c.Counts.Searched
	}
	if c.TestMode {
		return c.Counts.TestRecommended
	}
	return c.Counts.Recommended
}
