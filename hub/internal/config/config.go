// Package config loads the hub configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/chatcast/dispatch"
	"github.com/hazyhaar/chatcast/siteconfig"
)

// Config is the top-level hub configuration.
type Config struct {
	Listen      string                   `yaml:"listen"`
	DBPath      string                   `yaml:"db_path"`
	SendTimeout time.Duration            `yaml:"send_timeout"`
	Browser     BrowserConfig            `yaml:"browser"`
	Policy      dispatch.Policy          `yaml:"policy"`
	Policies    map[string]PolicyConfig  `yaml:"policies"`
	Targets     []TargetConfig           `yaml:"targets"`
	Sites       []*siteconfig.SiteConfig `yaml:"sites"`
	Sinks       []SinkConfig             `yaml:"sinks"`
	MCP         MCPConfig                `yaml:"mcp"`
}

// BrowserConfig controls the Chrome process.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	UserDataDir      string        `yaml:"user_data_dir"`
	Bin              string        `yaml:"bin"`
	Mode             string        `yaml:"mode"` // headless | headful | xvfb
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
	OpTimeout        time.Duration `yaml:"op_timeout"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	XvfbDisplay      string        `yaml:"xvfb_display"`
}

// PolicyConfig overrides timing for one site id. Preset names a base
// policy ("default" or "strict"); explicit durations override it.
type PolicyConfig struct {
	Preset          string `yaml:"preset"`
	dispatch.Policy `yaml:",inline"`
}

// TargetConfig is a chat site to keep open.
type TargetConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Enabled *bool  `yaml:"enabled"`
}

// IsEnabled defaults to true.
func (t TargetConfig) IsEnabled() bool { return t.Enabled == nil || *t.Enabled }

// SinkConfig defines an attempt sink.
type SinkConfig struct {
	Type    string        `yaml:"type"` // stdout | webhook | sqlite
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

// MCPConfig names the MCP server.
type MCPConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// StrictSites get the strict policy unless the file sets their own.
var StrictSites = []string{"chat_deepseek_com"}

// DefaultTargets are opened when the file names none.
func DefaultTargets() []TargetConfig {
	return []TargetConfig{
		{ID: "chatgpt", Name: "ChatGPT", URL: "https://chatgpt.com/"},
		{ID: "gemini", Name: "Gemini", URL: "https://gemini.google.com/"},
		{ID: "claude", Name: "Claude", URL: "https://claude.ai/"},
	}
}

// Default returns the configuration used without a file.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadFile reads and validates a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8420"
	}
	if c.DBPath == "" {
		c.DBPath = "chatcast.db"
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 12 * time.Hour
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	c.Policy = c.Policy.WithDefaults()
	for _, id := range StrictSites {
		if _, ok := c.Policies[id]; !ok {
			if c.Policies == nil {
				c.Policies = make(map[string]PolicyConfig)
			}
			c.Policies[id] = PolicyConfig{Preset: "strict"}
		}
	}
	if len(c.Targets) == 0 {
		c.Targets = DefaultTargets()
	}
	for i := range c.Targets {
		if c.Targets[i].ID == "" {
			if _, id, err := siteconfig.IDFromURL(c.Targets[i].URL); err == nil {
				c.Targets[i].ID = id
			}
		}
		if c.Targets[i].Name == "" {
			c.Targets[i].Name = c.Targets[i].ID
		}
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []SinkConfig{{Type: "sqlite"}}
	}
	for i := range c.Sinks {
		if c.Sinks[i].Type == "webhook" {
			if c.Sinks[i].Timeout <= 0 {
				c.Sinks[i].Timeout = 10 * time.Second
			}
			if c.Sinks[i].Retries <= 0 {
				c.Sinks[i].Retries = 3
			}
		}
	}
	if c.MCP.Name == "" {
		c.MCP.Name = "chatcast"
	}
	if c.MCP.Version == "" {
		c.MCP.Version = "0.1.0"
	}
}

// Validate rejects configurations the hub cannot run.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Targets))
	for _, t := range c.Targets {
		if t.URL == "" {
			return fmt.Errorf("config: target %q: url is required", t.ID)
		}
		if t.ID == "" {
			return fmt.Errorf("config: target %q: cannot derive id", t.URL)
		}
		if seen[t.ID] {
			return fmt.Errorf("config: duplicate target id %q", t.ID)
		}
		seen[t.ID] = true
	}
	for _, s := range c.Sinks {
		switch s.Type {
		case "stdout", "sqlite":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: webhook sink: url is required")
			}
		default:
			return fmt.Errorf("config: unknown sink type %q", s.Type)
		}
	}
	for id, p := range c.Policies {
		switch p.Preset {
		case "", "default", "strict":
		default:
			return fmt.Errorf("config: policy %q: unknown preset %q", id, p.Preset)
		}
	}
	return nil
}

// PolicyFor returns the timing policy of a site id.
func (c *Config) PolicyFor(siteID string) dispatch.Policy {
	pc, ok := c.Policies[siteID]
	if !ok {
		return c.Policy
	}
	base := c.Policy
	if pc.Preset == "strict" {
		base = dispatch.StrictPolicy()
	}
	return merge(base, pc.Policy)
}

func merge(base, over dispatch.Policy) dispatch.Policy {
	if over.Cooldown > 0 {
		base.Cooldown = over.Cooldown
	}
	if over.ReadyTimeout > 0 {
		base.ReadyTimeout = over.ReadyTimeout
	}
	if over.PollInterval > 0 {
		base.PollInterval = over.PollInterval
	}
	if over.ChainGap > 0 {
		base.ChainGap = over.ChainGap
	}
	if over.RetryDelay > 0 {
		base.RetryDelay = over.RetryDelay
	}
	if over.FallbackChain {
		base.FallbackChain = true
	}
	return base.WithDefaults()
}
