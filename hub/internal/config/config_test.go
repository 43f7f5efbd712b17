package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.Listen != "127.0.0.1:8420" || c.DBPath != "chatcast.db" {
		t.Errorf("listen/db = %q %q", c.Listen, c.DBPath)
	}
	if len(c.Targets) != 3 || c.Targets[0].ID != "chatgpt" {
		t.Errorf("targets = %+v", c.Targets)
	}
	if c.Policy.Cooldown != 800*time.Millisecond {
		t.Errorf("cooldown = %v", c.Policy.Cooldown)
	}
	if len(c.Sinks) != 1 || c.Sinks[0].Type != "sqlite" {
		t.Errorf("sinks = %+v", c.Sinks)
	}
	if p := c.PolicyFor("chat_deepseek_com"); p.Cooldown != 2*time.Second {
		t.Errorf("deepseek cooldown = %v", p.Cooldown)
	}
}

func TestParse(t *testing.T) {
	src := `
listen: ":9000"
browser:
  mode: xvfb
  user_data_dir: /var/lib/chatcast/profile
policy:
  cooldown: 1s
policies:
  chat_deepseek_com:
    preset: strict
  kimi_moonshot_cn:
    cooldown: 1500ms
    fallback_chain: true
targets:
  - url: https://chat.deepseek.com/
  - id: kimi
    url: https://kimi.moonshot.cn/
    enabled: false
sinks:
  - type: webhook
    url: http://localhost:9999/hook
`
	c, err := Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if c.Listen != ":9000" || c.Browser.Mode != "xvfb" {
		t.Errorf("listen/mode = %q %q", c.Listen, c.Browser.Mode)
	}
	if c.Targets[0].ID != "chat_deepseek_com" || c.Targets[0].Name != "chat_deepseek_com" {
		t.Errorf("derived id = %+v", c.Targets[0])
	}
	if !c.Targets[0].IsEnabled() || c.Targets[1].IsEnabled() {
		t.Error("enabled flags wrong")
	}
	if c.Sinks[0].Retries != 3 || c.Sinks[0].Timeout != 10*time.Second {
		t.Errorf("webhook defaults = %+v", c.Sinks[0])
	}

	if p := c.PolicyFor("unknown"); p.Cooldown != time.Second {
		t.Errorf("base cooldown = %v", p.Cooldown)
	}
	if p := c.PolicyFor("chat_deepseek_com"); p.Cooldown != 2*time.Second || p.ReadyTimeout != 2*time.Second {
		t.Errorf("strict = %+v", p)
	}
	p := c.PolicyFor("kimi_moonshot_cn")
	if p.Cooldown != 1500*time.Millisecond || !p.FallbackChain || p.PollInterval != 80*time.Millisecond {
		t.Errorf("override = %+v", p)
	}
}

func TestParseErrors(t *testing.T) {
	for name, src := range map[string]string{
		"duplicate": "targets:\n  - {id: a, url: 'https://a.com'}\n  - {id: a, url: 'https://b.com'}\n",
		"no url":    "targets:\n  - {id: a}\n",
		"sink":      "sinks:\n  - type: kafka\n",
		"webhook":   "sinks:\n  - type: webhook\n",
		"preset":    "policies:\n  x: {preset: turbo}\n",
		"yaml":      "targets: [",
	} {
		if _, err := Parse([]byte(src)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatcast.yaml")
	if err := os.WriteFile(path, []byte("db_path: /tmp/x.db\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.DBPath != "/tmp/x.db" {
		t.Errorf("db_path = %q", c.DBPath)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.HasPrefix(err.Error(), "config:") {
		t.Errorf("missing file err = %v", err)
	}
}
