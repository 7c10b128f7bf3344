package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RefreshInterval.Std() != 5*time.Minute {
		t.Errorf("refresh_interval = %v", cfg.RefreshInterval.Std())
	}
	if cfg.MaxConnections != 100 {
		t.Errorf("max_connections = %d", cfg.MaxConnections)
	}
	if !cfg.Notify.Enabled || len(cfg.Notify.Minutes) != 3 {
		t.Errorf("notify defaults = %+v", cfg.Notify)
	}
	if cfg.SocketPath == "" || cfg.PIDPath == "" {
		t.Error("runtime paths not resolved")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
refresh_interval: 1m
socket_path: /tmp/custom.sock
notify:
  enabled: true
  minutes: [10]
  morning_agenda: "08:30"
providers:
  - name: work
    type: static
    events_file: /etc/nextmeeting/work.json
  - name: personal
    type: disabled
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RefreshInterval.Std() != time.Minute {
		t.Errorf("refresh_interval = %v", cfg.RefreshInterval.Std())
	}
	// Unset fields keep their defaults.
	if cfg.CacheTTL.Std() != 5*time.Minute {
		t.Errorf("cache_ttl = %v", cfg.CacheTTL.Std())
	}
	if cfg.SocketPath != "/tmp/custom.sock" {
		t.Errorf("socket_path = %q", cfg.SocketPath)
	}
	specs := cfg.ProviderSpecs()
	if len(specs) != 2 || specs[0].Name != "work" || specs[1].Type != "disabled" {
		t.Errorf("specs = %+v", specs)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"zero interval":    "refresh_interval: 0s",
		"bad duration":     "cache_ttl: banana",
		"negative minutes": "notify:\n  minutes: [-5]",
		"unnamed provider": "providers:\n  - type: static",
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("%s: no error", name)
		}
	}
}

func TestDurationRoundtrip(t *testing.T) {
	out, err := yaml.Marshal(Duration(90 * time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(out)) != "1m30s" {
		t.Errorf("marshal = %q", out)
	}
	var d Duration
	if err := yaml.Unmarshal([]byte("2h45m"), &d); err != nil {
		t.Fatal(err)
	}
	if d.Std() != 2*time.Hour+45*time.Minute {
		t.Errorf("unmarshal = %v", d.Std())
	}
}

func TestRuntimeDirPrefersXDG(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got := RuntimeDir(); got != "/run/user/1000" {
		t.Errorf("RuntimeDir = %q", got)
	}
	t.Setenv("XDG_RUNTIME_DIR", "")
	if got := RuntimeDir(); !strings.Contains(got, "nextmeeting-") {
		t.Errorf("fallback RuntimeDir = %q", got)
	}
}
