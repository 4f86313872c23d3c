package pmcconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAbsentFileYieldsZeroConfig(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Runner.Shell != "" {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestLoadParsesDurationAndWeb(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[runner]
shell = "/bin/bash"
args = ["-c"]

[daemon]
restarts = 5
interval = "2s"

[daemon.web]
address = "0.0.0.0"
port = 8080

[daemon.web.secure]
enabled = true
token = "shh"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Runner.Shell != "/bin/bash" {
		t.Fatalf("shell = %q", cfg.Runner.Shell)
	}
	if time.Duration(cfg.Daemon.Interval) != 2*time.Second {
		t.Fatalf("interval = %v, want 2s", time.Duration(cfg.Daemon.Interval))
	}
	if cfg.Daemon.Restarts != 5 {
		t.Fatalf("restarts = %d, want 5", cfg.Daemon.Restarts)
	}
	if !cfg.Daemon.Web.Secure.Enabled || cfg.Daemon.Web.Secure.Token != "shh" {
		t.Fatalf("secure = %+v", cfg.Daemon.Web.Secure)
	}
	if cfg.Daemon.Web.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Daemon.Web.Port)
	}
}

func TestWithDefaultsFillsZeroValues(t *testing.T) {
	cfg := Config{}.WithDefaults()
	if cfg.Runner.Shell != "/bin/sh" {
		t.Fatalf("shell default = %q", cfg.Runner.Shell)
	}
	if time.Duration(cfg.Daemon.Interval) != time.Duration(DefaultInterval) {
		t.Fatalf("interval default = %v", cfg.Daemon.Interval)
	}
	if cfg.Daemon.Restarts != DefaultRestarts {
		t.Fatalf("restarts default = %d", cfg.Daemon.Restarts)
	}
	if cfg.Daemon.Web.Address != "127.0.0.1" || cfg.Daemon.Web.Port != DefaultWebPort {
		t.Fatalf("web defaults = %+v", cfg.Daemon.Web)
	}
}

func TestLoadServersAbsentFileYieldsEmptyMap(t *testing.T) {
	servers, err := LoadServers(filepath.Join(t.TempDir(), "servers.toml"))
	if err != nil {
		t.Fatalf("LoadServers: %v", err)
	}
	if len(servers) != 0 {
		t.Fatalf("expected empty map, got %+v", servers)
	}
}

func TestLoadServersParsesPeers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.toml")
	contents := `
[staging]
address = "10.0.0.5:9696"
token = "tok"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write servers: %v", err)
	}
	servers, err := LoadServers(path)
	if err != nil {
		t.Fatalf("LoadServers: %v", err)
	}
	peer, ok := servers["staging"]
	if !ok {
		t.Fatal("expected a \"staging\" peer")
	}
	if peer.Address != "10.0.0.5:9696" || peer.Token != "tok" {
		t.Fatalf("peer = %+v", peer)
	}
}
