// Package pmcconfig defines the resolved configuration shapes the core
// consumes and reads them from config.toml / servers.toml (§6). The
// interactive argument parsing, table rendering, and colorized output of a
// CLI remain out of scope; loading the daemon's own on-disk config does not.
package pmcconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// RunnerConfig controls how scripts are executed.
type RunnerConfig struct {
	Shell   string   `toml:"shell"`
	Args    []string `toml:"args"`
	Node    string   `toml:"node"`
	LogPath string   `toml:"log_path"`
}

// SecureConfig controls the HTTP bearer-token auth gate.
type SecureConfig struct {
	Enabled bool   `toml:"enabled"`
	Token   string `toml:"token"`
}

// WebConfig controls the HTTP control API.
type WebConfig struct {
	UI      bool         `toml:"ui"`
	API     bool         `toml:"api"`
	Address string       `toml:"address"`
	Port    int          `toml:"port"`
	Secure  SecureConfig `toml:"secure"`
	Path    string       `toml:"path"`
}

// Duration wraps time.Duration so config.toml can spell intervals as plain
// strings ("1s", "500ms") instead of raw nanosecond integers.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for go-toml/v2.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("pmcconfig: parse duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) String() string { return time.Duration(d).String() }

// DaemonConfig controls the supervisor loop and the web server it exposes.
type DaemonConfig struct {
	Restarts int       `toml:"restarts"`
	Interval Duration  `toml:"interval"`
	Kind     string    `toml:"kind"`
	Web      WebConfig `toml:"web"`
}

// Config is the fully resolved daemon configuration.
type Config struct {
	Runner RunnerConfig `toml:"runner"`
	Daemon DaemonConfig `toml:"daemon"`
}

// DefaultInterval is the supervisor tick period when unset.
const DefaultInterval = Duration(time.Second)

// DefaultRestarts is the crash-restart budget when unset.
const DefaultRestarts = 10

// WithDefaults fills zero-valued fields with the documented defaults (§4.6).
func (c Config) WithDefaults() Config {
	if c.Daemon.Interval == 0 {
		c.Daemon.Interval = DefaultInterval
	}
	if c.Daemon.Restarts == 0 {
		c.Daemon.Restarts = DefaultRestarts
	}
	if c.Runner.Shell == "" {
		c.Runner.Shell = "/bin/sh"
	}
	if len(c.Runner.Args) == 0 {
		c.Runner.Args = []string{"-c"}
	}
	if c.Daemon.Web.Address == "" {
		c.Daemon.Web.Address = "127.0.0.1"
	}
	if c.Daemon.Web.Port == 0 {
		c.Daemon.Web.Port = DefaultWebPort
	}
	return c
}

// DefaultWebPort is the control API's listen port when unset.
const DefaultWebPort = 9696

// Server is one peer daemon's address and optional bearer token.
type Server struct {
	Address string `toml:"address"`
	Token   string `toml:"token"`
}

// Servers is the name -> peer mapping read from servers.toml.
// Reserved names "internal"/"local" always denote the in-process registry;
// "all"/"global" denote fan-out over every configured peer.
type Servers map[string]Server

const (
	ServerInternal = "internal"
	ServerLocal    = "local"
	ServerAll      = "all"
	ServerGlobal   = "global"
)

// IsLocalName reports whether name is a reserved alias for the in-process
// registry rather than a remote peer.
func IsLocalName(name string) bool {
	return name == ServerInternal || name == ServerLocal || name == ""
}

// IsFanOutName reports whether name means "every configured peer".
func IsFanOutName(name string) bool {
	return name == ServerAll || name == ServerGlobal
}

// Load reads and decodes config.toml at path. A missing file yields a zero
// Config (the caller applies WithDefaults), matching the dump package's
// absent-file-is-not-fatal convention (C2).
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("pmcconfig: read %s: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("pmcconfig: decode %s: %w", path, err)
	}
	return cfg, nil
}

// LoadServers reads and decodes servers.toml at path. A missing file yields
// an empty Servers map.
func LoadServers(path string) (Servers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Servers{}, nil
		}
		return nil, fmt.Errorf("pmcconfig: read %s: %w", path, err)
	}
	servers := make(Servers)
	if err := toml.Unmarshal(data, &servers); err != nil {
		return nil, fmt.Errorf("pmcconfig: decode %s: %w", path, err)
	}
	return servers, nil
}
