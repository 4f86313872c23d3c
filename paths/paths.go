// Package paths holds the filesystem layout pmcd reads and writes, threaded
// through component constructors instead of referenced as global constants.
package paths

import (
	"os"
	"path/filepath"
)

// Paths is the resolved set of files and directories under a single pmcd
// home directory (default "${HOME}/.pmc/"), per §6 of the specification.
type Paths struct {
	Base        string
	PidFile     string
	DaemonLog   string
	Dump        string
	ConfigFile  string
	ServersFile string
	LogDir      string
}

// New resolves Paths rooted at base. If base is empty, it defaults to
// "${HOME}/.pmc".
func New(base string) (Paths, error) {
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, ".pmc")
	}
	return Paths{
		Base:        base,
		PidFile:     filepath.Join(base, "daemon.pid"),
		DaemonLog:   filepath.Join(base, "daemon.log"),
		Dump:        filepath.Join(base, "process.dump"),
		ConfigFile:  filepath.Join(base, "config.toml"),
		ServersFile: filepath.Join(base, "servers.toml"),
		LogDir:      filepath.Join(base, "logs"),
	}, nil
}

// EnsureDirs creates the base and log directories if absent.
func (p Paths) EnsureDirs() error {
	if err := os.MkdirAll(p.Base, 0o755); err != nil {
		return err
	}
	return os.MkdirAll(p.LogDir, 0o755)
}
