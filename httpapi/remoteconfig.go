package httpapi

// RemoteConfig is the subset of daemon configuration a peer needs to render
// remote views without access to the peer's own config.toml (§4.8's
// GET /daemon/config, §4.9's Remote client Config method).
type RemoteConfig struct {
	Shell     string   `json:"shell"`
	ShellArgs []string `json:"shellArgs"`
	LogPath   string   `json:"logPath"`
	Restarts  int      `json:"restarts"`
	Interval  string   `json:"interval"`
}
