package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/pmc-io/pmc/dump"
	"github.com/pmc-io/pmc/registry"
	"github.com/pmc-io/pmc/registry/procstat"
)

// ProcessView is the JSON shape returned for a single record by /list and
// /process/{id}/info, enriched with a live resource sample when the
// process is running. remoteclient decodes the same shape back, so this
// type — not dump.Record — is the wire contract between C8 and C9.
type ProcessView struct {
	ID         uint64     `json:"id"`
	Pid        int        `json:"pid"`
	Name       string     `json:"name"`
	Path       string     `json:"path"`
	Script     string     `json:"script"`
	Started    int64      `json:"started"`
	Restarts   uint64     `json:"restarts"`
	Running    bool       `json:"running"`
	Crashed    bool       `json:"crashed"`
	CrashValue uint64     `json:"crashValue"`
	Watch      dump.Watch `json:"watch"`
	CPUPercent float64    `json:"cpuPercent"`
	MemoryRSS  uint64     `json:"memoryRss"`
}

func toView(rec dump.Record) ProcessView {
	v := ProcessView{
		ID:         rec.ID,
		Pid:        rec.Pid,
		Name:       rec.Name,
		Path:       rec.Path,
		Script:     rec.Script,
		Started:    rec.Started,
		Restarts:   rec.Restarts,
		Running:    rec.Running,
		Crashed:    rec.Crash.Crashed,
		CrashValue: rec.Crash.Value,
		Watch:      rec.Watch,
	}
	if rec.Running {
		sample := procstat.Sample(rec.Pid)
		v.CPUPercent = sample.CPUPercent
		v.MemoryRSS = sample.MemoryRSS
	}
	return v
}

func parseID(r *http.Request) (uint64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	return id, err == nil
}

// handleList serves GET /list: every managed record, ascending by id.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	records := s.reg.List()
	out := make([]ProcessView, 0, len(records))
	for _, rec := range records {
		out = append(out, toView(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleInfo serves GET /process/{id}/info.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		badRequest(w, "invalid id")
		return
	}
	rec, ok := s.reg.Info(id)
	if !ok {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, toView(rec))
}

// handleEnv serves GET /process/{id}/env.
func (s *Server) handleEnv(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		badRequest(w, "invalid id")
		return
	}
	rec, ok := s.reg.Info(id)
	if !ok {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, rec.Env)
}

// normalizeLogKind maps the four documented kinds onto the two files the
// spawner actually writes (§4.4: "<name>-out.log", "<name>-error.log").
// Anything unrecognized falls back to "out".
func normalizeLogKind(kind string) string {
	switch kind {
	case "error", "stderr":
		return "error"
	default:
		return "out"
	}
}

func logPath(logDir, name, kind string) string {
	return filepath.Join(logDir, name+"-"+normalizeLogKind(kind)+".log")
}

// handleLogs serves GET /process/{id}/logs/{kind}: the file's contents
// split into lines.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		badRequest(w, "invalid id")
		return
	}
	rec, ok := s.reg.Info(id)
	if !ok {
		notFound(w)
		return
	}
	kind := mux.Vars(r)["kind"]
	path := logPath(s.reg.LogDir(), rec.Name, kind)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"logs": []string{}})
			return
		}
		internalError(w, "read log: "+err.Error())
		return
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(data) == 0 {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": lines})
}

// handleLogsRaw serves GET /process/{id}/logs/{kind}/raw: the log file's
// bytes, unmodified.
func (s *Server) handleLogsRaw(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		badRequest(w, "invalid id")
		return
	}
	rec, ok := s.reg.Info(id)
	if !ok {
		notFound(w)
		return
	}
	kind := mux.Vars(r)["kind"]
	path := logPath(s.reg.LogDir(), rec.Name, kind)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusOK)
			return
		}
		internalError(w, "read log: "+err.Error())
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, f)
}

// createRequest is the JSON body for POST /process/create (§4.8).
type createRequest struct {
	Name   string            `json:"name"`
	Script string            `json:"script"`
	Path   string            `json:"path"`
	Watch  string            `json:"watch"`
	Env    map[string]string `json:"env"`
}

type actionResult struct {
	Done   bool   `json:"done"`
	Action string `json:"action"`
}

// handleCreate serves POST /process/create.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed json body")
		return
	}
	if req.Script == "" {
		badRequest(w, "script is required")
		return
	}
	cwd := req.Path
	if cwd == "" {
		cwd = "."
	}

	_, err := s.reg.Start(registry.StartOptions{
		Name:      req.Name,
		Script:    req.Script,
		Cwd:       cwd,
		Env:       req.Env,
		WatchPath: req.Watch,
	})
	if err != nil {
		internalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, actionResult{Done: true, Action: "create"})
}

// handleRename serves POST /process/{id}/rename. The new name is the raw
// request body, trimmed. Rename never restarts the process (see
// registry.Rename's doc comment).
func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		badRequest(w, "invalid id")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		badRequest(w, "cannot read body")
		return
	}
	name := strings.TrimSpace(string(body))
	if name == "" {
		badRequest(w, "name is required")
		return
	}

	if _, err := s.reg.Rename(id, name); err != nil {
		if err == registry.ErrNotFound {
			notFound(w)
			return
		}
		internalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, actionResult{Done: true, Action: "rename"})
}

// actionRequest is the JSON body for POST /process/{id}/action (§4.8).
type actionRequest struct {
	Method string `json:"method"`
}

// handleAction serves POST /process/{id}/action, dispatching start/restart,
// stop/kill, and remove/delete onto the matching registry verb.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		badRequest(w, "invalid id")
		return
	}
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed json body")
		return
	}

	var actionErr error
	switch req.Method {
	case "start", "restart":
		_, actionErr = s.reg.Restart(id, "", false)
	case "stop", "kill":
		_, actionErr = s.reg.Stop(id)
	case "remove", "delete":
		actionErr = s.reg.Remove(id)
	default:
		writeJSON(w, http.StatusNotFound, actionResult{Done: false, Action: "DOES_NOT_EXIST"})
		return
	}

	if actionErr != nil {
		if actionErr == registry.ErrNotFound {
			notFound(w)
			return
		}
		internalError(w, actionErr.Error())
		return
	}
	writeJSON(w, http.StatusOK, actionResult{Done: true, Action: req.Method})
}

// handleDump serves GET /dump: the raw on-disk snapshot bytes. It carries
// every record's environment map, including whatever secrets a managed
// process was started with, so the response is tagged with
// X-Contains-Secrets regardless of whether secure.enabled is set, and the
// route is never exempted from the auth gate that wraps it in Router.
func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	data, err := dump.Raw(s.reg.DumpPath())
	if err != nil {
		internalError(w, "read dump: "+err.Error())
		return
	}
	w.Header().Set("X-Contains-Secrets", "true")
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// daemonMetrics is the JSON body for GET /metrics: a coarse health summary,
// distinct from /prometheus's text exposition format. Pid and the
// CPU/memory fields describe the daemon process itself (§4.8), sampled the
// same way as any managed process's own resource usage.
type daemonMetrics struct {
	Pid           int     `json:"pid"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	ProcessCount  int     `json:"processCount"`
	RunningCount  int     `json:"runningCount"`
	CrashedCount  int     `json:"crashedCount"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryRSS     uint64  `json:"memoryRss"`
}

// handleMetrics serves GET /metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	records := s.reg.List()
	sample := procstat.Sample(os.Getpid())
	m := daemonMetrics{
		Pid:           os.Getpid(),
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		ProcessCount:  len(records),
		CPUPercent:    sample.CPUPercent,
		MemoryRSS:     sample.MemoryRSS,
	}
	for _, rec := range records {
		if rec.Running {
			m.RunningCount++
		}
		if rec.Crash.Crashed {
			m.CrashedCount++
		}
	}
	writeJSON(w, http.StatusOK, m)
}

// handleDaemonConfig serves GET /daemon/config.
func (s *Server) handleDaemonConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RemoteConfig{
		Shell:     s.cfg.Runner.Shell,
		ShellArgs: s.cfg.Runner.Args,
		LogPath:   s.cfg.Runner.LogPath,
		Restarts:  s.cfg.Daemon.Restarts,
		Interval:  s.cfg.Daemon.Interval.String(),
	})
}
