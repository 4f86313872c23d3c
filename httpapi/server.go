// Package httpapi implements the HTTP control and observability surface
// (C8): the same verbs the local registry exposes, presented over HTTP so
// a CLI or a peer daemon (C9) can drive a remote registry as if it were
// local.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/pmc-io/pmc/metrics"
	"github.com/pmc-io/pmc/pmcconfig"
	"github.com/pmc-io/pmc/registry"
)

// Server wires the registry to an HTTP router.
type Server struct {
	reg       *registry.Registry
	cfg       pmcconfig.Config
	startedAt time.Time
}

// New creates a Server bound to reg, governed by cfg.
func New(reg *registry.Registry, cfg pmcconfig.Config) *Server {
	return &Server{reg: reg, cfg: cfg, startedAt: time.Now()}
}

// Router builds the mux.Router implementing every route in §4.8, wrapped
// with CORS, optional bearer-token auth, request-id tagging, and
// per-route metrics.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	route := func(path string, method string, name string, h http.HandlerFunc) {
		wrapped := metrics.Middleware(name, http.HandlerFunc(h))
		wrapped = withAuth(s.cfg.Daemon.Web.Secure, wrapped)
		r.Handle(path, wrapped).Methods(method)
	}

	route("/list", http.MethodGet, "/list", s.handleList)
	route("/process/{id}/info", http.MethodGet, "/process/{id}/info", s.handleInfo)
	route("/process/{id}/env", http.MethodGet, "/process/{id}/env", s.handleEnv)
	route("/process/{id}/logs/{kind}", http.MethodGet, "/process/{id}/logs/{kind}", s.handleLogs)
	route("/process/{id}/logs/{kind}/raw", http.MethodGet, "/process/{id}/logs/{kind}/raw", s.handleLogsRaw)
	route("/process/create", http.MethodPost, "/process/create", s.handleCreate)
	route("/process/{id}/rename", http.MethodPost, "/process/{id}/rename", s.handleRename)
	route("/process/{id}/action", http.MethodPost, "/process/{id}/action", s.handleAction)
	route("/dump", http.MethodGet, "/dump", s.handleDump)
	route("/metrics", http.MethodGet, "/metrics", s.handleMetrics)
	route("/daemon/config", http.MethodGet, "/daemon/config", s.handleDaemonConfig)

	// /prometheus is exempt from the JSON-route metrics middleware (it IS
	// the metrics surface) but still auth-gated and request-tagged.
	prom := withAuth(s.cfg.Daemon.Web.Secure, metrics.Handler())
	r.Handle("/prometheus", prom).Methods(http.MethodGet)

	return withRequestID(withCORS(r))
}

// ListenAndServe starts the HTTP server on cfg.Daemon.Web.Address:Port.
func (s *Server) ListenAndServe() error {
	addr := s.cfg.Daemon.Web.Address
	if addr == "" {
		addr = "127.0.0.1"
	}
	srv := &http.Server{
		Addr:    addr + ":" + portString(s.cfg.Daemon.Web.Port),
		Handler: s.Router(),
	}
	return srv.ListenAndServe()
}

func portString(port int) string {
	if port == 0 {
		port = 9696
	}
	return strconv.Itoa(port)
}
