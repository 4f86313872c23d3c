// Package remoteclient implements the Remote client (C9): it mirrors the
// registry's public verbs over HTTP against a peer daemon, so a CLI or a
// fan-out caller can treat a remote pmcd exactly like a local one.
package remoteclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pmc-io/pmc/httpapi"
	"github.com/pmc-io/pmc/pmcconfig"
)

// Client talks to one peer daemon over HTTP. It is safe for concurrent use;
// the underlying http.Client manages its own connection pool.
type Client struct {
	peer pmcconfig.Server
	http *http.Client
}

// New returns a Client bound to peer. A zero http.Client (transport
// defaults) is used, matching §4.9's "HTTP client: transport default"
// timeout policy — no retry is layered on top.
func New(peer pmcconfig.Server) *Client {
	return &Client{peer: peer, http: &http.Client{}}
}

// RemoteError wraps a non-2xx response or transport failure, tagged with
// the peer's address so the caller can surface which peer failed.
type RemoteError struct {
	Peer    string
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("remoteclient: %s: %s", e.Peer, e.Message)
	}
	return fmt.Sprintf("remoteclient: %s: status %d: %s", e.Peer, e.Status, e.Message)
}

func (c *Client) url(path string) string {
	return "http://" + c.peer.Address + path
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return &RemoteError{Peer: c.peer.Address, Message: err.Error()}
	}
	if c.peer.Token != "" {
		req.Header.Set("Authorization", "token "+c.peer.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &RemoteError{Peer: c.peer.Address, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return &RemoteError{Peer: c.peer.Address, Status: resp.StatusCode, Message: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RemoteError{Peer: c.peer.Address, Message: "decode response: " + err.Error()}
	}
	return nil
}

// List mirrors GET /list.
func (c *Client) List(ctx context.Context) ([]httpapi.ProcessView, error) {
	var out []httpapi.ProcessView
	if err := c.do(ctx, http.MethodGet, "/list", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Info mirrors GET /process/{id}/info.
func (c *Client) Info(ctx context.Context, id uint64) (httpapi.ProcessView, error) {
	var out httpapi.ProcessView
	path := "/process/" + strconv.FormatUint(id, 10) + "/info"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return httpapi.ProcessView{}, err
	}
	return out, nil
}

// createBody mirrors httpapi's unexported createRequest shape.
type createBody struct {
	Name   string            `json:"name"`
	Script string            `json:"script"`
	Path   string            `json:"path"`
	Watch  string            `json:"watch"`
	Env    map[string]string `json:"env"`
}

// Create mirrors POST /process/create.
func (c *Client) Create(ctx context.Context, name, script, path, watch string, env map[string]string) error {
	body, err := json.Marshal(createBody{Name: name, Script: script, Path: path, Watch: watch, Env: env})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/process/create", bytes.NewReader(body), nil)
}

// Rename mirrors POST /process/{id}/rename.
func (c *Client) Rename(ctx context.Context, id uint64, name string) error {
	path := "/process/" + strconv.FormatUint(id, 10) + "/rename"
	return c.do(ctx, http.MethodPost, path, bytes.NewReader([]byte(name)), nil)
}

type actionBody struct {
	Method string `json:"method"`
}

func (c *Client) action(ctx context.Context, id uint64, method string) error {
	body, err := json.Marshal(actionBody{Method: method})
	if err != nil {
		return err
	}
	path := "/process/" + strconv.FormatUint(id, 10) + "/action"
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), nil)
}

// Restart mirrors the action:restart verb.
func (c *Client) Restart(ctx context.Context, id uint64) error { return c.action(ctx, id, "restart") }

// Stop mirrors the action:stop verb.
func (c *Client) Stop(ctx context.Context, id uint64) error { return c.action(ctx, id, "stop") }

// Remove mirrors the action:remove verb.
func (c *Client) Remove(ctx context.Context, id uint64) error { return c.action(ctx, id, "remove") }

// Dump mirrors GET /dump, returning the peer's raw snapshot bytes.
func (c *Client) Dump(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/dump"), nil)
	if err != nil {
		return nil, &RemoteError{Peer: c.peer.Address, Message: err.Error()}
	}
	if c.peer.Token != "" {
		req.Header.Set("Authorization", "token "+c.peer.Token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RemoteError{Peer: c.peer.Address, Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return nil, &RemoteError{Peer: c.peer.Address, Status: resp.StatusCode, Message: string(data)}
	}
	return io.ReadAll(resp.Body)
}

// Config mirrors GET /daemon/config, used by CLI renderers that need to
// know a peer's shell, args, and log path without reading its config.toml.
func (c *Client) Config(ctx context.Context) (httpapi.RemoteConfig, error) {
	var out httpapi.RemoteConfig
	if err := c.do(ctx, http.MethodGet, "/daemon/config", nil, &out); err != nil {
		return httpapi.RemoteConfig{}, err
	}
	return out, nil
}

// defaultTimeout bounds any caller that does not supply its own context
// deadline (§4.9: "HTTP client: transport default" for the underlying
// round trip; this is a convenience for the common case of fan-out calls
// across several peers where one hung peer should not stall the rest).
const defaultTimeout = 10 * time.Second

// WithDefaultTimeout returns a context bounded by defaultTimeout, and its
// cancel func, for callers that don't already have a deadline.
func WithDefaultTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, defaultTimeout)
}
