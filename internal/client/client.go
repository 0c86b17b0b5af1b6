// Package client is the embeddable analytics client: the single point
// through which tool front-ends report usage. It shields callers from
// backend availability entirely; a tool must work identically whether
// analytics succeed, fail, or are disabled.
package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/quickutil/toolstats/internal/buildinfo"
	"github.com/quickutil/toolstats/internal/config"
	"github.com/quickutil/toolstats/internal/ipres"
	"github.com/quickutil/toolstats/internal/json"
	log "github.com/quickutil/toolstats/internal/logging"
)

// State is the client lifecycle state. Disabled and Unavailable are
// terminal for the process lifetime; there is no automatic recovery,
// only the explicit Reprobe hook.
type State int

const (
	StateDisabled State = iota
	StateProbing
	StateAvailable
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateProbing:
		return "probing"
	case StateAvailable:
		return "available"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

const (
	probeTimeout  = 2 * time.Second
	proxyTimeout  = 5 * time.Second
	directTimeout = 4 * time.Second
	trackTimeout  = 5 * time.Second
	maxBodySize   = 64 * 1024
)

// Client reports tool usage to the tracking API. Construct once per
// process with New; all methods are safe for concurrent use.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	resolver    *ipres.Resolver
	sessionPath string
	userAgent   string

	mu         sync.Mutex
	state      State
	resolvedIP string
	sessionID  string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSessionPath overrides where the durable session id lives.
func WithSessionPath(path string) Option {
	return func(c *Client) { c.sessionPath = path }
}

// WithResolver overrides the third-party IP resolution chain.
func WithResolver(r *ipres.Resolver) Option {
	return func(c *Client) { c.resolver = r }
}

// New constructs the client. Without the explicit opt-in flag or with an
// unusable base URL it lands in Disabled and never touches the network.
// Otherwise it probes the tracking API with a short timeout: success
// moves to Available and kicks off background IP resolution, failure
// moves to Unavailable where every call is a no-op.
func New(cfg config.ClientConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  &http.Client{},
		sessionPath: defaultSessionPath(),
		userAgent:   "toolstats-client/" + buildinfo.Version,
		state:       StateProbing,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.resolver == nil {
		c.resolver = ipres.NewResolver(nil, directTimeout)
	}

	if !cfg.Enabled || !validBaseURL(c.baseURL) {
		c.state = StateDisabled
		return c
	}

	id, err := loadOrCreateSessionID(c.sessionPath)
	if err != nil {
		log.Debugf("client: session id not persisted: %v", err)
	}
	c.sessionID = id

	if c.probe() {
		c.setState(StateAvailable)
		go c.RefreshIP()
	} else {
		c.setState(StateUnavailable)
	}
	return c
}

func validBaseURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// SessionID returns the durable per-profile identifier, minting one on
// first call if the client was constructed disabled.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == "" {
		id, err := loadOrCreateSessionID(c.sessionPath)
		if err != nil {
			log.Debugf("client: session id not persisted: %v", err)
		}
		c.sessionID = id
	}
	return c.sessionID
}

// ResolvedIP returns the cached public address or a sentinel.
func (c *Client) ResolvedIP() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolvedIP
}

// probe checks the tracking API with a short timeout. Only a 2xx counts.
func (c *Client) probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debugf("client: health probe failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Reprobe re-runs the health check from Unavailable. Manual escape hatch
// from the one-way breaker; never called automatically.
func (c *Client) Reprobe() bool {
	if c.State() == StateDisabled {
		return false
	}
	if c.probe() {
		c.setState(StateAvailable)
		return true
	}
	c.setState(StateUnavailable)
	return false
}

// RefreshIP runs one pass of the public IP resolution chain and caches
// the outcome: a real address, or "undetected" when every source came up
// empty, or "error" when the pass itself blew up. Callable any time,
// including from Unavailable.
func (c *Client) RefreshIP() string {
	if c.State() == StateDisabled {
		return ""
	}

	defer func() {
		if r := recover(); r != nil {
			log.Debugf("client: ip resolution panicked: %v", r)
			c.setIP(ipres.ErrorValue)
		}
	}()

	ip := c.resolveOnce(context.Background())
	c.setIP(ip)
	return ip
}

func (c *Client) setIP(ip string) {
	c.mu.Lock()
	c.resolvedIP = ip
	c.mu.Unlock()
}

// resolveOnce walks the client-side chain: own server's public-ip proxy
// first (fewer CORS and rate issues), the third-party services directly,
// then the server's client-info view as a last resort.
func (c *Client) resolveOnce(ctx context.Context) string {
	if ip := c.fetchServerIP(ctx, "/public-ip", proxyTimeout); ip != "" {
		return ip
	}
	if ip, _, ok := c.resolver.Resolve(ctx); ok {
		return ipres.Normalize(ip)
	}
	if ip := c.fetchServerIP(ctx, "/client-info", directTimeout); ip != "" {
		return ip
	}
	return ipres.Undetected
}

// fetchServerIP asks one of the server's own endpoints for an address.
func (c *Client) fetchServerIP(ctx context.Context, path string, timeout time.Duration) string {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debugf("client: %s failed: %v", path, err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return ""
	}

	ip := strings.TrimSpace(gjson.GetBytes(body, "ip").String())
	switch ip {
	case "", ipres.Unknown, ipres.Undetected, ipres.ErrorValue:
		return ""
	}
	return ipres.Normalize(ip)
}

// TrackToolUsage reports one tool invocation. It never returns an error
// and never panics into the caller: in Disabled or Unavailable it is a
// pure no-op, and a network-level failure flips the client to
// Unavailable for the rest of the process.
func (c *Client) TrackToolUsage(toolID, toolName string) {
	if c.State() != StateAvailable {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Debugf("client: track panicked: %v", r)
		}
	}()

	// Best effort: one inline resolution pass when the cache is empty or
	// holds a sentinel. Bounded by the chain's own per-service timeouts.
	ip := c.ResolvedIP()
	switch ip {
	case "", ipres.Undetected, ipres.ErrorValue:
		ip = c.RefreshIP()
	}

	payload, err := json.Marshal(map[string]string{
		"toolId":      toolID,
		"toolName":    toolName,
		"userSession": c.SessionID(),
		"clientIp":    ip,
		"userAgent":   c.userAgent,
	})
	if err != nil {
		log.Debugf("client: marshal failed: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), trackTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/track-usage", bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network-level failure trips the one-way breaker. An HTTP error
		// status does not: the server is reachable, just unhappy.
		log.Debugf("client: track failed, going unavailable: %v", err)
		c.setState(StateUnavailable)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))

	if resp.StatusCode != http.StatusOK {
		log.Debugf("client: track returned status %d", resp.StatusCode)
	}
}
