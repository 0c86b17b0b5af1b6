package client

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/quickutil/toolstats/internal/config"
	"github.com/quickutil/toolstats/internal/ipres"
)

// countingTransport counts round trips so tests can assert that a
// disabled or tripped client makes no network calls at all.
type countingTransport struct {
	calls int64
	next  http.RoundTripper
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt64(&t.calls, 1)
	if t.next == nil {
		return http.DefaultTransport.RoundTrip(req)
	}
	return t.next.RoundTrip(req)
}

func (t *countingTransport) count() int64 {
	return atomic.LoadInt64(&t.calls)
}

func deadResolver(t *testing.T) *ipres.Resolver {
	t.Helper()
	srv := httptest.NewServer(nil)
	srv.Close()
	return ipres.NewResolver([]string{srv.URL}, 100*time.Millisecond)
}

func sessionPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "session")
}

func TestDisabledClientNeverTouchesNetwork(t *testing.T) {
	transport := &countingTransport{}
	c := New(config.ClientConfig{Enabled: false, BaseURL: "http://127.0.0.1:1/api"},
		WithHTTPClient(&http.Client{Transport: transport}),
		WithSessionPath(sessionPath(t)),
		WithResolver(deadResolver(t)),
	)

	if c.State() != StateDisabled {
		t.Fatalf("state = %s, want disabled", c.State())
	}
	c.TrackToolUsage("json-formatter", "JSON Formatter")
	c.TrackToolUsage("regex-tester", "Regex Tester")
	if got := c.RefreshIP(); got != "" {
		t.Errorf("RefreshIP = %q in disabled state, want empty", got)
	}
	if n := transport.count(); n != 0 {
		t.Errorf("network calls = %d, want 0", n)
	}
}

func TestDisabledWhenBaseURLInvalid(t *testing.T) {
	for _, raw := range []string{"", "not a url", "ftp://example.com", "/relative/path"} {
		c := New(config.ClientConfig{Enabled: true, BaseURL: raw},
			WithHTTPClient(&http.Client{Transport: &countingTransport{}}),
			WithSessionPath(sessionPath(t)),
			WithResolver(deadResolver(t)),
		)
		if c.State() != StateDisabled {
			t.Errorf("BaseURL %q: state = %s, want disabled", raw, c.State())
		}
	}
}

func TestFailedProbeGoesUnavailable(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close()

	transport := &countingTransport{}
	c := New(config.ClientConfig{Enabled: true, BaseURL: srv.URL + "/api"},
		WithHTTPClient(&http.Client{Transport: transport}),
		WithSessionPath(sessionPath(t)),
		WithResolver(deadResolver(t)),
	)

	if c.State() != StateUnavailable {
		t.Fatalf("state = %s, want unavailable after failed probe", c.State())
	}

	probeCalls := transport.count()
	c.TrackToolUsage("json-formatter", "JSON Formatter")
	c.TrackToolUsage("regex-tester", "Regex Tester")
	if n := transport.count(); n != probeCalls {
		t.Errorf("network calls = %d after tracking, want unchanged %d", n, probeCalls)
	}
}

type trackingServer struct {
	*httptest.Server

	mu      sync.Mutex
	tracked []string
}

func newTrackingServer(t *testing.T, trackStatus int) *trackingServer {
	t.Helper()
	ts := &trackingServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/api/public-ip", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ip":"203.0.113.7","source":"test"}`))
	})
	mux.HandleFunc("/api/client-info", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ip":"203.0.113.7"}`))
	})
	mux.HandleFunc("/api/track-usage", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ts.mu.Lock()
		ts.tracked = append(ts.tracked, string(body))
		ts.mu.Unlock()
		w.WriteHeader(trackStatus)
		w.Write([]byte(`{"success":true}`))
	})
	ts.Server = httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func (ts *trackingServer) lastTracked() string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.tracked) == 0 {
		return ""
	}
	return ts.tracked[len(ts.tracked)-1]
}

func TestTrackToolUsageHappyPath(t *testing.T) {
	srv := newTrackingServer(t, http.StatusOK)

	c := New(config.ClientConfig{Enabled: true, BaseURL: srv.URL + "/api"},
		WithSessionPath(sessionPath(t)),
		WithResolver(deadResolver(t)),
	)
	if c.State() != StateAvailable {
		t.Fatalf("state = %s, want available", c.State())
	}

	c.TrackToolUsage("json-formatter", "JSON Formatter")

	payload := srv.lastTracked()
	if payload == "" {
		t.Fatal("no track-usage request received")
	}
	if got := gjson.Get(payload, "toolId").String(); got != "json-formatter" {
		t.Errorf("toolId = %q", got)
	}
	if got := gjson.Get(payload, "toolName").String(); got != "JSON Formatter" {
		t.Errorf("toolName = %q", got)
	}
	if got := gjson.Get(payload, "userSession").String(); got != c.SessionID() {
		t.Errorf("userSession = %q, want %q", got, c.SessionID())
	}
	if got := gjson.Get(payload, "clientIp").String(); got != "203.0.113.7" {
		t.Errorf("clientIp = %q, want proxied resolution result", got)
	}
}

func TestHTTPErrorStatusDoesNotTrip(t *testing.T) {
	srv := newTrackingServer(t, http.StatusInternalServerError)

	c := New(config.ClientConfig{Enabled: true, BaseURL: srv.URL + "/api"},
		WithSessionPath(sessionPath(t)),
		WithResolver(deadResolver(t)),
	)
	if c.State() != StateAvailable {
		t.Fatalf("state = %s, want available", c.State())
	}

	c.TrackToolUsage("json-formatter", "JSON Formatter")
	if c.State() != StateAvailable {
		t.Errorf("state = %s after HTTP 500, want still available", c.State())
	}
}

func TestTransportErrorTripsBreaker(t *testing.T) {
	srv := newTrackingServer(t, http.StatusOK)

	transport := &countingTransport{}
	c := New(config.ClientConfig{Enabled: true, BaseURL: srv.URL + "/api"},
		WithHTTPClient(&http.Client{Transport: transport}),
		WithSessionPath(sessionPath(t)),
		WithResolver(deadResolver(t)),
	)
	if c.State() != StateAvailable {
		t.Fatalf("state = %s, want available", c.State())
	}
	// Wait for the constructor's background resolution to land so the
	// post-shutdown track goes straight to the track endpoint and no
	// resolution call is still in flight.
	deadline := time.Now().Add(2 * time.Second)
	for c.ResolvedIP() == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if c.ResolvedIP() != "203.0.113.7" {
		t.Fatalf("ResolvedIP = %q, want background resolution to complete", c.ResolvedIP())
	}

	srv.CloseClientConnections()
	srv.Close()

	c.TrackToolUsage("json-formatter", "JSON Formatter")
	if c.State() != StateUnavailable {
		t.Fatalf("state = %s after transport error, want unavailable", c.State())
	}

	calls := transport.count()
	c.TrackToolUsage("regex-tester", "Regex Tester")
	if n := transport.count(); n != calls {
		t.Errorf("network calls = %d after trip, want unchanged %d", n, calls)
	}
}

func TestReprobeRecovers(t *testing.T) {
	srv := newTrackingServer(t, http.StatusOK)

	dead := httptest.NewServer(nil)
	dead.Close()

	c := New(config.ClientConfig{Enabled: true, BaseURL: dead.URL + "/api"},
		WithSessionPath(sessionPath(t)),
		WithResolver(deadResolver(t)),
	)
	if c.State() != StateUnavailable {
		t.Fatalf("state = %s, want unavailable", c.State())
	}

	// Point at a live server and reprobe manually.
	c.baseURL = srv.URL + "/api"
	if !c.Reprobe() {
		t.Fatal("Reprobe failed against live server")
	}
	if c.State() != StateAvailable {
		t.Errorf("state = %s after reprobe, want available", c.State())
	}
}

func TestSessionIDPersistsAcrossClients(t *testing.T) {
	path := sessionPath(t)
	srv := newTrackingServer(t, http.StatusOK)
	cfg := config.ClientConfig{Enabled: true, BaseURL: srv.URL + "/api"}

	first := New(cfg, WithSessionPath(path), WithResolver(deadResolver(t)))
	second := New(cfg, WithSessionPath(path), WithResolver(deadResolver(t)))

	if first.SessionID() == "" {
		t.Fatal("empty session id")
	}
	if first.SessionID() != second.SessionID() {
		t.Errorf("session ids differ across clients: %q vs %q", first.SessionID(), second.SessionID())
	}
	if _, err := uuid.Parse(first.SessionID()); err != nil {
		t.Errorf("session id %q is not a UUID: %v", first.SessionID(), err)
	}
}

func TestCorruptSessionFileRotates(t *testing.T) {
	path := sessionPath(t)
	if err := os.WriteFile(path, []byte("not-a-uuid\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	id, err := loadOrCreateSessionID(path)
	if err != nil {
		t.Fatalf("loadOrCreateSessionID: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("replacement id %q is not a UUID: %v", id, err)
	}

	again, err := loadOrCreateSessionID(path)
	if err != nil {
		t.Fatalf("loadOrCreateSessionID (second): %v", err)
	}
	if id != again {
		t.Errorf("replacement id did not persist: %q vs %q", id, again)
	}
}
