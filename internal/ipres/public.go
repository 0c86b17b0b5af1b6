package ipres

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	log "github.com/quickutil/toolstats/internal/logging"
	"github.com/quickutil/toolstats/internal/resilience"
)

// Echo services return JSON in one of a few shapes; these are the field
// names tried in order against each response body.
var ipFieldCandidates = []string{"ip", "query", "IPv4"}

// Service is one third-party IP echo endpoint.
type Service struct {
	Name string
	URL  string
}

// DefaultServices is the ordered chain tried by Resolve. Each entry is
// independent: a timeout or malformed body moves on to the next.
var DefaultServices = []Service{
	{Name: "ipify", URL: "https://api.ipify.org?format=json"},
	{Name: "ipapi-co", URL: "https://ipapi.co/json/"},
	{Name: "ip-api", URL: "http://ip-api.com/json/"},
	{Name: "my-ip-io", URL: "https://api.my-ip.io/v2/ip.json"},
}

const maxEchoBodySize = 64 * 1024

// Resolver queries third-party echo services for the caller's public IP.
// Each service gets its own timeout and its own circuit breaker, so one
// flapping endpoint is skipped without a fresh probe on every call.
type Resolver struct {
	services []Service
	client   *http.Client
	timeout  time.Duration
	breakers map[string]*resilience.CircuitBreaker
}

// NewResolver builds a resolver over the given service URLs (nil uses
// DefaultServices) with the given per-attempt timeout.
func NewResolver(serviceURLs []string, timeout time.Duration) *Resolver {
	services := DefaultServices
	if len(serviceURLs) > 0 {
		services = make([]Service, 0, len(serviceURLs))
		for _, raw := range serviceURLs {
			services = append(services, Service{Name: serviceName(raw), URL: raw})
		}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	breakers := make(map[string]*resilience.CircuitBreaker, len(services))
	for _, svc := range services {
		breakers[svc.Name] = resilience.NewCircuitBreaker(resilience.DefaultBreakerConfig("ipres-" + svc.Name))
	}

	return &Resolver{
		services: services,
		client:   &http.Client{},
		timeout:  timeout,
		breakers: breakers,
	}
}

// serviceName derives a breaker name from a service URL.
func serviceName(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return raw
}

// Resolve walks the service chain and returns the first usable address
// with the name of the service that supplied it. ok is false when every
// service failed; callers apply their own fallback.
func (r *Resolver) Resolve(ctx context.Context) (ip, source string, ok bool) {
	for _, svc := range r.services {
		value, err := r.tryService(ctx, svc)
		if err != nil {
			log.Debugf("ipres: %s failed: %v", svc.Name, err)
			continue
		}
		return value, svc.Name, true
	}
	return "", "", false
}

// tryService fetches one service through its breaker.
func (r *Resolver) tryService(ctx context.Context, svc Service) (string, error) {
	breaker := r.breakers[svc.Name]
	result, err := breaker.Execute(func() (any, error) {
		return r.fetch(ctx, svc)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (r *Resolver) fetch(ctx context.Context, svc Service) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, svc.URL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned status %d", svc.Name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEchoBodySize))
	if err != nil {
		return "", err
	}

	ip := ExtractIPField(body)
	if ip == "" {
		return "", fmt.Errorf("%s returned no usable ip field", svc.Name)
	}
	return ip, nil
}

// ExtractIPField pulls the address out of a heterogeneous echo response:
// the known field names are tried in order and the first non-empty,
// non-"unknown" string wins.
func ExtractIPField(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, field := range ipFieldCandidates {
		value := strings.TrimSpace(gjson.GetBytes(body, field).String())
		if value != "" && !strings.EqualFold(value, Unknown) {
			return value
		}
	}
	return ""
}
