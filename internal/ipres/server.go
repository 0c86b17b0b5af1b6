// Package ipres derives best-effort client IP addresses. The server side
// walks trusted proxy headers down to the connection socket; the public
// side asks third-party echo services when no trusted value exists.
//
// Resolution never fails hard: every path ends in a plain string, with
// the sentinels "unknown", "localhost", "undetected" and "error" standing
// in for addresses that could not be determined.
package ipres

import (
	"net/http"
	"regexp"
	"strings"
)

// Sentinel values returned instead of a real address.
const (
	Unknown    = "unknown"
	Localhost  = "localhost"
	Undetected = "undetected"
	ErrorValue = "error"
)

// headerPreference is the ordered list of proxy headers consulted before
// falling back to the socket address. First non-empty, non-"unknown" wins.
var headerPreference = []string{
	"cf-connecting-ip",
	"x-forwarded-for",
	"x-real-ip",
	"x-client-ip",
	"x-forwarded",
	"forwarded-for",
	"forwarded",
}

var (
	ipv4Pattern = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)
	ipv6Pattern = regexp.MustCompile(`^[0-9a-fA-F:]+$`)
)

// FromRequest derives the raw client IP for an inbound request: header
// preference chain, then the socket remote address, then "unknown".
// The result is not normalized; callers pass it through Normalize.
func FromRequest(r *http.Request) string {
	for _, header := range headerPreference {
		value := strings.TrimSpace(r.Header.Get(header))
		if value == "" || strings.EqualFold(value, Unknown) {
			continue
		}
		// x-forwarded-for may carry a comma-separated chain; the first
		// entry is the originating client.
		if idx := strings.Index(value, ","); idx >= 0 {
			value = strings.TrimSpace(value[:idx])
		}
		if value != "" {
			return value
		}
	}

	if addr := remoteAddr(r); addr != "" {
		return addr
	}
	return Unknown
}

// remoteAddr strips the port from the connection's remote address.
func remoteAddr(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return ""
	}
	// Bracketed IPv6 form: [::1]:port
	if strings.HasPrefix(addr, "[") {
		if end := strings.Index(addr, "]"); end > 0 {
			return addr[1:end]
		}
		return addr
	}
	// IPv4 host:port has exactly one colon; bare IPv6 has several.
	if strings.Count(addr, ":") == 1 {
		return addr[:strings.Index(addr, ":")]
	}
	return addr
}

// Normalize canonicalizes a raw IP string. It is idempotent:
//   - "unknown" and the other sentinels pass through
//   - the IPv4-in-IPv6 prefix ::ffff: is stripped
//   - loopback forms map to "localhost"
//
// Values that match neither the IPv4 nor IPv6 shape are returned as-is;
// header spoofing and format variance are expected and non-fatal.
func Normalize(raw string) string {
	ip := strings.TrimSpace(raw)
	switch ip {
	case "", Unknown:
		return Unknown
	case Localhost, Undetected, ErrorValue:
		return ip
	}

	ip = strings.TrimPrefix(ip, "::ffff:")

	if ip == "::1" || ip == "127.0.0.1" {
		return Localhost
	}
	return ip
}

// WellFormed reports whether ip looks like a dotted-quad IPv4 or a
// colon-hex IPv6 address. Used for diagnostics only; Normalize never
// rejects a value on this basis.
func WellFormed(ip string) bool {
	if ipv4Pattern.MatchString(ip) {
		return true
	}
	return strings.Contains(ip, ":") && ipv6Pattern.MatchString(ip)
}
