package domain

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// UpstreamEndpoint identifies one DoH service by scheme, host, port,
// and path. The zero value is a blank endpoint; the racer logs and
// skips blanks instead of failing the whole race on one bad entry.
type UpstreamEndpoint struct {
	Scheme string // "https" or "h3"
	Host   string // hostname without port
	Port   string
	Path   string
}

// ParseUpstreamEndpoint parses a DoH endpoint URL. The port defaults
// to 443 and the path to /dns-query when absent.
func ParseUpstreamEndpoint(raw string) (UpstreamEndpoint, error) {
	if strings.TrimSpace(raw) == "" {
		return UpstreamEndpoint{}, fmt.Errorf("endpoint URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return UpstreamEndpoint{}, fmt.Errorf("invalid endpoint URL %q: %w", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "https", "h3":
	default:
		return UpstreamEndpoint{}, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return UpstreamEndpoint{}, fmt.Errorf("endpoint URL %q has no host", raw)
	}
	ep := UpstreamEndpoint{
		Scheme: scheme,
		Host:   u.Hostname(),
		Port:   u.Port(),
		Path:   u.Path,
	}
	if ep.Port == "" {
		ep.Port = "443"
	}
	if ep.Path == "" {
		ep.Path = "/dns-query"
	}
	return ep, nil
}

// IsZero reports whether the endpoint is blank.
func (e UpstreamEndpoint) IsZero() bool {
	return e.Host == ""
}

// Authority returns the host:port pair used to reach the endpoint.
func (e UpstreamEndpoint) Authority() string {
	return net.JoinHostPort(e.Host, e.Port)
}

// String returns the endpoint as a URL string.
func (e UpstreamEndpoint) String() string {
	if e.IsZero() {
		return ""
	}
	scheme := e.Scheme
	if scheme == "" {
		scheme = "https"
	}
	if e.Port == "443" || e.Port == "" {
		return fmt.Sprintf("%s://%s%s", scheme, e.Host, e.Path)
	}
	return fmt.Sprintf("%s://%s%s", scheme, e.Authority(), e.Path)
}
