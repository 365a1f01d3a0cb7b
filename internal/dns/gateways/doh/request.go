// Package doh implements the DNS-over-HTTPS upstream gateways
// (RFC 8484): per-endpoint request derivation, a pooled fetch client,
// and a per-request HTTP/2 stream client.
package doh

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"

	"github.com/haukened/fr-dns/internal/dns/domain"
)

const (
	// ContentType is the MIME type for DNS wire-format messages
	// (RFC 8484 section 6).
	ContentType = "application/dns-message"

	// dnsParam is the query parameter carrying a GET-encoded message.
	dnsParam = "dns"

	// maxAnswerSize bounds the DoH response body read (64 KiB), so a
	// misbehaving server cannot force unbounded allocation.
	maxAnswerSize = 64 * 1024
)

// EncodeQueryParam encodes wire bytes as the unpadded base64url value
// of the "dns" parameter.
func EncodeQueryParam(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeQueryParam decodes a "dns" parameter value back to wire bytes.
func DecodeQueryParam(value string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(value)
}

// BuildRequest derives the HTTP request for one upstream attempt. The
// endpoint's scheme, host, port, and path replace the query's original
// target; the method, body, and remaining headers are preserved.
// Methods other than GET and POST fail before any dispatch.
func BuildRequest(ctx context.Context, q domain.Query, ep domain.UpstreamEndpoint) (*http.Request, error) {
	target := endpointURL(ep)

	var req *http.Request
	var err error

	switch q.Method {
	case http.MethodGet:
		target.RawQuery = dnsParam + "=" + EncodeQueryParam(q.Data)
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	case http.MethodPost:
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(q.Data))
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedMethod, q.Method)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}

	for key, values := range q.Header {
		// Hop-by-hop and length headers are owned by the transport.
		switch http.CanonicalHeaderKey(key) {
		case "Host", "Content-Length", "Connection", "Transfer-Encoding":
			continue
		}
		req.Header[http.CanonicalHeaderKey(key)] = values
	}
	req.Header.Set("Accept", ContentType)
	if q.Method == http.MethodPost {
		req.Header.Set("Content-Type", ContentType)
		req.ContentLength = int64(len(q.Data))
	}

	return req, nil
}

// endpointURL builds the request URL for an endpoint. h3 endpoints
// still use the https scheme on the wire.
func endpointURL(ep domain.UpstreamEndpoint) *url.URL {
	host := ep.Authority()
	if ep.Port == "443" {
		host = ep.Host
	}
	return &url.URL{
		Scheme: "https",
		Host:   host,
		Path:   ep.Path,
	}
}
