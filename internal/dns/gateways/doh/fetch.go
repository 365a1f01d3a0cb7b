package doh

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/haukened/fr-dns/internal/dns/common/log"
	"github.com/haukened/fr-dns/internal/dns/domain"
)

// FetchClient performs one-shot DoH exchanges through pooled HTTP
// transports: HTTP/2 for https endpoints and HTTP/3 for h3 endpoints.
// An outcome carries whatever status the server returned; only
// transport-level failures surface as errors.
type FetchClient struct {
	hc     *http.Client
	h3     *http.Client
	logger log.Logger
}

// FetchOptions defines configuration parameters for the fetch client.
type FetchOptions struct {
	Timeout   time.Duration
	TLSConfig *tls.Config // optional override, cloned defensively
	Logger    log.Logger
}

// NewFetchClient creates a fetch client with HTTP/2 and HTTP/3
// transports. Default timeout is 5 seconds.
func NewFetchClient(opts FetchOptions) *FetchClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}

	tlsConfig := opts.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	} else {
		tlsConfig = tlsConfig.Clone()
	}

	return &FetchClient{
		hc: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				TLSClientConfig:     tlsConfig,
				ForceAttemptHTTP2:   true,
				MaxIdleConns:        64,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout: opts.Timeout,
				}).DialContext,
			},
		},
		h3: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http3.RoundTripper{
				TLSClientConfig: tlsConfig.Clone(),
				QuicConfig: &quic.Config{
					KeepAlivePeriod: 30 * time.Second,
					MaxIdleTimeout:  60 * time.Second,
				},
			},
		},
		logger: opts.Logger,
	}
}

// Query performs one DoH exchange against the endpoint and returns the
// raw outcome. Non-success HTTP statuses are carried in the outcome,
// not returned as errors; the decoder rejects them.
func (c *FetchClient) Query(ctx context.Context, q domain.Query, ep domain.UpstreamEndpoint) (domain.UpstreamOutcome, error) {
	req, err := BuildRequest(ctx, q, ep)
	if err != nil {
		return domain.UpstreamOutcome{}, err
	}

	client := c.hc
	if ep.Scheme == "h3" {
		client = c.h3
	}

	resp, err := client.Do(req)
	if err != nil {
		return domain.UpstreamOutcome{}, fmt.Errorf("endpoint %s: %w", ep.String(), err)
	}
	defer func() {
		// Drain any remaining body bytes so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerSize))
	if err != nil {
		return domain.UpstreamOutcome{}, fmt.Errorf("endpoint %s: reading body: %w", ep.String(), err)
	}

	c.logger.Debug(map[string]any{
		"endpoint": ep.String(),
		"status":   resp.StatusCode,
		"size":     len(body),
	}, "DoH exchange completed")

	return domain.UpstreamOutcome{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	}, nil
}
