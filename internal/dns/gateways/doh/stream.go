package doh

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/net/http2"

	"github.com/haukened/fr-dns/internal/dns/common/log"
	"github.com/haukened/fr-dns/internal/dns/domain"
)

// DialTLSFunc establishes the TLS connection a stream attempt runs on.
// Injectable for testing.
type DialTLSFunc func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error)

// StreamClient performs each DoH exchange on its own HTTP/2
// connection: dial TLS, open a client conn, one round trip, tear the
// connection down. No pooling or reuse; every attempt owns its handle
// for its whole lifetime and closes it unconditionally.
type StreamClient struct {
	t         *http2.Transport
	dial      DialTLSFunc
	tlsConfig *tls.Config
	timeout   time.Duration
	logger    log.Logger
}

// StreamOptions defines configuration parameters for the stream client.
type StreamOptions struct {
	Timeout   time.Duration
	TLSConfig *tls.Config // optional override, cloned defensively
	DialTLS   DialTLSFunc // injectable for testing
	Logger    log.Logger
}

// NewStreamClient creates a per-request HTTP/2 DoH client.
// Default timeout is 5 seconds.
func NewStreamClient(opts StreamOptions) *StreamClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.DialTLS == nil {
		opts.DialTLS = func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
			d := &tls.Dialer{Config: cfg}
			return d.DialContext(ctx, network, addr)
		}
	}
	tlsConfig := opts.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	} else {
		tlsConfig = tlsConfig.Clone()
	}
	return &StreamClient{
		t:         &http2.Transport{},
		dial:      opts.DialTLS,
		tlsConfig: tlsConfig,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
	}
}

// Query performs one DoH exchange over a fresh HTTP/2 connection to
// the endpoint's authority. Connection-level and stream-level failures
// both surface as the attempt's error; the body is read to completion
// before the handle closes so an early teardown cannot drop bytes.
// Close failures are best-effort cleanup and never become the result.
func (c *StreamClient) Query(ctx context.Context, q domain.Query, ep domain.UpstreamEndpoint) (domain.UpstreamOutcome, error) {
	if ep.Scheme != "https" {
		return domain.UpstreamOutcome{}, fmt.Errorf("stream client requires an https endpoint, got %q", ep.Scheme)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := BuildRequest(ctx, q, ep)
	if err != nil {
		return domain.UpstreamOutcome{}, err
	}

	cfg := c.tlsConfig.Clone()
	cfg.ServerName = ep.Host
	cfg.NextProtos = []string{http2.NextProtoTLS}

	conn, err := c.dial(ctx, "tcp", ep.Authority(), cfg)
	if err != nil {
		return domain.UpstreamOutcome{}, fmt.Errorf("endpoint %s: connect: %w", ep.String(), err)
	}

	cc, err := c.t.NewClientConn(conn)
	if err != nil {
		_ = conn.Close()
		return domain.UpstreamOutcome{}, fmt.Errorf("endpoint %s: open stream conn: %w", ep.String(), err)
	}
	defer func() {
		_ = cc.Close()
		_ = conn.Close()
	}()

	resp, err := cc.RoundTrip(req)
	if err != nil {
		return domain.UpstreamOutcome{}, fmt.Errorf("endpoint %s: exchange: %w", ep.String(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerSize))
	if err != nil {
		return domain.UpstreamOutcome{}, fmt.Errorf("endpoint %s: reading body: %w", ep.String(), err)
	}

	c.logger.Debug(map[string]any{
		"endpoint": ep.String(),
		"status":   resp.StatusCode,
		"size":     len(body),
	}, "stream DoH exchange completed")

	return domain.UpstreamOutcome{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	}, nil
}
