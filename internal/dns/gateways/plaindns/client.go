// Package plaindns implements the classic DNS path: one UDP exchange
// against a configured resolver, escalated to a single TCP retry when
// the UDP answer arrives with the truncation bit set.
package plaindns

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/haukened/fr-dns/internal/dns/common/log"
	"github.com/haukened/fr-dns/internal/dns/domain"
)

// Error message constants for consistent error handling
const (
	errNoServerProvided = "no plain DNS server provided"
	errFailedToConnect  = "failed to connect: %w"
	errWriteFailed      = "write failed: %w"
	errReadFailed       = "read failed: %w"
	errAnswerTooLarge   = "answer exceeds %d bytes"
)

const (
	// maxUDPAnswer bounds the UDP read buffer. Answers larger than
	// this arrive truncated and are retried over TCP anyway.
	maxUDPAnswer = 4096

	// maxTCPAnswer bounds a framed TCP answer (RFC 1035 limit).
	maxTCPAnswer = 65535
)

// ExchangeFunc performs one query/response exchange of raw wire bytes
// against a server. The TCP retry after truncation must receive the
// identical bytes the UDP attempt sent.
type ExchangeFunc func(ctx context.Context, query []byte, server string) ([]byte, error)

// Client resolves queries over plain DNS. It is strictly sequential:
// UDP first, then at most one TCP follow-up, never a race.
type Client struct {
	server  string
	timeout time.Duration
	udp     ExchangeFunc
	tcp     ExchangeFunc
	logger  log.Logger
}

// Options defines configuration parameters for the plain DNS client.
// UDP and TCP exchange functions are injectable for testing.
type Options struct {
	Server  string
	Timeout time.Duration
	Logger  log.Logger
	UDP     ExchangeFunc
	TCP     ExchangeFunc
}

// New creates a plain DNS client for the given server. Returns an
// error if no server is configured. Default timeout is 5 seconds.
func New(opts Options) (*Client, error) {
	if opts.Server == "" {
		return nil, fmt.Errorf(errNoServerProvided)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.UDP == nil {
		opts.UDP = exchangeUDP
	}
	if opts.TCP == nil {
		opts.TCP = exchangeTCP
	}
	return &Client{
		server:  opts.Server,
		timeout: opts.Timeout,
		udp:     opts.UDP,
		tcp:     opts.TCP,
		logger:  opts.Logger,
	}, nil
}

// Resolve sends the query over UDP and, if the answer is truncated,
// retries once over TCP with the identical bytes. When neither
// transport produces an answer the outcome is a synthetic 503 so the
// decoder sees the same failure shape as a rejected DoH exchange.
func (c *Client) Resolve(ctx context.Context, query []byte) (domain.UpstreamOutcome, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	answer, err := c.udp(ctx, query, c.server)
	if err != nil {
		c.logger.Warn(map[string]any{
			"server": c.server,
			"error":  err.Error(),
		}, "UDP query failed")
		return unavailableOutcome(), nil
	}

	if isTruncated(answer) {
		c.logger.Debug(map[string]any{
			"server": c.server,
			"size":   len(answer),
		}, "UDP answer truncated, retrying over TCP")

		answer, err = c.tcp(ctx, query, c.server)
		if err != nil {
			c.logger.Warn(map[string]any{
				"server": c.server,
				"error":  err.Error(),
			}, "TCP retry failed")
			return unavailableOutcome(), nil
		}
	}

	if len(answer) == 0 {
		return unavailableOutcome(), nil
	}

	header := make(map[string][]string)
	header["Content-Type"] = []string{"application/dns-message"}
	return domain.UpstreamOutcome{
		Status: 200,
		Header: header,
		Body:   answer,
	}, nil
}

// unavailableOutcome is the uniform "no answer" shape of this path.
func unavailableOutcome() domain.UpstreamOutcome {
	return domain.UpstreamOutcome{Status: 503}
}

// isTruncated reports whether the wire-format answer has the TC bit
// set. Unparsable answers are treated as not truncated; the decoder
// rejects them later with a proper error.
func isTruncated(answer []byte) bool {
	var msg dns.Msg
	if err := msg.Unpack(answer); err != nil {
		return false
	}
	return msg.Truncated
}

// exchangeUDP performs one datagram exchange of raw wire bytes.
func exchangeUDP(ctx context.Context, query []byte, server string) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", server)
	if err != nil {
		return nil, fmt.Errorf(errFailedToConnect, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(query); err != nil {
		return nil, fmt.Errorf(errWriteFailed, err)
	}

	buffer := make([]byte, maxUDPAnswer)
	n, err := conn.Read(buffer)
	if err != nil {
		return nil, fmt.Errorf(errReadFailed, err)
	}
	return buffer[:n], nil
}

// exchangeTCP performs one exchange of raw wire bytes over TCP using
// the two-byte length framing of RFC 1035 section 4.2.2.
func exchangeTCP(ctx context.Context, query []byte, server string) ([]byte, error) {
	if len(query) > maxTCPAnswer {
		return nil, fmt.Errorf(errAnswerTooLarge, maxTCPAnswer)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", server)
	if err != nil {
		return nil, fmt.Errorf(errFailedToConnect, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	frame := make([]byte, 2+len(query))
	binary.BigEndian.PutUint16(frame, uint16(len(query)))
	copy(frame[2:], query)
	if _, err := conn.Write(frame); err != nil {
		return nil, fmt.Errorf(errWriteFailed, err)
	}

	var lengthPrefix [2]byte
	if _, err := io.ReadFull(conn, lengthPrefix[:]); err != nil {
		return nil, fmt.Errorf(errReadFailed, err)
	}
	length := binary.BigEndian.Uint16(lengthPrefix[:])

	answer := make([]byte, length)
	if _, err := io.ReadFull(conn, answer); err != nil {
		return nil, fmt.Errorf(errReadFailed, err)
	}
	return answer, nil
}
