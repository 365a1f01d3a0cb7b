package plaindns

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/fr-dns/internal/dns/common/log"
)

// packResponse builds a wire-format answer for example.com with the
// given truncation flag.
func packResponse(t *testing.T, truncated bool) []byte {
	t.Helper()
	msg := new(dns.Msg)
	msg.SetQuestion("example.com.", dns.TypeA)
	msg.Response = true
	msg.Truncated = truncated
	data, err := msg.Pack()
	require.NoError(t, err)
	return data
}

// packQuery builds a wire-format query for example.com.
func packQuery(t *testing.T) []byte {
	t.Helper()
	msg := new(dns.Msg)
	msg.SetQuestion("example.com.", dns.TypeA)
	data, err := msg.Pack()
	require.NoError(t, err)
	return data
}

func TestNew(t *testing.T) {
	_, err := New(Options{})
	assert.EqualError(t, err, errNoServerProvided)

	c, err := New(Options{Server: "1.1.1.1:53"})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.timeout)
	assert.NotNil(t, c.udp)
	assert.NotNil(t, c.tcp)
}

func TestResolve_UDPAnswer(t *testing.T) {
	answer := packResponse(t, false)
	tcpCalled := false

	c, err := New(Options{
		Server: "1.1.1.1:53",
		Logger: log.NewNoopLogger(),
		UDP: func(ctx context.Context, query []byte, server string) ([]byte, error) {
			return answer, nil
		},
		TCP: func(ctx context.Context, query []byte, server string) ([]byte, error) {
			tcpCalled = true
			return nil, errors.New("should not be called")
		},
	})
	require.NoError(t, err)

	outcome, err := c.Resolve(context.Background(), packQuery(t))
	require.NoError(t, err)
	assert.Equal(t, 200, outcome.Status)
	assert.Equal(t, answer, outcome.Body)
	assert.False(t, tcpCalled, "TCP must never be invoked when UDP is not truncated")
}

func TestResolve_TruncationEscalation(t *testing.T) {
	query := packQuery(t)
	truncated := packResponse(t, true)
	full := packResponse(t, false)

	var tcpCalls int
	var tcpQuery []byte

	c, err := New(Options{
		Server: "1.1.1.1:53",
		Logger: log.NewNoopLogger(),
		UDP: func(ctx context.Context, q []byte, server string) ([]byte, error) {
			return truncated, nil
		},
		TCP: func(ctx context.Context, q []byte, server string) ([]byte, error) {
			tcpCalls++
			tcpQuery = q
			return full, nil
		},
	})
	require.NoError(t, err)

	outcome, err := c.Resolve(context.Background(), query)
	require.NoError(t, err)

	assert.Equal(t, 1, tcpCalls, "exactly one TCP follow-up")
	assert.Equal(t, query, tcpQuery, "TCP must reuse the identical query bytes")
	assert.Equal(t, 200, outcome.Status)
	assert.Equal(t, full, outcome.Body, "the TCP answer becomes the outcome")
}

func TestResolve_UDPFailureYields503(t *testing.T) {
	c, err := New(Options{
		Server: "1.1.1.1:53",
		Logger: log.NewNoopLogger(),
		UDP: func(ctx context.Context, q []byte, server string) ([]byte, error) {
			return nil, errors.New("network unreachable")
		},
		TCP: func(ctx context.Context, q []byte, server string) ([]byte, error) {
			t.Fatal("TCP must not be attempted when UDP fails without truncation")
			return nil, nil
		},
	})
	require.NoError(t, err)

	outcome, err := c.Resolve(context.Background(), packQuery(t))
	require.NoError(t, err, "transport failure is mapped to an outcome, not an error")
	assert.Equal(t, 503, outcome.Status)
	assert.False(t, outcome.Succeeded())
}

func TestResolve_TCPFailureYields503(t *testing.T) {
	c, err := New(Options{
		Server: "1.1.1.1:53",
		Logger: log.NewNoopLogger(),
		UDP: func(ctx context.Context, q []byte, server string) ([]byte, error) {
			return packResponse(t, true), nil
		},
		TCP: func(ctx context.Context, q []byte, server string) ([]byte, error) {
			return nil, errors.New("connection refused")
		},
	})
	require.NoError(t, err)

	outcome, err := c.Resolve(context.Background(), packQuery(t))
	require.NoError(t, err)
	assert.Equal(t, 503, outcome.Status)
}

func TestResolve_EmptyAnswerYields503(t *testing.T) {
	c, err := New(Options{
		Server: "1.1.1.1:53",
		Logger: log.NewNoopLogger(),
		UDP: func(ctx context.Context, q []byte, server string) ([]byte, error) {
			return nil, nil
		},
	})
	require.NoError(t, err)

	outcome, err := c.Resolve(context.Background(), packQuery(t))
	require.NoError(t, err)
	assert.Equal(t, 503, outcome.Status)
}

func TestResolve_AppliesDefaultDeadline(t *testing.T) {
	c, err := New(Options{
		Server:  "1.1.1.1:53",
		Timeout: 100 * time.Millisecond,
		Logger:  log.NewNoopLogger(),
		UDP: func(ctx context.Context, q []byte, server string) ([]byte, error) {
			deadline, ok := ctx.Deadline()
			assert.True(t, ok, "exchange context must carry a deadline")
			assert.WithinDuration(t, time.Now().Add(100*time.Millisecond), deadline, 50*time.Millisecond)
			return packResponse(t, false), nil
		},
	})
	require.NoError(t, err)

	_, err = c.Resolve(context.Background(), packQuery(t))
	require.NoError(t, err)
}

func TestIsTruncated(t *testing.T) {
	assert.True(t, isTruncated(packResponse(t, true)))
	assert.False(t, isTruncated(packResponse(t, false)))
	assert.False(t, isTruncated([]byte{0x01, 0x02}), "garbage is not truncated")
}
