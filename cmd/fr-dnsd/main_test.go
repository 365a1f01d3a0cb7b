package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/fr-dns/internal/dns/config"
	"github.com/haukened/fr-dns/internal/dns/gateways/doh"
)

func TestBuildApplication(t *testing.T) {
	cfg := config.DEFAULT_APP_CONFIG
	app, err := buildApplication(&cfg)
	require.NoError(t, err)
	assert.NotNil(t, app)
	assert.NotNil(t, app.frontend)
}

func TestBuildApplication_StreamClient(t *testing.T) {
	cfg := config.DEFAULT_APP_CONFIG
	cfg.StreamClient = true
	app, err := buildApplication(&cfg)
	require.NoError(t, err)
	assert.NotNil(t, app)
}

func TestBuildApplication_PlainServer(t *testing.T) {
	cfg := config.DEFAULT_APP_CONFIG
	cfg.PlainServer = "1.1.1.1:53"
	app, err := buildApplication(&cfg)
	require.NoError(t, err)
	assert.NotNil(t, app)
}

// TestApplication_Integration boots the whole resolver against a local
// plain DNS server and queries it over the DoH frontend.
func TestApplication_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Stand up a local plain DNS server answering every question
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	go func() {
		buf := make([]byte, 4096)
		for {
			n, addr, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			q := new(dns.Msg)
			if q.Unpack(buf[:n]) != nil {
				continue
			}
			reply := new(dns.Msg)
			reply.SetReply(q)
			rr, _ := dns.NewRR("example.com. 300 IN A 93.184.216.34")
			reply.Answer = append(reply.Answer, rr)
			wire, _ := reply.Pack()
			_, _ = pc.WriteTo(wire, addr)
		}
	}()

	// Find an available frontend port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	t.Setenv("DNS_PORT", fmt.Sprintf("%d", port))
	t.Setenv("DNS_LOG_LEVEL", "error")
	t.Setenv("DNS_ENV", "dev")
	t.Setenv("DNS_PLAIN_SERVER", pc.LocalAddr().String())

	cfg, err := config.Load()
	require.NoError(t, err)

	app, err := buildApplication(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appErr := make(chan error, 1)
	go func() {
		appErr <- app.Run(ctx)
	}()

	// Query through the frontend once it is up
	question := new(dns.Msg)
	question.SetQuestion("example.com.", dns.TypeA)
	wire, err := question.Pack()
	require.NoError(t, err)
	url := fmt.Sprintf("http://127.0.0.1:%d/dns-query?dns=%s", port, doh.EncodeQueryParam(wire))

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get(url)
		return err == nil
	}, 3*time.Second, 50*time.Millisecond, "frontend never came up")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-appErr:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("application did not stop after cancellation")
	}
}
