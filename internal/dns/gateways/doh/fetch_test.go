package doh

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/fr-dns/internal/dns/common/log"
	"github.com/haukened/fr-dns/internal/dns/domain"
)

// serverEndpoint converts an httptest server URL into an endpoint.
func serverEndpoint(t *testing.T, ts *httptest.Server) domain.UpstreamEndpoint {
	t.Helper()
	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	return domain.UpstreamEndpoint{
		Scheme: "https",
		Host:   u.Hostname(),
		Port:   u.Port(),
		Path:   "/dns-query",
	}
}

func fetchQuery(t *testing.T, method string) domain.Query {
	t.Helper()
	target, _ := url.Parse("https://edge.example.com/dns-query")
	q, err := domain.NewQuery([]byte{0x12, 0x34, 0x00, 0x01}, method, target, http.Header{})
	require.NoError(t, err)
	return q
}

func insecureFetchClient() *FetchClient {
	return NewFetchClient(FetchOptions{
		TLSConfig: &tls.Config{InsecureSkipVerify: true},
		Logger:    log.NewNoopLogger(),
	})
}

func TestFetchClient_GET(t *testing.T) {
	answer := []byte{0xde, 0xad, 0xbe, 0xef}
	var gotPath, gotParam string

	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotParam = r.URL.Query().Get("dns")
		w.Header().Set("Content-Type", ContentType)
		_, _ = w.Write(answer)
	}))
	defer ts.Close()

	q := fetchQuery(t, http.MethodGet)
	outcome, err := insecureFetchClient().Query(context.Background(), q, serverEndpoint(t, ts))
	require.NoError(t, err)

	assert.Equal(t, "/dns-query", gotPath)
	decoded, err := DecodeQueryParam(gotParam)
	require.NoError(t, err)
	assert.Equal(t, q.Data, decoded)

	assert.Equal(t, http.StatusOK, outcome.Status)
	assert.True(t, outcome.Succeeded())
	assert.Equal(t, answer, outcome.Body)
	assert.Equal(t, ContentType, outcome.Header.Get("Content-Type"))
}

func TestFetchClient_POST(t *testing.T) {
	var gotBody []byte
	var gotContentType string

	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte{0x01})
	}))
	defer ts.Close()

	q := fetchQuery(t, http.MethodPost)
	outcome, err := insecureFetchClient().Query(context.Background(), q, serverEndpoint(t, ts))
	require.NoError(t, err)

	assert.Equal(t, ContentType, gotContentType)
	assert.Equal(t, q.Data, gotBody)
	assert.Equal(t, http.StatusOK, outcome.Status)
}

func TestFetchClient_NonSuccessStatusIsNotAnError(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer ts.Close()

	outcome, err := insecureFetchClient().Query(context.Background(), fetchQuery(t, http.MethodGet), serverEndpoint(t, ts))
	require.NoError(t, err, "HTTP-level rejection is an outcome, not a transport error")
	assert.Equal(t, http.StatusBadGateway, outcome.Status)
	assert.False(t, outcome.Succeeded())
}

func TestFetchClient_TransportFailure(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ep := serverEndpoint(t, ts)
	ts.Close() // nothing is listening anymore

	_, err := insecureFetchClient().Query(context.Background(), fetchQuery(t, http.MethodGet), ep)
	assert.Error(t, err)
}

func TestFetchClient_MethodGuardBeforeNetwork(t *testing.T) {
	dialed := false
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dialed = true
	}))
	defer ts.Close()

	_, err := insecureFetchClient().Query(context.Background(), fetchQuery(t, http.MethodPut), serverEndpoint(t, ts))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedMethod)
	assert.False(t, dialed, "no network attempt may happen for a rejected method")
}
