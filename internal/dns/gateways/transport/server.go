package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/haukened/fr-dns/internal/dns/common/log"
	"github.com/haukened/fr-dns/internal/dns/domain"
	"github.com/haukened/fr-dns/internal/dns/gateways/doh"
)

const (
	dnsQueryPath = "/dns-query"

	// resolverParam lets a caller steer one query at a specific
	// upstream instead of the configured set.
	resolverParam = "resolver"

	// maxQuerySize bounds an inbound POST body. A DNS message cannot
	// exceed 64KiB on the wire.
	maxQuerySize = 65536

	shutdownTimeout = 5 * time.Second
	sweepInterval   = 5 * time.Minute
)

const (
	errNoResolverProvided = "a resolver is required"
	errNoAddrProvided     = "a listen address is required"
)

// Resolver answers one parsed inbound query. Implemented by the
// dispatch service.
type Resolver interface {
	Resolve(ctx context.Context, q domain.Query) (domain.DecodedAnswer, error)
}

// Server is the inbound DoH frontend. It accepts RFC 8484 GET and
// POST queries on /dns-query and hands them to the resolver.
type Server struct {
	addr     string
	resolver Resolver
	limiter  *clientLimiter
	logger   log.Logger

	mu         sync.Mutex
	listenAddr string
	httpServer *http.Server
}

// Options defines configuration parameters for the frontend.
type Options struct {
	Addr     string
	Resolver Resolver
	QPS      float64
	Burst    int
	Logger   log.Logger
}

// New creates a frontend server. QPS of zero disables rate limiting.
func New(opts Options) (*Server, error) {
	if opts.Resolver == nil {
		return nil, errors.New(errNoResolverProvided)
	}
	if opts.Addr == "" {
		return nil, errors.New(errNoAddrProvided)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Server{
		addr:     opts.Addr,
		resolver: opts.Resolver,
		limiter:  newClientLimiter(opts.QPS, opts.Burst),
		logger:   opts.Logger,
	}, nil
}

// Serve listens on the configured address and blocks until the
// context is cancelled, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(dnsQueryPath, s.handleDNSQuery)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.listenAddr = ln.Addr().String()
	s.httpServer = srv
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	s.logger.Info(map[string]any{"addr": s.listenAddr}, "DoH frontend listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// SweepLimiter prunes idle rate-limit buckets until the context is
// done. Run it alongside Serve.
func (s *Server) SweepLimiter(ctx context.Context) error {
	s.limiter.Run(ctx, sweepInterval)
	return nil
}

// Address returns the bound listen address, or the configured address
// if the server has not started yet.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listenAddr != "" {
		return s.listenAddr
	}
	return s.addr
}

func (s *Server) handleDNSQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	client := clientAddr(r)
	if !s.limiter.Allow(client) {
		s.logger.Warn(map[string]any{"client": client}, "Client rate limited")
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	data, err := readQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	q, err := domain.NewQuery(data, r.Method, r.URL, r.Header)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	q.ResolverURL = r.URL.Query().Get(resolverParam)

	answer, err := s.resolver.Resolve(r.Context(), q)
	if err != nil {
		s.logger.Error(map[string]any{
			"client": client,
			"error":  err.Error(),
		}, "Resolution failed")
		http.Error(w, "resolution failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", doh.ContentType)
	if _, err := w.Write(answer.Raw); err != nil {
		s.logger.Warn(map[string]any{
			"client": client,
			"error":  err.Error(),
		}, "Failed to write answer")
	}
}

// readQuery extracts the wire-format DNS query from an RFC 8484
// request, from the dns parameter on GET or the body on POST.
func readQuery(r *http.Request) ([]byte, error) {
	switch r.Method {
	case http.MethodGet:
		encoded := r.URL.Query().Get("dns")
		if encoded == "" {
			return nil, errors.New("missing dns query parameter")
		}
		data, err := doh.DecodeQueryParam(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid dns query parameter: %w", err)
		}
		return data, nil
	case http.MethodPost:
		data, err := io.ReadAll(io.LimitReader(r.Body, maxQuerySize))
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		if len(data) == 0 {
			return nil, errors.New("empty request body")
		}
		return data, nil
	default:
		return nil, fmt.Errorf("method %s not allowed", r.Method)
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
