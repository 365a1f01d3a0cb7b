package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haukened/fr-dns/internal/dns/common/clock"
	"github.com/haukened/fr-dns/internal/dns/common/log"
	"github.com/haukened/fr-dns/internal/dns/config"
	"github.com/haukened/fr-dns/internal/dns/gateways/doh"
	"github.com/haukened/fr-dns/internal/dns/gateways/plaindns"
	"github.com/haukened/fr-dns/internal/dns/gateways/transport"
	"github.com/haukened/fr-dns/internal/dns/services/dispatch"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "fr-dnsd"

	// Default timeouts
	defaultUpstreamTimeout = 5 * time.Second
	defaultPlainTimeout    = 5 * time.Second
)

// Application holds all the components of the forwarding resolver
type Application struct {
	config   *config.AppConfig
	frontend *transport.Server
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":          version,
		"env":              cfg.Env,
		"log_level":        cfg.LogLevel,
		"port":             cfg.Port,
		"plain_server":     cfg.PlainServer,
		"upstream_default": cfg.UpstreamDefault,
		"race_upstreams":   cfg.RaceUpstreams,
		"stream_client":    cfg.StreamClient,
	}, "Starting FR-DNS resolver")

	// Build application with all dependencies
	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	// Setup graceful shutdown on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Server failed")
	}

	log.Info(nil, "FR-DNS resolver stopped gracefully")
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	// Shared clock for consistent time across components
	clk := clock.RealClock{}

	// Logger is already configured globally
	logger := log.GetLogger()

	// Pick the upstream DoH client
	var querier dispatch.UpstreamQuerier
	if cfg.StreamClient {
		querier = doh.NewStreamClient(doh.StreamOptions{
			Timeout: defaultUpstreamTimeout,
			Logger:  logger,
		})
		log.Info(nil, "Using per-request HTTP/2 stream client")
	} else {
		querier = doh.NewFetchClient(doh.FetchOptions{
			Timeout: defaultUpstreamTimeout,
			Logger:  logger,
		})
	}

	// Plain DNS transport, only when a server is configured
	var plain dispatch.PlainResolver
	if cfg.PlainServer != "" {
		client, err := plaindns.New(plaindns.Options{
			Server:  cfg.PlainServer,
			Timeout: defaultPlainTimeout,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create plain DNS client: %w", err)
		}
		plain = client
		log.Info(map[string]any{"server": cfg.PlainServer}, "Plain DNS transport configured")
	}

	selector := dispatch.NewSelector(dispatch.SelectorOptions{
		PlainMode: cfg.PlainServer != "",
		Race:      cfg.RaceUpstreams,
		Primary:   cfg.UpstreamPrimary,
		Secondary: cfg.UpstreamSecondary,
		Default:   cfg.UpstreamDefault,
		Logger:    logger,
	})

	dispatcher := dispatch.NewDispatcher(dispatch.DispatcherOptions{
		Selector: selector,
		Upstream: querier,
		Plain:    plain,
		Clock:    clk,
		Logger:   logger,
	})

	frontend, err := transport.New(transport.Options{
		Addr:     fmt.Sprintf(":%d", cfg.Port),
		Resolver: dispatcher,
		QPS:      float64(cfg.ClientQPS),
		Burst:    cfg.ClientBurst,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create frontend: %w", err)
	}

	return &Application{
		config:   cfg,
		frontend: frontend,
	}, nil
}

// Run starts the frontend and blocks until the context is cancelled
func (app *Application) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.frontend.Serve(ctx)
	})
	g.Go(func() error {
		return app.frontend.SweepLimiter(ctx)
	})
	return g.Wait()
}
