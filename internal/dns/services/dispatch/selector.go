package dispatch

import (
	"github.com/haukened/fr-dns/internal/dns/common/log"
	"github.com/haukened/fr-dns/internal/dns/domain"
)

// Selector decides which upstream endpoints serve a query. An empty
// result means "use plain DNS". Selection never fails; a missing or
// unparsable endpoint surfaces later, when resolution is attempted.
type Selector struct {
	plainMode bool
	race      bool
	primary   domain.UpstreamEndpoint
	secondary domain.UpstreamEndpoint
	fallback  domain.UpstreamEndpoint
	logger    log.Logger
}

// SelectorOptions defines configuration parameters for the selector.
// Endpoint URLs may be empty; unparsable URLs are logged and left
// blank so one misconfigured entry cannot poison every query.
type SelectorOptions struct {
	PlainMode bool
	Race      bool
	Primary   string
	Secondary string
	Default   string
	Logger    log.Logger
}

// NewSelector creates a selector from the configured endpoint URLs.
func NewSelector(opts SelectorOptions) *Selector {
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Selector{
		plainMode: opts.PlainMode,
		race:      opts.Race,
		primary:   parseConfigured(opts.Primary, opts.Logger),
		secondary: parseConfigured(opts.Secondary, opts.Logger),
		fallback:  parseConfigured(opts.Default, opts.Logger),
		logger:    opts.Logger,
	}
}

// parseConfigured parses a configured endpoint URL, returning a blank
// endpoint on failure.
func parseConfigured(raw string, logger log.Logger) domain.UpstreamEndpoint {
	if raw == "" {
		return domain.UpstreamEndpoint{}
	}
	ep, err := domain.ParseUpstreamEndpoint(raw)
	if err != nil {
		logger.Warn(map[string]any{
			"url":   raw,
			"error": err.Error(),
		}, "Ignoring unparsable upstream endpoint")
		return domain.UpstreamEndpoint{}
	}
	return ep
}

// Select returns the ordered endpoint set for one query, in priority
// order: plain transport wins unconditionally, then a caller-supplied
// resolver URL, then the racing pair, then the default endpoint.
func (s *Selector) Select(q domain.Query) []domain.UpstreamEndpoint {
	if s.plainMode {
		return nil
	}

	if q.ResolverURL != "" {
		ep, err := domain.ParseUpstreamEndpoint(q.ResolverURL)
		if err == nil {
			return []domain.UpstreamEndpoint{ep}
		}
		s.logger.Warn(map[string]any{
			"url":   q.ResolverURL,
			"error": err.Error(),
		}, "Ignoring unparsable caller resolver URL")
	}

	if s.race {
		return []domain.UpstreamEndpoint{s.primary, s.secondary}
	}

	return []domain.UpstreamEndpoint{s.fallback}
}
