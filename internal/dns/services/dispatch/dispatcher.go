package dispatch

import (
	"context"

	"github.com/haukened/fr-dns/internal/dns/common/clock"
	"github.com/haukened/fr-dns/internal/dns/common/log"
	"github.com/haukened/fr-dns/internal/dns/domain"
)

// Dispatcher orchestrates one query end to end: endpoint selection,
// the upstream exchange (raced DoH or plain DNS), and decoding of the
// winning answer.
type Dispatcher struct {
	selector *Selector
	upstream UpstreamQuerier
	plain    PlainResolver
	clock    clock.Clock
	logger   log.Logger
}

// DispatcherOptions defines the collaborators a dispatcher needs.
// Selector and Upstream are required; Plain may be nil when no plain
// DNS server is configured.
type DispatcherOptions struct {
	Selector *Selector
	Upstream UpstreamQuerier
	Plain    PlainResolver
	Clock    clock.Clock
	Logger   log.Logger
}

// NewDispatcher creates a dispatcher from its collaborators.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Dispatcher{
		selector: opts.Selector,
		upstream: opts.Upstream,
		plain:    opts.Plain,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
}

// Resolve answers one DNS query. An empty endpoint selection routes to
// the plain resolver; anything else is raced across the selected DoH
// endpoints. The settled outcome is then decoded into a wire answer.
func (d *Dispatcher) Resolve(ctx context.Context, q domain.Query) (domain.DecodedAnswer, error) {
	start := d.clock.Now()
	endpoints := d.selector.Select(q)

	var outcome domain.UpstreamOutcome
	var err error
	if len(endpoints) == 0 && d.plain != nil {
		outcome, err = d.plain.Resolve(ctx, q.Data)
	} else {
		outcome, err = d.race(ctx, q, endpoints)
	}
	if err != nil {
		return domain.DecodedAnswer{}, err
	}

	answer, err := d.decode(&outcome)
	if err != nil {
		return domain.DecodedAnswer{}, err
	}

	d.logger.Debug(map[string]any{
		"endpoints": len(endpoints),
		"answers":   len(answer.Msg.Answer),
		"duration":  d.clock.Since(start).String(),
	}, "Query resolved")
	return answer, nil
}
