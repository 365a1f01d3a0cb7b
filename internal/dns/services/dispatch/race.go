package dispatch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/haukened/fr-dns/internal/dns/domain"
)

// race fans one query out to every endpoint concurrently and settles
// on the first outcome that arrives without a transport error. Losing
// attempts keep running until the parent context expires; their
// results are discarded.
func (d *Dispatcher) race(ctx context.Context, q domain.Query, endpoints []domain.UpstreamEndpoint) (domain.UpstreamOutcome, error) {
	if q.Method != http.MethodGet && q.Method != http.MethodPost {
		return domain.UpstreamOutcome{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedMethod, q.Method)
	}

	attempts := len(endpoints)
	if attempts == 0 {
		attempts = 1
	}

	// Capacity 1 keeps the winner's send non-blocking; error capacity
	// matches the attempt count so no goroutine is ever stranded.
	outcomeChan := make(chan domain.UpstreamOutcome, 1)
	errorChan := make(chan error, attempts)

	if len(endpoints) == 0 {
		errorChan <- domain.ErrNoEndpoints
	}

	for _, ep := range endpoints {
		if ep.IsZero() {
			d.logger.Warn(nil, "Skipping blank upstream endpoint")
			errorChan <- fmt.Errorf("blank upstream endpoint")
			continue
		}
		go func(ep domain.UpstreamEndpoint) {
			outcome, err := d.upstream.Query(ctx, q, ep)
			if err != nil {
				errorChan <- fmt.Errorf("endpoint %s: %w", ep.String(), err)
				return
			}
			select {
			case outcomeChan <- outcome:
			default:
				// another endpoint already won
			}
		}(ep)
	}

	causes := make([]error, 0, attempts)
	for i := 0; i < attempts; i++ {
		select {
		case outcome := <-outcomeChan:
			return outcome, nil
		case err := <-errorChan:
			causes = append(causes, err)
		case <-ctx.Done():
			return domain.UpstreamOutcome{}, ctx.Err()
		}
	}

	return domain.UpstreamOutcome{}, &domain.AllUpstreamsError{Causes: causes}
}
