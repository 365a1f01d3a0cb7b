package dispatch

import (
	"fmt"
	"net/http"

	"github.com/miekg/dns"

	"github.com/haukened/fr-dns/internal/dns/domain"
)

// maxLoggedBody bounds how much of a rejection body lands in the log.
const maxLoggedBody = 128

// decode turns a settled upstream outcome into a parsed DNS answer.
// A non-success HTTP status is rejected here; its body is logged for
// diagnostics but never fed to the wire parser.
func (d *Dispatcher) decode(outcome *domain.UpstreamOutcome) (domain.DecodedAnswer, error) {
	if outcome == nil {
		return domain.DecodedAnswer{}, domain.ErrNoUpstreamResult
	}

	if !outcome.Succeeded() {
		d.logger.Warn(map[string]any{
			"status": outcome.Status,
			"body":   truncateBody(outcome.Body),
		}, "Upstream rejected query")
		return domain.DecodedAnswer{}, fmt.Errorf("upstream returned HTTP %d %s", outcome.Status, http.StatusText(outcome.Status))
	}

	msg := new(dns.Msg)
	if err := msg.Unpack(outcome.Body); err != nil {
		return domain.DecodedAnswer{}, fmt.Errorf("failed to decode DNS answer: %w", err)
	}

	return domain.DecodedAnswer{Msg: msg, Raw: outcome.Body}, nil
}

func truncateBody(body []byte) string {
	if len(body) > maxLoggedBody {
		body = body[:maxLoggedBody]
	}
	return string(body)
}
