package dispatch

import (
	"context"

	"github.com/haukened/fr-dns/internal/dns/domain"
)

// UpstreamQuerier performs one DoH exchange against one endpoint.
// Implemented by the fetch and stream clients in gateways/doh.
type UpstreamQuerier interface {
	Query(ctx context.Context, q domain.Query, ep domain.UpstreamEndpoint) (domain.UpstreamOutcome, error)
}

// PlainResolver resolves a wire-format query over classic UDP/TCP DNS.
// Implemented by gateways/plaindns.
type PlainResolver interface {
	Resolve(ctx context.Context, query []byte) (domain.UpstreamOutcome, error)
}
