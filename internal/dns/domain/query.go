// Package domain defines the types exchanged between the dispatch
// service and its gateways: queries, upstream endpoints, upstream
// outcomes, and decoded answers.
package domain

import (
	"fmt"
	"net/http"
	"net/url"
)

// Query is a single DNS question in wire format, paired with the shape
// of the request that carried it. The request shape (method, URL,
// headers) is used to derive per-upstream DoH requests. A Query is
// immutable once constructed.
type Query struct {
	// Data is the DNS message in wire format.
	Data []byte

	// Method is the HTTP method of the originating request. Only GET
	// and POST are dispatchable over DoH.
	Method string

	// URL is the originating request target. Upstream requests replace
	// its scheme, host, port, and path with the endpoint's.
	URL *url.URL

	// Header carries the originating request headers.
	Header http.Header

	// ResolverURL optionally names a caller-chosen DoH endpoint,
	// overriding the configured ones.
	ResolverURL string
}

// NewQuery constructs a Query and validates its fields.
func NewQuery(data []byte, method string, target *url.URL, header http.Header) (Query, error) {
	q := Query{
		Data:   data,
		Method: method,
		URL:    target,
		Header: header,
	}
	if err := q.Validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}

// Validate checks whether the Query fields are structurally valid.
func (q Query) Validate() error {
	if len(q.Data) == 0 {
		return fmt.Errorf("query data must not be empty")
	}
	if q.Method == "" {
		return fmt.Errorf("query method must not be empty")
	}
	if q.URL == nil {
		return fmt.Errorf("query URL must not be nil")
	}
	return nil
}
