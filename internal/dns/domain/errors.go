package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoUpstreamResult indicates resolution produced no outcome at
	// all to decode.
	ErrNoUpstreamResult = errors.New("no upstream result")

	// ErrUnsupportedMethod indicates the originating request used an
	// HTTP method other than GET or POST. No upstream attempt is made.
	ErrUnsupportedMethod = errors.New("unsupported HTTP method for DNS query")

	// ErrNoEndpoints is the sentinel failure standing in for an empty
	// endpoint set, keeping the race fan-out non-empty.
	ErrNoEndpoints = errors.New("no upstream endpoints configured")
)

// AllUpstreamsError aggregates the per-endpoint failures of a race in
// which no attempt succeeded.
type AllUpstreamsError struct {
	Causes []error
}

func (e *AllUpstreamsError) Error() string {
	msgs := make([]string, 0, len(e.Causes))
	for _, c := range e.Causes {
		msgs = append(msgs, c.Error())
	}
	return fmt.Sprintf("all %d upstream attempts failed: %s", len(e.Causes), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual attempt errors to errors.Is/As.
func (e *AllUpstreamsError) Unwrap() []error {
	return e.Causes
}
