package domain

import (
	"net/http"

	"github.com/miekg/dns"
)

// UpstreamOutcome is the raw result of one upstream attempt: an HTTP
// status, response headers, and body bytes. Exactly one outcome is
// produced per attempt. The plain-transport path synthesizes outcomes
// with the same shape so the decoder sees a uniform input.
type UpstreamOutcome struct {
	Status int
	Header http.Header
	Body   []byte
}

// Succeeded reports whether the outcome's status indicates success.
// Only succeeded outcomes may reach the decoder.
func (o UpstreamOutcome) Succeeded() bool {
	return o.Status >= 200 && o.Status < 300
}

// DecodedAnswer pairs a parsed DNS message with the wire bytes it was
// decoded from. Both representations are returned because downstream
// consumers need the raw bytes for transmission and the parsed form
// for inspection.
type DecodedAnswer struct {
	Msg *dns.Msg
	Raw []byte
}
