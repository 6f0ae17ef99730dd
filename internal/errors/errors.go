// Package errors defines the gateway's client-facing error kinds (§7 of the
// design: NoMatch, AuthRequired, RateLimited, CircuitOpen, ...) and their
// JSON wire representation.
package errors

import (
	"encoding/json"
	"net/http"
)

// GatewayError is the JSON error body returned to clients on a request that
// failed in the data plane rather than reaching an upstream.
type GatewayError struct {
	Code    int    `json:"-"`
	Kind    string `json:"error"`
	Path    string `json:"path,omitempty"`
	Details string `json:"details,omitempty"`

	underlying error
}

func (e *GatewayError) Error() string {
	if e.underlying != nil {
		return e.Kind + ": " + e.underlying.Error()
	}
	return e.Kind
}

func (e *GatewayError) Unwrap() error { return e.underlying }

// WithPath returns a copy of e carrying the request path.
func (e *GatewayError) WithPath(path string) *GatewayError {
	clone := *e
	clone.Path = path
	return &clone
}

// WithDetails returns a copy of e carrying a details string.
func (e *GatewayError) WithDetails(details string) *GatewayError {
	clone := *e
	clone.Details = details
	return &clone
}

// WriteJSON writes the error as the response body, setting status and
// Content-Type. Callers that need a Retry-After header must set it before
// calling WriteJSON.
func (e *GatewayError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Code)
	json.NewEncoder(w).Encode(e)
}

// Bytes marshals the error body alone, for callers that build a response
// out-of-band (e.g. a plugin short-circuit) rather than writing directly.
func (e *GatewayError) Bytes() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Error kinds surfaced to the client, per the design's error table.
var (
	NoMatch = &GatewayError{Code: http.StatusNotFound, Kind: "no_route"}

	RateLimited = &GatewayError{Code: http.StatusTooManyRequests, Kind: "rate_limited"}

	CircuitOpen = &GatewayError{Code: http.StatusServiceUnavailable, Kind: "upstream_unavailable"}

	NoHealthyInstance = &GatewayError{Code: http.StatusServiceUnavailable, Kind: "upstream_unavailable"}

	UpstreamTimeout = &GatewayError{Code: http.StatusGatewayTimeout, Kind: "upstream_timeout"}

	UpstreamTransport = &GatewayError{Code: http.StatusBadGateway, Kind: "upstream_transport"}

	AuthUnavailable = &GatewayError{Code: http.StatusServiceUnavailable, Kind: "auth_unavailable"}

	Unauthorized = &GatewayError{Code: http.StatusUnauthorized, Kind: "unauthorized"}
)

// Wrap attaches an underlying error for logging, without changing the JSON body.
func (e *GatewayError) Wrap(err error) *GatewayError {
	clone := *e
	clone.underlying = err
	return &clone
}
