package vendors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrorKind classifies a vendor failure. All three kinds are retryable; the
// retry policy only treats RateLimited differently (it waits the vendor's
// stated delay instead of the computed backoff).
type ErrorKind int

const (
	KindTimeout ErrorKind = iota
	KindUpstream
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindUpstream:
		return "upstream_error"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Error is the only failure type that crosses the adapter boundary. Every
// adapter maps its native errors into one of the three kinds.
type Error struct {
	Kind       ErrorKind
	Provider   string
	HTTPStatus int           // HTTP-equivalent status, 0 if not applicable
	RetryAfter time.Duration // only set for KindRateLimited
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewTimeout reports that a vendor call exceeded its deadline.
func NewTimeout(provider string, err error) *Error {
	return &Error{Kind: KindTimeout, Provider: provider, Err: err}
}

// NewUpstream reports a vendor-side failure with an HTTP-equivalent status.
func NewUpstream(provider string, status int, err error) *Error {
	return &Error{Kind: KindUpstream, Provider: provider, HTTPStatus: status, Err: err}
}

// NewRateLimited reports a 429 with the vendor's stated retry delay.
func NewRateLimited(provider string, retryAfter time.Duration, err error) *Error {
	return &Error{Kind: KindRateLimited, Provider: provider, HTTPStatus: 429, RetryAfter: retryAfter, Err: err}
}

// AsVendorError extracts the typed vendor error, if any.
func AsVendorError(err error) (*Error, bool) {
	var ve *Error
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Classify maps an arbitrary adapter-level error into the taxonomy. Deadline
// and network timeouts become KindTimeout; everything else is upstream.
func Classify(provider string, status int, err error) *Error {
	if ve, ok := AsVendorError(err); ok {
		return ve
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeout(provider, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeout(provider, err)
	}
	if status == 429 {
		return NewRateLimited(provider, 0, err)
	}
	return NewUpstream(provider, status, err)
}
