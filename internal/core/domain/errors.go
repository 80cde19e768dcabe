package domain

import "errors"

var (
	// ErrInvalidInput is returned before any upstream call when a request cannot be processed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimitExceeded is returned when the shared token budget cannot admit a call in time.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrUpstreamExhausted is returned when every retry attempt failed.
	ErrUpstreamExhausted = errors.New("upstream exhausted")

	// ErrUpstreamRejected is returned when the upstream refuses the request permanently.
	ErrUpstreamRejected = errors.New("upstream rejected request")

	// ErrParseFailure is returned when the upstream answered but nothing structured could be recovered.
	ErrParseFailure = errors.New("unparseable upstream response")
)

// ErrorKind tags a stage-local failure.
type ErrorKind string

const (
	ErrorKindNone              ErrorKind = ""
	ErrorKindRateLimitExceeded ErrorKind = "rate_limit_exceeded"
	ErrorKindUpstreamExhausted ErrorKind = "upstream_exhausted"
	ErrorKindUpstreamRejected  ErrorKind = "upstream_rejected"
	ErrorKindParseFailure      ErrorKind = "parse_failure"
)

// KindOf maps an error to its ErrorKind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrRateLimitExceeded):
		return ErrorKindRateLimitExceeded
	case errors.Is(err, ErrParseFailure):
		return ErrorKindParseFailure
	case errors.Is(err, ErrUpstreamRejected):
		return ErrorKindUpstreamRejected
	default:
		return ErrorKindUpstreamExhausted
	}
}
