package crawler

import (
	"context"
	"errors"
)

// Error taxonomy. Fetchers and extractors wrap their causes with one of these
// sentinels, e.g. fmt.Errorf("%w: %w", ErrTimeout, err).
var (
	// ErrPolicyBlocked marks a URL disallowed by the site's robots policy.
	ErrPolicyBlocked = errors.New("blocked by robots policy")
	// ErrNetwork is a transient transport failure.
	ErrNetwork = errors.New("network error")
	// ErrTimeout is a transient deadline failure.
	ErrTimeout = errors.New("timeout")
	// ErrRender is a transient failure inside the rendering environment.
	ErrRender = errors.New("render error")
	// ErrParse means extraction found no usable article text.
	ErrParse = errors.New("parse error")
	// ErrBlocked means the site refused the request (401, 403, 451).
	ErrBlocked = errors.New("blocked by site")
	// ErrCapabilityUnavailable means the strategy cannot run in this deployment.
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	// ErrSessionClosed is returned when a closed session is asked to crawl.
	ErrSessionClosed = errors.New("crawl session closed")
)

// FetchOutcome is the tagged result of one fetch attempt.
type FetchOutcome string

// Fetch outcomes.
const (
	FetchSuccess               FetchOutcome = "success"
	FetchBlocked               FetchOutcome = "blocked"
	FetchTransient             FetchOutcome = "transient"
	FetchCapabilityUnavailable FetchOutcome = "capability_unavailable"
	FetchCanceled              FetchOutcome = "canceled"
)

// OutcomeOf maps an attempt error onto the tagged FetchOutcome form. Errors
// outside the taxonomy count as transient.
func OutcomeOf(err error) FetchOutcome {
	switch {
	case err == nil:
		return FetchSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout):
		return FetchCanceled
	case errors.Is(err, ErrCapabilityUnavailable):
		return FetchCapabilityUnavailable
	case errors.Is(err, ErrBlocked), errors.Is(err, ErrPolicyBlocked):
		return FetchBlocked
	default:
		return FetchTransient
	}
}

// IsTransient reports whether err may succeed on a later attempt.
func IsTransient(err error) bool {
	return OutcomeOf(err) == FetchTransient
}
