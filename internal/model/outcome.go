package model

import (
	"fmt"
	"net/url"
)

// OutcomeKind is the top-level classification of a fetch attempt.
type OutcomeKind int

const (
	// OutcomeSuccess indicates a 2xx response with a readable body.
	OutcomeSuccess OutcomeKind = iota

	// OutcomeBlocked indicates a rate-limiting or availability signal
	// (429, 503, 408, and other 5xx). Blocked outcomes feed host-level
	// backoff and are eligible for retry.
	OutcomeBlocked

	// OutcomeNetworkError groups the remaining failures; see NetworkErrorKind.
	OutcomeNetworkError

	// OutcomeRobotsDisallowed indicates the target is excluded by the
	// host's robots rules. Terminal: never retried.
	OutcomeRobotsDisallowed
)

// String returns a human-readable name for the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeNetworkError:
		return "network error"
	case OutcomeRobotsDisallowed:
		return "robots disallowed"
	default:
		return "unknown"
	}
}

// NetworkErrorKind refines OutcomeNetworkError.
type NetworkErrorKind int

const (
	// NetworkNotFound covers 404/410 and other terminal 4xx statuses.
	NetworkNotFound NetworkErrorKind = iota

	// NetworkTransport covers connection and timeout failures. Retried
	// with task-local backoff inside the fetcher, independent of
	// host-level politeness backoff.
	NetworkTransport

	// NetworkTooManyRedirects indicates the redirect budget was exceeded.
	// Terminal: never retried.
	NetworkTooManyRedirects
)

// String returns a human-readable name for the network error kind.
func (k NetworkErrorKind) String() string {
	switch k {
	case NetworkNotFound:
		return "not found"
	case NetworkTransport:
		return "transport"
	case NetworkTooManyRedirects:
		return "too many redirects"
	default:
		return "unknown"
	}
}

// FetchOutcome is the tagged result of a single resource retrieval.
// Exactly one task owns an outcome transiently before it is folded into
// the aggregate.
type FetchOutcome struct {
	// Kind selects which of the remaining fields are meaningful.
	Kind OutcomeKind

	// Body holds the response bytes on success.
	Body []byte

	// ContentType is the Content-Type header value on success.
	ContentType string

	// FinalURL is the URL after redirects on success.
	FinalURL *url.URL

	// StatusCode is the HTTP status for blocked outcomes. Zero means the
	// host was quarantined locally and no request was issued.
	StatusCode int

	// Network refines the failure when Kind is OutcomeNetworkError.
	Network NetworkErrorKind

	// Err is the underlying error for network failures, if any.
	Err error
}

// Success builds a successful outcome.
func Success(body []byte, contentType string, finalURL *url.URL) FetchOutcome {
	return FetchOutcome{
		Kind:        OutcomeSuccess,
		Body:        body,
		ContentType: contentType,
		FinalURL:    finalURL,
	}
}

// Blocked builds a blocked outcome for the given HTTP status.
func Blocked(status int) FetchOutcome {
	return FetchOutcome{Kind: OutcomeBlocked, StatusCode: status}
}

// NetworkError builds a network failure outcome.
func NetworkError(kind NetworkErrorKind, err error) FetchOutcome {
	return FetchOutcome{Kind: OutcomeNetworkError, Network: kind, Err: err}
}

// RobotsDisallowed builds a robots-exclusion outcome.
func RobotsDisallowed() FetchOutcome {
	return FetchOutcome{Kind: OutcomeRobotsDisallowed}
}

// Terminal reports whether the outcome must not be retried for this URL.
func (o FetchOutcome) Terminal() bool {
	switch o.Kind {
	case OutcomeRobotsDisallowed:
		return true
	case OutcomeNetworkError:
		return o.Network == NetworkNotFound || o.Network == NetworkTooManyRedirects
	default:
		return false
	}
}

// Classify returns the failure classification for non-success outcomes.
// Calling Classify on a success is a programming error and panics.
func (o FetchOutcome) Classify() FailureClass {
	if o.Kind == OutcomeSuccess {
		panic("model: Classify called on a successful outcome")
	}
	return FailureClass{Kind: o.Kind, Network: o.Network, StatusCode: o.StatusCode}
}

// FailureClass records why a URL failed, for the aggregate's failure map.
type FailureClass struct {
	// Kind is the top-level outcome classification.
	Kind OutcomeKind

	// Network refines the failure when Kind is OutcomeNetworkError.
	Network NetworkErrorKind

	// StatusCode is the HTTP status for blocked outcomes, if known.
	StatusCode int
}

// String renders the classification for logs and reports.
func (c FailureClass) String() string {
	switch c.Kind {
	case OutcomeBlocked:
		if c.StatusCode > 0 {
			return fmt.Sprintf("blocked (HTTP %d)", c.StatusCode)
		}
		return "blocked (host quarantined)"
	case OutcomeNetworkError:
		return "network error: " + c.Network.String()
	default:
		return c.Kind.String()
	}
}
