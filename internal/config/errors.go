package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Package-level sentinel errors let callers use errors.Is while still
// carrying a human-readable message.
var (
	// ErrNoSeeds is returned when no seed URL is provided.
	ErrNoSeeds = errors.New("no seed URLs: provide at least one URL to crawl")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidDepth is returned when the crawl depth is negative.
	ErrInvalidDepth = errors.New("invalid depth: must be non-negative")

	// ErrInvalidConcurrency is returned when a pool size is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: pool sizes must be positive")

	// ErrInvalidDelay is returned when the delay floor is negative or the
	// backoff cap is below the floor.
	ErrInvalidDelay = errors.New("invalid delay: floor must be non-negative and not exceed the cap")

	// ErrInvalidMaxBodySize is returned when the body cap is not positive.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be positive")

	// ErrInvalidMaxRedirects is returned when the redirect budget is negative.
	ErrInvalidMaxRedirects = errors.New("invalid max redirects: must be non-negative")

	// ErrInvalidRetryBudget is returned when a retry budget is below one
	// attempt. Every target gets at least one try.
	ErrInvalidRetryBudget = errors.New("invalid retry budget: at least one attempt is required")

	// ErrInvalidSeed is returned when a seed URL cannot be parsed or is
	// not an absolute http(s) URL.
	ErrInvalidSeed = errors.New("invalid seed URL: must be absolute http or https")
)
