// Package log provides logging utilities for the crawler.
//
// The main component is RedactHandler, an slog.Handler wrapper that
// sanitizes attribute values before they reach the underlying handler:
// proxy credentials embedded in URLs are stripped and oversized values
// are truncated. All packages log through standard log/slog; this
// package only shapes what ends up in the output.
package log
