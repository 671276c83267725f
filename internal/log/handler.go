package log

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
)

// MaxAttrLen is the length at which string attribute values are truncated.
// Crawler logs routinely carry URLs and content snippets; anything longer
// than this is noise in a terminal and a hazard in shipped logs.
const MaxAttrLen = 512

// truncationMarker is appended to values cut at MaxAttrLen.
const truncationMarker = "...(truncated)"

// RedactHandler wraps an slog.Handler and sanitizes attribute values
// before they reach the underlying handler. Two concerns:
//
//   - URL-shaped values lose their userinfo component, so proxy
//     credentials configured for egress never land in logs
//   - oversized string values are truncated to MaxAttrLen
//
// Wrapping a handler rather than a logger keeps it compatible with any
// underlying handler (text, JSON) and with standard slog APIs.
type RedactHandler struct {
	handler slog.Handler
}

// NewRedactHandler creates a RedactHandler wrapping the given handler.
// A nil handler falls back to slog.Default().Handler().
func NewRedactHandler(handler slog.Handler) *RedactHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &RedactHandler{handler: handler}
}

// Enabled delegates to the underlying handler.
func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle sanitizes the record's attributes and passes it on.
func (h *RedactHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs returns a new RedactHandler whose underlying handler has the
// given (sanitized) attributes.
func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitized := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitized[i] = sanitizeAttr(a)
	}
	return &RedactHandler{handler: h.handler.WithAttrs(sanitized)}
}

// WithGroup returns a new RedactHandler with the given group name.
func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{handler: h.handler.WithGroup(name)}
}

// sanitizeAttr rewrites a single attribute, recursing into groups.
func sanitizeAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, sanitizeString(a.Value.String()))
	case slog.KindGroup:
		members := a.Value.Group()
		sanitized := make([]any, 0, len(members))
		for _, m := range members {
			sanitized = append(sanitized, sanitizeAttr(m))
		}
		return slog.Group(a.Key, sanitized...)
	default:
		return a
	}
}

// sanitizeString strips URL userinfo and truncates oversized values.
func sanitizeString(s string) string {
	s = stripUserinfo(s)
	if len(s) > MaxAttrLen {
		s = s[:MaxAttrLen] + truncationMarker
	}
	return s
}

// stripUserinfo removes the user:password@ component from URL-shaped
// strings. Non-URL values pass through untouched.
func stripUserinfo(s string) string {
	if !strings.Contains(s, "@") || !strings.Contains(s, "://") {
		return s
	}
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return s
	}
	u.User = nil
	return u.String()
}
