package model

import (
	"net/url"
	"strings"
)

// NormalizeURL returns the canonical string form of a URL used as a
// deduplication key throughout the crawler.
//
// Fragments never change the fetched content, so they are dropped.
// Scheme and host are case-insensitive per RFC 3986 and are lowered.
// An empty path and "/" address the same resource and collapse to "/".
func NormalizeURL(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	if c.Path == "" {
		c.Path = "/"
	}
	return c.String()
}

// normalizedHost returns the lowercase host portion including any
// non-standard port, since politeness state is tracked per host:port.
func normalizedHost(u *url.URL) string {
	return strings.ToLower(u.Host)
}
