package model

import "net/url"

// CrawlTarget is a single URL scheduled for fetching, together with its
// recursion depth relative to the seed that discovered it.
//
// A CrawlTarget is immutable once created: the scheduler builds one per
// discovered URL and hands it to exactly one fetch task.
type CrawlTarget struct {
	// URL is the absolute URL to fetch.
	URL *url.URL

	// Depth is the number of link hops from the seed. Seeds have depth 0.
	Depth int
}

// NewCrawlTarget creates a target for the given URL at the given depth.
func NewCrawlTarget(u *url.URL, depth int) CrawlTarget {
	return CrawlTarget{URL: u, Depth: depth}
}

// Host returns the lowercase host of the target URL, or an empty string
// if the URL is nil.
func (t CrawlTarget) Host() string {
	if t.URL == nil {
		return ""
	}
	return normalizedHost(t.URL)
}

// Key returns the deduplication key for the target. The key strips URL
// fragments and normalizes scheme, host, and the root path so that
// http://example.com and http://example.com/ collapse to one entry.
func (t CrawlTarget) Key() string {
	if t.URL == nil {
		return ""
	}
	return NormalizeURL(t.URL)
}
