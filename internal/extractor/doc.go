// Package extractor pulls page links and image references out of fetched
// HTML documents. It owns no I/O: callers hand it a body and its final
// URL, and get back absolute, crawlable references.
package extractor
