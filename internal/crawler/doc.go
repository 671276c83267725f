// Package crawler runs the crawl itself: a dispatch loop feeds polite
// page fetches to a bounded worker set, merges what they find into the
// aggregate, and streams new images to the download pool. Run wires the
// whole pipeline from a Config.
package crawler
