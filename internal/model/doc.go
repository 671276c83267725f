// Package model defines the core data types shared across the crawler:
// crawl targets, fetch outcomes, failure classifications, and download jobs.
//
// Types in this package are plain data carriers. They hold no locks and no
// references to shared mutable state; ownership rules are enforced by the
// components that produce and consume them (the scheduler, the aggregate,
// and the downloader).
package model
