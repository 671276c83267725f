// Package aggregate merges per-page crawl results into one deduplicated
// inventory of visited pages, discovered images, and failures.
package aggregate
