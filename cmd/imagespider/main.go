// Package main provides the entry point for the imagespider CLI.
//
// imagespider is a polite, concurrent web crawler that walks pages from
// one or more seed URLs, collects every image they reference, and
// archives the images to a local directory.
//
// Usage:
//
//	imagespider crawl <url> [<url>...]
//	imagespider crawl --depth 2 --dest ./archive <url>
//
// See --help for all available options.
package main

// main is the entry point for imagespider.
func main() {
	Execute()
}
