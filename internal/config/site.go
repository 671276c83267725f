package config

import "strings"

// SiteConfig holds per-host overrides for crawl behavior. Keys in the
// configuration file are host names (with port, if non-standard).
type SiteConfig struct {
	// Delay overrides the global politeness delay floor for this host.
	// Zero means use the global floor.
	Delay Duration `yaml:"delay,omitempty"`

	// Headers are extra HTTP headers sent with every request to this host,
	// for example a session cookie for archives behind a login.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides the global crawl depth for pages on this host.
	// Zero means use the global depth.
	Depth int `yaml:"depth,omitempty"`
}

// File is the on-disk YAML configuration structure.
type File struct {
	// Sites maps host names to their overrides.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults is applied to every host unless overridden per site.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// Site returns the effective configuration for a host, merging the
// site-specific entry over the file defaults.
func (f *File) Site(host string) SiteConfig {
	result := f.Defaults

	site, ok := f.Sites[strings.ToLower(host)]
	if !ok {
		return result
	}
	if !site.Delay.IsZero() {
		result.Delay = site.Delay
	}
	if site.Depth != 0 {
		result.Depth = site.Depth
	}
	if len(site.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(site.Headers))
		}
		for k, v := range site.Headers {
			result.Headers[k] = v
		}
	}
	return result
}

// HostDelays extracts every per-host delay override as a plain map for
// the politeness controller.
func (f *File) HostDelays() map[string]Duration {
	delays := make(map[string]Duration)
	for host, site := range f.Sites {
		if !site.Delay.IsZero() {
			delays[strings.ToLower(host)] = site.Delay
		}
	}
	return delays
}

// HostDepths extracts every per-host depth override as a plain map for
// the spider.
func (f *File) HostDepths() map[string]int {
	depths := make(map[string]int)
	for host, site := range f.Sites {
		if site.Depth != 0 {
			depths[strings.ToLower(host)] = site.Depth
		}
	}
	return depths
}

// HostHeaders extracts every per-host header override, with file defaults
// merged in, as a plain map for the fetcher.
func (f *File) HostHeaders() map[string]map[string]string {
	headers := make(map[string]map[string]string)
	for host := range f.Sites {
		site := f.Site(host)
		if len(site.Headers) > 0 {
			headers[strings.ToLower(host)] = site.Headers
		}
	}
	return headers
}
