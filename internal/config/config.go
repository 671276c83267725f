package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// Politeness values are conservative so that a default run is a polite
// citizen on any host it touches.
const (
	// DefaultTimeout is the per-request timeout. 20 seconds tolerates slow
	// image hosts without letting a single request hang a worker for long.
	DefaultTimeout = 20 * time.Second

	// DefaultMaxDepth limits link recursion from each seed. Depth 0 means
	// only the seed pages themselves are fetched.
	DefaultMaxDepth = 4

	// DefaultMaxPages caps the total number of pages fetched in one run,
	// preventing runaway crawls on large or infinitely-generating sites.
	DefaultMaxPages = 1000

	// DefaultConcurrency is the maximum number of in-flight fetch tasks.
	DefaultConcurrency = 16

	// DefaultHostConcurrency caps in-flight fetches against a single host.
	// Even with generous global concurrency, one host never sees more than
	// this many simultaneous requests.
	DefaultHostConcurrency = 4

	// DefaultDownloadConcurrency sizes the image download pool. Downloads
	// are bandwidth-bound rather than politeness-bound, so the pool is
	// independent of the crawl concurrency.
	DefaultDownloadConcurrency = 8

	// DefaultDelayFloor is the minimum delay between requests to one host.
	DefaultDelayFloor = 1 * time.Second

	// DefaultMaxDelay caps host-level backoff. Doubling stops here.
	DefaultMaxDelay = 2 * time.Minute

	// DefaultQuarantineThreshold is the number of consecutive blocked
	// responses after which a host is quarantined.
	DefaultQuarantineThreshold = 5

	// DefaultQuarantineCooldown is how long a quarantined host is denied.
	DefaultQuarantineCooldown = 2 * time.Minute

	// DefaultMaxBodySize limits response bodies. 10MB is generous for HTML
	// and covers nearly all images without risking memory exhaustion.
	DefaultMaxBodySize = 10 * 1024 * 1024

	// DefaultMaxRedirects bounds redirect chains per request.
	DefaultMaxRedirects = 5

	// DefaultRetryAttempts is the per-task budget for transport failures.
	DefaultRetryAttempts = 3

	// DefaultBlockedAttempts is the per-target budget of fetch attempts
	// when the host answers with rate-limiting statuses (429/503/408).
	DefaultBlockedAttempts = 4

	// DefaultRetryBackoff is the base for task-local exponential backoff
	// on transport failures.
	DefaultRetryBackoff = 500 * time.Millisecond

	// DefaultUserAgent identifies the crawler in HTTP requests. It mimics
	// a recognized crawler bot identity so that operators immediately
	// understand the traffic in their logs.
	DefaultUserAgent = "Mozilla/5.0 (compatible; imagespider/1.0; +https://github.com/imagespider/imagespider)"

	// AppName is the application name used for XDG directory paths.
	AppName = "imagespider"
)

// DefaultUserAgents is the identification pool the fetcher picks from when
// rotation is enabled and no explicit User-Agent is configured.
var DefaultUserAgents = []string{
	DefaultUserAgent,
	"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
	"Mozilla/5.0 (Linux; Android 6.0.1; Nexus 5X Build/MMB29P) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/41.0.2272.96 Mobile Safari/537.36 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
	"Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0",
}

// Config holds all options for a crawl run. It is populated from CLI flags
// and an optional YAML file, then passed through the application via
// dependency injection rather than global state.
type Config struct {
	// Seeds is the ordered list of URLs the crawl starts from.
	Seeds []string

	// UserAgent is the identification header sent with every request.
	UserAgent string

	// UserAgents, when non-empty, is a pool the fetcher picks one identity
	// from at startup. An explicit UserAgent wins over the pool.
	UserAgents []string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// MaxDepth is the maximum link recursion depth from each seed.
	MaxDepth int

	// MaxPages caps the total number of pages fetched in one run.
	MaxPages int

	// Concurrency is the maximum number of in-flight fetch tasks.
	Concurrency int

	// HostConcurrency caps in-flight fetches per host.
	HostConcurrency int

	// DownloadConcurrency sizes the image download pool.
	DownloadConcurrency int

	// DownloadDir is the destination directory for downloaded images.
	// Empty disables downloading; the run still collects image URLs.
	DownloadDir string

	// DelayFloor is the minimum delay between requests to one host.
	DelayFloor time.Duration

	// MaxDelay caps host-level backoff growth.
	MaxDelay time.Duration

	// QuarantineThreshold is the consecutive-blocked count that
	// quarantines a host.
	QuarantineThreshold int

	// QuarantineCooldown is the quarantine duration.
	QuarantineCooldown time.Duration

	// MaxBodySize is the response body cap in bytes.
	MaxBodySize int64

	// MaxRedirects bounds redirect chains per request.
	MaxRedirects int

	// RetryAttempts is the per-task transport retry budget.
	RetryAttempts int

	// BlockedAttempts is the per-target attempt budget under
	// rate-limiting statuses.
	BlockedAttempts int

	// RetryBackoff is the base for task-local exponential backoff.
	RetryBackoff time.Duration

	// ProxyURL routes all egress through the given proxy when set.
	// Rotating across multiple proxies is left to whatever configures
	// the run; the core only consumes a single injected egress.
	ProxyURL string

	// Verbose enables debug-level log output.
	Verbose bool

	// ConfigFilePath is the YAML configuration file path. Empty means
	// search the working directory and the XDG config directory.
	ConfigFilePath string

	// Sites holds per-host overrides loaded from the config file.
	Sites *File
}

// NewConfig creates a Config with all defaults applied.
// Many defaults are non-zero, so zero-value Config structs are not usable.
func NewConfig() *Config {
	return &Config{
		UserAgent:           DefaultUserAgent,
		Timeout:             DefaultTimeout,
		MaxDepth:            DefaultMaxDepth,
		MaxPages:            DefaultMaxPages,
		Concurrency:         DefaultConcurrency,
		HostConcurrency:     DefaultHostConcurrency,
		DownloadConcurrency: DefaultDownloadConcurrency,
		DownloadDir:         DefaultDownloadDir(),
		DelayFloor:          DefaultDelayFloor,
		MaxDelay:            DefaultMaxDelay,
		QuarantineThreshold: DefaultQuarantineThreshold,
		QuarantineCooldown:  DefaultQuarantineCooldown,
		MaxBodySize:         DefaultMaxBodySize,
		MaxRedirects:        DefaultMaxRedirects,
		RetryAttempts:       DefaultRetryAttempts,
		BlockedAttempts:     DefaultBlockedAttempts,
		RetryBackoff:        DefaultRetryBackoff,
		Sites:               &File{Sites: map[string]SiteConfig{}},
	}
}

// DefaultDownloadDir returns the default image destination directory,
// following the XDG Base Directory Specification.
// On Linux: ~/.local/share/imagespider/archive
func DefaultDownloadDir() string {
	return filepath.Join(xdg.DataHome, AppName, "archive")
}

// XDGConfigDir returns the XDG config directory for imagespider.
// On Linux: ~/.config/imagespider
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
// It runs once after flag and file parsing, before any crawling begins,
// so failures surface with a clear message instead of odd runtime behavior.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeeds
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxDepth < 0 {
		return ErrInvalidDepth
	}
	if c.Concurrency <= 0 || c.DownloadConcurrency <= 0 || c.HostConcurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.DelayFloor < 0 || c.MaxDelay < c.DelayFloor {
		return ErrInvalidDelay
	}
	if c.MaxBodySize <= 0 {
		return ErrInvalidMaxBodySize
	}
	if c.MaxRedirects < 0 {
		return ErrInvalidMaxRedirects
	}
	if c.RetryAttempts < 1 || c.BlockedAttempts < 1 {
		return ErrInvalidRetryBudget
	}
	return nil
}
