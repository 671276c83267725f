package crawler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/imagespider/imagespider/internal/aggregate"
	"github.com/imagespider/imagespider/internal/config"
	"github.com/imagespider/imagespider/internal/downloader"
	"github.com/imagespider/imagespider/internal/fetcher"
	"github.com/imagespider/imagespider/internal/politeness"
)

// Run executes one complete crawl described by cfg: seeds are walked,
// images archived, and the merged result returned. Cancelling ctx ends
// the crawl early with whatever was gathered; that partial result is
// still returned alongside ctx's error.
func Run(ctx context.Context, cfg *config.Config) (*aggregate.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seeds := make([]*url.URL, 0, len(cfg.Seeds))
	for _, raw := range cfg.Seeds {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("%w: %q", config.ErrInvalidSeed, raw)
		}
		seeds = append(seeds, u)
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		pool := cfg.UserAgents
		if len(pool) == 0 {
			pool = config.DefaultUserAgents
		}
		userAgent = pool[rand.IntN(len(pool))]
	}

	transport, err := fetcher.NewTransport(cfg.ProxyURL)
	if err != nil {
		return nil, err
	}

	var hostDelays map[string]time.Duration
	var hostHeaders map[string]map[string]string
	var hostDepths map[string]int
	if cfg.Sites != nil {
		hostDelays = make(map[string]time.Duration)
		for host, d := range cfg.Sites.HostDelays() {
			hostDelays[host] = d.Duration
		}
		hostHeaders = cfg.Sites.HostHeaders()
		hostDepths = cfg.Sites.HostDepths()
	}

	controller := politeness.New(
		&http.Client{Transport: transport, Timeout: cfg.Timeout},
		politeness.WithUserAgent(userAgent),
		politeness.WithDelayFloor(cfg.DelayFloor),
		politeness.WithMaxDelay(cfg.MaxDelay),
		politeness.WithQuarantine(cfg.QuarantineThreshold, cfg.QuarantineCooldown),
		politeness.WithHostDelays(hostDelays),
	)

	f, err := fetcher.New(fetcher.Options{
		UserAgent:     userAgent,
		HostHeaders:   hostHeaders,
		Timeout:       cfg.Timeout,
		MaxBodyBytes:  cfg.MaxBodySize,
		MaxRedirects:  cfg.MaxRedirects,
		RetryAttempts: cfg.RetryAttempts,
		RetryBackoff:  cfg.RetryBackoff,
		Transport:     transport,
	}, controller)
	if err != nil {
		return nil, err
	}

	polite := NewPoliteFetcher(controller, f, cfg.BlockedAttempts)
	agg := aggregate.New()

	// An empty destination disables archiving; the crawl still collects
	// image URLs into the result.
	var images ImageSink
	var downloads *downloader.Downloader
	if cfg.DownloadDir != "" {
		downloads, err = downloader.New(ctx, polite.Fetch, agg, downloader.Options{
			Dir:         cfg.DownloadDir,
			Concurrency: cfg.DownloadConcurrency,
		})
		if err != nil {
			return nil, err
		}
		images = downloads
	}

	spider := NewSpider(polite, agg, SpiderOptions{
		MaxDepth:        cfg.MaxDepth,
		HostDepths:      hostDepths,
		MaxPages:        cfg.MaxPages,
		Concurrency:     cfg.Concurrency,
		HostConcurrency: cfg.HostConcurrency,
		Images:          images,
	})

	spider.Crawl(ctx, seeds)
	if downloads != nil {
		downloads.Wait()
	}

	return agg.Finalize(), ctx.Err()
}
