package crawler

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/imagespider/imagespider/internal/aggregate"
	"github.com/imagespider/imagespider/internal/extractor"
	"github.com/imagespider/imagespider/internal/model"
)

// ImageSink receives freshly discovered image URLs, typically the
// download pool. A nil sink means discovery only.
type ImageSink interface {
	Enqueue(u *url.URL)
}

// Spider walks pages breadth-outward from the seeds. A single dispatch
// loop owns the frontier and all scheduling state; workers only fetch,
// extract, and report back over a channel, so no page state is ever
// shared between goroutines.
type Spider struct {
	fetch  *PoliteFetcher
	agg    *aggregate.Aggregate
	images ImageSink

	maxDepth        int
	hostDepths      map[string]int
	maxPages        int
	concurrency     int
	hostConcurrency int
}

// SpiderOptions configures a Spider.
type SpiderOptions struct {
	// MaxDepth bounds link recursion; seeds are depth zero.
	MaxDepth int
	// HostDepths overrides MaxDepth for pages on specific hosts, keyed
	// by lowercase host name.
	HostDepths map[string]int
	// MaxPages caps the pages fetched in one run. Zero or negative means
	// unbounded.
	MaxPages int
	// Concurrency is the total in-flight fetch limit. Values below one
	// fall back to one.
	Concurrency int
	// HostConcurrency caps in-flight fetches per host. Values below one
	// fall back to one.
	HostConcurrency int
	// Images receives first-seen image URLs as pages complete.
	Images ImageSink
}

// NewSpider constructs a Spider publishing results into agg.
func NewSpider(fetch *PoliteFetcher, agg *aggregate.Aggregate, opts SpiderOptions) *Spider {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.HostConcurrency < 1 {
		opts.HostConcurrency = 1
	}
	return &Spider{
		fetch:           fetch,
		agg:             agg,
		images:          opts.Images,
		maxDepth:        opts.MaxDepth,
		hostDepths:      opts.HostDepths,
		maxPages:        opts.MaxPages,
		concurrency:     opts.Concurrency,
		hostConcurrency: opts.HostConcurrency,
	}
}

// taskResult is a worker's report back to the dispatch loop.
type taskResult struct {
	target model.CrawlTarget
	// pages holds follow-up links, empty when the page failed or was at
	// the depth limit.
	pages []*url.URL
}

// Crawl runs the walk to completion or cancellation. On cancellation it
// stops dispatching, waits for in-flight workers, and returns; the
// aggregate then holds a consistent partial result.
func (s *Spider) Crawl(ctx context.Context, seeds []*url.URL) {
	var frontier []model.CrawlTarget
	dispatchedPages := 0

	admit := func(u *url.URL, depth int) {
		if u == nil {
			return
		}
		if s.maxPages > 0 && dispatchedPages >= s.maxPages {
			return
		}
		target := model.NewCrawlTarget(u, depth)
		if depth > s.depthFor(target.Host()) {
			return
		}
		if !s.agg.Claim(target.Key()) {
			return
		}
		frontier = append(frontier, target)
		dispatchedPages++
	}

	for _, seed := range seeds {
		admit(seed, 0)
	}

	results := make(chan taskResult)
	hostLoad := map[string]int{}
	inFlight := 0
	cancelled := false

	for inFlight > 0 || (!cancelled && len(frontier) > 0) {
		if !cancelled {
			frontier = s.dispatch(ctx, frontier, hostLoad, &inFlight, results)
		}
		if inFlight == 0 {
			// Every remaining target was dispatchable, so an empty
			// in-flight set means an empty frontier.
			continue
		}

		if cancelled {
			res := <-results
			inFlight--
			hostLoad[res.target.Host()]--
			continue
		}

		select {
		case res := <-results:
			inFlight--
			hostLoad[res.target.Host()]--
			for _, page := range res.pages {
				admit(page, res.target.Depth+1)
			}
		case <-ctx.Done():
			cancelled = true
			frontier = frontier[:0]
			slog.Info("crawl cancelled, draining in-flight fetches",
				"in_flight", inFlight,
			)
		}
	}
}

// dispatch launches every frontier target the concurrency limits allow
// and returns the targets still waiting.
func (s *Spider) dispatch(ctx context.Context, frontier []model.CrawlTarget, hostLoad map[string]int, inFlight *int, results chan<- taskResult) []model.CrawlTarget {
	var waiting []model.CrawlTarget
	for _, target := range frontier {
		if *inFlight >= s.concurrency || hostLoad[target.Host()] >= s.hostConcurrency {
			waiting = append(waiting, target)
			continue
		}
		hostLoad[target.Host()]++
		*inFlight++
		go s.work(ctx, target, results)
	}
	return waiting
}

// work fetches one page, merges its findings, and reports back. It runs
// in its own goroutine and touches only the aggregate and the image
// sink, both safe for concurrent use.
func (s *Spider) work(ctx context.Context, target model.CrawlTarget, results chan<- taskResult) {
	outcome := s.fetch.Fetch(ctx, target)
	key := target.Key()

	if outcome.Kind != model.OutcomeSuccess {
		class := outcome.Classify()
		s.agg.RecordFailure(key, class)
		slog.Warn("page fetch failed",
			"url", target.URL.String(),
			"depth", target.Depth,
			"reason", class.String(),
		)
		results <- taskResult{target: target}
		return
	}

	findings := extractor.Extract(outcome.FinalURL, outcome.ContentType, outcome.Body)
	fresh := s.agg.RecordVisit(key, findings.Images)
	if s.images != nil {
		for _, img := range fresh {
			s.images.Enqueue(img)
		}
	}

	slog.Info("visited page",
		"url", target.URL.String(),
		"depth", target.Depth,
		"links", len(findings.Pages),
		"images", len(findings.Images),
		"new_images", len(fresh),
	)

	var pages []*url.URL
	if target.Depth < s.depthFor(target.Host()) {
		pages = findings.Pages
	}
	results <- taskResult{target: target, pages: pages}
}

// depthFor returns the crawl depth limit applying to pages on host.
func (s *Spider) depthFor(host string) int {
	if depth, ok := s.hostDepths[host]; ok {
		return depth
	}
	return s.maxDepth
}
