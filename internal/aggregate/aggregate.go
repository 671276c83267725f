package aggregate

import (
	"net/url"
	"sort"
	"sync"

	"github.com/imagespider/imagespider/internal/model"
)

// Aggregate is the crawl's single point of truth for what has been
// visited and which images have been discovered. Workers never share
// page state with each other; everything funnels through here, so the
// result is identical no matter how the crawl interleaved.
type Aggregate struct {
	mu        sync.Mutex
	claimed   map[string]struct{}
	visited   map[string]struct{}
	images    map[string]*url.URL
	failures  map[string]model.FailureClass
	downloads downloadStats
}

// downloadStats counts archive activity; the failure detail lives in
// the per-URL failures map.
type downloadStats struct {
	saved   int
	skipped int
	failed  int
}

// Result is the final, ordered view of one crawl.
type Result struct {
	Visited  []string
	Images   []*url.URL
	Failures map[string]model.FailureClass

	ImagesSaved   int
	ImagesSkipped int
	ImagesFailed  int
}

// New returns an empty Aggregate.
func New() *Aggregate {
	return &Aggregate{
		claimed:  map[string]struct{}{},
		visited:  map[string]struct{}{},
		images:   map[string]*url.URL{},
		failures: map[string]model.FailureClass{},
	}
}

// Claim reserves a page key for fetching. It returns true exactly once
// per key across the whole crawl, which is what keeps two workers from
// fetching the same page even when both discover it simultaneously.
func (a *Aggregate) Claim(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.claimed[key]; ok {
		return false
	}
	a.claimed[key] = struct{}{}
	return true
}

// RecordVisit marks a page as successfully processed and merges its
// image references. It returns only the images not seen before, so the
// caller can enqueue downloads without ever duplicating one.
func (a *Aggregate) RecordVisit(key string, images []*url.URL) []*url.URL {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.visited[key] = struct{}{}
	delete(a.failures, key)

	var fresh []*url.URL
	for _, u := range images {
		k := model.NormalizeURL(u)
		if _, ok := a.images[k]; ok {
			continue
		}
		a.images[k] = u
		fresh = append(fresh, u)
	}
	return fresh
}

// RecordFailure notes that a page could not be fetched. A later success
// for the same key (a quarantined host coming back, a retried seed)
// overrides it.
func (a *Aggregate) RecordFailure(key string, class model.FailureClass) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.visited[key]; ok {
		return
	}
	a.failures[key] = class
}

// RecordDownload tallies one archive attempt. Failed downloads also land
// in the failures map under the image URL's key.
func (a *Aggregate) RecordDownload(key string, outcome DownloadOutcome, class model.FailureClass) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch outcome {
	case DownloadSaved:
		a.downloads.saved++
	case DownloadSkipped:
		a.downloads.skipped++
	case DownloadFailed:
		a.downloads.failed++
		a.failures[key] = class
	}
}

// DownloadOutcome says what happened to one archive attempt.
type DownloadOutcome int

const (
	DownloadSaved DownloadOutcome = iota
	DownloadSkipped
	DownloadFailed
)

// Visited reports whether a page key completed successfully.
func (a *Aggregate) Visited(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.visited[key]
	return ok
}

// ImageCount returns the number of distinct images discovered so far.
func (a *Aggregate) ImageCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.images)
}

// Finalize snapshots the crawl into a Result. Visited pages and images
// come back sorted so two identical crawls produce identical output.
// The Aggregate remains usable afterward; a cancelled crawl finalizes
// whatever it managed to merge.
func (a *Aggregate) Finalize() *Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := &Result{
		Visited:       make([]string, 0, len(a.visited)),
		Images:        make([]*url.URL, 0, len(a.images)),
		Failures:      make(map[string]model.FailureClass, len(a.failures)),
		ImagesSaved:   a.downloads.saved,
		ImagesSkipped: a.downloads.skipped,
		ImagesFailed:  a.downloads.failed,
	}
	for key := range a.visited {
		result.Visited = append(result.Visited, key)
	}
	sort.Strings(result.Visited)

	keys := make([]string, 0, len(a.images))
	for k := range a.images {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		result.Images = append(result.Images, a.images[k])
	}

	for k, v := range a.failures {
		result.Failures[k] = v
	}
	return result
}
