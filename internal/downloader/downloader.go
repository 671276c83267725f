package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/imagespider/imagespider/internal/aggregate"
	"github.com/imagespider/imagespider/internal/model"
)

// FetchFunc retrieves one resource. The crawler wires in its polite
// fetch path so image downloads obey the same per-host pacing as page
// fetches.
type FetchFunc func(ctx context.Context, target model.CrawlTarget) model.FetchOutcome

// Recorder receives the outcome of every archive attempt.
type Recorder interface {
	RecordDownload(key string, outcome aggregate.DownloadOutcome, class model.FailureClass)
}

// Downloader archives discovered images into a directory. It runs a
// fixed pool of workers fed by a buffered queue; enqueuing never blocks
// the crawl for long, and Wait drains everything accepted so far.
type Downloader struct {
	ctx      context.Context
	fetch    FetchFunc
	recorder Recorder
	dir      string

	jobs  chan model.DownloadJob
	group *errgroup.Group
}

// Options configures a Downloader.
type Options struct {
	// Dir is the archive directory. Created on demand.
	Dir string
	// Concurrency is the worker count. Zero or negative falls back to 1.
	Concurrency int
	// QueueSize bounds the pending job buffer. Zero or negative falls
	// back to Concurrency*16.
	QueueSize int
}

// New constructs a Downloader and starts its workers. Cancelling ctx
// abandons queued jobs; Wait still reaps the workers.
func New(ctx context.Context, fetch FetchFunc, recorder Recorder, opts Options) (*Downloader, error) {
	if fetch == nil {
		return nil, ErrNilFetcher
	}
	if opts.Dir == "" {
		return nil, ErrNoArchiveDir
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = opts.Concurrency * 16
	}

	d := &Downloader{
		ctx:      ctx,
		fetch:    fetch,
		recorder: recorder,
		dir:      opts.Dir,
		jobs:     make(chan model.DownloadJob, opts.QueueSize),
	}
	d.start(opts.Concurrency)
	return d, nil
}

func (d *Downloader) start(workers int) {
	d.group = &errgroup.Group{}
	for range workers {
		d.group.Go(func() error {
			for job := range d.jobs {
				d.process(job)
			}
			return nil
		})
	}
}

// Enqueue queues one image for archiving. It blocks only when the
// buffer is full, and abandons the job on cancellation.
func (d *Downloader) Enqueue(u *url.URL) {
	select {
	case d.jobs <- model.NewDownloadJob(u, d.dir):
	case <-d.ctx.Done():
	}
}

// Wait closes the queue and blocks until every accepted job has been
// processed. The Downloader cannot be reused afterward.
func (d *Downloader) Wait() {
	close(d.jobs)
	d.group.Wait() //nolint:errcheck // workers never return an error
}

func (d *Downloader) process(job model.DownloadJob) {
	key := model.NormalizeURL(job.URL)

	// An image already on disk from a previous run is a success without
	// touching the network.
	if _, err := os.Stat(job.Path); err == nil {
		slog.Debug("image already archived", "url", job.URL.String(), "path", job.Path)
		d.record(key, aggregate.DownloadSkipped, model.FailureClass{})
		return
	}

	if d.ctx.Err() != nil {
		return
	}

	outcome := d.fetch(d.ctx, model.NewCrawlTarget(job.URL, 0))
	if outcome.Kind != model.OutcomeSuccess {
		class := outcome.Classify()
		slog.Warn("image download failed",
			"url", job.URL.String(),
			"reason", class.String(),
		)
		d.record(key, aggregate.DownloadFailed, class)
		return
	}

	if err := writeFile(job.Path, outcome.Body); err != nil {
		slog.Warn("failed to archive image", "url", job.URL.String(), "error", err)
		d.record(key, aggregate.DownloadFailed, model.FailureClass{
			Kind:    model.OutcomeNetworkError,
			Network: model.NetworkTransport,
		})
		return
	}

	slog.Debug("archived image",
		"url", job.URL.String(),
		"path", job.Path,
		"bytes", len(outcome.Body),
	)
	d.record(key, aggregate.DownloadSaved, model.FailureClass{})
}

func (d *Downloader) record(key string, outcome aggregate.DownloadOutcome, class model.FailureClass) {
	if d.recorder != nil {
		d.recorder.RecordDownload(key, outcome, class)
	}
}

// writeFile lands the bytes via a temporary file and rename, so a
// crashed run never leaves a truncated image that a later run would
// skip as already archived.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()           //nolint:errcheck // already failing
		os.Remove(tmp.Name()) //nolint:errcheck // best effort cleanup
		return fmt.Errorf("failed to write image bytes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck // best effort cleanup
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck // best effort cleanup
		return fmt.Errorf("failed to finalize image file: %w", err)
	}
	return nil
}
