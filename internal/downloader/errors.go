package downloader

import "errors"

var (
	// ErrNilFetcher means the Downloader was constructed without a fetch
	// function.
	ErrNilFetcher = errors.New("downloader: fetch function is nil")

	// ErrNoArchiveDir means no destination directory was configured.
	ErrNoArchiveDir = errors.New("downloader: archive directory is empty")
)
