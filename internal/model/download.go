package model

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// DownloadJob pairs an image URL with the file path it will be written to.
//
// Invariant: the path is derived deterministically from the URL, so
// distinct URLs never collide and re-running a crawl reproduces the same
// paths.
type DownloadJob struct {
	// URL is the absolute image URL.
	URL *url.URL

	// Path is the destination file path.
	Path string
}

// NewDownloadJob derives the target path for an image URL under dir.
//
// The file name is the hex SHA-256 of the normalized URL plus the
// original extension when one is present. Hashing rather than reusing
// the last path segment avoids collisions between same-named images on
// different pages.
func NewDownloadJob(u *url.URL, dir string) DownloadJob {
	sum := sha256.Sum256([]byte(NormalizeURL(u)))
	name := hex.EncodeToString(sum[:16])
	if ext := sanitizeExt(path.Ext(u.Path)); ext != "" {
		name += ext
	}
	return DownloadJob{URL: u, Path: filepath.Join(dir, name)}
}

// sanitizeExt keeps only short, plain extensions so hostile URLs cannot
// smuggle path separators or oversized suffixes into file names.
func sanitizeExt(ext string) string {
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return ""
		}
	}
	return strings.ToLower(ext)
}
