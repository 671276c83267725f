// Package downloader archives discovered images with a bounded worker
// pool, writing each image to a deterministic path so repeated crawls
// skip work already done.
package downloader
