// Package fetcher performs single resource retrievals over HTTP.
//
// A Fetcher knows nothing about scheduling or politeness pacing; it
// issues one request per call, classifies the response into a
// model.FetchOutcome, and reports that outcome to the politeness
// controller. Transport failures are retried internally with
// exponential backoff, which is deliberately separate from the
// host-level backoff the controller maintains.
//
// The resource type is open by construction: the same Fetch call
// retrieves HTML pages and binary images, and any other MIME-typed
// resource a future caller asks for.
package fetcher
