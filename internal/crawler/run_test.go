package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/imagespider/imagespider/internal/aggregate"
	"github.com/imagespider/imagespider/internal/config"
	"github.com/imagespider/imagespider/internal/fetcher"
	"github.com/imagespider/imagespider/internal/model"
	"github.com/imagespider/imagespider/internal/politeness"
)

// testConfig returns a Config tuned for fast local crawling against
// httptest servers.
func testConfig(t *testing.T, seeds ...string) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Seeds = seeds
	cfg.DownloadDir = t.TempDir()
	cfg.Timeout = 5 * time.Second
	cfg.DelayFloor = time.Millisecond
	cfg.MaxDelay = 50 * time.Millisecond
	cfg.RetryBackoff = time.Millisecond
	cfg.QuarantineCooldown = time.Second
	return cfg
}

func hasVisited(result *aggregate.Result, fragment string) bool {
	for _, v := range result.Visited {
		if strings.Contains(v, fragment) {
			return true
		}
	}
	return false
}

func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("crawls seeds, deduplicates images, archives them", func(t *testing.T) {
		t.Parallel()

		cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			fmt.Fprint(w, "cdn-bytes")
		}))
		defer cdn.Close()

		mux := http.NewServeMux()
		site := httptest.NewServer(mux)
		defer site.Close()

		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprintf(w, `<html><body>
				<a href="/gallery">gallery</a>
				<img src="/img1.png">
				<img src="/img1.png">
				<img src="%s/shared.png">
			</body></html>`, cdn.URL)
		})
		mux.HandleFunc("/gallery", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprintf(w, `<img src="/img1.png"><img src="%s/shared.png"><img src="/img2.gif">`, cdn.URL)
		})
		mux.HandleFunc("/img1.png", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "one")
		})
		mux.HandleFunc("/img2.gif", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "two")
		})

		cfg := testConfig(t, site.URL+"/")
		result, err := Run(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}

		if len(result.Visited) != 2 {
			t.Errorf("visited %v, want the seed and the gallery", result.Visited)
		}
		// img1 appears three times across two pages, shared.png twice:
		// each counts once.
		if len(result.Images) != 3 {
			t.Errorf("discovered %d images %v, want 3", len(result.Images), result.Images)
		}
		if result.ImagesSaved != 3 {
			t.Errorf("saved %d images, want 3", result.ImagesSaved)
		}
		entries, err := os.ReadDir(cfg.DownloadDir)
		if err != nil {
			t.Fatalf("failed to list archive: %v", err)
		}
		if len(entries) != 3 {
			t.Errorf("archive holds %d files, want 3", len(entries))
		}
		if len(result.Failures) != 0 {
			t.Errorf("unexpected failures: %v", result.Failures)
		}
	})

	t.Run("respects the depth limit", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		site := httptest.NewServer(mux)
		defer site.Close()

		// A chain of pages /p0 -> /p1 -> /p2 -> ...
		for i := 0; i < 6; i++ {
			next := fmt.Sprintf("/p%d", i+1)
			mux.HandleFunc(fmt.Sprintf("/p%d", i), func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				fmt.Fprintf(w, `<a href="%s">next</a>`, next)
			})
		}

		cfg := testConfig(t, site.URL+"/p0")
		cfg.MaxDepth = 2
		result, err := Run(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}

		// Depth 0, 1, 2 are fetched; the link found at depth 2 is not.
		if len(result.Visited) != 3 {
			t.Errorf("visited %v, want p0 through p2", result.Visited)
		}
		if hasVisited(result, "/p3") {
			t.Error("followed a link past the depth limit")
		}
	})

	t.Run("per-site depth override wins over the global depth", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		site := httptest.NewServer(mux)
		defer site.Close()

		for i := 0; i < 6; i++ {
			next := fmt.Sprintf("/p%d", i+1)
			mux.HandleFunc(fmt.Sprintf("/p%d", i), func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				fmt.Fprintf(w, `<a href="%s">next</a>`, next)
			})
		}

		cfg := testConfig(t, site.URL+"/p0")
		cfg.MaxDepth = 4
		cfg.Sites = &config.File{Sites: map[string]config.SiteConfig{
			strings.TrimPrefix(site.URL, "http://"): {Depth: 1},
		}}
		result, err := Run(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}

		if len(result.Visited) != 2 {
			t.Errorf("visited %v, want p0 and p1", result.Visited)
		}
		if hasVisited(result, "/p2") {
			t.Error("followed a link past the site depth override")
		}
	})

	t.Run("empty destination collects image URLs without downloading", func(t *testing.T) {
		t.Parallel()

		var imageHits atomic.Int64
		mux := http.NewServeMux()
		site := httptest.NewServer(mux)
		defer site.Close()

		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<img src="/img.png">`)
		})
		mux.HandleFunc("/img.png", func(w http.ResponseWriter, r *http.Request) {
			imageHits.Add(1)
		})

		cfg := testConfig(t, site.URL+"/")
		cfg.DownloadDir = ""
		result, err := Run(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}

		if len(result.Images) != 1 {
			t.Errorf("discovered %v, want the one image URL", result.Images)
		}
		if result.ImagesSaved != 0 || result.ImagesSkipped != 0 || result.ImagesFailed != 0 {
			t.Errorf("download counters moved without a destination: %+v", result)
		}
		if got := imageHits.Load(); got != 0 {
			t.Errorf("image was fetched %d times with downloading disabled", got)
		}
	})

	t.Run("respects the page budget", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		site := httptest.NewServer(mux)
		defer site.Close()

		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			for i := 0; i < 20; i++ {
				fmt.Fprintf(w, `<a href="/page%d">p</a>`, i)
			}
		})

		cfg := testConfig(t, site.URL+"/")
		cfg.MaxPages = 5
		result, err := Run(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(result.Visited) > 5 {
			t.Errorf("visited %d pages, budget was 5", len(result.Visited))
		}
	})

	t.Run("rate limited page eventually succeeds with a raised delay", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int64
		mux := http.NewServeMux()
		site := httptest.NewServer(mux)
		defer site.Close()

		mux.HandleFunc("/robots.txt", http.NotFound)
		mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) <= 2 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<img src="/img.png">`)
		})

		// Wired by hand instead of through Run so the controller stays
		// inspectable after the crawl.
		floor := time.Millisecond
		controller := politeness.New(&http.Client{Timeout: 5 * time.Second},
			politeness.WithDelayFloor(floor),
			politeness.WithMaxDelay(50*time.Millisecond),
		)
		f, err := fetcher.New(fetcher.Options{RetryBackoff: time.Millisecond}, controller)
		if err != nil {
			t.Fatalf("fetcher.New: %v", err)
		}
		polite := NewPoliteFetcher(controller, f, config.DefaultBlockedAttempts)
		agg := aggregate.New()
		spider := NewSpider(polite, agg, SpiderOptions{Concurrency: 2, HostConcurrency: 2})

		seed, err := url.Parse(site.URL + "/flaky")
		if err != nil {
			t.Fatal(err)
		}
		spider.Crawl(context.Background(), []*url.URL{seed})
		result := agg.Finalize()

		if !hasVisited(result, "/flaky") {
			t.Errorf("page never succeeded: visited=%v failures=%v", result.Visited, result.Failures)
		}
		if len(result.Failures) != 0 {
			t.Errorf("unexpected failures: %v", result.Failures)
		}
		if got := hits.Load(); got != 3 {
			t.Errorf("server saw %d attempts, want 3", got)
		}
		// Two blocked responses double the delay twice; the one success
		// relaxes it halfway back, leaving it above the floor.
		if got := controller.Delay(seed.Host); got <= floor {
			t.Errorf("host delay %v after throttling, want above the %v floor", got, floor)
		}
	})

	t.Run("blocked past the budget is a failure", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		site := httptest.NewServer(mux)
		defer site.Close()

		mux.HandleFunc("/robots.txt", http.NotFound)
		mux.HandleFunc("/wall", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		cfg := testConfig(t, site.URL+"/wall")
		cfg.BlockedAttempts = 2
		result, err := Run(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}

		if len(result.Visited) != 0 {
			t.Errorf("visited %v, want none", result.Visited)
		}
		var class model.FailureClass
		for _, c := range result.Failures {
			class = c
		}
		if class.Kind != model.OutcomeBlocked || class.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("failure class %+v, want blocked HTTP 503", class)
		}
	})

	t.Run("robots disallow is honored without fetching", func(t *testing.T) {
		t.Parallel()

		var privateHits atomic.Int64
		mux := http.NewServeMux()
		site := httptest.NewServer(mux)
		defer site.Close()

		mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
		})
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<a href="/private/secret">s</a><a href="/public">p</a>`)
		})
		mux.HandleFunc("/public", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
		})
		mux.HandleFunc("/private/secret", func(w http.ResponseWriter, r *http.Request) {
			privateHits.Add(1)
		})

		cfg := testConfig(t, site.URL+"/")
		result, err := Run(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}

		if got := privateHits.Load(); got != 0 {
			t.Errorf("disallowed path was fetched %d times", got)
		}
		if !hasVisited(result, "/public") {
			t.Errorf("allowed page missing from %v", result.Visited)
		}
		found := false
		for key, class := range result.Failures {
			if strings.Contains(key, "/private/secret") {
				found = true
				if class.Kind != model.OutcomeRobotsDisallowed {
					t.Errorf("failure class %+v, want robots disallowed", class)
				}
			}
		}
		if !found {
			t.Errorf("disallowed page missing from failures %v", result.Failures)
		}
	})

	t.Run("cancellation returns a partial result", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		mux := http.NewServeMux()
		site := httptest.NewServer(mux)
		defer site.Close()

		mux.HandleFunc("/robots.txt", http.NotFound)
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<a href="/slow">slow</a>`)
		})
		mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		})

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(300 * time.Millisecond)
			cancel()
			close(release)
		}()

		cfg := testConfig(t, site.URL+"/")
		cfg.RetryAttempts = 1
		result, err := Run(ctx, cfg)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
		if result == nil {
			t.Fatal("cancelled run must still return the partial result")
		}
		if !hasVisited(result, site.URL[len("http://"):]) {
			t.Errorf("seed page missing from partial result %v", result.Visited)
		}
	})

	t.Run("caps in-flight fetches per host", func(t *testing.T) {
		t.Parallel()

		var inFlight, peak atomic.Int64
		mux := http.NewServeMux()
		site := httptest.NewServer(mux)
		defer site.Close()

		mux.HandleFunc("/robots.txt", http.NotFound)
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			for i := 0; i < 10; i++ {
				fmt.Fprintf(w, `<a href="/leaf%d">l</a>`, i)
			}
		})
		for i := 0; i < 10; i++ {
			mux.HandleFunc(fmt.Sprintf("/leaf%d", i), func(w http.ResponseWriter, r *http.Request) {
				n := inFlight.Add(1)
				defer inFlight.Add(-1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
			})
		}

		cfg := testConfig(t, site.URL+"/")
		cfg.DelayFloor = 0
		cfg.MaxDelay = 0
		cfg.HostConcurrency = 2
		if _, err := Run(context.Background(), cfg); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if got := peak.Load(); got > 2 {
			t.Errorf("observed %d concurrent fetches on one host, cap is 2", got)
		}
	})

	t.Run("invalid configuration is rejected up front", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig(t) // no seeds
		if _, err := Run(context.Background(), cfg); !errors.Is(err, config.ErrNoSeeds) {
			t.Errorf("got %v, want ErrNoSeeds", err)
		}

		cfg = testConfig(t, "::notaurl::")
		if _, err := Run(context.Background(), cfg); !errors.Is(err, config.ErrInvalidSeed) {
			t.Errorf("got %v, want ErrInvalidSeed", err)
		}
	})
}
