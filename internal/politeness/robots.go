package politeness

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/temoto/robotstxt"
)

// robotsRules wraps parsed robots data. A nil *robotsRules or nil data
// means "no applicable rules": the crawler fails open, which is the
// common industry behavior when robots.txt is missing or unreadable.
type robotsRules struct {
	data *robotstxt.RobotsData
}

// allowed evaluates the rules for the given agent and path.
func (r *robotsRules) allowed(userAgent, path string) bool {
	if r == nil || r.data == nil {
		return true
	}
	if path == "" {
		path = "/"
	}
	group := r.data.FindGroup(userAgent)
	if group == nil {
		group = r.data.FindGroup("*")
		if group == nil {
			return true
		}
	}
	return group.Test(path)
}

// fetchRobots retrieves and parses the host's robots resource. Any
// failure (network error, bad status, parse error) yields nil rules.
// Called once per host per run, under that host's lock.
func (c *Controller) fetchRobots(ctx context.Context, u *url.URL) *robotsRules {
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Debug("robots fetch failed, failing open", "url", robotsURL, "error", err)
		return nil
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only body

	if resp.StatusCode >= 400 {
		return nil
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		slog.Debug("robots parse failed, failing open", "url", robotsURL, "error", err)
		return nil
	}
	return &robotsRules{data: data}
}
