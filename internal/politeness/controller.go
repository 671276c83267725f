package politeness

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/imagespider/imagespider/internal/model"
)

// DecisionKind classifies the controller's answer to a fetch request.
type DecisionKind int

const (
	// DecisionProceed means the caller may issue the request immediately.
	DecisionProceed DecisionKind = iota

	// DecisionWait means the caller must suspend until Decision.RetryAt
	// before asking again. The controller never blocks internally; the
	// wait obligation always travels back to the caller.
	DecisionWait

	// DecisionDenied means the request must not be issued. Whether the
	// denial is permanent depends on Decision.Reason.
	DecisionDenied
)

// DenyReason explains a DecisionDenied.
type DenyReason int

const (
	// DenyRobots means the URL is excluded by the host's robots rules.
	// Terminal for that URL: no retry.
	DenyRobots DenyReason = iota

	// DenyQuarantined means the host accumulated too many consecutive
	// blocked responses and is cooling down.
	DenyQuarantined
)

// Decision is the controller's verdict for a single fetch request.
type Decision struct {
	// Kind selects which of the remaining fields are meaningful.
	Kind DecisionKind

	// RetryAt is the earliest time the caller may retry, for DecisionWait.
	RetryAt time.Time

	// Reason explains a DecisionDenied.
	Reason DenyReason
}

func proceed() Decision                 { return Decision{Kind: DecisionProceed} }
func waitUntil(t time.Time) Decision    { return Decision{Kind: DecisionWait, RetryAt: t} }
func denied(reason DenyReason) Decision { return Decision{Kind: DecisionDenied, Reason: reason} }

// Controller owns all per-host politeness state: pacing floor, backoff
// delay, consecutive-failure count, robots rules, and quarantine windows.
// Every component consults it before issuing or retrying a request.
//
// State for each host is guarded by that host's own lock, so decisions for
// independent hosts proceed fully in parallel; a single global lock would
// serialize the whole crawl behind its slowest host.
type Controller struct {
	// client fetches robots.txt resources. It should share the crawl's
	// egress transport so robots fetches honor a configured proxy.
	client *http.Client

	// userAgent selects the robots rule group and identifies robots fetches.
	userAgent string

	// floor is the global minimum delay between requests to one host.
	floor time.Duration

	// maxDelay caps backoff growth.
	maxDelay time.Duration

	// quarantineAfter is the consecutive-blocked count that triggers
	// quarantine; zero disables quarantining.
	quarantineAfter int

	// cooldown is how long a quarantined host stays denied.
	cooldown time.Duration

	// hostFloors carries per-host floor overrides from configuration.
	hostFloors map[string]time.Duration

	mu    sync.RWMutex
	hosts map[string]*hostState
}

// hostState is the per-host politeness record. All fields are guarded by
// mu; the controller's outer lock only protects the hosts map itself.
type hostState struct {
	mu sync.Mutex

	// limiter enforces the steady-state pacing floor.
	limiter *rate.Limiter

	// floor is the effective minimum delay for this host.
	floor time.Duration

	// delay is the current minimum delay; starts at floor and doubles on
	// blocked responses up to the controller's cap.
	delay time.Duration

	// lastRequest is when the controller last granted a Proceed.
	lastRequest time.Time

	// failures counts consecutive blocked responses.
	failures int

	// quarantinedUntil denies all requests until this instant.
	quarantinedUntil time.Time

	// robotsFetched records that the robots resource was fetched once for
	// this run; robots is nil when fetching failed (fail-open) or the
	// host has no applicable rules.
	robotsFetched bool
	robots        *robotsRules
}

// Option configures a Controller.
type Option func(*Controller)

// WithUserAgent sets the identity used for robots evaluation and robots
// fetches.
func WithUserAgent(ua string) Option {
	return func(c *Controller) { c.userAgent = ua }
}

// WithDelayFloor sets the global minimum delay between requests per host.
func WithDelayFloor(d time.Duration) Option {
	return func(c *Controller) { c.floor = d }
}

// WithMaxDelay caps host-level backoff growth.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Controller) { c.maxDelay = d }
}

// WithQuarantine configures quarantining: after threshold consecutive
// blocked responses the host is denied for the cooldown window.
// A zero threshold disables quarantining.
func WithQuarantine(threshold int, cooldown time.Duration) Option {
	return func(c *Controller) {
		c.quarantineAfter = threshold
		c.cooldown = cooldown
	}
}

// WithHostDelays installs per-host floor overrides, keyed by lowercase
// host (with port, if non-standard).
func WithHostDelays(delays map[string]time.Duration) Option {
	return func(c *Controller) {
		for host, d := range delays {
			c.hostFloors[strings.ToLower(host)] = d
		}
	}
}

// New creates a Controller. The client is used only for robots.txt
// fetches; passing the crawl's own client keeps robots traffic on the
// same egress path as everything else.
func New(client *http.Client, opts ...Option) *Controller {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	c := &Controller{
		client:          client,
		floor:           1 * time.Second,
		maxDelay:        2 * time.Minute,
		quarantineAfter: 5,
		cooldown:        2 * time.Minute,
		hostFloors:      make(map[string]time.Duration),
		hosts:           make(map[string]*hostState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MayFetch decides whether a request for u may be issued now.
//
// Robots rules are evaluated first: a disallowed path is denied regardless
// of any pacing or success history. The robots resource is fetched lazily,
// once per host per run, under the host's lock; only requests for that
// host wait on the fetch.
func (c *Controller) MayFetch(ctx context.Context, u *url.URL) Decision {
	st := c.state(hostKey(u))
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.robotsFetched {
		st.robotsFetched = true
		st.robots = c.fetchRobots(ctx, u)
	}
	if !st.robots.allowed(c.userAgent, u.Path) {
		return denied(DenyRobots)
	}

	now := time.Now()
	if now.Before(st.quarantinedUntil) {
		return denied(DenyQuarantined)
	}

	// Backoff beyond the floor: enforced from the last granted request.
	if st.delay > st.floor {
		if earliest := st.lastRequest.Add(st.delay); now.Before(earliest) {
			return waitUntil(earliest)
		}
	}

	// Steady-state pacing floor.
	res := st.limiter.ReserveN(now, 1)
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return waitUntil(now.Add(d))
	}

	st.lastRequest = now
	return proceed()
}

// RecordOutcome feeds a fetch result back into the host's backoff state.
//
// Blocked doubles the current minimum delay up to the cap and counts
// toward quarantine. Success resets the failure count and relaxes the
// delay halfway back toward the floor. Other outcomes carry no host-level
// signal: transport failures are retried with task-local backoff and
// robots denials never reach the network.
func (c *Controller) RecordOutcome(host string, outcome model.FetchOutcome) {
	st := c.state(strings.ToLower(host))
	st.mu.Lock()
	defer st.mu.Unlock()

	switch outcome.Kind {
	case model.OutcomeSuccess:
		st.failures = 0
		if st.delay > st.floor {
			st.delay = max(st.floor, st.delay/2)
		}
	case model.OutcomeBlocked:
		doubled := st.delay * 2
		if doubled <= 0 {
			doubled = time.Second
		}
		st.delay = min(c.maxDelay, doubled)
		st.failures++
		if c.quarantineAfter > 0 && st.failures >= c.quarantineAfter {
			st.quarantinedUntil = time.Now().Add(c.cooldown)
			st.failures = 0
		}
	}
}

// Delay reports the host's current minimum delay. Useful for inspection
// and for callers that report politeness pressure.
func (c *Controller) Delay(host string) time.Duration {
	st := c.state(strings.ToLower(host))
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.delay
}

// state returns the host's politeness record, creating it on first use.
func (c *Controller) state(host string) *hostState {
	c.mu.RLock()
	st, ok := c.hosts[host]
	c.mu.RUnlock()
	if ok {
		return st
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.hosts[host]; ok {
		return st
	}

	floor := c.floor
	if override, ok := c.hostFloors[host]; ok {
		floor = override
	}
	limit := rate.Inf
	if floor > 0 {
		limit = rate.Every(floor)
	}
	st = &hostState{
		limiter: rate.NewLimiter(limit, 1),
		floor:   floor,
		delay:   floor,
	}
	c.hosts[host] = st
	return st
}

// hostKey normalizes the politeness key for a URL.
func hostKey(u *url.URL) string {
	return strings.ToLower(u.Host)
}
