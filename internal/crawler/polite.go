package crawler

import (
	"context"
	"time"

	"github.com/imagespider/imagespider/internal/fetcher"
	"github.com/imagespider/imagespider/internal/model"
	"github.com/imagespider/imagespider/internal/politeness"
)

// PoliteFetcher couples the transport fetcher with the politeness
// controller: every fetch first asks permission, honors waits, and
// retries blocked responses within a bounded budget while the host's
// backoff grows between attempts. Page workers and the image download
// pool share one instance so all egress is paced together.
type PoliteFetcher struct {
	controller      *politeness.Controller
	fetcher         *fetcher.Fetcher
	blockedAttempts int
}

// NewPoliteFetcher wires a controller and a fetcher together.
// blockedAttempts is the total number of fetch attempts allowed per
// target while the host keeps answering with rate-limit signals; values
// below one fall back to one.
func NewPoliteFetcher(controller *politeness.Controller, f *fetcher.Fetcher, blockedAttempts int) *PoliteFetcher {
	if blockedAttempts < 1 {
		blockedAttempts = 1
	}
	return &PoliteFetcher{
		controller:      controller,
		fetcher:         f,
		blockedAttempts: blockedAttempts,
	}
}

// Fetch retrieves one resource politely. It blocks for as long as the
// controller demands, so callers run it from worker goroutines. The
// returned outcome is terminal from the caller's point of view: denial,
// exhausted attempts, or the final fetch result.
func (p *PoliteFetcher) Fetch(ctx context.Context, target model.CrawlTarget) model.FetchOutcome {
	attempts := 0
	for {
		decision := p.controller.MayFetch(ctx, target.URL)
		switch decision.Kind {
		case politeness.DecisionDenied:
			if decision.Reason == politeness.DenyRobots {
				return model.RobotsDisallowed()
			}
			// Quarantined host. StatusCode zero distinguishes this from a
			// live rate-limit response.
			return model.Blocked(0)

		case politeness.DecisionWait:
			if err := sleepUntil(ctx, decision.RetryAt); err != nil {
				return model.NetworkError(model.NetworkTransport, err)
			}
			continue
		}

		outcome := p.fetcher.Fetch(ctx, target)
		if outcome.Kind != model.OutcomeBlocked {
			return outcome
		}
		// The controller has already doubled the host delay; asking again
		// yields a Wait that spaces out the next attempt.
		attempts++
		if attempts >= p.blockedAttempts || ctx.Err() != nil {
			return outcome
		}
	}
}

func sleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
