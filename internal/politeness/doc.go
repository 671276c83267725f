// Package politeness implements the crawler's rate-limiting and robots
// exclusion controller.
//
// The Controller answers one question — may this URL be fetched right
// now? — and consumes one signal, the outcome of each fetch. From those
// it maintains, per host: a pacing floor (token bucket), an exponential
// backoff delay driven by rate-limiting responses, a consecutive-failure
// count that can quarantine a host, and lazily fetched robots rules.
//
// The controller never sleeps on behalf of a caller. A caller that must
// wait receives the deadline and decides itself whether to suspend or
// abandon the request, which keeps all blocking at the task level where
// cancellation is observed.
package politeness
