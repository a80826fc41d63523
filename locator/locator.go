// Package locator implements ordered fallback resolution of UI elements.
//
// The target application renames its internal element identifiers across
// releases, so no single selector stays reliable. Each logical target (the
// like counter, the share button, ...) is therefore declared as an ordered
// Set of candidate locators; the resolver walks the set in priority order and
// returns the first candidate that yields a live element. Within one
// candidate it retries a bounded number of times, forcing a UI-tree re-read
// between attempts to defeat stale caches.
//
// Resolution is strictly synchronous: one call returns an element or fails
// after at most len(set) × retries × attempt-wait of wall clock.
package locator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazumi-dev/clipminer/session"
)

// Locator is one way to find a UI element: a strategy tag plus a query
// string understood by the session backend. Declared as static
// configuration, never built at runtime.
type Locator struct {
	Strategy session.Strategy
	Query    string
}

// Set is an ordered, non-empty fallback list for one logical target. Order
// is the tie-break: the first locator that resolves wins and later entries
// are never tried.
type Set []Locator

// Options bounds one resolution call.
type Options struct {
	// MaxRetriesPerLocator is the per-candidate retry budget. Default: 2.
	MaxRetriesPerLocator int
	// AttemptWait is the bounded wait for a single attempt. Default: 2s.
	AttemptWait time.Duration
}

func (o *Options) defaults() {
	if o.MaxRetriesPerLocator <= 0 {
		o.MaxRetriesPerLocator = 2
	}
	if o.AttemptWait <= 0 {
		o.AttemptWait = 2 * time.Second
	}
}

// ProbeWait is the short attempt wait used for presence probes, where
// absence must be decided in well under a second.
const ProbeWait = 500 * time.Millisecond

// Resolver resolves locator sets against one session.
type Resolver struct {
	sess   session.Session
	logger *slog.Logger
}

// New creates a Resolver. A nil logger falls back to slog.Default.
func New(sess session.Session, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{sess: sess, logger: logger}
}

// Resolve walks set in order and returns the first live element.
//
// Per candidate it attempts up to opts.MaxRetriesPerLocator resolutions,
// refreshing the UI tree between attempts of the same candidate. A
// non-timeout failure (malformed query, session fault) advances to the next
// candidate immediately — retrying a broken locator cannot fix it. When
// every candidate is exhausted, the aggregated failure wraps
// session.ErrNotFound and carries the last underlying cause.
//
// An empty set is a programming error and fails with
// session.ErrInvalidArgument without any attempt.
func (r *Resolver) Resolve(ctx context.Context, set Set, opts Options) (session.Element, error) {
	if len(set) == 0 {
		return nil, fmt.Errorf("locator: empty locator set: %w", session.ErrInvalidArgument)
	}
	opts.defaults()

	var lastErr error
	for _, loc := range set {
		el, err := r.resolveOne(ctx, loc, opts)
		if err == nil {
			r.logger.Debug("locator: resolved",
				"strategy", string(loc.Strategy), "query", loc.Query)
			return el, nil
		}
		lastErr = err
		if session.IsNotFound(err) || session.IsTimeout(err) {
			r.logger.Debug("locator: candidate exhausted, trying next fallback",
				"strategy", string(loc.Strategy), "query", loc.Query)
			continue
		}
		// Malformed query or session fault: the candidate is unusable,
		// move on without burning its retry budget.
		r.logger.Warn("locator: candidate failed hard, trying next fallback",
			"strategy", string(loc.Strategy), "query", loc.Query, "error", err)
	}

	// Wrap the last cause too, so callers can tell a timed-out critical
	// wait from a plain negative.
	return nil, fmt.Errorf("locator: all %d fallbacks exhausted: %w (last: %w)",
		len(set), session.ErrNotFound, lastErr)
}

// resolveOne retries a single candidate up to the budget, refreshing the UI
// tree between attempts. Only not-found/timeout outcomes are retried.
func (r *Resolver) resolveOne(ctx context.Context, loc Locator, opts Options) (session.Element, error) {
	var lastErr error
	for attempt := 1; attempt <= opts.MaxRetriesPerLocator; attempt++ {
		el, err := r.sess.ResolveOne(ctx, loc.Strategy, loc.Query, opts.AttemptWait)
		if err == nil {
			return el, nil
		}
		lastErr = err

		if !session.IsNotFound(err) && !session.IsTimeout(err) {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("locator: cancelled: %w", err)
		}
		if attempt < opts.MaxRetriesPerLocator {
			// A failed refresh is logged but never aborts the retry
			// loop; the next attempt may still succeed.
			if err := r.sess.Refresh(ctx); err != nil {
				r.logger.Warn("locator: ui refresh between retries failed",
					"query", loc.Query, "error", err)
			}
		}
	}
	return nil, lastErr
}

// Probe is a presence check: a single candidate, a single attempt, a short
// wait. Absence is a definite negative, not an error.
func (r *Resolver) Probe(ctx context.Context, loc Locator) (bool, error) {
	_, err := r.sess.ResolveOne(ctx, loc.Strategy, loc.Query, ProbeWait)
	if err == nil {
		return true, nil
	}
	if session.IsNotFound(err) || session.IsTimeout(err) {
		return false, nil
	}
	return false, err
}
