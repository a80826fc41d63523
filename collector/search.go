package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/hazumi-dev/clipminer/locator"
	"github.com/hazumi-dev/clipminer/session"
)

// BeginSearch runs the full search setup protocol: open search, submit the
// term, apply the result filters (sort by date, unwatched when offered, last
// six months), open the first result, and wait for the player.
//
// Any hard failure aborts the whole strategy invocation — the caller runs
// RecoverToHome and attempts no units.
func (m *Machine) BeginSearch(ctx context.Context, term string) error {
	m.logger.Info("collector: starting search", "term", term)

	if err := m.resolveAndTap(ctx, m.targets.SearchIcon, "search icon"); err != nil {
		return err
	}
	sleepCtx(ctx, m.settle)

	input, err := m.res.Resolve(ctx, m.targets.SearchInput, locator.Options{})
	if err != nil {
		return fmt.Errorf("collector: search input: %w", err)
	}
	if err := input.Type(ctx, term); err != nil {
		return fmt.Errorf("collector: type search term: %w", err)
	}
	if err := m.resolveAndTap(ctx, m.targets.SearchSubmit, "search submit"); err != nil {
		return err
	}
	sleepCtx(ctx, 2*m.settle)

	if err := m.applyResultFilters(ctx); err != nil {
		return err
	}
	if err := m.openFirstResult(ctx); err != nil {
		return err
	}
	return nil
}

// applyResultFilters narrows the result list to recent content. The
// unwatched filter is optional — not every app version offers it.
func (m *Machine) applyResultFilters(ctx context.Context) error {
	if err := m.resolveAndTap(ctx, m.targets.FilterIcon, "filter icon"); err != nil {
		return err
	}
	if err := m.resolveAndTap(ctx, m.targets.FilterMenu, "filter menu"); err != nil {
		return err
	}
	sleepCtx(ctx, m.settle)

	if err := m.resolveAndTap(ctx, m.targets.FilterSortDate, "sort by date"); err != nil {
		return err
	}

	if present, _ := m.res.Probe(ctx, m.targets.FilterUnwatched[0]); present {
		if err := m.resolveAndTap(ctx, m.targets.FilterUnwatched, "unwatched filter"); err != nil {
			m.logger.Warn("collector: unwatched filter tap failed, continuing", "error", err)
		}
	}

	// The date-range option sits below the fold of the filter panel.
	if err := m.scrollFilterPanel(ctx); err != nil {
		m.logger.Warn("collector: filter panel scroll failed, continuing", "error", err)
	}
	if err := m.resolveAndTap(ctx, m.targets.FilterSixMonths, "last six months"); err != nil {
		return err
	}
	if err := m.resolveAndTap(ctx, m.targets.FilterApply, "apply filters"); err != nil {
		return err
	}
	sleepCtx(ctx, 2*m.settle)
	return nil
}

func (m *Machine) scrollFilterPanel(ctx context.Context) error {
	panel, err := m.res.Resolve(ctx, m.targets.FilterPanel,
		locator.Options{MaxRetriesPerLocator: 1})
	if err != nil {
		// No scrollable panel; the option may already be visible.
		return nil
	}
	if _, err := panel.Rect(ctx); err != nil {
		return err
	}
	return m.sess.Swipe(ctx, session.SwipeUp, 300*time.Millisecond)
}

// openFirstResult taps the centre of the first grid result by geometry and
// waits for the player to appear, retrying the tap when it does not. Grid
// tiles often ignore the element-level click, so the tap goes to absolute
// coordinates.
func (m *Machine) openFirstResult(ctx context.Context) error {
	item, err := m.res.Resolve(ctx, m.targets.ResultGridItem, locator.Options{})
	if err != nil {
		return fmt.Errorf("collector: first search result: %w", err)
	}
	rect, err := item.Rect(ctx)
	if err != nil {
		return fmt.Errorf("collector: result geometry: %w", err)
	}
	cx := rect.X + rect.Width/2
	cy := rect.Y + rect.Height/2

	for attempt := 1; attempt <= 3; attempt++ {
		if err := m.sess.TapPoint(ctx, cx, cy); err != nil {
			return fmt.Errorf("collector: tap first result: %w", err)
		}
		sleepCtx(ctx, 2*m.settle)
		_, err := m.res.Resolve(ctx, m.targets.PlayerView,
			locator.Options{MaxRetriesPerLocator: 1})
		if err == nil {
			return nil
		}
		m.logger.Debug("collector: player not up after result tap, retrying",
			"attempt", attempt)
	}
	return fmt.Errorf("collector: player never appeared after result tap: %w",
		session.ErrTimeout)
}

func (m *Machine) resolveAndTap(ctx context.Context, set locator.Set, what string) error {
	el, err := m.res.Resolve(ctx, set, locator.Options{})
	if err != nil {
		return fmt.Errorf("collector: %s: %w", what, err)
	}
	if err := el.Tap(ctx); err != nil {
		return fmt.Errorf("collector: tap %s: %w", what, err)
	}
	return nil
}
