package collector

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/hazumi-dev/clipminer/locator"
	"github.com/hazumi-dev/clipminer/session"
	"github.com/hazumi-dev/clipminer/store"
)

// likeCountDesc extracts the numeric part of a like button's accessibility
// description ("Like 1.2万", "12.5K likes").
var likeCountDesc = regexp.MustCompile(`([\d,.]+[KkMm万]?)`)

// countOnly matches text that is nothing but an abbreviated count, the
// telltale of a resolver fallback landing on a counter element.
var countOnly = regexp.MustCompile(`^[\d,.]+[KkMm万]?$`)

const (
	// defaultRebootSettle lets ads and popups settle after the app comes
	// back.
	defaultRebootSettle = 7 * time.Second
	// defaultSettle is the short pause after a transient menu or screen
	// change.
	defaultSettle = time.Second
)

// Machine runs one discovery-and-extraction pass per call. It is strictly
// sequential: one element resolution or gesture at a time, every wait
// bounded.
type Machine struct {
	sess     session.Session
	res      *locator.Resolver
	st       *store.Store
	targets  *Targets
	logger   *slog.Logger
	locale   string
	minLikes int
	actor    string

	// UI pacing, shrunk in tests.
	settle       time.Duration
	rebootSettle time.Duration
}

// NewMachine wires the collection pipeline for one bot instance. minLikes is
// the already-resolved popularity floor (store row or process default) and
// actor tags every history row this instance writes.
func NewMachine(sess session.Session, st *store.Store, targets *Targets,
	locale string, minLikes int, actor string, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		sess:         sess,
		res:          locator.New(sess, logger),
		st:           st,
		targets:      targets,
		logger:       logger,
		locale:       locale,
		minLikes:     minLikes,
		actor:        actor,
		settle:       defaultSettle,
		rebootSettle: defaultRebootSettle,
	}
}

// ProcessUnit drives one content unit through the pipeline: confirm context,
// extract identity, filter by popularity, extract metadata, filter by
// format, persist, advance.
//
// Returns processed=true only when a new record was stored. Skips of every
// kind (no identity, below threshold, wrong format, duplicate, store error)
// return processed=false with a nil error and still advance to the next
// item. A non-nil error means the unit aborted before advancing; the caller
// owns escape/reboot recovery.
func (m *Machine) ProcessUnit(ctx context.Context, source, searchTerm string) (bool, error) {
	if err := m.ensureContext(ctx, source); err != nil {
		return false, fmt.Errorf("collector: navigation: %w", err)
	}

	url, err := m.extractShareURL(ctx)
	if err != nil {
		// Timeouts and session faults on the identity path are critical:
		// the unit aborts without advancing and recovery runs upstream.
		if session.IsTimeout(err) || session.IsSessionFault(err) {
			return false, fmt.Errorf("collector: identity extraction: %w", err)
		}
		m.logger.Info("collector: no share url for current item, skipping", "error", err)
		return false, m.advance(ctx)
	}

	clipID := ExtractClipID(url)
	if clipID == "" {
		// Unrecognised reference shape. Definitive skip, nothing recorded.
		m.logger.Info("collector: unparseable share url, skipping", "url", url)
		return false, m.advance(ctx)
	}
	logger := m.logger.With("clip_id", clipID)

	likes := m.readLikeCount(ctx)
	if likes < m.minLikes {
		reason := fmt.Sprintf("likes (%d) below threshold (%d)", likes, m.minLikes)
		logger.Info("collector: unit below popularity threshold", "likes", likes)
		if err := m.st.IsolateRecord(ctx, clipID, reason, store.StatusCollecting, m.actor); err != nil {
			logger.Error("collector: isolation write failed", "error", err)
		}
		return false, m.advance(ctx)
	}

	channel := m.readText(ctx, m.targets.ChannelName, "channel")
	caption := m.readCaption(ctx)

	still, err := m.res.Probe(ctx, m.targets.StillImage)
	if err != nil {
		// The identifier is already known, so the failure is recorded
		// durably before the abort escalates to the caller's recovery.
		if ierr := m.st.IsolateRecord(ctx, clipID, err.Error(), store.StatusCollecting, m.actor); ierr != nil {
			logger.Error("collector: isolation write failed", "error", ierr)
		}
		return false, fmt.Errorf("collector: format probe: %w", err)
	}
	if still {
		logger.Info("collector: static image post, isolating")
		if err := m.st.IsolateRecord(ctx, clipID, "static image post", store.StatusCollecting, m.actor); err != nil {
			logger.Error("collector: isolation write failed", "error", err)
		}
		return false, m.advance(ctx)
	}

	clip := &store.Clip{
		ID:         clipID,
		URL:        url,
		Channel:    channel,
		Likes:      likes,
		Caption:    caption,
		Locale:     m.locale,
		Source:     source,
		SearchTerm: searchTerm,
	}
	res, err := m.st.InsertRecord(ctx, clip, nil)
	if err != nil {
		logger.Error("collector: persist failed, isolating", "error", err)
		if ierr := m.st.IsolateRecord(ctx, clipID, err.Error(), store.StatusCollecting, m.actor); ierr != nil {
			logger.Error("collector: isolation write failed", "error", ierr)
		}
		return false, m.advance(ctx)
	}
	if res == store.InsertedDuplicate {
		logger.Info("collector: duplicate discovery, likes refreshed", "likes", likes)
		return false, m.advance(ctx)
	}

	if err := m.st.LogHistory(ctx, clipID, store.StatusCollecting,
		store.StatusAwaitingVerification, "collected", m.actor); err != nil {
		logger.Error("collector: history write failed", "error", err)
	}
	logger.Info("collector: new record stored",
		"channel", channel, "likes", likes, "source", source)
	return true, m.advance(ctx)
}

// ensureContext confirms the feed for the given source is active. For the
// recommended feed that means the home tab is in its selected state (it is
// activated if not); for search it means a player is on screen.
func (m *Machine) ensureContext(ctx context.Context, source string) error {
	if source == store.SourceSearched {
		_, err := m.res.Resolve(ctx, m.targets.PlayerView, locator.Options{})
		return err
	}

	tab, err := m.res.Resolve(ctx, m.targets.HomeTab, locator.Options{})
	if err != nil {
		return err
	}
	selected, err := tab.Attribute(ctx, "selected")
	if err != nil {
		return err
	}
	if selected != "true" {
		if err := tab.Tap(ctx); err != nil {
			return err
		}
	}
	return nil
}

// extractShareURL opens the share menu, taps copy-link, and reads the URL
// from the clipboard. The menu is guaranteed closed on every exit: the
// copy-link tap dismisses it on success, and Back dismisses it on failure.
func (m *Machine) extractShareURL(ctx context.Context) (string, error) {
	// Stale clipboard content would masquerade as this item's URL.
	if err := m.sess.ClipboardWrite(ctx, ""); err != nil {
		m.logger.Warn("collector: clipboard clear failed", "error", err)
	}

	share, err := m.res.Resolve(ctx, m.targets.ShareButton, locator.Options{})
	if err != nil {
		return "", err
	}
	if err := share.Tap(ctx); err != nil {
		return "", err
	}
	sleepCtx(ctx, m.settle)

	copyEl, err := m.res.Resolve(ctx, m.targets.CopyLink, locator.Options{})
	if err != nil {
		m.closeMenu(ctx)
		return "", err
	}
	if err := copyEl.Tap(ctx); err != nil {
		m.closeMenu(ctx)
		return "", err
	}

	url, err := m.sess.ClipboardRead(ctx)
	if err != nil {
		m.closeMenu(ctx)
		return "", err
	}
	url = strings.TrimSpace(url)
	if url == "" {
		// An empty clipboard after the tap usually means the tap missed
		// and the share menu is still up.
		m.closeMenu(ctx)
		return "", fmt.Errorf("collector: clipboard empty after copy: %w", session.ErrNotFound)
	}
	return url, nil
}

func (m *Machine) closeMenu(ctx context.Context) {
	if err := m.sess.Back(ctx); err != nil {
		m.logger.Warn("collector: share menu close failed", "error", err)
	}
}

// readLikeCount reads the popularity signal: the like button's accessibility
// description first, the dedicated count element as fallback. An unreadable
// count degrades to 0 and fails the threshold downstream.
func (m *Machine) readLikeCount(ctx context.Context) int {
	if btn, err := m.res.Resolve(ctx, m.targets.LikeButton, locator.Options{}); err == nil {
		if desc, err := btn.Attribute(ctx, "content-desc"); err == nil {
			if mm := likeCountDesc.FindStringSubmatch(desc); mm != nil {
				return ParseCount(mm[1])
			}
		}
	}
	if raw := m.readText(ctx, m.targets.LikeCount, "like count"); raw != "" {
		return ParseCount(raw)
	}
	return 0
}

// readCaption expands the truncated caption when a "more" control is
// present, then reads the body text. Text shaped exactly like a count means
// the resolver landed on a counter instead of the caption; treat as absent.
func (m *Machine) readCaption(ctx context.Context) string {
	if more, err := m.res.Resolve(ctx, m.targets.CaptionMore,
		locator.Options{MaxRetriesPerLocator: 1, AttemptWait: locator.ProbeWait}); err == nil {
		if err := more.Tap(ctx); err != nil {
			m.logger.Debug("collector: caption expand tap failed", "error", err)
		}
	}
	text := m.readText(ctx, m.targets.CaptionText, "caption")
	if countOnly.MatchString(text) {
		return ""
	}
	return text
}

// readText is the best-effort metadata read: resolution or read failure
// degrades to "".
func (m *Machine) readText(ctx context.Context, set locator.Set, what string) string {
	el, err := m.res.Resolve(ctx, set, locator.Options{})
	if err != nil {
		m.logger.Debug("collector: metadata read degraded to empty", "field", what, "error", err)
		return ""
	}
	text, err := el.Text(ctx)
	if err != nil {
		m.logger.Debug("collector: metadata read degraded to empty", "field", what, "error", err)
		return ""
	}
	return strings.TrimSpace(text)
}

// advance issues the move-to-next-item swipe. Forward progress is
// unconditional once a unit's processing has concluded.
func (m *Machine) advance(ctx context.Context) error {
	if err := m.sess.Swipe(ctx, session.SwipeUp, 400*time.Millisecond); err != nil {
		return fmt.Errorf("collector: advance swipe: %w", err)
	}
	return nil
}

// Escape attempts the single advance gesture used to break out of a bad
// on-screen state before escalating to a reboot.
func (m *Machine) Escape(ctx context.Context) error {
	return m.advance(ctx)
}

// Reboot terminates and reactivates the application, then waits out the
// stabilization window so launch ads and popups clear before the next
// resolution.
func (m *Machine) Reboot(ctx context.Context) error {
	m.logger.Warn("collector: rebooting application context")
	if err := m.sess.TerminateApp(ctx); err != nil {
		m.logger.Warn("collector: terminate failed, activating anyway", "error", err)
	}
	sleepCtx(ctx, m.settle)
	if err := m.sess.ActivateApp(ctx); err != nil {
		return fmt.Errorf("collector: reboot: %w", err)
	}
	sleepCtx(ctx, m.rebootSettle)
	return nil
}

// RecoverToHome backs out of a nested screen (search results, filter panel)
// to the main feed with two back gestures.
func (m *Machine) RecoverToHome(ctx context.Context) error {
	for i := 0; i < 2; i++ {
		if err := m.sess.Back(ctx); err != nil {
			return fmt.Errorf("collector: recover to home: %w", err)
		}
		sleepCtx(ctx, m.settle)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
