// Package rodweb drives the web rendition of the target surface through a
// stealth Chrome page, exposing it as a session.Session.
//
// The mapping is necessarily looser than the device wire protocol: app
// lifecycle becomes navigation, the back gesture becomes history back, and
// the advance swipe becomes a scroll. Locator strategies translate to CSS
// and XPath lookups; accessibility queries match aria-label.
package rodweb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazumi-dev/clipminer/session"
)

// Config addresses the browser rendition.
type Config struct {
	// AppURL is the surface's entry URL; ActivateApp navigates here.
	AppURL string
	// RemoteURL is the WebSocket URL of an external Chrome. Empty launches
	// a local headless instance.
	RemoteURL string
}

// Client is one stealth page. It implements session.Session.
type Client struct {
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
	appURL  string
	logger  *slog.Logger
}

// Connect launches (or attaches to) Chrome, opens a stealth page, grants
// clipboard access for the app origin, and navigates to the surface.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		wsURL string
		lnch  *launcher.Launcher
	)
	if cfg.RemoteURL != "" {
		wsURL = cfg.RemoteURL
	} else {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("rodweb: launch: %w", err)
		}
		wsURL = u
		lnch = l
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("rodweb: connect: %w", err)
	}

	// The copy-link flow reads the clipboard; grant it up front so the
	// permission prompt never blocks a unit.
	err := proto.BrowserGrantPermissions{
		Permissions: []proto.BrowserPermissionType{
			proto.BrowserPermissionTypeClipboardReadWrite,
			proto.BrowserPermissionTypeClipboardSanitizedWrite,
		},
	}.Call(b)
	if err != nil {
		logger.Warn("rodweb: clipboard permission grant failed", "error", err)
	}

	c := &Client{browser: b, lnch: lnch, appURL: cfg.AppURL, logger: logger}
	if err := c.openPage(ctx); err != nil {
		b.Close()
		return nil, err
	}
	logger.Info("rodweb: session established", "url", cfg.AppURL)
	return c, nil
}

func (c *Client) openPage(ctx context.Context) error {
	page, err := stealth.Page(c.browser)
	if err != nil {
		return fmt.Errorf("rodweb: stealth page: %w", err)
	}
	c.page = page
	return c.navigateHome(ctx)
}

func (c *Client) navigateHome(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := c.page.Context(navCtx).Navigate(c.appURL); err != nil {
		return fmt.Errorf("rodweb: navigate %s: %w: %v", c.appURL, session.ErrSessionFault, err)
	}
	if err := c.page.Context(navCtx).WaitLoad(); err != nil {
		c.logger.Warn("rodweb: load wait expired", "error", err)
	}
	return nil
}

// selector translates a locator strategy onto the DOM.
func selector(strategy session.Strategy, query string) (css string, xpath bool, err error) {
	switch strategy {
	case session.ByCSS:
		return query, false, nil
	case session.ByXPath:
		return query, true, nil
	case session.ByID:
		return fmt.Sprintf(`[id=%q]`, query), false, nil
	case session.ByAccessibility:
		return fmt.Sprintf(`[aria-label=%q]`, query), false, nil
	}
	return "", false, fmt.Errorf("rodweb: strategy %q: %w", strategy, session.ErrInvalidArgument)
}

// ResolveOne waits up to wait for a matching element. Deadline expiry with
// no match is ErrNotFound.
func (c *Client) ResolveOne(ctx context.Context, strategy session.Strategy, query string, wait time.Duration) (session.Element, error) {
	sel, isXPath, err := selector(strategy, query)
	if err != nil {
		return nil, err
	}

	p := c.page.Context(ctx).Timeout(wait)
	var el *rod.Element
	if isXPath {
		el, err = p.ElementX(sel)
	} else {
		el, err = p.Element(sel)
	}
	if err != nil {
		return nil, mapRodError(query, err)
	}
	return &element{c: c, el: el}, nil
}

func mapRodError(query string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), strings.Contains(err.Error(), "deadline"):
		return fmt.Errorf("rodweb: %q: %w", query, session.ErrNotFound)
	case strings.Contains(err.Error(), "not a valid selector"),
		strings.Contains(err.Error(), "SyntaxError"):
		return fmt.Errorf("rodweb: %q: %w", query, session.ErrInvalidArgument)
	}
	return fmt.Errorf("rodweb: %q: %w: %v", query, session.ErrSessionFault, err)
}

// Refresh forces a layout pass; the DOM is live in a browser so there is no
// stale tree to rebuild, but the reflow flushes pending mutations.
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.page.Context(ctx).Eval(`() => document.body && document.body.offsetHeight`)
	if err != nil {
		return fmt.Errorf("rodweb: refresh: %w", err)
	}
	return nil
}

func (c *Client) TapPoint(ctx context.Context, x, y int) error {
	p := c.page.Context(ctx)
	if err := p.Mouse.MoveTo(proto.Point{X: float64(x), Y: float64(y)}); err != nil {
		return fmt.Errorf("rodweb: move: %w", err)
	}
	if err := p.Mouse.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("rodweb: click: %w", err)
	}
	return nil
}

// Swipe scrolls the viewport by 40% of its height.
func (c *Client) Swipe(ctx context.Context, dir session.Direction, duration time.Duration) error {
	_, h, err := c.WindowSize(ctx)
	if err != nil {
		return err
	}
	dy := float64(h) * 0.4
	if dir == session.SwipeDown {
		dy = -dy
	}
	if err := c.page.Context(ctx).Mouse.Scroll(0, dy, 5); err != nil {
		return fmt.Errorf("rodweb: scroll: %w", err)
	}
	return nil
}

func (c *Client) Back(ctx context.Context) error {
	if err := c.page.Context(ctx).NavigateBack(); err != nil {
		return fmt.Errorf("rodweb: back: %w", err)
	}
	return nil
}

func (c *Client) ClipboardRead(ctx context.Context) (string, error) {
	res, err := c.page.Context(ctx).Eval(`() => navigator.clipboard.readText()`)
	if err != nil {
		return "", fmt.Errorf("rodweb: clipboard read: %w", err)
	}
	return res.Value.Str(), nil
}

func (c *Client) ClipboardWrite(ctx context.Context, text string) error {
	_, err := c.page.Context(ctx).Eval(`t => navigator.clipboard.writeText(t)`, text)
	if err != nil {
		return fmt.Errorf("rodweb: clipboard write: %w", err)
	}
	return nil
}

// ActivateApp (re)opens the surface: a fresh stealth page when the previous
// one was closed, a home navigation otherwise.
func (c *Client) ActivateApp(ctx context.Context) error {
	if c.page == nil {
		return c.openPage(ctx)
	}
	return c.navigateHome(ctx)
}

// TerminateApp closes the page; the browser stays up for the next activate.
func (c *Client) TerminateApp(ctx context.Context) error {
	if c.page == nil {
		return nil
	}
	if err := c.page.Close(); err != nil {
		return fmt.Errorf("rodweb: close page: %w", err)
	}
	c.page = nil
	return nil
}

func (c *Client) WindowSize(ctx context.Context) (int, int, error) {
	res, err := c.page.Context(ctx).Eval(
		`() => ({w: window.innerWidth, h: window.innerHeight})`)
	if err != nil {
		return 0, 0, fmt.Errorf("rodweb: window size: %w", err)
	}
	return int(res.Value.Get("w").Int()), int(res.Value.Get("h").Int()), nil
}

// Close shuts the page, the browser connection, and any locally launched
// Chrome.
func (c *Client) Close() error {
	if c.page != nil {
		if err := c.page.Close(); err != nil {
			c.logger.Warn("rodweb: page close failed", "error", err)
		}
		c.page = nil
	}
	err := c.browser.Close()
	if c.lnch != nil {
		c.lnch.Cleanup()
	}
	if err != nil {
		return fmt.Errorf("rodweb: close: %w", err)
	}
	return nil
}
