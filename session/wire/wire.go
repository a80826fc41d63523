// Package wire speaks the WebDriver wire protocol to a device automation
// server, exposing it as a session.Session.
//
// The protocol is plain JSON over HTTP: one server session per device, every
// element an opaque handle, every gesture a pointer-action sequence. Waiting
// is client-side — the server's implicit idle wait is disabled on connect and
// ResolveOne polls at a fixed interval instead, so every deadline lives in
// one place.
package wire

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hazumi-dev/clipminer/session"
)

// w3cElementKey is the element id key in W3C find responses.
const w3cElementKey = "element-6066-11e4-a52e-4f735466cecf"

// pollInterval is the client-side resolution poll cadence.
const pollInterval = 500 * time.Millisecond

// Config addresses one automation server session.
type Config struct {
	// ServerURL is the automation server base URL, e.g.
	// http://127.0.0.1:4723.
	ServerURL string
	// AppID is the application to drive (bundle/package id).
	AppID string
	// DeviceName and DeviceUDID select the device.
	DeviceName string
	DeviceUDID string
	// RequestTimeout bounds any single HTTP call. Default 30s.
	RequestTimeout time.Duration
}

// Client is a live server session. It implements session.Session.
type Client struct {
	http      *resty.Client
	sessionID string
	appID     string
	logger    *slog.Logger
}

type wireResponse struct {
	Value map[string]any `json:"value"`
}

type wireError struct {
	Value struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	} `json:"value"`
}

// Connect opens a server session for the configured device and disables the
// server-side idle wait so all polling is client-driven.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	hc := resty.New().
		SetBaseURL(cfg.ServerURL).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("Content-Type", "application/json")

	caps := map[string]any{
		"capabilities": map[string]any{
			"alwaysMatch": map[string]any{
				"platformName":       "Android",
				"appium:deviceName":  cfg.DeviceName,
				"appium:udid":        cfg.DeviceUDID,
				"appium:appPackage":  cfg.AppID,
				"appium:noReset":     true,
				"appium:newCommandTimeout": 300,
			},
		},
	}

	var created struct {
		Value struct {
			SessionID string `json:"sessionId"`
		} `json:"value"`
	}
	resp, err := hc.R().SetContext(ctx).SetBody(caps).SetResult(&created).Post("/session")
	if err != nil {
		return nil, fmt.Errorf("wire: connect %s: %w: %v", cfg.ServerURL, session.ErrSessionFault, err)
	}
	if resp.IsError() || created.Value.SessionID == "" {
		return nil, fmt.Errorf("wire: session create failed (%s): %w", resp.Status(), session.ErrSessionFault)
	}

	c := &Client{
		http:      hc,
		sessionID: created.Value.SessionID,
		appID:     cfg.AppID,
		logger:    logger,
	}

	// Server-side implicit waiting would double up with client polling.
	if err := c.post(ctx, "/appium/settings",
		map[string]any{"settings": map[string]any{"waitForIdleTimeout": 0}}, nil); err != nil {
		logger.Warn("wire: idle-timeout setting rejected", "error", err)
	}

	logger.Info("wire: session established", "session_id", c.sessionID)
	return c, nil
}

func (c *Client) url(path string) string {
	return "/session/" + c.sessionID + path
}

// post issues a session-scoped POST and maps protocol failures onto the
// session error taxonomy.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	var werr wireError
	req.SetError(&werr)

	resp, err := req.Post(c.url(path))
	if err != nil {
		return fmt.Errorf("wire: POST %s: %w: %v", path, session.ErrSessionFault, err)
	}
	if resp.IsError() {
		return mapWireError(path, resp.StatusCode(), &werr)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	var werr wireError
	resp, err := c.http.R().SetContext(ctx).SetResult(out).SetError(&werr).Get(c.url(path))
	if err != nil {
		return fmt.Errorf("wire: GET %s: %w: %v", path, session.ErrSessionFault, err)
	}
	if resp.IsError() {
		return mapWireError(path, resp.StatusCode(), &werr)
	}
	return nil
}

// mapWireError classifies a protocol-level failure.
func mapWireError(path string, status int, werr *wireError) error {
	code := werr.Value.Error
	msg := werr.Value.Message
	switch code {
	case "no such element":
		return fmt.Errorf("wire: %s: %w", path, session.ErrNotFound)
	case "invalid selector", "invalid argument":
		return fmt.Errorf("wire: %s: %s: %w", path, msg, session.ErrInvalidArgument)
	case "timeout":
		return fmt.Errorf("wire: %s: %w", path, session.ErrTimeout)
	case "invalid session id", "session not created":
		return fmt.Errorf("wire: %s: %s: %w", path, msg, session.ErrSessionFault)
	case "stale element reference":
		return fmt.Errorf("wire: %s: stale element: %w", path, session.ErrNotFound)
	}
	if status >= http.StatusInternalServerError {
		return fmt.Errorf("wire: %s: %s %s: %w", path, code, msg, session.ErrSessionFault)
	}
	return fmt.Errorf("wire: %s failed (%d): %s %s", path, status, code, msg)
}

// ResolveOne finds a single element, polling until wait elapses. A no-match
// outcome after the deadline is ErrNotFound; malformed selectors and session
// faults surface immediately.
func (c *Client) ResolveOne(ctx context.Context, strategy session.Strategy, query string, wait time.Duration) (session.Element, error) {
	deadline := time.Now().Add(wait)
	body := map[string]string{"using": string(strategy), "value": query}

	for {
		var out wireResponse
		err := c.post(ctx, "/element", body, &out)
		if err == nil {
			id, _ := out.Value[w3cElementKey].(string)
			if id == "" {
				return nil, fmt.Errorf("wire: find returned no element id: %w", session.ErrSessionFault)
			}
			return &element{c: c, id: id}, nil
		}
		if !session.IsNotFound(err) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wire: find %q: %w", query, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// Refresh forces the server to rebuild its UI snapshot by dumping the page
// source. The dump itself is discarded.
func (c *Client) Refresh(ctx context.Context) error {
	var out struct {
		Value string `json:"value"`
	}
	return c.get(ctx, "/source", &out)
}

// TapPoint taps absolute screen coordinates via a pointer action sequence.
func (c *Client) TapPoint(ctx context.Context, x, y int) error {
	return c.post(ctx, "/actions", pointerSequence([]pointerStep{
		{kind: "pointerMove", x: x, y: y},
		{kind: "pointerDown"},
		{kind: "pause", durationMs: 80},
		{kind: "pointerUp"},
	}), nil)
}

// Swipe drags from 70% to 30% of screen height (reversed for SwipeDown).
func (c *Client) Swipe(ctx context.Context, dir session.Direction, duration time.Duration) error {
	w, h, err := c.WindowSize(ctx)
	if err != nil {
		return err
	}
	startY, endY := h*7/10, h*3/10
	if dir == session.SwipeDown {
		startY, endY = endY, startY
	}
	return c.post(ctx, "/actions", pointerSequence([]pointerStep{
		{kind: "pointerMove", x: w / 2, y: startY},
		{kind: "pointerDown"},
		{kind: "pointerMove", x: w / 2, y: endY, durationMs: int(duration.Milliseconds())},
		{kind: "pointerUp"},
	}), nil)
}

// Back issues the platform back gesture.
func (c *Client) Back(ctx context.Context) error {
	return c.post(ctx, "/back", map[string]any{}, nil)
}

// ClipboardRead returns the device clipboard contents (base64 on the wire).
func (c *Client) ClipboardRead(ctx context.Context) (string, error) {
	var out struct {
		Value string `json:"value"`
	}
	if err := c.post(ctx, "/appium/device/get_clipboard",
		map[string]string{"contentType": "plaintext"}, &out); err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(out.Value)
	if err != nil {
		// Some servers return the text unencoded.
		return out.Value, nil
	}
	return string(raw), nil
}

func (c *Client) ClipboardWrite(ctx context.Context, text string) error {
	return c.post(ctx, "/appium/device/set_clipboard", map[string]string{
		"content":     base64.StdEncoding.EncodeToString([]byte(text)),
		"contentType": "plaintext",
	}, nil)
}

func (c *Client) ActivateApp(ctx context.Context) error {
	return c.post(ctx, "/appium/device/activate_app",
		map[string]string{"appId": c.appID}, nil)
}

func (c *Client) TerminateApp(ctx context.Context) error {
	return c.post(ctx, "/appium/device/terminate_app",
		map[string]string{"appId": c.appID}, nil)
}

// WindowSize returns the viewport dimensions.
func (c *Client) WindowSize(ctx context.Context) (int, int, error) {
	var out struct {
		Value struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"value"`
	}
	if err := c.get(ctx, "/window/rect", &out); err != nil {
		return 0, 0, err
	}
	return out.Value.Width, out.Value.Height, nil
}

// Close deletes the server session.
func (c *Client) Close() error {
	resp, err := c.http.R().Delete(c.url(""))
	if err != nil {
		return fmt.Errorf("wire: close: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("wire: close failed: %s", resp.Status())
	}
	return nil
}

// pointerStep is one entry in a W3C pointer action sequence.
type pointerStep struct {
	kind       string
	x, y       int
	durationMs int
}

func pointerSequence(steps []pointerStep) map[string]any {
	actions := make([]map[string]any, 0, len(steps))
	for _, s := range steps {
		switch s.kind {
		case "pointerMove":
			actions = append(actions, map[string]any{
				"type": "pointerMove", "duration": s.durationMs,
				"x": s.x, "y": s.y,
			})
		case "pointerDown":
			actions = append(actions, map[string]any{"type": "pointerDown", "button": 0})
		case "pointerUp":
			actions = append(actions, map[string]any{"type": "pointerUp", "button": 0})
		case "pause":
			actions = append(actions, map[string]any{"type": "pause", "duration": s.durationMs})
		}
	}
	return map[string]any{
		"actions": []map[string]any{{
			"type": "pointer",
			"id":   "finger1",
			"parameters": map[string]any{"pointerType": "touch"},
			"actions":    actions,
		}},
	}
}
