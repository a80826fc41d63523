// Package session defines the automation session capability consumed by the
// locator engine and the collection pipeline.
//
// A Session is one live scripted connection to the target application's UI —
// a device automation server speaking the WebDriver wire protocol (wire
// subpackage) or a browser rendition of the same surface (rodweb subpackage).
// Callers never see the transport; they resolve elements, gesture, and read
// the clipboard through this interface.
//
// Resolved elements are short-lived handles: they are valid only until the
// next navigation or swipe and must never be cached across steps.
package session

import (
	"context"
	"errors"
	"time"
)

// Strategy identifies how a query string locates an element. The tag is
// opaque to callers; each backend maps it onto its own lookup mechanism.
type Strategy string

const (
	ByID            Strategy = "id"
	ByXPath         Strategy = "xpath"
	ByAccessibility Strategy = "accessibility id"
	ByCSS           Strategy = "css selector"
)

// Direction is a swipe direction on the feed surface.
type Direction int

const (
	SwipeUp Direction = iota
	SwipeDown
)

// Rect is an element's on-screen geometry in CSS/device pixels.
type Rect struct {
	X, Y          int
	Width, Height int
}

// Element is a live handle to a resolved UI element. It becomes stale after
// any navigation action; callers re-resolve instead of retaining it.
type Element interface {
	// Tap clicks/taps the element.
	Tap(ctx context.Context) error
	// Type sends text input to the element.
	Type(ctx context.Context, text string) error
	// Text returns the element's visible text.
	Text(ctx context.Context) (string, error)
	// Attribute returns the named attribute, or "" if unset.
	Attribute(ctx context.Context, name string) (string, error)
	// Rect returns the element's geometry, for coordinate taps.
	Rect(ctx context.Context) (Rect, error)
}

// Session is the automation capability surface. All waits are bounded; a
// call either completes or fails within the caller-supplied deadline.
type Session interface {
	// ResolveOne finds a single element within wait, polling at a fixed
	// interval. It fails with ErrNotFound when nothing matched before the
	// deadline, ErrInvalidArgument for a malformed query, and
	// ErrSessionFault when the session itself is unusable.
	ResolveOne(ctx context.Context, strategy Strategy, query string, wait time.Duration) (Element, error)

	// Refresh forces a full re-read of the UI tree, countering stale
	// element caches between retry attempts.
	Refresh(ctx context.Context) error

	// TapPoint taps absolute screen coordinates.
	TapPoint(ctx context.Context, x, y int) error
	// Swipe performs a directional swipe over the given duration.
	Swipe(ctx context.Context, dir Direction, duration time.Duration) error
	// Back issues the platform back gesture (closes transient menus).
	Back(ctx context.Context) error

	ClipboardRead(ctx context.Context) (string, error)
	ClipboardWrite(ctx context.Context, text string) error

	// ActivateApp brings the target application to the foreground,
	// launching it if needed. TerminateApp force-stops it. The pair is
	// the coarse-grained "reboot" recovery primitive.
	ActivateApp(ctx context.Context) error
	TerminateApp(ctx context.Context) error

	// WindowSize returns the viewport dimensions.
	WindowSize(ctx context.Context) (width, height int, err error)

	// Close releases the session.
	Close() error
}

// Error taxonomy. Every backend maps its transport failures onto these
// sentinels so the locator engine and the state machine can classify
// recovery without knowing the transport.
var (
	// ErrNotFound means a lookup found nothing — often a legitimate
	// negative result, not a fault.
	ErrNotFound = errors.New("session: element not found")
	// ErrTimeout means a bounded wait expired.
	ErrTimeout = errors.New("session: wait deadline expired")
	// ErrInvalidArgument means the query or call was malformed; retrying
	// cannot help.
	ErrInvalidArgument = errors.New("session: invalid argument")
	// ErrSessionFault means the session itself is unusable and the
	// application context must be rebooted.
	ErrSessionFault = errors.New("session: automation session unusable")
)

// IsNotFound reports whether err is a not-found outcome.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsTimeout reports whether err is an expired bounded wait.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsSessionFault reports whether err indicates an unusable session.
func IsSessionFault(err error) bool { return errors.Is(err, ErrSessionFault) }

// IsInvalidArgument reports whether err is a malformed-call failure.
func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }
