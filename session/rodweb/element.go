package rodweb

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazumi-dev/clipminer/session"
)

// element wraps a rod element as a session.Element.
type element struct {
	c  *Client
	el *rod.Element
}

func (e *element) Tap(ctx context.Context) error {
	if err := e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("rodweb: tap: %w", err)
	}
	return nil
}

func (e *element) Type(ctx context.Context, text string) error {
	el := e.el.Context(ctx)
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("rodweb: focus: %w", err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("rodweb: input: %w", err)
	}
	return nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	text, err := e.el.Context(ctx).Text()
	if err != nil {
		return "", fmt.Errorf("rodweb: text: %w", err)
	}
	return text, nil
}

// Attribute reads an HTML attribute; aria-describedby style content-desc
// queries map onto aria-label.
func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	if name == "content-desc" {
		name = "aria-label"
	}
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", fmt.Errorf("rodweb: attribute %s: %w", name, err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (e *element) Rect(ctx context.Context) (session.Rect, error) {
	res, err := e.el.Context(ctx).Eval(
		`() => { const r = this.getBoundingClientRect();
		 return {x: r.x, y: r.y, w: r.width, h: r.height}; }`)
	if err != nil {
		return session.Rect{}, fmt.Errorf("rodweb: rect: %w", err)
	}
	return session.Rect{
		X:      int(res.Value.Get("x").Int()),
		Y:      int(res.Value.Get("y").Int()),
		Width:  int(res.Value.Get("w").Int()),
		Height: int(res.Value.Get("h").Int()),
	}, nil
}
