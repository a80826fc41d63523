package wire

import (
	"context"

	"github.com/hazumi-dev/clipminer/session"
)

// element is a server-issued element handle. It implements session.Element
// and is valid only until the next navigation action.
type element struct {
	c  *Client
	id string
}

func (e *element) path(suffix string) string {
	return "/element/" + e.id + suffix
}

func (e *element) Tap(ctx context.Context) error {
	return e.c.post(ctx, e.path("/click"), map[string]any{}, nil)
}

func (e *element) Type(ctx context.Context, text string) error {
	return e.c.post(ctx, e.path("/value"), map[string]string{"text": text}, nil)
}

func (e *element) Text(ctx context.Context) (string, error) {
	var out struct {
		Value string `json:"value"`
	}
	if err := e.c.get(ctx, e.path("/text"), &out); err != nil {
		return "", err
	}
	return out.Value, nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	var out struct {
		Value string `json:"value"`
	}
	if err := e.c.get(ctx, e.path("/attribute/"+name), &out); err != nil {
		return "", err
	}
	return out.Value, nil
}

func (e *element) Rect(ctx context.Context) (session.Rect, error) {
	var out struct {
		Value struct {
			X      int `json:"x"`
			Y      int `json:"y"`
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"value"`
	}
	if err := e.c.get(ctx, e.path("/rect"), &out); err != nil {
		return session.Rect{}, err
	}
	return session.Rect{
		X: out.Value.X, Y: out.Value.Y,
		Width: out.Value.Width, Height: out.Value.Height,
	}, nil
}
