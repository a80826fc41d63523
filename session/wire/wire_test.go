package wire

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hazumi-dev/clipminer/session"
)

// fakeServer is a minimal wire-protocol server: one session, scripted find
// behaviour, an in-memory clipboard.
type fakeServer struct {
	mu        sync.Mutex
	findCalls int
	// findAfter is the call number from which finds succeed; 0 = always
	// fail with the configured error code.
	findAfter int
	findError string
	findCode  int
	clipboard string
}

func (f *fakeServer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findCalls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()

	requireMethod := func(method string, h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Method != method {
				http.NotFound(w, r)
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc("/session", requireMethod("POST", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"value": map[string]any{"sessionId": "sess1"}})
	}))
	mux.HandleFunc("/session/sess1", requireMethod("DELETE", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"value": nil})
	}))
	mux.HandleFunc("/session/sess1/appium/settings", requireMethod("POST", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"value": nil})
	}))
	mux.HandleFunc("/session/sess1/element", requireMethod("POST", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.findCalls++
		n := f.findCalls
		f.mu.Unlock()
		if f.findAfter > 0 && n >= f.findAfter {
			writeJSON(w, 200, map[string]any{"value": map[string]any{w3cElementKey: "el42"}})
			return
		}
		code := f.findCode
		if code == 0 {
			code = 404
		}
		errName := f.findError
		if errName == "" {
			errName = "no such element"
		}
		writeJSON(w, code, map[string]any{"value": map[string]any{
			"error": errName, "message": errName,
		}})
	}))
	mux.HandleFunc("/session/sess1/element/el42/text", requireMethod("GET", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"value": "12.5K"})
	}))
	mux.HandleFunc("/session/sess1/element/el42/attribute/selected", requireMethod("GET", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"value": "true"})
	}))
	mux.HandleFunc("/session/sess1/appium/device/set_clipboard", requireMethod("POST", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &body)
		f.mu.Lock()
		f.clipboard = body.Content
		f.mu.Unlock()
		writeJSON(w, 200, map[string]any{"value": nil})
	}))
	mux.HandleFunc("/session/sess1/appium/device/get_clipboard", requireMethod("POST", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		v := f.clipboard
		f.mu.Unlock()
		writeJSON(w, 200, map[string]any{"value": v})
	}))
	return mux
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func connectFake(t *testing.T, f *fakeServer) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	c, err := Connect(context.Background(), Config{
		ServerURL:  srv.URL,
		AppID:      "com.example.clips",
		DeviceName: "pixel-4a",
	}, quietLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestResolveOnePollsUntilElementAppears(t *testing.T) {
	f := &fakeServer{findAfter: 2}
	c := connectFake(t, f)

	el, err := c.ResolveOne(context.Background(), session.ByID, "like_btn", 3*time.Second)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := f.calls(); got != 2 {
		t.Errorf("find calls: got %d, want 2", got)
	}

	text, err := el.Text(context.Background())
	if err != nil {
		t.Fatalf("text: %v", err)
	}
	if text != "12.5K" {
		t.Errorf("text: got %q", text)
	}
	attr, err := el.Attribute(context.Background(), "selected")
	if err != nil {
		t.Fatalf("attribute: %v", err)
	}
	if attr != "true" {
		t.Errorf("attribute: got %q", attr)
	}
}

func TestResolveOneNotFoundAfterDeadline(t *testing.T) {
	f := &fakeServer{}
	c := connectFake(t, f)

	_, err := c.ResolveOne(context.Background(), session.ByID, "ghost", 10*time.Millisecond)
	if !session.IsNotFound(err) {
		t.Fatalf("want not-found, got %v", err)
	}
}

func TestResolveOneInvalidSelectorDoesNotPoll(t *testing.T) {
	f := &fakeServer{findError: "invalid selector", findCode: 400}
	c := connectFake(t, f)

	_, err := c.ResolveOne(context.Background(), session.ByXPath, "//[broken", 3*time.Second)
	if !session.IsInvalidArgument(err) {
		t.Fatalf("want invalid-argument, got %v", err)
	}
	if got := f.calls(); got != 1 {
		t.Errorf("find calls: got %d, want 1 (no polling on a broken selector)", got)
	}
}

func TestResolveOneServerErrorIsSessionFault(t *testing.T) {
	f := &fakeServer{findError: "unknown error", findCode: 500}
	c := connectFake(t, f)

	_, err := c.ResolveOne(context.Background(), session.ByID, "anything", time.Second)
	if !session.IsSessionFault(err) {
		t.Fatalf("want session fault, got %v", err)
	}
}

func TestClipboardRoundTrip(t *testing.T) {
	f := &fakeServer{}
	c := connectFake(t, f)
	ctx := context.Background()

	const url = "https://vt.example.com/abc123/"
	if err := c.ClipboardWrite(ctx, url); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := c.ClipboardRead(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != url {
		t.Errorf("clipboard: got %q, want %q", got, url)
	}
}
