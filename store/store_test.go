package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazumi-dev/clipminer/dbopen"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(schema))
	return New(db, nil)
}

func sampleClip(id string) *Clip {
	return &Clip{
		ID:      id,
		URL:     "https://clips.example/video/" + id,
		Channel: "@someone",
		Likes:   1200,
		Caption: "first caption",
		Locale:  "JP",
		Source:  SourceRecommended,
	}
}

func TestSchemaCreatesAllTables(t *testing.T) {
	s := openTestStore(t)
	for _, table := range []string{"bot_configs", "like_thresholds", "search_terms", "clips", "clip_history"} {
		var name string
		err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestInsertRecordNewThenDuplicate(t *testing.T) {
	// Second discovery of the same identifier must not recreate the
	// record or touch its first-written fields; only the like count and
	// touch time move.
	s := openTestStore(t)
	ctx := context.Background()

	res, err := s.InsertRecord(ctx, sampleClip("771122334455"), nil)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if res != InsertedNew {
		t.Fatalf("first insert: got %v, want new", res)
	}

	second := sampleClip("771122334455")
	second.Likes = 9999
	second.Caption = "rediscovered caption"
	second.Channel = "@other"
	res, err = s.InsertRecord(ctx, second, nil)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if res != InsertedDuplicate {
		t.Fatalf("second insert: got %v, want duplicate", res)
	}

	rec, err := s.GetClip(ctx, "771122334455")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Likes != 9999 {
		t.Errorf("likes not refreshed: got %d", rec.Likes)
	}
	if rec.Caption != "first caption" {
		t.Errorf("caption overwritten on duplicate: got %q", rec.Caption)
	}
	if rec.Channel != "@someone" {
		t.Errorf("channel overwritten on duplicate: got %q", rec.Channel)
	}
	if rec.Status != StatusAwaitingVerification {
		t.Errorf("status changed on duplicate: got %q", rec.Status)
	}
}

func TestInsertRecordRejectsIncompleteUnit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	noID := sampleClip("")
	if _, err := s.InsertRecord(ctx, noID, nil); err == nil {
		t.Error("insert without id succeeded")
	}

	noURL := sampleClip("abc123")
	noURL.URL = ""
	if _, err := s.InsertRecord(ctx, noURL, nil); err == nil {
		t.Error("insert without url succeeded")
	}
}

func TestInsertRecordBlocksUnknownLocale(t *testing.T) {
	// The not-available locale sentinel blocks persistence entirely.
	s := openTestStore(t)
	ctx := context.Background()

	c := sampleClip("abc123")
	c.Locale = LocaleUnknown
	if _, err := s.InsertRecord(ctx, c, nil); err == nil {
		t.Error("insert with unknown locale succeeded")
	}

	c.Locale = ""
	if _, err := s.InsertRecord(ctx, c, nil); err == nil {
		t.Error("insert with empty locale succeeded")
	}
}

func TestIsolateRecordWritesExactlyOneHistoryRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.InsertRecord(ctx, sampleClip("xyz789"), nil)
	if err := s.IsolateRecord(ctx, "xyz789", "likes (120) below threshold (500)", StatusCollecting, "bot-7"); err != nil {
		t.Fatalf("isolate: %v", err)
	}

	rec, err := s.GetClip(ctx, "xyz789")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != StatusNeedsReview {
		t.Errorf("status: got %q, want %q", rec.Status, StatusNeedsReview)
	}

	hist, err := s.History(ctx, "xyz789")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("history rows: got %d, want 1", len(hist))
	}
	if hist[0].StatusTo != StatusNeedsReview {
		t.Errorf("status_to: got %q", hist[0].StatusTo)
	}
	if !strings.Contains(hist[0].Message, "below threshold") {
		t.Errorf("message lost reason: %q", hist[0].Message)
	}
	if hist[0].Actor != "bot-7" {
		t.Errorf("actor: got %q", hist[0].Actor)
	}
}

func TestIsolateRecordWithoutStoredRowStillLogsHistory(t *testing.T) {
	// Units rejected before persistence have no clips row; the history
	// entry alone records the durable skip.
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.IsolateRecord(ctx, "never-stored", "static image post", StatusCollecting, "bot-1"); err != nil {
		t.Fatalf("isolate: %v", err)
	}
	hist, err := s.History(ctx, "never-stored")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("history rows: got %d, want 1", len(hist))
	}
}

func TestDuplicateYieldsNoNewHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.InsertRecord(ctx, sampleClip("dup1"), nil)
	s.LogHistory(ctx, "dup1", StatusCollecting, StatusAwaitingVerification, "collected", "bot-1")

	s.InsertRecord(ctx, sampleClip("dup1"), nil)

	hist, _ := s.History(ctx, "dup1")
	if len(hist) != 1 {
		t.Fatalf("history rows after duplicate: got %d, want 1", len(hist))
	}
}

func TestOldestSearchTermRotation(t *testing.T) {
	// The oldest term wins and is stamped as just-used, so repeated calls
	// walk the rotation instead of returning the same term.
	s := openTestStore(t)
	ctx := context.Background()

	for _, term := range []string{"alpha", "beta", "gamma"} {
		if err := s.AddSearchTerm(ctx, term, "JP"); err != nil {
			t.Fatalf("add term: %v", err)
		}
	}

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		term, err := s.OldestSearchTerm(ctx, "JP")
		if err != nil {
			t.Fatalf("oldest term: %v", err)
		}
		if seen[term] {
			t.Fatalf("term %q returned twice before rotation wrapped", term)
		}
		seen[term] = true
	}
	if len(seen) != 3 {
		t.Errorf("rotation covered %d terms, want 3", len(seen))
	}
}

func TestOldestSearchTermNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.OldestSearchTerm(context.Background(), "ZZ")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestLikeThresholdLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SetLikeThreshold(ctx, "JP", 800); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(
		`INSERT INTO like_thresholds (locale, min_likes, enabled) VALUES ('US', 300, 0)`); err != nil {
		t.Fatal(err)
	}

	min, err := s.LikeThreshold(ctx, "JP")
	if err != nil {
		t.Fatalf("threshold: %v", err)
	}
	if min != 800 {
		t.Errorf("threshold: got %d, want 800", min)
	}

	// Disabled rows behave as absent.
	if _, err := s.LikeThreshold(ctx, "US"); !errors.Is(err, ErrNotFound) {
		t.Errorf("disabled threshold: want ErrNotFound, got %v", err)
	}
	if _, err := s.LikeThreshold(ctx, "FR"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing threshold: want ErrNotFound, got %v", err)
	}
}

func TestFetchBotConfig(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seed := &BotConfig{
		BotID: 7, DeviceName: "pixel-4a", DeviceUDID: "UD123", Locale: "JP",
		BotType: "collector", Enabled: true, SessionHost: "10.0.0.5", SessionPort: 4823,
	}
	if err := s.UpsertBotConfig(ctx, seed); err != nil {
		t.Fatal(err)
	}

	bc, err := s.FetchBotConfig(ctx, 7)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if bc.DeviceName != "pixel-4a" || bc.Locale != "JP" {
		t.Errorf("config fields: %+v", bc)
	}
	if bc.SessionHost != "10.0.0.5" || bc.SessionPort != 4823 {
		t.Errorf("session override: %+v", bc)
	}

	if _, err := s.FetchBotConfig(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing config: want ErrNotFound, got %v", err)
	}
}
