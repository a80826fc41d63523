package collector

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazumi-dev/clipminer/session"
	"github.com/hazumi-dev/clipminer/store"
)

func seedRunnerDB(t *testing.T, enabled bool, terms ...string) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "runner.db")
	st, err := store.Open(dbPath, quietLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	err = st.UpsertBotConfig(ctx, &store.BotConfig{
		BotID: 1, DeviceName: "pixel-4a", DeviceUDID: "UD1",
		Locale: "JP", BotType: "collector", Enabled: enabled,
	})
	if err != nil {
		t.Fatalf("seed bot: %v", err)
	}
	if err := st.SetLikeThreshold(ctx, "JP", 100); err != nil {
		t.Fatalf("seed threshold: %v", err)
	}
	for _, term := range terms {
		if err := st.AddSearchTerm(ctx, term, "JP"); err != nil {
			t.Fatalf("seed term %q: %v", term, err)
		}
	}
	return dbPath
}

func fastConfig(dbPath string) *Config {
	cfg := &Config{
		DBPath:   dbPath,
		Session:  SessionConfig{AppID: testAppID},
		TestMode: true,
		Counts:   CountsConfig{TestRecommended: 1, TestSearched: 1},

		CycleSleep:     Duration(time.Millisecond),
		ErrorCooldown:  Duration(time.Millisecond),
		ReinitCooldown: Duration(time.Millisecond),
		UISettle:       Duration(time.Millisecond),
		RebootSettle:   Duration(time.Millisecond),
	}
	cfg.applyDefaults()
	return cfg
}

func staticFactory(sess session.Session) SessionFactory {
	return func(ctx context.Context, cfg *Config, bc *store.BotConfig) (session.Session, error) {
		return sess, nil
	}
}

// countingFactory tracks resource reinitialisations.
func countingFactory(sess session.Session, calls *atomic.Int32) SessionFactory {
	return func(ctx context.Context, cfg *Config, bc *store.BotConfig) (session.Session, error) {
		calls.Add(1)
		return sess, nil
	}
}

// runUntilCycles drives the runner until it completes want cycles, then
// cancels and joins it.
func runUntilCycles(t *testing.T, r *Runner, want int64) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.After(10 * time.Second)
	for r.Stats().Cycles < want {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("runner never completed %d cycles: %+v", want, r.Stats())
		case err := <-done:
			t.Fatalf("runner exited early: %v", err)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunnerAlternatesStrategiesAndCollects(t *testing.T) {
	dbPath := seedRunnerDB(t, true, "cooking")

	sess := newFakeSession()
	sess.populateFeedItem("https://www.example.com/@creator/video/881122334455", "Like 9.9K")
	sess.populateSearchScreens()

	r := NewRunner(fastConfig(dbPath), 1, staticFactory(sess), quietLogger())

	// Both strategies must complete at least once.
	runUntilCycles(t, r, 2)

	stats := r.Stats()
	if stats.UnitsAttempted < 2 {
		t.Errorf("units attempted: got %d, want >= 2", stats.UnitsAttempted)
	}
	// Same share URL every unit: exactly one stored record, the rest are
	// duplicates.
	if stats.UnitsStored != 1 {
		t.Errorf("units stored: got %d, want 1", stats.UnitsStored)
	}

	st, err := store.Open(dbPath, quietLogger())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer st.Close()
	rec, err := st.GetClip(context.Background(), "881122334455")
	if err != nil {
		t.Fatalf("stored clip missing: %v", err)
	}
	if rec.Likes != 9900 {
		t.Errorf("likes: got %d", rec.Likes)
	}
}

func TestRunnerSkipsSearchWhenRotationEmpty(t *testing.T) {
	// No search terms seeded: the search strategy sits out its cycles
	// instead of failing them, so the runner keeps its session and store.
	dbPath := seedRunnerDB(t, true)

	sess := newFakeSession()
	sess.populateFeedItem("https://www.example.com/@creator/video/991122334455", "Like 9.9K")

	var factoryCalls atomic.Int32
	r := NewRunner(fastConfig(dbPath), 1, countingFactory(sess, &factoryCalls), quietLogger())

	runUntilCycles(t, r, 3)

	stats := r.Stats()
	if stats.UnitsStored != 1 {
		t.Errorf("units stored: got %d, want 1", stats.UnitsStored)
	}
	if n := factoryCalls.Load(); n != 1 {
		t.Errorf("session factory calls: got %d, want 1 (resources were rebuilt)", n)
	}
	if stats.LastError != "" {
		t.Errorf("empty rotation recorded as error: %q", stats.LastError)
	}
}

func TestRunnerKeepsResourcesAfterUnitReboot(t *testing.T) {
	dbPath := seedRunnerDB(t, true)

	// Every unit aborts at the format probe with a session fault; the
	// reboot itself succeeds, so cycles keep flowing on the same session.
	sess := newFakeSession()
	sess.populateFeedItem("https://vt.example.com/fault1/", "Like 9000")
	sess.resolveErr["Photo mode"] = session.ErrSessionFault

	cfg := fastConfig(dbPath)
	cfg.Strategies = []string{"recommended"}

	var factoryCalls atomic.Int32
	r := NewRunner(cfg, 1, countingFactory(sess, &factoryCalls), quietLogger())

	runUntilCycles(t, r, 2)

	stats := r.Stats()
	if stats.Reboots < 2 {
		t.Errorf("reboots: got %d, want >= 2", stats.Reboots)
	}
	if n := factoryCalls.Load(); n != 1 {
		t.Errorf("session factory calls: got %d, want 1 (resources were rebuilt)", n)
	}
}

func TestRunnerRefusesDisabledBot(t *testing.T) {
	dbPath := seedRunnerDB(t, false)
	r := NewRunner(fastConfig(dbPath), 1, staticFactory(newFakeSession()), quietLogger())
	if err := r.Run(context.Background()); err == nil {
		t.Fatal("runner started for a disabled bot")
	}
}

func TestRunnerRefusesUnknownBot(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	r := NewRunner(fastConfig(dbPath), 42, staticFactory(newFakeSession()), quietLogger())
	if err := r.Run(context.Background()); err == nil {
		t.Fatal("runner started for an unknown bot id")
	}
}
