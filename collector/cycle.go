package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hazumi-dev/clipminer/session"
	"github.com/hazumi-dev/clipminer/store"
)

// SessionFactory builds an automation session for one bot. The cmd package
// supplies one that picks the wire or rodweb backend from config; tests
// supply fakes.
type SessionFactory func(ctx context.Context, cfg *Config, bc *store.BotConfig) (session.Session, error)

// Stats are the runner's live counters, exposed by the status listener.
type Stats struct {
	RunID          string `json:"run_id"`
	BotID          int    `json:"bot_id"`
	Cycles         int64  `json:"cycles"`
	UnitsAttempted int64  `json:"units_attempted"`
	UnitsStored    int64  `json:"units_stored"`
	Reboots        int64  `json:"reboots"`
	LastError      string `json:"last_error,omitempty"`
}

// Runner is the outer loop: alternate strategies forever, cool down on
// failure, fully reinitialise resources when a cycle dies.
type Runner struct {
	cfg     *Config
	botID   int
	factory SessionFactory
	logger  *slog.Logger
	runID   string

	// Rebuilt on every (re)initialisation.
	st      *store.Store
	sess    session.Session
	machine *Machine

	cycles   atomic.Int64
	attempts atomic.Int64
	stored   atomic.Int64
	reboots  atomic.Int64

	mu      sync.Mutex
	lastErr string
}

// NewRunner creates a Runner. Resources are not opened until Run.
func NewRunner(cfg *Config, botID int, factory SessionFactory, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()
	return &Runner{
		cfg:     cfg,
		botID:   botID,
		factory: factory,
		logger:  logger.With("bot_id", botID, "run_id", runID),
		runID:   runID,
	}
}

// Stats snapshots the live counters.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	lastErr := r.lastErr
	r.mu.Unlock()
	return Stats{
		RunID:          r.runID,
		BotID:          r.botID,
		Cycles:         r.cycles.Load(),
		UnitsAttempted: r.attempts.Load(),
		UnitsStored:    r.stored.Load(),
		Reboots:        r.reboots.Load(),
		LastError:      lastErr,
	}
}

func (r *Runner) noteError(err error) {
	r.mu.Lock()
	r.lastErr = err.Error()
	r.mu.Unlock()
}

// Run is the scheduler loop. It returns only when ctx is cancelled or
// initial resource setup fails.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.initResources(ctx); err != nil {
		return fmt.Errorf("collector: startup: %w", err)
	}
	defer r.closeResources()

	next := 0
	for {
		if ctx.Err() != nil {
			r.logger.Info("collector: interrupted, shutting down")
			return nil
		}

		strategy := r.cfg.Strategies[next%len(r.cfg.Strategies)]
		next++

		err := r.runCycle(ctx, strategy)
		if err == nil {
			r.cycles.Add(1)
			sleepCtx(ctx, r.cfg.CycleSleep.D())
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		r.noteError(err)
		r.logger.Error("collector: cycle failed, cooling down",
			"strategy", strategy, "error", err)
		sleepCtx(ctx, r.cfg.ErrorCooldown.D())

		// A dead cycle may mean dead resources. Rebuild everything; when
		// that also fails, back off much longer and try again.
		for ctx.Err() == nil {
			r.closeResources()
			if err := r.initResources(ctx); err == nil {
				break
			} else {
				r.noteError(err)
				r.logger.Error("collector: reinitialisation failed, backing off",
					"error", err)
				sleepCtx(ctx, r.cfg.ReinitCooldown.D())
			}
		}
	}
}

// initResources opens the store, loads and validates the bot configuration,
// resolves the like threshold, and builds the automation session and the
// machine around them.
func (r *Runner) initResources(ctx context.Context) error {
	st, err := store.Open(r.cfg.DBPath, r.logger)
	if err != nil {
		return err
	}

	bc, err := st.FetchBotConfig(ctx, r.botID)
	if err != nil {
		st.Close()
		return fmt.Errorf("collector: bot %d: %w", r.botID, err)
	}
	if !bc.Enabled {
		st.Close()
		return fmt.Errorf("collector: bot %d is disabled", r.botID)
	}

	minLikes := r.cfg.DefaultMinLikes
	if v, err := st.LikeThreshold(ctx, bc.Locale); err == nil {
		minLikes = v
	} else if !errors.Is(err, store.ErrNotFound) {
		st.Close()
		return err
	}

	sess, err := r.factory(ctx, r.cfg, bc)
	if err != nil {
		st.Close()
		return fmt.Errorf("collector: session: %w", err)
	}

	actor := fmt.Sprintf("bot-%d/%s", r.botID, r.runID)
	r.st = st
	r.sess = sess
	r.machine = NewMachine(sess, st, DefaultTargets(r.cfg.Session.AppID),
		bc.Locale, minLikes, actor, r.logger)
	r.machine.settle = r.cfg.UISettle.D()
	r.machine.rebootSettle = r.cfg.RebootSettle.D()

	if err := st.TouchBotStart(ctx, r.botID); err != nil {
		r.logger.Warn("collector: start stamp failed", "error", err)
	}
	r.logger.Info("collector: resources initialised",
		"locale", bc.Locale, "min_likes", minLikes, "device", bc.DeviceName)
	return nil
}

func (r *Runner) closeResources() {
	if r.sess != nil {
		if err := r.sess.Close(); err != nil {
			r.logger.Warn("collector: session close failed", "error", err)
		}
		r.sess = nil
	}
	if r.st != nil {
		if err := r.st.Close(); err != nil {
			r.logger.Warn("collector: store close failed", "error", err)
		}
		r.st = nil
	}
	r.machine = nil
}

// runCycle runs one strategy for its configured unit count. Search setup
// failures abort the invocation before any unit is attempted.
func (r *Runner) runCycle(ctx context.Context, strategy string) error {
	count := r.cfg.unitCount(strategy)
	r.logger.Info("collector: cycle starting", "strategy", strategy, "units", count)

	var (
		source string
		term   string
	)
	switch strategy {
	case "search":
		source = store.SourceSearched
		t, err := r.st.OldestSearchTerm(ctx, r.machine.locale)
		if errors.Is(err, store.ErrNotFound) {
			// An unseeded rotation is an operator state, not a fault:
			// the strategy just sits out this cycle.
			r.logger.Warn("collector: no active search terms, skipping search cycle",
				"locale", r.machine.locale)
			return nil
		}
		if err != nil {
			return fmt.Errorf("collector: search term rotation: %w", err)
		}
		term = t
		if err := r.machine.BeginSearch(ctx, term); err != nil {
			if rerr := r.machine.RecoverToHome(ctx); rerr != nil {
				r.reboot(ctx)
			}
			return fmt.Errorf("collector: search setup: %w", err)
		}
	default:
		source = store.SourceRecommended
	}

	stored := 0
	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			return nil
		}
		r.attempts.Add(1)
		ok, err := r.machine.ProcessUnit(ctx, source, term)
		if err != nil {
			resume, rerr := r.recoverUnit(ctx, err)
			if resume {
				continue
			}
			if rerr != nil {
				return fmt.Errorf("collector: unit %d/%d: %w", i+1, count, err)
			}
			// The reboot landed: the app is back on its home feed, so the
			// cycle just ends early and the next one reuses the session.
			r.noteError(err)
			r.logger.Warn("collector: cycle cut short after reboot",
				"strategy", strategy, "attempted", i+1, "error", err)
			return nil
		}
		if ok {
			stored++
			r.stored.Add(1)
		}
	}

	if strategy == "search" {
		if err := r.machine.RecoverToHome(ctx); err != nil {
			if rerr := r.reboot(ctx); rerr != nil {
				return fmt.Errorf("collector: post-cycle recovery: %w", err)
			}
		}
	}
	r.logger.Info("collector: cycle finished",
		"strategy", strategy, "attempted", count, "stored", stored)
	return nil
}

// recoverUnit handles a unit abort. A timeout gets one escape gesture and,
// when that lands, the cycle continues. Anything else, or a failed escape,
// reboots the application: a clean reboot only stops the current cycle,
// while a failed one escalates to full resource reinitialisation.
func (r *Runner) recoverUnit(ctx context.Context, cause error) (resume bool, err error) {
	if session.IsTimeout(cause) {
		r.logger.Warn("collector: unit timed out, attempting escape gesture", "error", cause)
		if err := r.machine.Escape(ctx); err == nil {
			return true, nil
		}
	}
	return false, r.reboot(ctx)
}

// reboot restarts the application context. A failure is returned so the
// caller can escalate to rebuilding the session and store.
func (r *Runner) reboot(ctx context.Context) error {
	r.reboots.Add(1)
	if err := r.machine.Reboot(ctx); err != nil {
		r.logger.Error("collector: reboot failed", "error", err)
		return err
	}
	return nil
}
