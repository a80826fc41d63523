// Package store is the persistence layer for collected clips.
//
// One SQLite database per collector instance holds bot configuration, the
// per-locale like thresholds, the shared search-term rotation, the main clip
// table, and an append-only history log. All writes go through explicit
// transactions with BUSY-aware retry (dbopen); duplicate discoveries are
// detected on the clip primary key and never overwrite workflow state.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazumi-dev/clipminer/dbopen"
)

// Workflow statuses for collected clips.
const (
	// StatusCollecting marks a unit whose extraction is still in flight.
	// Used as the from-status on history rows, never stored on a clip.
	StatusCollecting = "COLLECTING"
	// StatusAwaitingVerification is the status of a freshly collected clip.
	StatusAwaitingVerification = "AWAITING_VERIFICATION"
	// StatusNeedsReview marks an isolated clip that a human must look at.
	StatusNeedsReview = "NEEDS_REVIEW"
)

// Origin tags recording which strategy discovered a clip.
const (
	SourceRecommended = "RECOMMENDED"
	SourceSearched    = "SEARCHED"
)

// LocaleUnknown is the not-available locale sentinel. Persistence refuses
// units carrying it; whether that stays a hard block is a policy decision,
// not a bug (see DESIGN.md).
const LocaleUnknown = "N/A"

// ErrNotFound is returned by lookups that matched no row.
var ErrNotFound = errors.New("store: not found")

// Store wraps the collector database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a Store from an already-opened database connection.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return New(db, logger), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func now() int64 { return time.Now().UnixMilli() }

// FetchBotConfig loads the configuration row for one bot identity.
func (s *Store) FetchBotConfig(ctx context.Context, botID int) (*BotConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT bot_id, device_name, device_udid, target_locale, bot_type, enabled,
		session_host, session_port
		FROM bot_configs WHERE bot_id = ?`, botID)

	var bc BotConfig
	var host sql.NullString
	var port sql.NullInt64
	err := row.Scan(&bc.BotID, &bc.DeviceName, &bc.DeviceUDID, &bc.Locale,
		&bc.BotType, &bc.Enabled, &host, &port)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: bot config %d: %w", botID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: fetch bot config: %w", err)
	}
	bc.SessionHost = host.String
	bc.SessionPort = int(port.Int64)
	return &bc, nil
}

// UpsertBotConfig writes a bot configuration row, used by provisioning.
func (s *Store) UpsertBotConfig(ctx context.Context, bc *BotConfig) error {
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT OR REPLACE INTO bot_configs
		(bot_id, device_name, device_udid, target_locale, bot_type, enabled, session_host, session_port)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		bc.BotID, bc.DeviceName, bc.DeviceUDID, bc.Locale, bc.BotType, bc.Enabled,
		nullable(bc.SessionHost), nullableInt(bc.SessionPort))
	if err != nil {
		return fmt.Errorf("store: upsert bot config: %w", err)
	}
	return nil
}

// SetLikeThreshold writes the popularity floor for a locale.
func (s *Store) SetLikeThreshold(ctx context.Context, locale string, minLikes int) error {
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT OR REPLACE INTO like_thresholds (locale, min_likes, enabled) VALUES (?, ?, 1)`,
		locale, minLikes)
	if err != nil {
		return fmt.Errorf("store: set like threshold: %w", err)
	}
	return nil
}

// TouchBotStart stamps the bot's last start time.
func (s *Store) TouchBotStart(ctx context.Context, botID int) error {
	_, err := dbopen.Exec(ctx, s.db,
		`UPDATE bot_configs SET last_started_at = ? WHERE bot_id = ?`, now(), botID)
	return err
}

// LikeThreshold returns the minimum like count for a locale. ErrNotFound
// means the caller should fall back to the process-wide default.
func (s *Store) LikeThreshold(ctx context.Context, locale string) (int, error) {
	var min int
	err := s.db.QueryRowContext(ctx,
		`SELECT min_likes FROM like_thresholds WHERE locale = ? AND enabled = 1`,
		locale).Scan(&min)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("store: like threshold for %s: %w", locale, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("store: like threshold: %w", err)
	}
	return min, nil
}

// OldestSearchTerm picks the least recently used enabled term for a locale
// and stamps it as just-used, in one transaction. SQLite serialises writers
// (plus busy_timeout), so concurrent instances cannot select the same term
// in the same instant — the SQLite rendition of read-lock-then-update.
func (s *Store) OldestSearchTerm(ctx context.Context, locale string) (string, error) {
	var term string
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT id, term FROM search_terms
			WHERE locale = ? AND enabled = 1
			ORDER BY last_used ASC LIMIT 1`, locale).Scan(&id, &term)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("store: search terms for %s: %w", locale, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("store: select search term: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE search_terms SET last_used = ? WHERE id = ?`, now(), id); err != nil {
			return fmt.Errorf("store: touch search term: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return term, nil
}

// AddSearchTerm registers a term in the rotation. last_used zero puts it at
// the front of the queue.
func (s *Store) AddSearchTerm(ctx context.Context, term, locale string) error {
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO search_terms (term, locale, last_used, enabled) VALUES (?, ?, 0, 1)`,
		term, locale)
	if err != nil {
		return fmt.Errorf("store: add search term: %w", err)
	}
	return nil
}
