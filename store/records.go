package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hazumi-dev/clipminer/dbopen"
)

// InsertRecord persists a clip. A unit is never stored without an identifier
// and a URL, and never while its locale is the not-available sentinel.
//
// On first discovery a new row is created with StatusAwaitingVerification.
// On rediscovery only the like count and touch time are refreshed — workflow
// status, body, and author fields stay exactly as first written, and the
// result is InsertedDuplicate.
func (s *Store) InsertRecord(ctx context.Context, clip *Clip, screenshot []byte) (InsertResult, error) {
	if clip.ID == "" || clip.URL == "" {
		return 0, fmt.Errorf("store: insert record: missing clip id or url")
	}
	// Policy gate: an unresolved locale blocks persistence outright.
	if clip.Locale == "" || clip.Locale == LocaleUnknown {
		return 0, fmt.Errorf("store: insert record %s: locale not available", clip.ID)
	}

	ts := now()
	var result InsertResult
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO clips
			(clip_id, url, channel_name, likes_count, caption_text, locale,
			 status, found_source, search_term, screenshot, created_at, last_processed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			clip.ID, clip.URL, clip.Channel, clip.Likes, clip.Caption, clip.Locale,
			StatusAwaitingVerification, clip.Source, nullable(clip.SearchTerm),
			screenshot, ts, ts,
		)
		if err != nil {
			return fmt.Errorf("store: insert clip %s: %w", clip.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("store: insert clip %s: rows affected: %w", clip.ID, err)
		}
		if n == 1 {
			result = InsertedNew
			return nil
		}

		// Duplicate discovery: refresh the popularity signal only.
		if _, err := tx.ExecContext(ctx,
			`UPDATE clips SET likes_count = ?, last_processed_at = ? WHERE clip_id = ?`,
			clip.Likes, ts, clip.ID); err != nil {
			return fmt.Errorf("store: refresh duplicate %s: %w", clip.ID, err)
		}
		result = InsertedDuplicate
		return nil
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

// GetClip loads a stored record by identifier.
func (s *Store) GetClip(ctx context.Context, id string) (*ClipRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT clip_id, url, channel_name, likes_count, caption_text, locale,
		status, found_source, search_term, created_at, last_processed_at
		FROM clips WHERE clip_id = ?`, id)

	var r ClipRecord
	var caption, term sql.NullString
	var processed sql.NullInt64
	err := row.Scan(&r.ID, &r.URL, &r.Channel, &r.Likes, &caption, &r.Locale,
		&r.Status, &r.Source, &term, &r.CreatedAt, &processed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: clip %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get clip: %w", err)
	}
	r.Caption = caption.String
	r.SearchTerm = term.String
	r.LastProcessedAt = processed.Int64
	return &r, nil
}

// LogHistory appends one audit row. History rows are never updated or
// deleted.
func (s *Store) LogHistory(ctx context.Context, clipID, from, to, message, actor string) error {
	if clipID == "" {
		s.logger.Warn("store: history log attempted with no clip id", "message", message)
		return nil
	}
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO clip_history (clip_id, status_from, status_to, actor, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		clipID, from, to, actor, message, now())
	if err != nil {
		return fmt.Errorf("store: log history %s: %w", clipID, err)
	}
	return nil
}

// History returns all audit rows for a clip, oldest first.
func (s *Store) History(ctx context.Context, clipID string) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, clip_id, status_from, status_to, actor, message, created_at
		FROM clip_history WHERE clip_id = ? ORDER BY id ASC`, clipID)
	if err != nil {
		return nil, fmt.Errorf("store: history %s: %w", clipID, err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var msg sql.NullString
		if err := rows.Scan(&e.ID, &e.ClipID, &e.StatusFrom, &e.StatusTo,
			&e.Actor, &msg, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan history: %w", err)
		}
		e.Message = msg.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// IsolateRecord marks a clip as needing review and appends exactly one
// history row explaining why. The status update is best-effort — for units
// rejected before persistence there is no row to update, and the history
// entry alone records the decision.
func (s *Store) IsolateRecord(ctx context.Context, clipID, reason, fromStatus, actor string) error {
	if clipID == "" {
		s.logger.Error("store: cannot isolate record without clip id", "reason", reason)
		return nil
	}

	if _, err := dbopen.Exec(ctx, s.db,
		`UPDATE clips SET status = ?, last_processed_at = ? WHERE clip_id = ?`,
		StatusNeedsReview, now(), clipID); err != nil {
		s.logger.Error("store: isolate status update failed", "clip_id", clipID, "error", err)
	}

	msg := fmt.Sprintf("isolated during %q: %s", fromStatus, reason)
	return s.LogHistory(ctx, clipID, fromStatus, StatusNeedsReview, msg, actor)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
