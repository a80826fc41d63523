package store

// schema creates all collector tables. Timestamps are Unix milliseconds.
const schema = `
CREATE TABLE IF NOT EXISTS bot_configs (
	bot_id          INTEGER PRIMARY KEY,
	device_name     TEXT    NOT NULL,
	device_udid     TEXT    NOT NULL,
	target_locale   TEXT    NOT NULL,
	bot_type        TEXT    NOT NULL DEFAULT 'collector',
	enabled         INTEGER NOT NULL DEFAULT 1,
	session_host    TEXT,
	session_port    INTEGER,
	last_started_at INTEGER
);

CREATE TABLE IF NOT EXISTS like_thresholds (
	locale      TEXT    PRIMARY KEY,
	min_likes   INTEGER NOT NULL,
	enabled     INTEGER NOT NULL DEFAULT 1,
	description TEXT
);

CREATE TABLE IF NOT EXISTS search_terms (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	term      TEXT    NOT NULL UNIQUE,
	locale    TEXT    NOT NULL,
	last_used INTEGER NOT NULL DEFAULT 0,
	enabled   INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS clips (
	clip_id           TEXT    PRIMARY KEY,
	url               TEXT    NOT NULL,
	channel_name      TEXT    NOT NULL DEFAULT 'N/A',
	likes_count       INTEGER NOT NULL DEFAULT 0,
	caption_text      TEXT,
	locale            TEXT    NOT NULL,
	status            TEXT    NOT NULL,
	found_source      TEXT    NOT NULL,
	search_term       TEXT,
	screenshot        BLOB,
	created_at        INTEGER NOT NULL,
	last_processed_at INTEGER
);

CREATE TABLE IF NOT EXISTS clip_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	clip_id     TEXT    NOT NULL,
	status_from TEXT    NOT NULL,
	status_to   TEXT    NOT NULL,
	actor       TEXT    NOT NULL,
	message     TEXT,
	created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_clip_history_clip ON clip_history(clip_id);
CREATE INDEX IF NOT EXISTS idx_search_terms_rotation ON search_terms(locale, enabled, last_used);
`
