package store

// Schema contains the DDL for the hub tables.
const Schema = `
-- Per-hostname selector overrides saved by users or by probe suggestions
CREATE TABLE IF NOT EXISTS site_configs (
    id                   TEXT PRIMARY KEY,
    name                 TEXT NOT NULL DEFAULT '',
    input_selector       TEXT NOT NULL DEFAULT '',
    send_button_selector TEXT NOT NULL DEFAULT '',
    prefer_enter         INTEGER,
    version              TEXT NOT NULL DEFAULT '',
    notes                TEXT NOT NULL DEFAULT '',
    updated_at           INTEGER NOT NULL
);

-- Chat pages registered at runtime, reopened on start
CREATE TABLE IF NOT EXISTS targets (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    url         TEXT NOT NULL,
    enabled     INTEGER NOT NULL DEFAULT 1,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);

-- One row per fill-and-send; record holds the full JSON attempt
CREATE TABLE IF NOT EXISTS attempts (
    id          TEXT PRIMARY KEY,
    target_id   TEXT NOT NULL DEFAULT '',
    hostname    TEXT NOT NULL,
    success     INTEGER NOT NULL,
    reason      TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL DEFAULT '',
    started_at  INTEGER NOT NULL,
    record      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_target ON attempts(target_id, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_attempts_time ON attempts(started_at DESC);
`
