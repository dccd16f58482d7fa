package storage

// schema is applied with CREATE ... IF NOT EXISTS on every Open, mirroring
// the idempotent-migration style used throughout the corpus (e.g. beads'
// sqlite schema: plain DDL strings guarded by IF NOT EXISTS, no migration
// framework).
const schema = `
CREATE TABLE IF NOT EXISTS keys (
    db            INTEGER NOT NULL,
    key           BLOB    NOT NULL,
    type          TEXT    NOT NULL,
    expire_at_ms  INTEGER,
    created_at_ms INTEGER NOT NULL,
    updated_at_ms INTEGER NOT NULL,
    version       INTEGER NOT NULL DEFAULT 1,
    last_access_ms INTEGER NOT NULL DEFAULT 0,
    access_count   INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (db, key)
);
CREATE INDEX IF NOT EXISTS idx_keys_expire ON keys(expire_at_ms);
CREATE INDEX IF NOT EXISTS idx_keys_db ON keys(db);

CREATE TABLE IF NOT EXISTS strings (
    db INTEGER NOT NULL, key BLOB NOT NULL, value BLOB NOT NULL,
    PRIMARY KEY (db, key),
    FOREIGN KEY (db, key) REFERENCES keys(db, key) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS hashes (
    db INTEGER NOT NULL, key BLOB NOT NULL, field BLOB NOT NULL, value BLOB NOT NULL,
    PRIMARY KEY (db, key, field),
    FOREIGN KEY (db, key) REFERENCES keys(db, key) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS list_items (
    db INTEGER NOT NULL, key BLOB NOT NULL, position REAL NOT NULL, value BLOB NOT NULL,
    PRIMARY KEY (db, key, position),
    FOREIGN KEY (db, key) REFERENCES keys(db, key) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_list_order ON list_items(db, key, position);

CREATE TABLE IF NOT EXISTS set_members (
    db INTEGER NOT NULL, key BLOB NOT NULL, member BLOB NOT NULL,
    PRIMARY KEY (db, key, member),
    FOREIGN KEY (db, key) REFERENCES keys(db, key) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS zset_members (
    db INTEGER NOT NULL, key BLOB NOT NULL, member BLOB NOT NULL, score REAL NOT NULL,
    PRIMARY KEY (db, key, member),
    FOREIGN KEY (db, key) REFERENCES keys(db, key) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_zset_score ON zset_members(db, key, score, member);

CREATE TABLE IF NOT EXISTS stream_entries (
    db INTEGER NOT NULL, key BLOB NOT NULL, id_ms INTEGER NOT NULL, id_seq INTEGER NOT NULL,
    fields BLOB NOT NULL,
    PRIMARY KEY (db, key, id_ms, id_seq),
    FOREIGN KEY (db, key) REFERENCES keys(db, key) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS stream_groups (
    db INTEGER NOT NULL, key BLOB NOT NULL, name TEXT NOT NULL,
    last_delivered_ms INTEGER NOT NULL, last_delivered_seq INTEGER NOT NULL,
    PRIMARY KEY (db, key, name),
    FOREIGN KEY (db, key) REFERENCES keys(db, key) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS stream_consumers (
    db INTEGER NOT NULL, key BLOB NOT NULL, group_name TEXT NOT NULL, name TEXT NOT NULL,
    seen_at_ms INTEGER NOT NULL,
    PRIMARY KEY (db, key, group_name, name)
);

CREATE TABLE IF NOT EXISTS stream_pending (
    db INTEGER NOT NULL, key BLOB NOT NULL, group_name TEXT NOT NULL,
    id_ms INTEGER NOT NULL, id_seq INTEGER NOT NULL,
    consumer TEXT NOT NULL, delivered_at_ms INTEGER NOT NULL, delivery_count INTEGER NOT NULL,
    PRIMARY KEY (db, key, group_name, id_ms, id_seq)
);

CREATE TABLE IF NOT EXISTS history_config (
    scope TEXT NOT NULL, target TEXT NOT NULL, enabled INTEGER NOT NULL,
    retention_kind TEXT NOT NULL, retention_value INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (scope, target)
);

CREATE TABLE IF NOT EXISTS history_versions (
    db INTEGER NOT NULL, key BLOB NOT NULL, version_num INTEGER NOT NULL,
    operation TEXT NOT NULL, timestamp_ms INTEGER NOT NULL, snapshot BLOB,
    PRIMARY KEY (db, key, version_num)
);
CREATE INDEX IF NOT EXISTS idx_history_ts ON history_versions(db, key, timestamp_ms);

CREATE VIRTUAL TABLE IF NOT EXISTS search_index USING fts5(
    db UNINDEXED, key UNINDEXED, body, tokenize = 'porter unicode61'
);
`
