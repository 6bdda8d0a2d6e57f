package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS processed_signals (
    key TEXT PRIMARY KEY,
    reason TEXT NOT NULL,
    processed_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_notional (
    day TEXT PRIMARY KEY,
    notional_micros INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS wallet_cooldowns (
    wallet TEXT PRIMARY KEY,
    switched_away_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS leader_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    wallet TEXT NOT NULL,
    held_since_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS selected_wallets (
    wallet TEXT PRIMARY KEY,
    weight REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS mirror_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    key TEXT NOT NULL,
    status TEXT NOT NULL,
    reason TEXT NOT NULL,
    result_json TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_key ON mirror_results(key);
`
