// Package store persists everything the engine must remember across
// restarts: processed signal keys, per-day notional accumulators,
// per-wallet cooldown timestamps, selection state and the audit trail of
// mirror results. SQLite keeps it a single file with no server.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Rajchodisetti/copy-trader/internal/money"
)

type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at the given path with WAL
// mode enabled and runs migrations.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// HasProcessed reports whether a signal key was already handled.
func (s *Store) HasProcessed(key string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM processed_signals WHERE key = ?`, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying processed key: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed records a signal key with the reason it was handled.
// Re-marking an existing key keeps the original reason (first writer wins;
// the first evaluation is the authoritative one).
func (s *Store) MarkProcessed(key, reason string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO processed_signals (key, reason, processed_at) VALUES (?, ?, ?)`,
		key, reason, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("marking processed: %w", err)
	}
	return nil
}

// DailyNotional returns the notional already placed on a UTC calendar day
// (formatted 2006-01-02). Missing days read as zero.
func (s *Store) DailyNotional(day string) (money.Micros, error) {
	var v int64
	err := s.db.QueryRow(`SELECT notional_micros FROM daily_notional WHERE day = ?`, day).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying daily notional: %w", err)
	}
	return money.Micros(v), nil
}

// AddDailyNotional accumulates placed notional against a UTC day.
func (s *Store) AddDailyNotional(day string, amount money.Micros) error {
	_, err := s.db.Exec(`
		INSERT INTO daily_notional (day, notional_micros) VALUES (?, ?)
		ON CONFLICT(day) DO UPDATE SET notional_micros = notional_micros + excluded.notional_micros`,
		day, int64(amount),
	)
	if err != nil {
		return fmt.Errorf("adding daily notional: %w", err)
	}
	return nil
}

// Cooldown returns the last-switched-away timestamp for a wallet, if any.
func (s *Store) Cooldown(wallet string) (time.Time, bool, error) {
	var ms int64
	err := s.db.QueryRow(`SELECT switched_away_ms FROM wallet_cooldowns WHERE wallet = ?`, wallet).Scan(&ms)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying cooldown: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}

// SetCooldown records the moment a wallet was switched away from.
func (s *Store) SetCooldown(wallet string, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO wallet_cooldowns (wallet, switched_away_ms) VALUES (?, ?)
		ON CONFLICT(wallet) DO UPDATE SET switched_away_ms = excluded.switched_away_ms`,
		wallet, at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("setting cooldown: %w", err)
	}
	return nil
}

// LeaderState is the persisted half of the LEADER-mode state machine.
type LeaderState struct {
	Wallet    string
	HeldSince time.Time
}

// Leader returns the currently held leader, if any.
func (s *Store) Leader() (LeaderState, bool, error) {
	var wallet string
	var ms int64
	err := s.db.QueryRow(`SELECT wallet, held_since_ms FROM leader_state WHERE id = 1`).Scan(&wallet, &ms)
	if err == sql.ErrNoRows {
		return LeaderState{}, false, nil
	}
	if err != nil {
		return LeaderState{}, false, fmt.Errorf("querying leader state: %w", err)
	}
	return LeaderState{Wallet: wallet, HeldSince: time.UnixMilli(ms)}, true, nil
}

// SetLeader replaces the held leader.
func (s *Store) SetLeader(ls LeaderState) error {
	_, err := s.db.Exec(`
		INSERT INTO leader_state (id, wallet, held_since_ms) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET wallet = excluded.wallet, held_since_ms = excluded.held_since_ms`,
		ls.Wallet, ls.HeldSince.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("setting leader state: %w", err)
	}
	return nil
}

// ClearLeader transitions back to NoLeader.
func (s *Store) ClearLeader() error {
	if _, err := s.db.Exec(`DELETE FROM leader_state WHERE id = 1`); err != nil {
		return fmt.Errorf("clearing leader state: %w", err)
	}
	return nil
}

// SelectedWallets returns the previous TOPK selection (wallet -> weight).
func (s *Store) SelectedWallets() (map[string]float64, error) {
	rows, err := s.db.Query(`SELECT wallet, weight FROM selected_wallets`)
	if err != nil {
		return nil, fmt.Errorf("querying selected wallets: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var wallet string
		var weight float64
		if err := rows.Scan(&wallet, &weight); err != nil {
			return nil, fmt.Errorf("scanning selected wallet: %w", err)
		}
		out[wallet] = weight
	}
	return out, rows.Err()
}

// ReplaceSelectedWallets swaps the persisted TOPK selection wholesale.
func (s *Store) ReplaceSelectedWallets(selection map[string]float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning selection swap: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM selected_wallets`); err != nil {
		return fmt.Errorf("clearing selection: %w", err)
	}
	for wallet, weight := range selection {
		if _, err := tx.Exec(`INSERT INTO selected_wallets (wallet, weight) VALUES (?, ?)`, wallet, weight); err != nil {
			return fmt.Errorf("inserting selection: %w", err)
		}
	}
	return tx.Commit()
}

// SaveResult appends a mirror result to the audit trail. The result JSON
// is stored verbatim so operator tooling sees exactly what the engine saw.
func (s *Store) SaveResult(key, status, reason, resultJSON string) error {
	_, err := s.db.Exec(`
		INSERT INTO mirror_results (key, status, reason, result_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		key, status, reason, resultJSON, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving mirror result: %w", err)
	}
	return nil
}
