// Package journal keeps an append-only JSONL trail of every decision
// outcome. SQLite is the queryable audit store; the journal is the
// operator-facing file you can tail and grep without tooling.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is one decision outcome as written to the journal.
type Record struct {
	Key        string    `json:"key"`
	Wallet     string    `json:"wallet,omitempty"`
	Side       string    `json:"side,omitempty"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	OrderID    string    `json:"order_id,omitempty"`
	Notional   float64   `json:"notional,omitempty"`
	Size       float64   `json:"size,omitempty"`
	LimitPrice float64   `json:"limit_price,omitempty"`
	At         time.Time `json:"at"`
}

type Journal struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	return &Journal{path: path, now: time.Now}, nil
}

// Append writes one record. The file is opened per write so rotation by
// external tooling never wedges the process.
func (j *Journal) Append(rec Record) error {
	if rec.At.IsZero() {
		rec.At = j.now().UTC()
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding journal record: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing journal record: %w", err)
	}
	return nil
}

// ReadSince returns the records written at or after the cutoff, oldest
// first. Unparseable lines are skipped, not fatal.
func (j *Journal) ReadSince(cutoff time.Time) ([]Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if rec.At.Before(cutoff) {
			continue
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	return out, nil
}
