package store

import (
	"testing"
	"time"

	"github.com/Rajchodisetti/copy-trader/internal/money"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProcessedKeys(t *testing.T) {
	s := openTestStore(t)

	ok, err := s.HasProcessed("0xabc:0xtx1:123")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("fresh key should not be processed")
	}

	if err := s.MarkProcessed("0xabc:0xtx1:123", "placed"); err != nil {
		t.Fatal(err)
	}

	ok, err = s.HasProcessed("0xabc:0xtx1:123")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("marked key should be processed")
	}

	// Re-marking must not error; first reason wins.
	if err := s.MarkProcessed("0xabc:0xtx1:123", "duplicate"); err != nil {
		t.Fatal(err)
	}
	var reason string
	if err := s.db.QueryRow(`SELECT reason FROM processed_signals WHERE key = ?`, "0xabc:0xtx1:123").Scan(&reason); err != nil {
		t.Fatal(err)
	}
	if reason != "placed" {
		t.Errorf("expected original reason kept, got %q", reason)
	}
}

func TestDailyNotionalAccumulates(t *testing.T) {
	s := openTestStore(t)

	got, err := s.DailyNotional("2026-08-29")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("fresh day should be zero, got %d", got)
	}

	if err := s.AddDailyNotional("2026-08-29", money.MustParse("1.50")); err != nil {
		t.Fatal(err)
	}
	if err := s.AddDailyNotional("2026-08-29", money.MustParse("2.25")); err != nil {
		t.Fatal(err)
	}

	got, err = s.DailyNotional("2026-08-29")
	if err != nil {
		t.Fatal(err)
	}
	if got != money.MustParse("3.75") {
		t.Errorf("expected 3.75, got %s", got)
	}

	// Other days are independent.
	got, err = s.DailyNotional("2026-08-30")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("next day should be zero, got %d", got)
	}
}

func TestCooldownRoundTrip(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Cooldown("0xwallet")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("unset cooldown should not exist")
	}

	at := time.Now().Truncate(time.Millisecond)
	if err := s.SetCooldown("0xwallet", at); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.Cooldown("0xwallet")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("cooldown should exist after set")
	}
	if !got.Equal(at) {
		t.Errorf("expected %v, got %v", at, got)
	}
}

func TestLeaderStateLifecycle(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Leader()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected NoLeader initially")
	}

	since := time.Now().Truncate(time.Millisecond)
	if err := s.SetLeader(LeaderState{Wallet: "0xaaa", HeldSince: since}); err != nil {
		t.Fatal(err)
	}

	ls, ok, err := s.Leader()
	if err != nil {
		t.Fatal(err)
	}
	if !ok || ls.Wallet != "0xaaa" || !ls.HeldSince.Equal(since) {
		t.Errorf("unexpected leader state: %+v ok=%v", ls, ok)
	}

	// Replacing keeps a single row.
	if err := s.SetLeader(LeaderState{Wallet: "0xbbb", HeldSince: since}); err != nil {
		t.Fatal(err)
	}
	ls, _, err = s.Leader()
	if err != nil {
		t.Fatal(err)
	}
	if ls.Wallet != "0xbbb" {
		t.Errorf("expected replaced leader, got %s", ls.Wallet)
	}

	if err := s.ClearLeader(); err != nil {
		t.Fatal(err)
	}
	_, ok, err = s.Leader()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected NoLeader after clear")
	}
}

func TestSelectedWalletsSwap(t *testing.T) {
	s := openTestStore(t)

	if err := s.ReplaceSelectedWallets(map[string]float64{"0xa": 0.6, "0xb": 0.4}); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceSelectedWallets(map[string]float64{"0xc": 1.0}); err != nil {
		t.Fatal(err)
	}

	sel, err := s.SelectedWallets()
	if err != nil {
		t.Fatal(err)
	}
	if len(sel) != 1 || sel["0xc"] != 1.0 {
		t.Errorf("expected swap to replace selection, got %v", sel)
	}
}

func TestSaveResult(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveResult("k1", "skipped", "market-closed", `{"status":"skipped"}`); err != nil {
		t.Fatal(err)
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM mirror_results WHERE key = 'k1'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 audit row, got %d", n)
	}
}
