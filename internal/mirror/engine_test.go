package mirror

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/Rajchodisetti/copy-trader/internal/allowance"
	"github.com/Rajchodisetti/copy-trader/internal/exchange"
	"github.com/Rajchodisetti/copy-trader/internal/money"
	"github.com/Rajchodisetti/copy-trader/internal/normalize"
)

var testNow = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

type fakeMarkets struct {
	meta     exchange.MarketMeta
	metaErr  error
	book     exchange.OrderBook
	bookErr  error
	price    float64
	priceErr error
}

func (f *fakeMarkets) MarketMetadata(ctx context.Context, conditionID string) (exchange.MarketMeta, error) {
	return f.meta, f.metaErr
}
func (f *fakeMarkets) OrderBook(ctx context.Context, tokenID string) (exchange.OrderBook, error) {
	return f.book, f.bookErr
}
func (f *fakeMarkets) Price(ctx context.Context, tokenID string, side exchange.Side) (float64, error) {
	return f.price, f.priceErr
}

type fakePositions struct {
	open []exchange.OpenPosition
	err  error
}

func (f *fakePositions) FetchClosedPositions(ctx context.Context, wallet string) ([]exchange.ClosedPosition, error) {
	return nil, nil
}
func (f *fakePositions) FetchOpenPositions(ctx context.Context, wallet, conditionID string) ([]exchange.OpenPosition, error) {
	return f.open, f.err
}

type fakeVenue struct {
	reqs []exchange.OrderRequest
	errs []error // consumed per call; nil means success
}

func (f *fakeVenue) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResponse, error) {
	f.reqs = append(f.reqs, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return exchange.OrderResponse{}, err
		}
	}
	return exchange.OrderResponse{OrderID: fmt.Sprintf("ord-%d", len(f.reqs))}, nil
}
func (f *fakeVenue) BalanceAllowance(ctx context.Context, owner string) (exchange.BalanceAllowance, error) {
	return exchange.BalanceAllowance{}, nil
}
func (f *fakeVenue) OpenOrders(ctx context.Context, owner string) ([]exchange.OpenOrder, error) {
	return nil, nil
}
func (f *fakeVenue) ApproveAllowance(ctx context.Context, amount money.Micros) error { return nil }

type fakeGuard struct {
	snap     allowance.Snapshot
	err      error
	cooldown bool
	tripped  int
}

func (f *fakeGuard) Check(ctx context.Context, required money.Micros) (allowance.Snapshot, error) {
	return f.snap, f.err
}
func (f *fakeGuard) TripBalanceCooldown() { f.tripped++ }
func (f *fakeGuard) BalanceCooldownActive() (bool, time.Time) {
	return f.cooldown, time.Time{}
}

type fakeLedger struct {
	spent map[string]money.Micros
}

func (f *fakeLedger) DailyNotional(day string) (money.Micros, error) {
	return f.spent[day], nil
}
func (f *fakeLedger) AddDailyNotional(day string, amount money.Micros) error {
	if f.spent == nil {
		f.spent = map[string]money.Micros{}
	}
	f.spent[day] += amount
	return nil
}

type fixture struct {
	markets   *fakeMarkets
	positions *fakePositions
	venue     *fakeVenue
	guard     *fakeGuard
	ledger    *fakeLedger
	engine    *Engine
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		markets: &fakeMarkets{
			meta: exchange.MarketMeta{
				ConditionID: "0xc1",
				Active:      true,
				Category:    "Crypto",
				Title:       "Will BTC close above 100k",
				Tokens: []exchange.Token{
					{TokenID: "71321045679252212594626385532706912750332728571942532289631379312455583992563", Outcome: "Yes"},
					{TokenID: "52114319501245915516055106046884209969926127482827954674443846427813813222426", Outcome: "No"},
				},
				Raw: map[string]any{"endDate": testNow.Add(24 * time.Hour).Format(time.RFC3339)},
			},
			book: exchange.OrderBook{
				Bids:         []exchange.BookLevel{{Price: "0.49", Size: "1000"}},
				Asks:         []exchange.BookLevel{{Price: "0.50", Size: "1000"}},
				TickSize:     "0.01",
				MinOrderSize: "1",
			},
		},
		positions: &fakePositions{},
		venue:     &fakeVenue{},
		guard: &fakeGuard{
			snap: allowance.Snapshot{
				Owner:     "0xme",
				Balance:   money.MustParse("1000"),
				Allowance: money.MustParse("1000"),
				Available: money.MustParse("1000"),
			},
		},
		ledger: &fakeLedger{},
	}
	cfg := Config{
		Owner:               "0xme",
		SignerAddress:       "0xme",
		CopyRatio:           0.02,
		MaxNotionalPerTrade: 50,
		DailyNotionalCap:    money.MustParse("200"),
		OrderTTLSeconds:     3600,
		EndTimeSafety:       5 * time.Minute,
		ExpirationSafety:    2 * time.Minute,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.engine = NewEngine(f.markets, f.positions, f.venue, f.guard, f.ledger, cfg)
	f.engine.now = func() time.Time { return testNow }
	return f
}

func buyTrade() *normalize.Trade {
	return &normalize.Trade{
		Wallet:       "0xfollowed",
		TxID:         "0xtx1",
		ConditionID:  "0xc1",
		OutcomeIndex: 0,
		Side:         exchange.Buy,
		Size:         100,
		Price:        0.5,
		TimestampMs:  testNow.UnixMilli(),
	}
}

func sellTrade() *normalize.Trade {
	t := buyTrade()
	t.Side = exchange.Sell
	return t
}

func TestDecidePlacesScaledBuy(t *testing.T) {
	f := newFixture(t, nil)
	res := f.engine.Decide(context.Background(), buyTrade(), 1.0)

	if res.Status != StatusPlaced {
		t.Fatalf("status=%s reason=%s, want placed", res.Status, res.Reason)
	}
	// 100 shares * 0.5 = 50 notional, * 0.02 ratio = 1.0, / 0.5 = 2 shares.
	if res.Size != 2.0 {
		t.Fatalf("size=%v want 2.0", res.Size)
	}
	if res.LimitPrice != 0.5 {
		t.Fatalf("limit=%v want 0.5", res.LimitPrice)
	}
	if res.Notional != 1.0 {
		t.Fatalf("notional=%v want 1.0", res.Notional)
	}
	if len(f.venue.reqs) != 1 {
		t.Fatalf("submitted %d orders, want 1", len(f.venue.reqs))
	}
	req := f.venue.reqs[0]
	if req.Mode != exchange.GTD || req.TTLSeconds != 3600 {
		t.Fatalf("mode=%s ttl=%d, want GTD 3600", req.Mode, req.TTLSeconds)
	}
	if got := f.ledger.spent[testNow.Format("2006-01-02")]; got != money.MustParse("1") {
		t.Fatalf("daily spend=%d want 1000000", got)
	}
}

func TestDecideWeightScalesNotional(t *testing.T) {
	f := newFixture(t, nil)
	res := f.engine.Decide(context.Background(), buyTrade(), 0.5)
	if res.Status != StatusPlaced {
		t.Fatalf("status=%s reason=%s", res.Status, res.Reason)
	}
	if res.Size != 1.0 {
		t.Fatalf("size=%v want 1.0", res.Size)
	}
}

func TestDecideRejectsMalformedTrades(t *testing.T) {
	f := newFixture(t, nil)
	cases := []func(*normalize.Trade){
		func(tr *normalize.Trade) { tr.Side = "HOLD" },
		func(tr *normalize.Trade) { tr.Size = 0 },
		func(tr *normalize.Trade) { tr.Size = math.Inf(1) },
		func(tr *normalize.Trade) { tr.Price = 0 },
		func(tr *normalize.Trade) { tr.Price = 1.5 },
		func(tr *normalize.Trade) { tr.ConditionID = "" },
		func(tr *normalize.Trade) { tr.OutcomeIndex = -1 },
	}
	for i, mutate := range cases {
		tr := buyTrade()
		mutate(tr)
		res := f.engine.Decide(context.Background(), tr, 1.0)
		if res.Status != StatusSkipped || res.Reason != ReasonInvalidTrade {
			t.Fatalf("case %d: status=%s reason=%s, want skipped/invalid-trade", i, res.Status, res.Reason)
		}
	}
}

func TestDecideTokenResolution(t *testing.T) {
	f := newFixture(t, nil)
	tr := buyTrade()
	tr.OutcomeIndex = 5
	if res := f.engine.Decide(context.Background(), tr, 1.0); res.Reason != ReasonTokenUnresolved {
		t.Fatalf("out-of-range index: reason=%s", res.Reason)
	}

	// A token id shaped like a condition id or wallet means upstream
	// handed back the wrong field.
	f.markets.meta.Tokens[0].TokenID = "0x4c241ad47b6c0c08e956f1f1a9d1fecb2d4e5cf08a7f4e4e3cbeafb4a2f9c7aa"
	if res := f.engine.Decide(context.Background(), buyTrade(), 1.0); res.Reason != ReasonTokenSuspicious {
		t.Fatalf("hex token id: reason=%s", res.Reason)
	}

	f.markets.meta.Tokens[0].TokenID = ""
	if res := f.engine.Decide(context.Background(), buyTrade(), 1.0); res.Reason != ReasonTokenUnresolved {
		t.Fatalf("empty token id: reason=%s", res.Reason)
	}
}

func TestDecideBalanceCooldownGatesBuysOnly(t *testing.T) {
	f := newFixture(t, nil)
	f.guard.cooldown = true
	if res := f.engine.Decide(context.Background(), buyTrade(), 1.0); res.Reason != ReasonBalanceCooldown {
		t.Fatalf("buy during cooldown: reason=%s", res.Reason)
	}

	f.positions.open = []exchange.OpenPosition{{ConditionID: "0xc1", OutcomeIndex: 0, Size: 10}}
	if res := f.engine.Decide(context.Background(), sellTrade(), 1.0); res.Status != StatusPlaced {
		t.Fatalf("sell during cooldown: status=%s reason=%s, want placed", res.Status, res.Reason)
	}
}

func TestDecideLifecycleGates(t *testing.T) {
	f := newFixture(t, nil)
	f.markets.meta.Closed = true
	if res := f.engine.Decide(context.Background(), buyTrade(), 1.0); res.Reason != ReasonMarketClosed {
		t.Fatalf("closed market: reason=%s", res.Reason)
	}

	f = newFixture(t, func(c *Config) {
		c.Categories = CategoryFilter{Blocked: []string{"crypto"}}
	})
	if res := f.engine.Decide(context.Background(), buyTrade(), 1.0); res.Reason != ReasonCategoryBlocked {
		t.Fatalf("blocked category: reason=%s", res.Reason)
	}
}

func TestDecideEndTimeSafety(t *testing.T) {
	f := newFixture(t, nil)
	f.markets.meta.Raw["endDate"] = testNow.Add(4 * time.Minute).Format(time.RFC3339)
	if res := f.engine.Decide(context.Background(), buyTrade(), 1.0); res.Reason != ReasonMarketExpiring {
		t.Fatalf("inside safety margin: reason=%s", res.Reason)
	}
}

func TestDecideShortensTTLToFeasibleWindow(t *testing.T) {
	f := newFixture(t, nil)
	// 600s to market end minus 120s expiration safety leaves 480s,
	// shorter than the configured 3600s TTL.
	f.markets.meta.Raw["endDate"] = testNow.Add(10 * time.Minute).Format(time.RFC3339)
	res := f.engine.Decide(context.Background(), buyTrade(), 1.0)
	if res.Status != StatusPlaced {
		t.Fatalf("status=%s reason=%s", res.Status, res.Reason)
	}
	if ttl := f.venue.reqs[0].TTLSeconds; ttl != 480 {
		t.Fatalf("ttl=%d want 480", ttl)
	}
}

func TestDecideTTLTooShort(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.EndTimeSafety = 0
	})
	f.markets.meta.Raw["endDate"] = testNow.Add(90 * time.Second).Format(time.RFC3339)
	if res := f.engine.Decide(context.Background(), buyTrade(), 1.0); res.Reason != ReasonTTLTooShort {
		t.Fatalf("reason=%s want ttl-too-short", res.Reason)
	}
}

func TestDecidePriceFallback(t *testing.T) {
	// Without a book the venue minimum defaults to 5 shares, so copy
	// enough notional to clear it.
	f := newFixture(t, func(c *Config) { c.CopyRatio = 0.1 })
	f.markets.bookErr = &exchange.APIError{Op: "book", Status: 500, Body: "boom"}
	f.markets.price = 0.5
	res := f.engine.Decide(context.Background(), buyTrade(), 1.0)
	if res.Status != StatusPlaced {
		t.Fatalf("status=%s reason=%s, want placed via price fallback", res.Status, res.Reason)
	}

	f.markets.price = 0
	f.markets.priceErr = &exchange.APIError{Op: "price", Status: 500, Body: "boom"}
	if res := f.engine.Decide(context.Background(), buyTrade(), 1.0); res.Reason != ReasonNoPrice {
		t.Fatalf("reason=%s want no-price", res.Reason)
	}
}

func TestDecideZeroWeight(t *testing.T) {
	f := newFixture(t, nil)
	if res := f.engine.Decide(context.Background(), buyTrade(), 0); res.Reason != ReasonZeroWeight {
		t.Fatalf("reason=%s want zero-weight", res.Reason)
	}
}

func TestDecideDailyCap(t *testing.T) {
	f := newFixture(t, nil)
	day := testNow.Format("2006-01-02")
	f.ledger.AddDailyNotional(day, money.MustParse("199.50"))
	if res := f.engine.Decide(context.Background(), buyTrade(), 1.0); res.Reason != ReasonDailyCap {
		t.Fatalf("reason=%s want daily-cap", res.Reason)
	}
	if len(f.venue.reqs) != 0 {
		t.Fatalf("order submitted past daily cap")
	}
}

func TestDecideSellClampsToHeldSize(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.CopyRatio = 1.0
		c.MaxNotionalPerTrade = 0
	})
	f.positions.open = []exchange.OpenPosition{{ConditionID: "0xc1", OutcomeIndex: 0, Size: 3}}

	// 100 * 0.5 notional at full ratio asks for ~102 shares off the
	// 0.49 bid; we only hold 3.
	res := f.engine.Decide(context.Background(), sellTrade(), 1.0)
	if res.Status != StatusPlaced {
		t.Fatalf("status=%s reason=%s", res.Status, res.Reason)
	}
	if res.Size != 3 {
		t.Fatalf("size=%v want 3 (held)", res.Size)
	}
}

func TestDecideSellWithoutPosition(t *testing.T) {
	f := newFixture(t, nil)
	if res := f.engine.Decide(context.Background(), sellTrade(), 1.0); res.Reason != ReasonNoPositionToSell {
		t.Fatalf("reason=%s want no-position-to-sell", res.Reason)
	}
}

func TestDecideBelowMinOrderSize(t *testing.T) {
	f := newFixture(t, nil)
	f.markets.book.MinOrderSize = "5"
	// Desired is 2 shares, under the venue minimum of 5.
	if res := f.engine.Decide(context.Background(), buyTrade(), 1.0); res.Reason != ReasonBelowMinSize {
		t.Fatalf("reason=%s want below-min-size", res.Reason)
	}
}

func TestDecideSlippageRoundsAwayFromTouch(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.SlippagePct = 0.02
	})
	f.markets.book.Asks = []exchange.BookLevel{{Price: "0.51", Size: "1000"}}
	res := f.engine.Decide(context.Background(), buyTrade(), 1.0)
	if res.Status != StatusPlaced {
		t.Fatalf("status=%s reason=%s", res.Status, res.Reason)
	}
	// 0.51 * 1.02 = 0.5202, ceil to 0.01 tick = 0.53.
	if res.LimitPrice != 0.53 {
		t.Fatalf("buy limit=%v want 0.53", res.LimitPrice)
	}

	f = newFixture(t, func(c *Config) {
		c.SlippagePct = 0.02
	})
	f.positions.open = []exchange.OpenPosition{{ConditionID: "0xc1", OutcomeIndex: 0, Size: 100}}
	res = f.engine.Decide(context.Background(), sellTrade(), 1.0)
	if res.Status != StatusPlaced {
		t.Fatalf("sell status=%s reason=%s", res.Status, res.Reason)
	}
	// 0.49 * 0.98 = 0.4802, floor to 0.01 tick = 0.48.
	if res.LimitPrice != 0.48 {
		t.Fatalf("sell limit=%v want 0.48", res.LimitPrice)
	}
}

func TestDecidePreflightShortfall(t *testing.T) {
	f := newFixture(t, nil)
	f.guard.snap = allowance.Snapshot{
		Owner:     "0xme",
		Balance:   money.MustParse("100"),
		Allowance: money.MustParse("0.5"),
		Available: money.MustParse("0.5"),
	}
	res := f.engine.Decide(context.Background(), buyTrade(), 1.0)
	if res.Status != StatusSkipped || res.Reason != allowance.ReasonAllowanceTooLow {
		t.Fatalf("status=%s reason=%s, want skipped/allowance-too-low", res.Status, res.Reason)
	}
	if f.guard.tripped != 1 {
		t.Fatalf("breaker tripped %d times, want 1", f.guard.tripped)
	}
	if res.Diag == nil || res.Diag.Funding == nil {
		t.Fatalf("shortfall result missing funding snapshot")
	}
}

func TestDecideFunderMismatch(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.SignerAddress = "0xother"
	})
	res := f.engine.Decide(context.Background(), buyTrade(), 1.0)
	if res.Status != StatusFailed || res.Reason != ReasonFunderMismatch {
		t.Fatalf("status=%s reason=%s, want failed/funder-mismatch", res.Status, res.Reason)
	}
}

func TestDecideProxySchemeRequiresDistinctFunder(t *testing.T) {
	owner := "0x1111111111111111111111111111111111111111"
	signer := "0x2222222222222222222222222222222222222222"

	f := newFixture(t, func(c *Config) {
		c.SignatureType = 2
		c.Owner = owner
		c.SignerAddress = owner
	})
	res := f.engine.Decide(context.Background(), buyTrade(), 1.0)
	if res.Status != StatusFailed || res.Reason != ReasonFunderMismatch {
		t.Fatalf("proxy scheme with owner == signer: status=%s reason=%s, want failed/funder-mismatch", res.Status, res.Reason)
	}

	// A funder that is not a well-formed address fails the same gate.
	f = newFixture(t, func(c *Config) {
		c.SignatureType = 1
		c.Owner = "0xnotanaddress"
		c.SignerAddress = signer
	})
	if res := f.engine.Decide(context.Background(), buyTrade(), 1.0); res.Reason != ReasonFunderMismatch {
		t.Fatalf("malformed proxy funder: reason=%s want funder-mismatch", res.Reason)
	}

	f = newFixture(t, func(c *Config) {
		c.SignatureType = 2
		c.Owner = owner
		c.SignerAddress = signer
	})
	if res := f.engine.Decide(context.Background(), buyTrade(), 1.0); res.Status != StatusPlaced {
		t.Fatalf("distinct proxy funder: status=%s reason=%s, want placed", res.Status, res.Reason)
	}
}

func TestDecideRejectsOneSecondTTL(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.EndTimeSafety = 0 })
	// The market ends one second past the expiration margin, leaving a
	// feasible TTL of exactly 1s.
	f.markets.meta.Raw["endDate"] = testNow.Add(2*time.Minute + time.Second).Format(time.RFC3339)
	if res := f.engine.Decide(context.Background(), buyTrade(), 1.0); res.Reason != ReasonTTLTooShort {
		t.Fatalf("1s window: reason=%s want ttl-too-short", res.Reason)
	}

	// Two seconds is the shortest window that still places.
	f.markets.meta.Raw["endDate"] = testNow.Add(2*time.Minute + 2*time.Second).Format(time.RFC3339)
	res := f.engine.Decide(context.Background(), buyTrade(), 1.0)
	if res.Status != StatusPlaced {
		t.Fatalf("2s window: status=%s reason=%s", res.Status, res.Reason)
	}
	if ttl := f.venue.reqs[0].TTLSeconds; ttl != 2 {
		t.Fatalf("ttl=%d want 2", ttl)
	}
}

func TestDecideSizePrecisionFollowsMinOrderSizeString(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.CopyRatio = 0.02345 })
	f.markets.book.MinOrderSize = "0.10"
	res := f.engine.Decide(context.Background(), buyTrade(), 1.0)
	if res.Status != StatusPlaced {
		t.Fatalf("status=%s reason=%s", res.Status, res.Reason)
	}
	// Desired 1.1725 at 0.5 asks for 2.345 shares. The trailing zero in
	// "0.10" grants two decimals, so the floor keeps 2.34 rather than
	// the 2.3 a float round-trip of the minimum would give.
	if res.Size != 2.34 {
		t.Fatalf("size=%v want 2.34", res.Size)
	}
}

func TestDecideRetriesExpiredGTDAsGTC(t *testing.T) {
	f := newFixture(t, nil)
	f.venue.errs = []error{&exchange.APIError{Op: "order", Status: 400, Body: "invalid expiration"}}
	res := f.engine.Decide(context.Background(), buyTrade(), 1.0)
	if res.Status != StatusPlaced {
		t.Fatalf("status=%s reason=%s", res.Status, res.Reason)
	}
	if len(f.venue.reqs) != 2 {
		t.Fatalf("submitted %d orders, want 2", len(f.venue.reqs))
	}
	if f.venue.reqs[0].Mode != exchange.GTD || f.venue.reqs[1].Mode != exchange.GTC {
		t.Fatalf("modes=%s,%s want GTD then GTC", f.venue.reqs[0].Mode, f.venue.reqs[1].Mode)
	}
	if f.venue.reqs[1].TTLSeconds != 0 {
		t.Fatalf("GTC retry kept ttl=%d", f.venue.reqs[1].TTLSeconds)
	}
}

func TestDecideRetriesNonceRaces(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.NonceRetry = exchange.RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			Retryable:   exchange.IsNonceOrFee,
		}
	})
	f.venue.errs = []error{
		&exchange.APIError{Op: "order", Status: 400, Body: "invalid nonce"},
		&exchange.APIError{Op: "order", Status: 400, Body: "invalid nonce"},
	}
	res := f.engine.Decide(context.Background(), buyTrade(), 1.0)
	if res.Status != StatusPlaced {
		t.Fatalf("status=%s reason=%s", res.Status, res.Reason)
	}
	if len(f.venue.reqs) != 3 {
		t.Fatalf("submitted %d attempts, want 3", len(f.venue.reqs))
	}
}

func TestDecideAuthErrorTripsBackoff(t *testing.T) {
	f := newFixture(t, nil)
	f.venue.errs = []error{&exchange.APIError{Op: "order", Status: 401, Body: "unauthorized"}}
	res := f.engine.Decide(context.Background(), buyTrade(), 1.0)
	if res.Status != StatusFailed || res.Reason != ReasonAuthError {
		t.Fatalf("status=%s reason=%s, want failed/auth-error", res.Status, res.Reason)
	}

	// Subsequent signals short-circuit until the window passes.
	if res := f.engine.Decide(context.Background(), buyTrade(), 1.0); res.Reason != ReasonAuthBackoff {
		t.Fatalf("reason=%s want auth-backoff", res.Reason)
	}
}

func TestDecideBalanceRejectionTripsCooldown(t *testing.T) {
	f := newFixture(t, nil)
	f.venue.errs = []error{&exchange.APIError{Op: "order", Status: 400, Body: "not enough balance"}}
	res := f.engine.Decide(context.Background(), buyTrade(), 1.0)
	if res.Status != StatusFailed {
		t.Fatalf("status=%s reason=%s", res.Status, res.Reason)
	}
	if f.guard.tripped != 1 {
		t.Fatalf("breaker tripped %d times, want 1", f.guard.tripped)
	}
}

func TestDecideDryRun(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.DryRun = true })
	res := f.engine.Decide(context.Background(), buyTrade(), 1.0)
	if res.Status != StatusDryRun {
		t.Fatalf("status=%s reason=%s", res.Status, res.Reason)
	}
	if len(f.venue.reqs) != 0 {
		t.Fatalf("dry run submitted %d orders", len(f.venue.reqs))
	}
	// Spend still accrues so the cap behaves like live mode.
	if got := f.ledger.spent[testNow.Format("2006-01-02")]; got != money.MustParse("1") {
		t.Fatalf("daily spend=%d want 1000000", got)
	}
}
