// Package mirror turns a follower's normalized trade into at most one
// order on our own account. Decide is a pipeline of hard gates; the
// first gate that fails owns the outcome, and every outcome carries a
// stable reason code for the audit trail.
package mirror

import (
	"context"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Rajchodisetti/copy-trader/internal/allowance"
	"github.com/Rajchodisetti/copy-trader/internal/exchange"
	"github.com/Rajchodisetti/copy-trader/internal/money"
	"github.com/Rajchodisetti/copy-trader/internal/normalize"
	"github.com/Rajchodisetti/copy-trader/internal/observ"
)

// Ledger is the daily-spend slice of the persistent store.
type Ledger interface {
	DailyNotional(day string) (money.Micros, error)
	AddDailyNotional(day string, amount money.Micros) error
}

// FundsGuard is the funding-preflight surface, satisfied by
// allowance.Guard.
type FundsGuard interface {
	Check(ctx context.Context, required money.Micros) (allowance.Snapshot, error)
	TripBalanceCooldown()
	BalanceCooldownActive() (bool, time.Time)
}

type Config struct {
	// Owner is our funding address; sell clamping reads its positions.
	Owner         string
	SignerAddress string
	SignatureType int

	CopyRatio           float64
	MaxNotionalPerTrade float64
	MaxSharesPerTrade   float64
	DailyNotionalCap    money.Micros
	SlippagePct         float64

	OrderTTLSeconds  int64
	EndTimeSafety    time.Duration
	ExpirationSafety time.Duration

	Categories CategoryFilter

	AuthBackoff time.Duration
	NonceRetry  exchange.RetryPolicy

	DryRun bool
}

// Engine evaluates one trade at a time. It is safe for concurrent use;
// the only mutable state is the auth backoff window.
type Engine struct {
	markets   exchange.MarketDataSource
	positions exchange.PositionSource
	venue     exchange.TradingVenue
	guard     FundsGuard
	ledger    Ledger
	cfg       Config
	now       func() time.Time

	mu               sync.Mutex
	authBackoffUntil time.Time
}

func NewEngine(markets exchange.MarketDataSource, positions exchange.PositionSource, venue exchange.TradingVenue, guard FundsGuard, ledger Ledger, cfg Config) *Engine {
	if cfg.NonceRetry.MaxAttempts == 0 {
		cfg.NonceRetry = exchange.RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    2 * time.Second,
			Retryable:   exchange.IsNonceOrFee,
		}
	}
	if cfg.AuthBackoff <= 0 {
		cfg.AuthBackoff = 5 * time.Minute
	}
	return &Engine{
		markets:   markets,
		positions: positions,
		venue:     venue,
		guard:     guard,
		ledger:    ledger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Decide evaluates a single trade against the full gate pipeline and
// returns exactly one terminal result. Callers invoke it at most once
// per idempotency key.
func (e *Engine) Decide(ctx context.Context, trade *normalize.Trade, weight float64) Result {
	res := e.decide(ctx, trade, weight)
	switch res.Status {
	case StatusPlaced, StatusDryRun:
		observ.IncCounter("orders_placed_total", map[string]string{"mode": string(res.Status)})
	case StatusSkipped:
		observ.IncCounter("signals_skipped_total", map[string]string{"reason": res.Reason})
	case StatusFailed:
		observ.IncCounter("orders_failed_total", map[string]string{"reason": res.Reason})
	}
	observ.Log("mirror_decided", map[string]any{
		"key":    trade.Key(),
		"wallet": trade.Wallet,
		"side":   string(trade.Side),
		"status": string(res.Status),
		"reason": res.Reason,
	})
	return res
}

func (e *Engine) decide(ctx context.Context, trade *normalize.Trade, weight float64) Result {
	now := e.now().UTC()

	if !validTrade(trade) {
		return skip(ReasonInvalidTrade)
	}
	if e.authBackoffActive(now) {
		return skip(ReasonAuthBackoff)
	}

	// Token resolution. Metadata is needed for both sides; lifecycle
	// checks below apply only to buys.
	meta, err := e.markets.MarketMetadata(ctx, trade.ConditionID)
	if err != nil {
		return failed(ReasonMetadataMissing, diagFromErr(err))
	}
	tokenID, ok := resolveToken(meta, trade.OutcomeIndex)
	if !ok {
		return skip(ReasonTokenUnresolved)
	}
	if looksLikeAddressOrMarket(tokenID) {
		return skip(ReasonTokenSuspicious)
	}

	isBuy := trade.Side == exchange.Buy

	if isBuy {
		if active, _ := e.guard.BalanceCooldownActive(); active {
			return skip(ReasonBalanceCooldown)
		}
	}

	ttl := e.cfg.OrderTTLSeconds
	if isBuy {
		if meta.Closed || meta.Archived || !meta.Active {
			return skip(ReasonMarketClosed)
		}
		if !e.cfg.Categories.Permits(meta.Category, meta.Title) {
			return skip(ReasonCategoryBlocked)
		}
		if end, found := extractEndTime(meta.Raw); found {
			if !now.Before(end.Add(-e.cfg.EndTimeSafety)) {
				return skip(ReasonMarketExpiring)
			}
			feasible := int64((end.Sub(now) - e.cfg.ExpirationSafety).Seconds())
			if feasible < ttl {
				ttl = feasible
			}
			// A one-second order has no realistic chance of resting.
			if ttl <= 1 {
				return skip(ReasonTTLTooShort)
			}
		}
	}

	// Price discovery: top of book first, the price endpoint as a
	// fallback when the book is thin or the fetch fails.
	execPrice, tick, minSize, sizeDecimals, ok := e.discoverPrice(ctx, tokenID, trade.Side)
	if !ok {
		return skip(ReasonNoPrice)
	}

	// Notional sizing, capped per trade and per UTC day. The daily cap
	// is checked again after rounding because rounding can only shrink
	// the order, never grow it past a cap it already passed.
	if weight <= 0 {
		return skip(ReasonZeroWeight)
	}
	sourceNotional := trade.Price * trade.Size
	if !(sourceNotional > 0) || math.IsInf(sourceNotional, 0) {
		return skip(ReasonInvalidNotional)
	}
	desired := sourceNotional * e.cfg.CopyRatio * weight
	if e.cfg.MaxNotionalPerTrade > 0 && desired > e.cfg.MaxNotionalPerTrade {
		desired = e.cfg.MaxNotionalPerTrade
	}
	if desired <= 0 {
		return skip(ReasonInvalidNotional)
	}
	day := now.Format("2006-01-02")
	if isBuy {
		if over, err := e.overDailyCap(day, desired); err != nil {
			return failed(ReasonOrderRejected, diagFromErr(err))
		} else if over {
			return skip(ReasonDailyCap)
		}
	}

	// Share sizing. Sells never exceed what we actually hold.
	shares := desired / execPrice
	if e.cfg.MaxSharesPerTrade > 0 && shares > e.cfg.MaxSharesPerTrade {
		shares = e.cfg.MaxSharesPerTrade
	}
	if !isBuy {
		held, err := e.heldSize(ctx, trade.ConditionID, trade.OutcomeIndex)
		if err != nil {
			return failed(ReasonOrderRejected, diagFromErr(err))
		}
		if held <= 0 {
			return skip(ReasonNoPositionToSell)
		}
		if shares > held {
			shares = held
		}
	}
	shares = floorToDecimals(shares, sizeDecimals)
	if shares <= 0 || shares < minSize {
		return skip(ReasonBelowMinSize)
	}

	// Limit price: slippage allowance snapped to the tick grid, away
	// from the touch so the bound is never violated by rounding.
	var limit float64
	if isBuy {
		limit = snapToTick(execPrice*(1+e.cfg.SlippagePct), tick, true)
		if max := 1 - tick; limit > max {
			limit = max
		}
	} else {
		limit = snapToTick(execPrice*(1-e.cfg.SlippagePct), tick, false)
		if limit < tick {
			limit = tick
		}
	}
	if !(limit > 0 && limit < 1) {
		return skip(ReasonInvalidLimit)
	}

	finalNotional := shares * limit
	if isBuy {
		if over, err := e.overDailyCap(day, finalNotional); err != nil {
			return failed(ReasonOrderRejected, diagFromErr(err))
		} else if over {
			return skip(ReasonDailyCap)
		}
	}

	// Funding preflight, buys only. Sells release collateral.
	required := money.FromFloat(finalNotional)
	if isBuy && !e.cfg.DryRun {
		if !e.signingIdentityValid() {
			return failed(ReasonFunderMismatch, nil)
		}
		snap, err := e.guard.Check(ctx, required)
		if err != nil {
			if exchange.IsBalance(err) {
				e.guard.TripBalanceCooldown()
			}
			return failed(ReasonFundingCheck, diagFromErr(err))
		}
		if snap.Available < required {
			e.guard.TripBalanceCooldown()
			r := skip(allowance.ClassifyShortfall(snap, required))
			r.Diag = &Diagnostics{Funding: &snap}
			return r
		}
	}

	if e.cfg.DryRun {
		if isBuy {
			if err := e.ledger.AddDailyNotional(day, required); err != nil {
				observ.Log("daily_notional_record_failed", map[string]any{"err": err.Error()})
			}
		}
		return Result{Status: StatusDryRun, Reason: "dry-run", Notional: finalNotional, Size: shares, LimitPrice: limit}
	}

	req := exchange.OrderRequest{
		TokenID:    tokenID,
		Side:       trade.Side,
		Price:      limit,
		Size:       shares,
		Mode:       exchange.GTD,
		TTLSeconds: ttl,
		NegRisk:    meta.NegRisk,
	}
	resp, err := e.submit(ctx, req)
	if err != nil {
		switch {
		case exchange.IsAuth(err):
			e.tripAuthBackoff(now)
			return failed(ReasonAuthError, diagFromErr(err))
		case exchange.IsBalance(err):
			e.guard.TripBalanceCooldown()
			return failed(ReasonOrderRejected, diagFromErr(err))
		default:
			return failed(ReasonOrderRejected, diagFromErr(err))
		}
	}
	if isBuy {
		if err := e.ledger.AddDailyNotional(day, required); err != nil {
			observ.Log("daily_notional_record_failed", map[string]any{"err": err.Error()})
		}
	}
	return Result{Status: StatusPlaced, OrderID: resp.OrderID, Notional: finalNotional, Size: shares, LimitPrice: limit}
}

// submit places a good-till-date order, retrying nonce and fee races on a
// short budget, and falls back to good-till-canceled exactly once when
// the venue rejects the expiration as already past.
func (e *Engine) submit(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResponse, error) {
	resp, err := e.submitRetrying(ctx, req)
	if err != nil && req.Mode == exchange.GTD && exchange.IsExpiration(err) {
		req.Mode = exchange.GTC
		req.TTLSeconds = 0
		resp, err = e.submitRetrying(ctx, req)
	}
	return resp, err
}

func (e *Engine) submitRetrying(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResponse, error) {
	var resp exchange.OrderResponse
	err := e.cfg.NonceRetry.Do(ctx, func() error {
		var ierr error
		resp, ierr = e.venue.SubmitOrder(ctx, req)
		return ierr
	})
	return resp, err
}

// signingIdentityValid checks the funding identity against the signing
// scheme: direct signing requires the funder to be the signer, proxy
// signing requires a well-formed funder distinct from the signer.
func (e *Engine) signingIdentityValid() bool {
	if e.cfg.SignatureType == 0 {
		return strings.EqualFold(e.cfg.Owner, e.cfg.SignerAddress)
	}
	return funderAddrPattern.MatchString(e.cfg.Owner) &&
		!strings.EqualFold(e.cfg.Owner, e.cfg.SignerAddress)
}

func (e *Engine) discoverPrice(ctx context.Context, tokenID string, side exchange.Side) (price, tick, minSize float64, sizeDecimals int, ok bool) {
	tick, minSize = 0.01, 5 // venue defaults when the book is unavailable
	book, err := e.markets.OrderBook(ctx, tokenID)
	if err == nil {
		if t, ok := parsePositive(book.TickSize); ok {
			tick = t
		}
		if m, ok := parsePositive(book.MinOrderSize); ok {
			minSize = m
			// Size granularity comes from the wire string, where
			// trailing zeros are significant: "0.10" means two decimals.
			sizeDecimals = decimalsOf(strings.TrimSpace(book.MinOrderSize))
		}
		if p, found := bestLevel(book, side); found {
			return p, tick, minSize, sizeDecimals, true
		}
	}
	p, perr := e.markets.Price(ctx, tokenID, side)
	if perr != nil || !(p > 0 && p < 1) {
		return 0, 0, 0, 0, false
	}
	return p, tick, minSize, sizeDecimals, true
}

// bestLevel returns the touch for the taking side: lowest ask for a buy,
// highest bid for a sell.
func bestLevel(book exchange.OrderBook, side exchange.Side) (float64, bool) {
	levels := book.Asks
	if side == exchange.Sell {
		levels = book.Bids
	}
	best, found := 0.0, false
	for _, lv := range levels {
		p, ok := parsePositive(lv.Price)
		if !ok || p >= 1 {
			continue
		}
		if !found || (side == exchange.Buy && p < best) || (side == exchange.Sell && p > best) {
			best, found = p, true
		}
	}
	return best, found
}

func (e *Engine) heldSize(ctx context.Context, conditionID string, outcomeIndex int) (float64, error) {
	positions, err := e.positions.FetchOpenPositions(ctx, e.cfg.Owner, conditionID)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, p := range positions {
		if p.ConditionID == conditionID && p.OutcomeIndex == outcomeIndex {
			total += p.Size
		}
	}
	return total, nil
}

func (e *Engine) overDailyCap(day string, notional float64) (bool, error) {
	if e.cfg.DailyNotionalCap <= 0 {
		return false, nil
	}
	spent, err := e.ledger.DailyNotional(day)
	if err != nil {
		return false, err
	}
	return spent+money.FromFloat(notional) > e.cfg.DailyNotionalCap, nil
}

func (e *Engine) authBackoffActive(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return now.Before(e.authBackoffUntil)
}

func (e *Engine) tripAuthBackoff(now time.Time) {
	e.mu.Lock()
	e.authBackoffUntil = now.Add(e.cfg.AuthBackoff)
	e.mu.Unlock()
	observ.Log("auth_backoff_tripped", map[string]any{"until": e.authBackoffUntil.Format(time.RFC3339)})
}

func validTrade(t *normalize.Trade) bool {
	if t == nil || t.Wallet == "" || t.ConditionID == "" || t.OutcomeIndex < 0 {
		return false
	}
	if t.Side != exchange.Buy && t.Side != exchange.Sell {
		return false
	}
	if !(t.Size > 0) || math.IsInf(t.Size, 0) {
		return false
	}
	return t.Price > 0 && t.Price <= 1
}

func resolveToken(meta exchange.MarketMeta, outcomeIndex int) (string, bool) {
	if outcomeIndex < 0 || outcomeIndex >= len(meta.Tokens) {
		return "", false
	}
	id := strings.TrimSpace(meta.Tokens[outcomeIndex].TokenID)
	return id, id != ""
}

var (
	hexIDPattern      = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)
	funderAddrPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// looksLikeAddressOrMarket rejects ids shaped like EVM addresses or
// condition ids. Real instrument ids are long decimal strings; a hex id
// here means upstream handed back the wrong field.
func looksLikeAddressOrMarket(id string) bool {
	return hexIDPattern.MatchString(id)
}

func diagFromErr(err error) *Diagnostics {
	if err == nil {
		return nil
	}
	return &Diagnostics{UpstreamBody: err.Error()}
}
