// Package allowance tracks on-exchange spending authorization for the
// BUY-side preflight: balance, allowance, collateral reserved by our own
// resting orders, and the derived available-to-trade amount. It owns the
// auto-approval flow and the balance-error circuit breaker.
package allowance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Rajchodisetti/copy-trader/internal/exchange"
	"github.com/Rajchodisetti/copy-trader/internal/money"
	"github.com/Rajchodisetti/copy-trader/internal/observ"
)

// Snapshot is the funding picture at one instant, all in micro-units.
type Snapshot struct {
	Owner     string       `json:"owner"`
	Balance   money.Micros `json:"balance"`
	Allowance money.Micros `json:"allowance"`
	Reserved  money.Micros `json:"reserved"`
	Available money.Micros `json:"available"`
}

// Available derives the tradable amount: min(balance, allowance) minus
// reserved collateral, floored at zero.
func Available(balance, allowance, reserved money.Micros) money.Micros {
	return money.Min(balance, allowance).SubFloor(reserved)
}

// Shortfall sub-classification drives different operator remediation
// messages, so the distinctions are stable reason codes.
const (
	ReasonAllowanceTooLow        = "allowance-too-low"
	ReasonCollateralReserved     = "collateral-reserved"
	ReasonInsufficientCollateral = "insufficient-collateral"
)

// ClassifyShortfall explains why a snapshot cannot cover the required
// notional. Callers must have checked Available < required first.
func ClassifyShortfall(snap Snapshot, required money.Micros) string {
	if snap.Allowance < required {
		return ReasonAllowanceTooLow
	}
	if money.Min(snap.Balance, snap.Allowance) >= required {
		return ReasonCollateralReserved
	}
	return ReasonInsufficientCollateral
}

type Config struct {
	Owner            string
	SignerAddress    string
	SignatureType    int // 0 = direct, 1/2 = proxy/relayed
	AutoApprove      bool
	ApprovalAmount   money.Micros
	ApprovalCooldown time.Duration
	BalanceCooldown  time.Duration
	LogWindow        time.Duration
}

type Guard struct {
	venue exchange.TradingVenue
	cfg   Config
	now   func() time.Time

	mu                  sync.Mutex
	inflight            *inflightCheck
	lastApprovalAttempt time.Time
	balanceCooldownEnd  time.Time

	shortfallLog *observ.RateLimitedLogger
}

type inflightCheck struct {
	done chan struct{}
	snap Snapshot
	err  error
}

func NewGuard(venue exchange.TradingVenue, cfg Config) *Guard {
	if cfg.LogWindow <= 0 {
		cfg.LogWindow = time.Minute
	}
	return &Guard{
		venue:        venue,
		cfg:          cfg,
		now:          time.Now,
		shortfallLog: observ.NewRateLimitedLogger(cfg.LogWindow),
	}
}

// Check returns a funding snapshot able to answer whether `required` can
// be spent. Concurrent callers collapse into one in-flight venue check;
// an in-flight result that already covers the requested notional
// short-circuits a fresh fetch.
func (g *Guard) Check(ctx context.Context, required money.Micros) (Snapshot, error) {
	g.mu.Lock()
	for g.inflight != nil {
		c := g.inflight
		g.mu.Unlock()
		select {
		case <-c.done:
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
		if c.err == nil && c.snap.Available >= required {
			return c.snap, nil
		}
		// Stale or insufficient result. Claim the slot only if no other
		// waiter beat us to a fresh check; otherwise wait on theirs.
		g.mu.Lock()
		if g.inflight == c {
			break
		}
	}

	c := &inflightCheck{done: make(chan struct{})}
	g.inflight = c
	g.mu.Unlock()

	snap, err := g.fetch(ctx, required)
	c.snap, c.err = snap, err
	close(c.done)

	g.mu.Lock()
	if g.inflight == c {
		g.inflight = nil
	}
	g.mu.Unlock()

	return snap, err
}

func (g *Guard) fetch(ctx context.Context, required money.Micros) (Snapshot, error) {
	snap, err := g.snapshot(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	if snap.Allowance < required && g.cfg.AutoApprove {
		if approved := g.tryApprove(ctx); approved {
			// Approval confirmed: re-read so the caller sees the new allowance.
			snap, err = g.snapshot(ctx)
			if err != nil {
				return Snapshot{}, err
			}
		}
	}

	if snap.Available < required {
		g.shortfallLog.Log("allowance_shortfall", map[string]any{
			"required":  required.String(),
			"available": snap.Available.String(),
			"balance":   snap.Balance.String(),
			"allowance": snap.Allowance.String(),
			"reserved":  snap.Reserved.String(),
			"reason":    ClassifyShortfall(snap, required),
		})
	}
	return snap, nil
}

func (g *Guard) snapshot(ctx context.Context) (Snapshot, error) {
	ba, err := g.venue.BalanceAllowance(ctx, g.cfg.Owner)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetching balance/allowance: %w", err)
	}

	orders, err := g.venue.OpenOrders(ctx, g.cfg.Owner)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetching open orders: %w", err)
	}
	reserved := ReservedCollateral(orders)

	return Snapshot{
		Owner:     g.cfg.Owner,
		Balance:   ba.Balance,
		Allowance: ba.Allowance,
		Reserved:  reserved,
		Available: Available(ba.Balance, ba.Allowance, reserved),
	}, nil
}

// tryApprove submits an on-chain approval when preconditions hold:
// direct signature scheme, signer is the owner, and an approval has not
// been attempted within the cooldown. Returns true only on confirmation.
func (g *Guard) tryApprove(ctx context.Context) bool {
	if g.cfg.SignatureType != 0 {
		observ.IncCounter("approval_skipped_total", map[string]string{"reason": "proxy-signature"})
		return false
	}
	if g.cfg.SignerAddress == "" || !strings.EqualFold(g.cfg.SignerAddress, g.cfg.Owner) {
		observ.IncCounter("approval_skipped_total", map[string]string{"reason": "signer-mismatch"})
		return false
	}

	g.mu.Lock()
	now := g.now()
	if now.Sub(g.lastApprovalAttempt) < g.cfg.ApprovalCooldown {
		g.mu.Unlock()
		observ.IncCounter("approval_skipped_total", map[string]string{"reason": "cooldown"})
		return false
	}
	g.lastApprovalAttempt = now
	g.mu.Unlock()

	if err := g.venue.ApproveAllowance(ctx, g.cfg.ApprovalAmount); err != nil {
		observ.Log("approval_failed", map[string]any{"error": err.Error()})
		observ.IncCounter("approval_failures_total", nil)
		return false
	}
	observ.Log("approval_confirmed", map[string]any{"amount": g.cfg.ApprovalAmount.String()})
	return true
}

// TripBalanceCooldown starts the window during which BUY signals are
// skipped outright after a balance/allowance error.
func (g *Guard) TripBalanceCooldown() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balanceCooldownEnd = g.now().Add(g.cfg.BalanceCooldown)
	observ.IncCounter("balance_cooldown_trips_total", nil)
}

// BalanceCooldownActive reports whether the circuit breaker is open,
// plus when it closes.
func (g *Guard) BalanceCooldownActive() (bool, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	end := g.balanceCooldownEnd
	return g.now().Before(end), end
}

// ReservedCollateral sums remaining size times price over the account's
// own open BUY orders.
func ReservedCollateral(orders []exchange.OpenOrder) money.Micros {
	var total money.Micros
	for _, o := range orders {
		if o.Side != string(exchange.Buy) {
			continue
		}
		price, err1 := strconv.ParseFloat(o.Price, 64)
		original, err2 := strconv.ParseFloat(o.OriginalSize, 64)
		matched, err3 := strconv.ParseFloat(o.SizeMatched, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		remaining := original - matched
		if remaining <= 0 {
			continue
		}
		total += money.FromFloat(remaining * price)
	}
	return total
}
