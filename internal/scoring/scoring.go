// Package scoring computes per-wallet performance scores from realized
// and open P&L over a lookback window. Scores feed the selection state
// machine; nothing here places orders.
package scoring

import (
	"context"
	"time"

	"github.com/Rajchodisetti/copy-trader/internal/exchange"
	"github.com/Rajchodisetti/copy-trader/internal/observ"
)

// SentinelScore is assigned to ineligible or failed computations so they
// never win a comparison against a real score.
const SentinelScore = -1e9

// TraderScore is the authoritative scoring output for one wallet.
// Recomputed wholesale on every scoring tick.
type TraderScore struct {
	Wallet      string  `json:"wallet"`
	RealizedPnl float64 `json:"realized_pnl"`
	TotalBought float64 `json:"total_bought"`
	ROI         float64 `json:"roi"`
	Sample      int     `json:"sample"`
	OpenPnl     float64 `json:"open_pnl"`
	Score       float64 `json:"score"`
	Eligible    bool    `json:"eligible"`
}

type Config struct {
	LookbackDays    int
	MinClosedSample int
	OpenLossPenalty float64
}

type Engine struct {
	positions exchange.PositionSource
	cfg       Config
	now       func() time.Time
}

func NewEngine(positions exchange.PositionSource, cfg Config) *Engine {
	return &Engine{positions: positions, cfg: cfg, now: time.Now}
}

// ScoreAll computes one TraderScore per monitored wallet. A fetch failure
// for one wallet degrades that wallet to the ineligible sentinel and is
// logged; it never aborts scoring for the others.
func (e *Engine) ScoreAll(ctx context.Context, wallets []string) []TraderScore {
	scores := make([]TraderScore, 0, len(wallets))
	for _, w := range wallets {
		score, err := e.scoreOne(ctx, w)
		if err != nil {
			observ.Log("scoring_failed", map[string]any{"wallet": w, "error": err.Error()})
			observ.IncCounter("scoring_failures_total", map[string]string{"wallet": w})
			score = TraderScore{Wallet: w, Score: SentinelScore, Eligible: false}
		}
		scores = append(scores, score)
	}
	return scores
}

func (e *Engine) scoreOne(ctx context.Context, wallet string) (TraderScore, error) {
	closed, err := e.positions.FetchClosedPositions(ctx, wallet)
	if err != nil {
		return TraderScore{}, err
	}

	cutoffMs := e.now().Add(-time.Duration(e.cfg.LookbackDays) * 24 * time.Hour).UnixMilli()

	var realized, bought float64
	sample := 0
	for _, p := range closed {
		if p.Timestamp < cutoffMs {
			continue
		}
		realized += p.RealizedPnl
		bought += p.TotalBought
		sample++
	}

	// Floor of 1 on volume avoids a division blow-up on zero activity.
	denom := bought
	if denom < 1 {
		denom = 1
	}
	roi := realized / denom

	open, err := e.positions.FetchOpenPositions(ctx, wallet, "")
	if err != nil {
		return TraderScore{}, err
	}
	var openPnl float64
	for _, p := range open {
		openPnl += p.CashPnl
	}

	// Only the losing side of open positions is penalized; unrealized
	// gains do not inflate the score.
	openLoss := 0.0
	if openPnl < 0 {
		openLoss = -openPnl
	}

	score := roi*100 + realized/1000 - e.cfg.OpenLossPenalty*openLoss
	eligible := sample >= e.cfg.MinClosedSample
	if !eligible {
		score = SentinelScore
	}

	return TraderScore{
		Wallet:      wallet,
		RealizedPnl: realized,
		TotalBought: bought,
		ROI:         roi,
		Sample:      sample,
		OpenPnl:     openPnl,
		Score:       score,
		Eligible:    eligible,
	}, nil
}
