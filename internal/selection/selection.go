// Package selection converts trader scores into a per-wallet copy-weight
// assignment. Two mutually exclusive modes: LEADER follows a single best
// wallet with hysteresis and stop conditions; TOPK spreads weight across
// the top scorers. Both persist their state so restarts do not reset
// hold timers or cooldowns.
package selection

import (
	"fmt"
	"sort"
	"time"

	"github.com/Rajchodisetti/copy-trader/internal/observ"
	"github.com/Rajchodisetti/copy-trader/internal/scoring"
	"github.com/Rajchodisetti/copy-trader/internal/store"
)

type Mode string

const (
	ModeLeader Mode = "LEADER"
	ModeTopK   Mode = "TOPK"
)

type Config struct {
	Mode            Mode
	TopK            int
	Cooldown        time.Duration
	MinHold         time.Duration
	SwitchMarginPct float64 // best must beat current by this fraction
	StopScore       float64 // demote immediately below this score
	StopRealizedPnl float64 // demote immediately below this windowed P&L
}

// Selection is the authoritative copy-weight assignment. In LEADER mode
// at most one wallet carries weight 1; in TOPK mode weights are positive
// and sum to at most 1.
type Selection struct {
	Mode    Mode               `json:"mode"`
	Weights map[string]float64 `json:"weights"`
	Reason  string             `json:"reason"`
}

// WeightFor returns the copy weight for a wallet, zero when unselected.
func (s Selection) WeightFor(wallet string) float64 {
	return s.Weights[wallet]
}

type Machine struct {
	store *store.Store
	cfg   Config
	now   func() time.Time
}

func NewMachine(st *store.Store, cfg Config) *Machine {
	if cfg.TopK < 1 {
		cfg.TopK = 1
	}
	return &Machine{store: st, cfg: cfg, now: time.Now}
}

// Evaluate re-runs the state machine against fresh scores. Called on
// every scoring tick.
func (m *Machine) Evaluate(scores []scoring.TraderScore) (Selection, error) {
	var sel Selection
	var err error
	switch m.cfg.Mode {
	case ModeTopK:
		sel, err = m.evaluateTopK(scores)
	default:
		sel, err = m.evaluateLeader(scores)
	}
	if err != nil {
		return Selection{}, err
	}
	observ.Log("selection_evaluated", map[string]any{
		"mode":    string(sel.Mode),
		"reason":  sel.Reason,
		"weights": sel.Weights,
	})
	return sel, nil
}

// inCooldown is the single global cooldown predicate, orthogonal to
// eligibility.
func (m *Machine) inCooldown(wallet string, now time.Time) (bool, error) {
	switchedAway, ok, err := m.store.Cooldown(wallet)
	if err != nil {
		return false, err
	}
	return ok && now.Sub(switchedAway) < m.cfg.Cooldown, nil
}

func (m *Machine) evaluateLeader(scores []scoring.TraderScore) (Selection, error) {
	now := m.now()

	byWallet := make(map[string]scoring.TraderScore, len(scores))
	for _, s := range scores {
		byWallet[s.Wallet] = s
	}

	best, bestOK, err := m.bestEligible(scores, now)
	if err != nil {
		return Selection{}, err
	}

	current, holding, err := m.store.Leader()
	if err != nil {
		return Selection{}, err
	}

	if !holding {
		if !bestOK {
			return Selection{Mode: ModeLeader, Weights: map[string]float64{}, Reason: "no-eligible-candidate"}, nil
		}
		if err := m.store.SetLeader(store.LeaderState{Wallet: best.Wallet, HeldSince: now}); err != nil {
			return Selection{}, err
		}
		return leaderSelection(best.Wallet, "leader-selected"), nil
	}

	cur, curKnown := byWallet[current.Wallet]

	// Holding a wallet that dropped out of the eligible set: replace it
	// if possible, otherwise fall back to NoLeader.
	if !curKnown || !cur.Eligible {
		if bestOK && best.Wallet != current.Wallet {
			return m.switchLeader(current, best.Wallet, now, "leader-ineligible-replaced")
		}
		if err := m.store.ClearLeader(); err != nil {
			return Selection{}, err
		}
		if err := m.store.SetCooldown(current.Wallet, now); err != nil {
			return Selection{}, err
		}
		return Selection{Mode: ModeLeader, Weights: map[string]float64{}, Reason: "leader-dropped"}, nil
	}

	replacementReady := bestOK && best.Wallet != current.Wallet

	// Stop conditions override the hold timer.
	if stopReason := m.stopCondition(cur); stopReason != "" {
		if replacementReady {
			return m.switchLeader(current, best.Wallet, now, stopReason)
		}
		return leaderSelection(current.Wallet, "holding-leader"), nil
	}

	holdAge := now.Sub(current.HeldSince)
	if replacementReady && best.Score >= cur.Score*(1+m.cfg.SwitchMarginPct) {
		if holdAge >= m.cfg.MinHold {
			return m.switchLeader(current, best.Wallet, now, "switch-margin")
		}
		return leaderSelection(current.Wallet, "min-hold-not-satisfied"), nil
	}

	return leaderSelection(current.Wallet, "holding-leader"), nil
}

func (m *Machine) stopCondition(cur scoring.TraderScore) string {
	if cur.Score < m.cfg.StopScore {
		return "stop-score-triggered"
	}
	if cur.RealizedPnl < m.cfg.StopRealizedPnl {
		return "stop-pnl-triggered"
	}
	return ""
}

func (m *Machine) switchLeader(from store.LeaderState, to string, now time.Time, reason string) (Selection, error) {
	if err := m.store.SetCooldown(from.Wallet, now); err != nil {
		return Selection{}, err
	}
	if err := m.store.SetLeader(store.LeaderState{Wallet: to, HeldSince: now}); err != nil {
		return Selection{}, err
	}
	observ.IncCounter("leader_switches_total", map[string]string{"reason": reason})
	return leaderSelection(to, reason), nil
}

// bestEligible returns the highest-scoring eligible wallet that is not
// in cooldown.
func (m *Machine) bestEligible(scores []scoring.TraderScore, now time.Time) (scoring.TraderScore, bool, error) {
	var best scoring.TraderScore
	found := false
	for _, s := range scores {
		if !s.Eligible {
			continue
		}
		cooling, err := m.inCooldown(s.Wallet, now)
		if err != nil {
			return scoring.TraderScore{}, false, err
		}
		if cooling {
			continue
		}
		if !found || s.Score > best.Score {
			best = s
			found = true
		}
	}
	return best, found, nil
}

func leaderSelection(wallet, reason string) Selection {
	return Selection{Mode: ModeLeader, Weights: map[string]float64{wallet: 1}, Reason: reason}
}

func (m *Machine) evaluateTopK(scores []scoring.TraderScore) (Selection, error) {
	now := m.now()

	previous, err := m.store.SelectedWallets()
	if err != nil {
		return Selection{}, err
	}

	var candidates []scoring.TraderScore
	for _, s := range scores {
		if !s.Eligible {
			continue
		}
		cooling, err := m.inCooldown(s.Wallet, now)
		if err != nil {
			return Selection{}, err
		}
		if cooling {
			continue
		}
		candidates = append(candidates, s)
	}

	// Stable by score descending; ties resolve in encounter order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > m.cfg.TopK {
		candidates = candidates[:m.cfg.TopK]
	}

	var sumPositive float64
	for _, c := range candidates {
		if c.Score > 0 {
			sumPositive += c.Score
		}
	}

	if len(candidates) == 0 || sumPositive <= 0 {
		// Empty selection: everyone previously selected enters cooldown.
		for wallet := range previous {
			if err := m.store.SetCooldown(wallet, now); err != nil {
				return Selection{}, err
			}
		}
		if err := m.store.ReplaceSelectedWallets(nil); err != nil {
			return Selection{}, err
		}
		return Selection{Mode: ModeTopK, Weights: map[string]float64{}, Reason: "topk-empty"}, nil
	}

	weights := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		w := 0.0
		if c.Score > 0 {
			w = c.Score / sumPositive
		}
		if w > 0 {
			weights[c.Wallet] = w
		}
	}

	// Wallets dropped relative to the previous tick enter cooldown so two
	// comparably scored traders cannot oscillate every tick.
	for wallet := range previous {
		if _, still := weights[wallet]; !still {
			if err := m.store.SetCooldown(wallet, now); err != nil {
				return Selection{}, err
			}
			observ.IncCounter("topk_drops_total", map[string]string{"wallet": wallet})
		}
	}

	if err := m.store.ReplaceSelectedWallets(weights); err != nil {
		return Selection{}, err
	}

	return Selection{
		Mode:    ModeTopK,
		Weights: weights,
		Reason:  fmt.Sprintf("topk-selected-%d", len(weights)),
	}, nil
}
