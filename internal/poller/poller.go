// Package poller drives ingestion: it periodically pulls the recent
// activity of every selected wallet, normalizes it, and hands each new
// signal to the decision engine exactly once. The processed-key table is
// the durable dedup; an in-memory set in front of it keeps the common
// case off the database.
package poller

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Rajchodisetti/copy-trader/internal/exchange"
	"github.com/Rajchodisetti/copy-trader/internal/journal"
	"github.com/Rajchodisetti/copy-trader/internal/mirror"
	"github.com/Rajchodisetti/copy-trader/internal/normalize"
	"github.com/Rajchodisetti/copy-trader/internal/observ"
	"github.com/Rajchodisetti/copy-trader/internal/selection"
	"github.com/Rajchodisetti/copy-trader/internal/store"
)

// Decider evaluates one normalized trade, satisfied by mirror.Engine.
type Decider interface {
	Decide(ctx context.Context, trade *normalize.Trade, weight float64) mirror.Result
}

// SelectionFunc returns the currently active wallet selection. The
// orchestrator owns selection evaluation; the poller only reads it.
type SelectionFunc func() selection.Selection

type Config struct {
	Interval     time.Duration
	FetchLimit   int
	Concurrency  int
	MaxSignalAge time.Duration // 0 disables the staleness gate
}

type Poller struct {
	source    exchange.SignalSource
	store     *store.Store
	decider   Decider
	selection SelectionFunc
	cfg       Config
	now       func() time.Time
	journal   *journal.Journal // optional

	mu       sync.Mutex
	seen     map[string]struct{}
	prev     map[string]struct{}
	inflight map[string]struct{}
}

// seenLimit bounds the in-memory dedup set. When the current generation
// fills up it becomes the previous one, so recently seen keys survive
// the rotation.
const seenLimit = 4096

func New(source exchange.SignalSource, st *store.Store, decider Decider, sel SelectionFunc, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Poller{
		source:    source,
		store:     st,
		decider:   decider,
		selection: sel,
		cfg:       cfg,
		now:       time.Now,
		seen:      make(map[string]struct{}),
		prev:      make(map[string]struct{}),
		inflight:  make(map[string]struct{}),
	}
}

// SetJournal attaches an optional JSONL trail written alongside the
// SQLite audit rows.
func (p *Poller) SetJournal(j *journal.Journal) { p.journal = j }

// Run polls until the context is canceled. One cycle overlaps nothing:
// the next tick waits for the previous cycle to finish.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		p.PollOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PollOnce fetches and processes every selected wallet's recent activity,
// fanning out across wallets with bounded concurrency.
func (p *Poller) PollOnce(ctx context.Context) {
	sel := p.selection()
	if len(sel.Weights) == 0 {
		return
	}

	wallets := make([]string, 0, len(sel.Weights))
	for w := range sel.Weights {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)

	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, wallet := range wallets {
		select {
		case <-ctx.Done():
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(wallet string, weight float64) {
			defer wg.Done()
			defer func() { <-sem }()
			p.pollWallet(ctx, wallet, weight)
		}(wallet, sel.Weights[wallet])
	}
	wg.Wait()
}

func (p *Poller) pollWallet(ctx context.Context, wallet string, weight float64) {
	signals, err := p.source.FetchSignals(ctx, wallet, p.cfg.FetchLimit)
	if err != nil {
		observ.IncCounter("poll_errors_total", map[string]string{"wallet": wallet})
		observ.Log("poll_failed", map[string]any{"wallet": wallet, "err": err.Error()})
		return
	}
	observ.IncCounter("signals_total", nil)

	trades := make([]*normalize.Trade, 0, len(signals))
	for _, raw := range signals {
		trade, missing := normalize.Normalize(raw, wallet)
		if len(missing) > 0 {
			p.quarantine(raw, wallet, missing)
			continue
		}
		trades = append(trades, trade)
	}

	// Oldest first, so a restart replays history in the order it
	// happened and the dedup table fills front to back.
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].TimestampMs < trades[j].TimestampMs
	})

	for _, trade := range trades {
		if ctx.Err() != nil {
			return
		}
		p.process(ctx, trade, weight)
	}
}

// quarantine permanently retires a malformed record under a degraded key
// so it is never re-normalized on the next cycle.
func (p *Poller) quarantine(raw exchange.RawSignal, wallet string, missing []string) {
	key := normalize.PoisonKey(raw, wallet)
	if p.alreadySeen(key) {
		return
	}
	reason := "malformed:" + strings.Join(missing, ",")
	if done, err := p.store.HasProcessed(key); err != nil || done {
		p.remember(key)
		return
	}
	_ = p.store.SaveResult(key, string(mirror.StatusSkipped), reason, "")
	if err := p.store.MarkProcessed(key, reason); err != nil {
		observ.Log("mark_processed_failed", map[string]any{"key": key, "err": err.Error()})
		return
	}
	p.remember(key)
	observ.IncCounter("signals_skipped_total", map[string]string{"reason": "malformed"})
	observ.Log("signal_quarantined", map[string]any{"key": key, "missing": strings.Join(missing, ",")})
}

// HandleFill runs one pushed fill through the same normalization, dedup
// and decision path as polled signals. Sharing the claim set with the
// poll loop keeps a fill and a poll of the same trade from both reaching
// the venue.
func (p *Poller) HandleFill(ctx context.Context, wallet string, raw exchange.RawSignal) {
	weight := p.selection().WeightFor(wallet)
	if weight <= 0 {
		return
	}
	trade, missing := normalize.Normalize(raw, wallet)
	if len(missing) > 0 {
		p.quarantine(raw, wallet, missing)
		return
	}
	p.process(ctx, trade, weight)
}

func (p *Poller) process(ctx context.Context, trade *normalize.Trade, weight float64) {
	key := trade.Key()
	if p.alreadySeen(key) {
		return
	}
	// Claim the key so a concurrent arrival of the same signal, from
	// another poll cycle or from the live feed, waits out this one
	// instead of racing the processed-key check.
	if !p.claim(key) {
		return
	}
	defer p.release(key)
	done, err := p.store.HasProcessed(key)
	if err != nil {
		observ.Log("dedup_check_failed", map[string]any{"key": key, "err": err.Error()})
		return
	}
	if done {
		p.remember(key)
		return
	}

	if p.cfg.MaxSignalAge > 0 {
		age := p.now().UTC().Sub(time.UnixMilli(trade.TimestampMs))
		if age > p.cfg.MaxSignalAge {
			p.finish(trade, mirror.Result{Status: mirror.StatusSkipped, Reason: "stale-signal"})
			observ.IncCounter("signals_skipped_total", map[string]string{"reason": "stale-signal"})
			return
		}
	}

	res := p.decider.Decide(ctx, trade, weight)
	p.finish(trade, res)
}

// finish persists the outcome and retires the key. The audit row is
// written before the processed mark; losing the race between the two
// re-evaluates the signal rather than silently dropping it.
func (p *Poller) finish(trade *normalize.Trade, res mirror.Result) {
	key := trade.Key()
	if err := p.store.SaveResult(key, string(res.Status), res.Reason, res.JSON()); err != nil {
		observ.Log("save_result_failed", map[string]any{"key": key, "err": err.Error()})
	}
	if err := p.store.MarkProcessed(key, res.Reason); err != nil {
		observ.Log("mark_processed_failed", map[string]any{"key": key, "err": err.Error()})
		return
	}
	p.remember(key)
	if p.journal != nil {
		if err := p.journal.Append(journal.Record{
			Key:        key,
			Wallet:     trade.Wallet,
			Side:       string(trade.Side),
			Status:     string(res.Status),
			Reason:     res.Reason,
			OrderID:    res.OrderID,
			Notional:   res.Notional,
			Size:       res.Size,
			LimitPrice: res.LimitPrice,
		}); err != nil {
			observ.Log("journal_append_failed", map[string]any{"key": key, "err": err.Error()})
		}
	}
}

func (p *Poller) claim(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inflight[key]; ok {
		return false
	}
	p.inflight[key] = struct{}{}
	return true
}

func (p *Poller) release(key string) {
	p.mu.Lock()
	delete(p.inflight, key)
	p.mu.Unlock()
}

func (p *Poller) alreadySeen(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.seen[key]; ok {
		return true
	}
	_, ok := p.prev[key]
	return ok
}

func (p *Poller) remember(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.seen) >= seenLimit {
		p.prev = p.seen
		p.seen = make(map[string]struct{}, seenLimit)
	}
	p.seen[key] = struct{}{}
}
