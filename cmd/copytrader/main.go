package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Rajchodisetti/copy-trader/internal/allowance"
	"github.com/Rajchodisetti/copy-trader/internal/config"
	"github.com/Rajchodisetti/copy-trader/internal/exchange"
	"github.com/Rajchodisetti/copy-trader/internal/feed"
	"github.com/Rajchodisetti/copy-trader/internal/journal"
	"github.com/Rajchodisetti/copy-trader/internal/mirror"
	"github.com/Rajchodisetti/copy-trader/internal/money"
	"github.com/Rajchodisetti/copy-trader/internal/observ"
	"github.com/Rajchodisetti/copy-trader/internal/poller"
	"github.com/Rajchodisetti/copy-trader/internal/scoring"
	"github.com/Rajchodisetti/copy-trader/internal/selection"
	"github.com/Rajchodisetti/copy-trader/internal/store"
)

func main() {
	var cfgPath string
	var dryRun bool
	flag.StringVar(&cfgPath, "config", "config/config.yaml", "config path")
	flag.BoolVar(&dryRun, "dry-run", false, "force dry-run mode regardless of config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v (did you copy config.example.yaml?)", err)
	}
	if dryRun {
		cfg.Mode = "dry-run"
	}

	observ.Log("startup", map[string]any{
		"mode":           cfg.Mode,
		"wallets":        len(cfg.Wallets),
		"selection_mode": cfg.Selection.Mode,
		"feed_enabled":   cfg.Feed.Enabled,
	})

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	timeout := time.Duration(cfg.Upstream.TimeoutMs) * time.Millisecond
	data := exchange.NewDataClient(cfg.Upstream.DataURL, timeout, cfg.Upstream.ReqsPerSecond)
	markets := exchange.NewMarketsClient(cfg.Upstream.MarketsURL, timeout, cfg.Upstream.ReqsPerSecond)

	signer := exchange.NewAPISigner(
		cfg.Funding.Owner, cfg.APIKey, cfg.APISecret, cfg.APIPassphrase,
		cfg.Funding.SignatureType,
	)
	venue := exchange.NewVenueClient(cfg.Upstream.VenueURL, timeout, cfg.Upstream.ReqsPerSecond, signer, nil)

	approvalAmount := money.Micros(0)
	if cfg.Funding.ApprovalAmount != "" {
		approvalAmount, err = money.Parse(cfg.Funding.ApprovalAmount)
		if err != nil {
			log.Fatalf("parse approval_amount: %v", err)
		}
	}
	guard := allowance.NewGuard(venue, allowance.Config{
		Owner:            cfg.Funding.Owner,
		SignerAddress:    cfg.Funding.SignerAddress,
		SignatureType:    cfg.Funding.SignatureType,
		AutoApprove:      cfg.Funding.AutoApprove,
		ApprovalAmount:   approvalAmount,
		ApprovalCooldown: time.Duration(cfg.Funding.ApprovalCooldownMinutes) * time.Minute,
		BalanceCooldown:  time.Duration(cfg.Funding.BalanceCooldownMinutes) * time.Minute,
	})

	dailyCap, err := money.Parse(cfg.Mirror.DailyNotionalCap)
	if err != nil {
		log.Fatalf("parse daily_notional_cap: %v", err)
	}
	engine := mirror.NewEngine(markets, data, venue, guard, st, mirror.Config{
		Owner:               cfg.Funding.Owner,
		SignerAddress:       cfg.Funding.SignerAddress,
		SignatureType:       cfg.Funding.SignatureType,
		CopyRatio:           cfg.Mirror.CopyRatio,
		MaxNotionalPerTrade: cfg.Mirror.MaxNotionalPerTrade,
		MaxSharesPerTrade:   cfg.Mirror.MaxSharesPerTrade,
		DailyNotionalCap:    dailyCap,
		SlippagePct:         cfg.Mirror.SlippagePct,
		OrderTTLSeconds:     cfg.Mirror.OrderTTLSeconds,
		EndTimeSafety:       time.Duration(cfg.Mirror.EndSafetyMinutes) * time.Minute,
		ExpirationSafety:    time.Duration(cfg.Mirror.ExpirationSafetySecs) * time.Second,
		Categories: mirror.CategoryFilter{
			Allowed:              cfg.Mirror.Categories.Allowed,
			Blocked:              cfg.Mirror.Categories.Blocked,
			BlockedTitlePatterns: cfg.Mirror.Categories.BlockedTitlePatterns,
		},
		AuthBackoff: time.Duration(cfg.Mirror.AuthBackoffMinutes) * time.Minute,
		DryRun:      cfg.Mode == "dry-run",
	})

	scorer := scoring.NewEngine(data, scoring.Config{
		LookbackDays:    cfg.Scoring.LookbackDays,
		MinClosedSample: cfg.Scoring.MinClosedSample,
		OpenLossPenalty: cfg.Scoring.OpenLossPenalty,
	})
	machine := selection.NewMachine(st, selection.Config{
		Mode:            selection.Mode(strings.ToUpper(cfg.Selection.Mode)),
		TopK:            cfg.Selection.TopK,
		Cooldown:        time.Duration(cfg.Selection.CooldownMinutes) * time.Minute,
		MinHold:         time.Duration(cfg.Selection.MinHoldMinutes) * time.Minute,
		SwitchMarginPct: cfg.Selection.SwitchMarginPct,
		StopScore:       cfg.Selection.StopScore,
		StopRealizedPnl: cfg.Selection.StopRealizedPnl,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Selection state shared between the evaluation loop, the poller and
	// the live feed.
	var selMu sync.RWMutex
	var current selection.Selection
	currentSelection := func() selection.Selection {
		selMu.RLock()
		defer selMu.RUnlock()
		return current
	}

	evaluate := func() {
		scores := scorer.ScoreAll(ctx, cfg.Wallets)
		sel, err := machine.Evaluate(scores)
		if err != nil {
			observ.Log("selection_failed", map[string]any{"err": err.Error()})
			return
		}
		selMu.Lock()
		current = sel
		selMu.Unlock()
		observ.SetGauge("selected_wallets", float64(len(sel.Weights)), nil)
	}
	evaluate()

	jrnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		log.Fatalf("open journal: %v", err)
	}

	pump := poller.New(data, st, engine, currentSelection, poller.Config{
		Interval:     time.Duration(cfg.Poll.IntervalMs) * time.Millisecond,
		FetchLimit:   cfg.Poll.FetchLimit,
		Concurrency:  cfg.Poll.Concurrency,
		MaxSignalAge: time.Duration(cfg.Poll.MaxSignalAgeMins) * time.Minute,
	})
	pump.SetJournal(jrnl)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pump.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Duration(cfg.Selection.EvalIntervalMins) * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				evaluate()
			}
		}
	}()

	// Live fills arrive over the websocket and go through the same
	// normalize-dedup-decide path as polled ones.
	var listener *feed.Listener
	if cfg.Feed.Enabled {
		events := make(chan feed.FillEvent, cfg.Feed.BufferSize)
		listener = feed.NewListener(cfg.Upstream.FeedURL, events)
		listener.SetWallets(cfg.Wallets)
		listener.Start(ctx)

		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-events:
					pump.HandleFill(ctx, ev.Wallet, ev.Raw)
				}
			}
		}()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observ.Handler())
	mux.Handle("/health", observ.Health())
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}
	go func() {
		observ.Log("http_listen", map[string]any{"addr": cfg.Server.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	observ.Log("shutdown_started", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if listener != nil {
		listener.Stop()
	}
	wg.Wait()
	observ.Log("shutdown_complete", nil)
}
