// Package config loads the YAML run configuration and overlays secrets
// from the environment. Secrets never live in the YAML file; a .env file
// is honored for local runs.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Upstream struct {
	DataURL       string  `yaml:"data_url"`
	MarketsURL    string  `yaml:"markets_url"`
	VenueURL      string  `yaml:"venue_url"`
	FeedURL       string  `yaml:"feed_url"`
	TimeoutMs     int     `yaml:"timeout_ms"`
	ReqsPerSecond float64 `yaml:"reqs_per_second"`
}

type Scoring struct {
	LookbackDays    int     `yaml:"lookback_days"`
	MinClosedSample int     `yaml:"min_closed_sample"`
	OpenLossPenalty float64 `yaml:"open_loss_penalty"`
}

type Selection struct {
	Mode             string  `yaml:"mode"` // LEADER | TOPK
	TopK             int     `yaml:"top_k"`
	CooldownMinutes  int     `yaml:"cooldown_minutes"`
	MinHoldMinutes   int     `yaml:"min_hold_minutes"`
	SwitchMarginPct  float64 `yaml:"switch_margin_pct"`
	StopScore        float64 `yaml:"stop_score"`
	StopRealizedPnl  float64 `yaml:"stop_realized_pnl"`
	EvalIntervalMins int     `yaml:"eval_interval_minutes"`
}

type Categories struct {
	Allowed              []string `yaml:"allowed"`
	Blocked              []string `yaml:"blocked"`
	BlockedTitlePatterns []string `yaml:"blocked_title_patterns"`
}

type Mirror struct {
	CopyRatio             float64    `yaml:"copy_ratio"`
	MaxNotionalPerTrade   float64    `yaml:"max_notional_per_trade"`
	MaxSharesPerTrade     float64    `yaml:"max_shares_per_trade"`
	DailyNotionalCap      string     `yaml:"daily_notional_cap"` // decimal USDC
	SlippagePct           float64    `yaml:"slippage_pct"`
	OrderTTLSeconds       int64      `yaml:"order_ttl_seconds"`
	EndSafetyMinutes      int        `yaml:"end_safety_minutes"`
	ExpirationSafetySecs  int        `yaml:"expiration_safety_seconds"`
	Categories            Categories `yaml:"categories"`
	AuthBackoffMinutes    int        `yaml:"auth_backoff_minutes"`
	NonceRetryMaxAttempts int        `yaml:"nonce_retry_max_attempts"`
}

type Funding struct {
	Owner                   string `yaml:"owner"`
	SignerAddress           string `yaml:"signer_address"`
	SignatureType           int    `yaml:"signature_type"` // 0 direct, 1/2 proxy
	AutoApprove             bool   `yaml:"auto_approve"`
	ApprovalAmount          string `yaml:"approval_amount"` // decimal USDC
	ApprovalCooldownMinutes int    `yaml:"approval_cooldown_minutes"`
	BalanceCooldownMinutes  int    `yaml:"balance_cooldown_minutes"`
}

type Poll struct {
	IntervalMs       int `yaml:"interval_ms"`
	FetchLimit       int `yaml:"fetch_limit"`
	Concurrency      int `yaml:"concurrency"`
	MaxSignalAgeMins int `yaml:"max_signal_age_minutes"`
}

type Feed struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Root struct {
	Mode        string    `yaml:"mode"` // dry-run | live
	Wallets     []string  `yaml:"wallets"`
	Upstream    Upstream  `yaml:"upstream"`
	Scoring     Scoring   `yaml:"scoring"`
	Selection   Selection `yaml:"selection"`
	Mirror      Mirror    `yaml:"mirror"`
	Funding     Funding   `yaml:"funding"`
	Poll        Poll      `yaml:"poll"`
	Feed        Feed      `yaml:"feed"`
	Server      Server    `yaml:"server"`
	StorePath   string    `yaml:"store_path"`
	JournalPath string    `yaml:"journal_path"`

	// Overlaid from the environment, never from YAML.
	PrivateKey    string `yaml:"-"`
	APIKey        string `yaml:"-"`
	APISecret     string `yaml:"-"`
	APIPassphrase string `yaml:"-"`
}

func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	overlayEnv(&c)
	if err := c.Validate(); err != nil {
		return c, err
	}
	// Wallet identity is case-insensitive everywhere downstream.
	for i, w := range c.Wallets {
		c.Wallets[i] = strings.ToLower(w)
	}
	return c, nil
}

func applyDefaults(c *Root) {
	if c.Mode == "" {
		c.Mode = "dry-run"
	}
	if c.Upstream.TimeoutMs == 0 {
		c.Upstream.TimeoutMs = 10000
	}
	if c.Upstream.ReqsPerSecond == 0 {
		c.Upstream.ReqsPerSecond = 5
	}
	if c.Scoring.LookbackDays == 0 {
		c.Scoring.LookbackDays = 30
	}
	if c.Scoring.MinClosedSample == 0 {
		c.Scoring.MinClosedSample = 5
	}
	if c.Scoring.OpenLossPenalty == 0 {
		c.Scoring.OpenLossPenalty = 0.5
	}
	if c.Selection.Mode == "" {
		c.Selection.Mode = "LEADER"
	}
	if c.Selection.TopK == 0 {
		c.Selection.TopK = 3
	}
	if c.Selection.CooldownMinutes == 0 {
		c.Selection.CooldownMinutes = 60
	}
	if c.Selection.MinHoldMinutes == 0 {
		c.Selection.MinHoldMinutes = 30
	}
	if c.Selection.SwitchMarginPct == 0 {
		c.Selection.SwitchMarginPct = 0.1
	}
	if c.Selection.EvalIntervalMins == 0 {
		c.Selection.EvalIntervalMins = 15
	}
	if c.Mirror.CopyRatio == 0 {
		c.Mirror.CopyRatio = 0.01
	}
	if c.Mirror.MaxNotionalPerTrade == 0 {
		c.Mirror.MaxNotionalPerTrade = 50
	}
	if c.Mirror.DailyNotionalCap == "" {
		c.Mirror.DailyNotionalCap = "200"
	}
	if c.Mirror.SlippagePct == 0 {
		c.Mirror.SlippagePct = 0.02
	}
	if c.Mirror.OrderTTLSeconds == 0 {
		c.Mirror.OrderTTLSeconds = 3600
	}
	if c.Mirror.EndSafetyMinutes == 0 {
		c.Mirror.EndSafetyMinutes = 10
	}
	if c.Mirror.ExpirationSafetySecs == 0 {
		c.Mirror.ExpirationSafetySecs = 120
	}
	if c.Mirror.AuthBackoffMinutes == 0 {
		c.Mirror.AuthBackoffMinutes = 5
	}
	if c.Mirror.NonceRetryMaxAttempts == 0 {
		c.Mirror.NonceRetryMaxAttempts = 3
	}
	if c.Funding.ApprovalCooldownMinutes == 0 {
		c.Funding.ApprovalCooldownMinutes = 10
	}
	if c.Funding.BalanceCooldownMinutes == 0 {
		c.Funding.BalanceCooldownMinutes = 15
	}
	if c.Poll.IntervalMs == 0 {
		c.Poll.IntervalMs = 5000
	}
	if c.Poll.FetchLimit == 0 {
		c.Poll.FetchLimit = 50
	}
	if c.Poll.Concurrency == 0 {
		c.Poll.Concurrency = 4
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = 256
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.StorePath == "" {
		c.StorePath = "data/copytrader.db"
	}
	if c.JournalPath == "" {
		c.JournalPath = "data/journal.jsonl"
	}
}

// overlayEnv pulls secrets from the process environment, loading a .env
// file first when one exists.
func overlayEnv(c *Root) {
	_ = godotenv.Load()
	if v := os.Getenv("COPYTRADER_PRIVATE_KEY"); v != "" {
		c.PrivateKey = v
	}
	if v := os.Getenv("COPYTRADER_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("COPYTRADER_API_SECRET"); v != "" {
		c.APISecret = v
	}
	if v := os.Getenv("COPYTRADER_API_PASSPHRASE"); v != "" {
		c.APIPassphrase = v
	}
	if v := os.Getenv("COPYTRADER_OWNER"); v != "" {
		c.Funding.Owner = v
	}
	if v := os.Getenv("COPYTRADER_SIGNER"); v != "" {
		c.Funding.SignerAddress = v
	}
}

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Validate rejects configurations that would misroute funds or stall the
// engine. Live mode is strict; dry-run only needs wallets to follow.
func (c Root) Validate() error {
	if c.Mode != "dry-run" && c.Mode != "live" {
		return fmt.Errorf("mode must be dry-run or live, got %q", c.Mode)
	}
	if len(c.Wallets) == 0 {
		return fmt.Errorf("at least one wallet to follow is required")
	}
	for _, w := range c.Wallets {
		if !addressPattern.MatchString(w) {
			return fmt.Errorf("wallet %q is not a valid address", w)
		}
	}
	switch strings.ToUpper(c.Selection.Mode) {
	case "LEADER", "TOPK":
	default:
		return fmt.Errorf("selection mode must be LEADER or TOPK, got %q", c.Selection.Mode)
	}
	if c.Mirror.CopyRatio <= 0 || c.Mirror.CopyRatio > 1 {
		return fmt.Errorf("copy_ratio must be in (0, 1], got %v", c.Mirror.CopyRatio)
	}
	if c.Mirror.SlippagePct < 0 || c.Mirror.SlippagePct >= 1 {
		return fmt.Errorf("slippage_pct must be in [0, 1), got %v", c.Mirror.SlippagePct)
	}
	for _, pat := range c.Mirror.Categories.BlockedTitlePatterns {
		if _, err := regexp.Compile(pat); err != nil {
			return fmt.Errorf("blocked title pattern %q does not compile: %v", pat, err)
		}
	}

	if c.Mode == "live" {
		if c.PrivateKey == "" {
			return fmt.Errorf("live mode requires COPYTRADER_PRIVATE_KEY")
		}
		if !addressPattern.MatchString(c.Funding.Owner) {
			return fmt.Errorf("funding owner %q is not a valid address", c.Funding.Owner)
		}
		if !addressPattern.MatchString(c.Funding.SignerAddress) {
			return fmt.Errorf("signer address %q is not a valid address", c.Funding.SignerAddress)
		}
		switch c.Funding.SignatureType {
		case 0:
			if !strings.EqualFold(c.Funding.Owner, c.Funding.SignerAddress) {
				return fmt.Errorf("direct signature scheme requires owner and signer to match (owner=%s signer=%s)",
					c.Funding.Owner, c.Funding.SignerAddress)
			}
		case 1, 2:
			if strings.EqualFold(c.Funding.Owner, c.Funding.SignerAddress) {
				return fmt.Errorf("proxy signature scheme requires a funder distinct from the signer (owner=%s signer=%s)",
					c.Funding.Owner, c.Funding.SignerAddress)
			}
		default:
			return fmt.Errorf("signature_type must be 0, 1 or 2, got %d", c.Funding.SignatureType)
		}
	}
	return nil
}
