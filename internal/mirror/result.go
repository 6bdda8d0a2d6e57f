package mirror

import (
	"encoding/json"

	"github.com/Rajchodisetti/copy-trader/internal/allowance"
)

// Status is the terminal state of one signal's evaluation.
type Status string

const (
	StatusPlaced  Status = "placed"
	StatusSkipped Status = "skipped"
	StatusDryRun  Status = "dry_run"
	StatusFailed  Status = "failed"
)

// Stable machine-readable reason codes. Skips are expected and frequent;
// the codes are the contract operator tooling filters on.
const (
	ReasonInvalidTrade     = "invalid-trade"
	ReasonTokenUnresolved  = "token-unresolved"
	ReasonTokenSuspicious  = "token-suspicious"
	ReasonBalanceCooldown  = "balance-cooldown"
	ReasonAuthBackoff      = "auth-backoff"
	ReasonMetadataMissing  = "metadata-unavailable"
	ReasonMarketClosed     = "market-closed"
	ReasonCategoryBlocked  = "category-blocked"
	ReasonMarketExpiring   = "market-expiring"
	ReasonTTLTooShort      = "ttl-too-short"
	ReasonNoPrice          = "no-price"
	ReasonZeroWeight       = "zero-weight"
	ReasonInvalidNotional  = "invalid-notional"
	ReasonDailyCap         = "daily-cap"
	ReasonBelowMinSize     = "below-min-size"
	ReasonNoPositionToSell = "no-position-to-sell"
	ReasonInvalidLimit     = "invalid-limit-price"
	ReasonFunderMismatch   = "funder-mismatch"
	ReasonFundingCheck     = "funding-check-failed"
	ReasonAuthError        = "auth-error"
	ReasonOrderRejected    = "order-rejected"
)

// Diagnostics carries the failure context the orchestrator persists for
// post-mortems: the funding snapshot at preflight and the upstream body.
type Diagnostics struct {
	Funding      *allowance.Snapshot `json:"funding,omitempty"`
	UpstreamBody string              `json:"upstream_body,omitempty"`
}

// Result is the sole output contract of the decision engine. The
// orchestrator persists it verbatim.
type Result struct {
	Status     Status       `json:"status"`
	Reason     string       `json:"reason"`
	OrderID    string       `json:"order_id,omitempty"`
	Notional   float64      `json:"notional,omitempty"`
	Size       float64      `json:"size,omitempty"`
	LimitPrice float64      `json:"limit_price,omitempty"`
	Diag       *Diagnostics `json:"diag,omitempty"`
}

// JSON renders the result for the audit trail.
func (r Result) JSON() string {
	b, _ := json.Marshal(r)
	return string(b)
}

func skip(reason string) Result {
	return Result{Status: StatusSkipped, Reason: reason}
}

func failed(reason string, diag *Diagnostics) Result {
	return Result{Status: StatusFailed, Reason: reason, Diag: diag}
}
