// Package exchange defines the collaborator surface the mirroring core
// depends on, plus HTTP clients for a Polymarket-shaped venue. The core
// only sees the interfaces; everything wire-level stays in this package.
package exchange

import (
	"context"

	"github.com/Rajchodisetti/copy-trader/internal/money"
)

// RawSignal is one observed activity record for a monitored wallet,
// exactly as the upstream returned it. Field names and value types vary
// across upstream revisions, so validation and extraction happen in the
// normalizer, not here.
type RawSignal map[string]any

// ClosedPosition is a realized position used by the scoring engine.
type ClosedPosition struct {
	RealizedPnl float64 `json:"realizedPnl"`
	TotalBought float64 `json:"totalBought"`
	Timestamp   int64   `json:"timestamp"` // unix ms of position close
}

// OpenPosition is a currently held position. Size is in shares.
type OpenPosition struct {
	ConditionID  string  `json:"conditionId"`
	OutcomeIndex int     `json:"outcomeIndex"`
	Size         float64 `json:"size"`
	CashPnl      float64 `json:"cashPnl"`
}

// Token maps an outcome index to its tradable instrument id.
type Token struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
}

// MarketMeta is lifecycle and classification metadata for a market.
// Raw keeps the full upstream record because end-date fields appear under
// several names depending on the upstream revision.
type MarketMeta struct {
	ConditionID string
	Closed      bool
	Archived    bool
	Active      bool
	Category    string
	Title       string
	NegRisk     bool
	Tokens      []Token
	Raw         map[string]any
}

// BookLevel is a single order-book price level. Prices and sizes stay as
// decimal strings until the decision engine rounds them.
type BookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// OrderBook is top-of-book plus the instrument's granularity contract.
type OrderBook struct {
	TokenID      string      `json:"asset_id"`
	Bids         []BookLevel `json:"bids"`
	Asks         []BookLevel `json:"asks"`
	TickSize     string      `json:"tick_size"`
	MinOrderSize string      `json:"min_order_size"`
	NegRisk      bool        `json:"neg_risk"`
}

// Side of an order or signal.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// TTLMode selects the order lifetime policy.
type TTLMode string

const (
	GTD TTLMode = "GTD" // good-till-date, expires
	GTC TTLMode = "GTC" // good-till-canceled
)

// OrderRequest is a fully priced and sized order ready for submission.
type OrderRequest struct {
	TokenID    string
	Side       Side
	Price      float64
	Size       float64
	Mode       TTLMode
	TTLSeconds int64 // only meaningful for GTD
	NegRisk    bool
}

// OrderResponse is the venue's acknowledgment of a placed order.
type OrderResponse struct {
	OrderID string `json:"orderID"`
}

// BalanceAllowance is the on-exchange funding snapshot for an owner.
type BalanceAllowance struct {
	Balance   money.Micros
	Allowance money.Micros
}

// OpenOrder is one of the account's own resting orders. Remaining size
// times price is collateral the venue has already earmarked.
type OpenOrder struct {
	ID           string `json:"id"`
	TokenID      string `json:"asset_id"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
}

// SignalSource provides paginated trade history for a monitored wallet.
type SignalSource interface {
	FetchSignals(ctx context.Context, wallet string, limit int) ([]RawSignal, error)
}

// PositionSource provides realized and open positions for scoring and
// sell-side clamping.
type PositionSource interface {
	FetchClosedPositions(ctx context.Context, wallet string) ([]ClosedPosition, error)
	FetchOpenPositions(ctx context.Context, wallet, conditionID string) ([]OpenPosition, error)
}

// MarketDataSource provides market lifecycle metadata and pricing.
type MarketDataSource interface {
	MarketMetadata(ctx context.Context, conditionID string) (MarketMeta, error)
	OrderBook(ctx context.Context, tokenID string) (OrderBook, error)
	Price(ctx context.Context, tokenID string, side Side) (float64, error)
}

// TradingVenue is the order-submission and funding surface of the
// exchange. Signing happens behind SubmitOrder; the core never sees keys.
type TradingVenue interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResponse, error)
	BalanceAllowance(ctx context.Context, owner string) (BalanceAllowance, error)
	OpenOrders(ctx context.Context, owner string) ([]OpenOrder, error)
	ApproveAllowance(ctx context.Context, amount money.Micros) error
}
