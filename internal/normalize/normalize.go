// Package normalize validates raw activity records into immutable Trade
// values. Anything that fails validation is rejected with the exact list
// of missing or invalid fields; nothing is ever silently defaulted.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Rajchodisetti/copy-trader/internal/exchange"
)

// Trade is one observed fill on a monitored wallet, canonical and
// immutable once built.
type Trade struct {
	Wallet       string
	TxID         string
	ConditionID  string
	OutcomeIndex int
	Side         exchange.Side
	Size         float64
	Price        float64
	TimestampMs  int64
}

// Key is the idempotency key for this trade.
func (t *Trade) Key() string {
	return fmt.Sprintf("%s:%s:%d", t.Wallet, t.TxID, t.TimestampMs)
}

// Notional is price times size, in the trade's own units.
func (t *Trade) Notional() float64 {
	return t.Price * t.Size
}

// Upstream revisions disagree on field names, so every field is resolved
// through an ordered candidate list, first match wins. New variants are a
// one-line addition here.
var (
	txIDKeys      = []string{"transactionHash", "transaction_hash", "txHash", "tx_hash", "hash"}
	marketKeys    = []string{"conditionId", "condition_id", "market"}
	outcomeKeys   = []string{"outcomeIndex", "outcome_index"}
	sideKeys      = []string{"side"}
	sizeKeys      = []string{"size"}
	priceKeys     = []string{"price"}
	timestampKeys = []string{"timestamp", "ts", "createdAt", "created_at"}
)

// Normalize builds a Trade from a raw record, or returns nil plus the
// enumerated set of missing/invalid fields.
func Normalize(raw exchange.RawSignal, wallet string) (*Trade, []string) {
	var missing []string

	if wallet == "" {
		missing = append(missing, "wallet")
	}

	txID, ok := extractString(raw, txIDKeys)
	if !ok {
		missing = append(missing, "transactionHash")
	}

	conditionID, ok := extractString(raw, marketKeys)
	if !ok {
		missing = append(missing, "conditionId")
	}

	outcomeIdx, ok := extractNumber(raw, outcomeKeys)
	if !ok || !isFinite(outcomeIdx) || outcomeIdx < 0 || outcomeIdx != math.Trunc(outcomeIdx) {
		missing = append(missing, "outcomeIndex")
	}

	side, ok := extractString(raw, sideKeys)
	side = strings.ToUpper(side)
	if !ok || (side != string(exchange.Buy) && side != string(exchange.Sell)) {
		missing = append(missing, "side")
	}

	size, ok := extractNumber(raw, sizeKeys)
	if !ok || !isFinite(size) || size <= 0 {
		missing = append(missing, "size")
	}

	price, ok := extractNumber(raw, priceKeys)
	if !ok || !isFinite(price) {
		missing = append(missing, "price")
	}

	tsMs, ok := extractTimestampMs(raw, timestampKeys)
	if !ok {
		missing = append(missing, "timestamp")
	}

	if len(missing) > 0 {
		return nil, missing
	}

	return &Trade{
		Wallet:       wallet,
		TxID:         txID,
		ConditionID:  conditionID,
		OutcomeIndex: int(outcomeIdx),
		Side:         exchange.Side(side),
		Size:         size,
		Price:        price,
		TimestampMs:  tsMs,
	}, nil
}

// PoisonKey builds the degraded idempotency key for a record that could
// not be normalized, so an unusable signal is not reprocessed forever.
// Fields that are themselves missing render as empty segments.
func PoisonKey(raw exchange.RawSignal, wallet string) string {
	txID, _ := extractString(raw, txIDKeys)
	var ts string
	if tsMs, ok := extractTimestampMs(raw, timestampKeys); ok {
		ts = strconv.FormatInt(tsMs, 10)
	}
	return fmt.Sprintf("invalid:%s:%s:%s", wallet, txID, ts)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func extractString(raw exchange.RawSignal, keys []string) (string, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func extractNumber(raw exchange.RawSignal, keys []string) (float64, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// extractTimestampMs resolves a timestamp from ISO-8601, unix seconds or
// unix milliseconds. Numeric values below 1e12 are treated as seconds.
func extractTimestampMs(raw exchange.RawSignal, keys []string) (int64, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			if ms, ok := numericMs(t); ok {
				return ms, true
			}
		case int64:
			if ms, ok := numericMs(float64(t)); ok {
				return ms, true
			}
		case string:
			if parsed, err := time.Parse(time.RFC3339, t); err == nil {
				return parsed.UnixMilli(), true
			}
			if f, err := strconv.ParseFloat(t, 64); err == nil {
				if ms, ok := numericMs(f); ok {
					return ms, true
				}
			}
		}
	}
	return 0, false
}

func numericMs(f float64) (int64, bool) {
	if !isFinite(f) || f <= 0 {
		return 0, false
	}
	if f < 1e12 {
		return int64(f * 1000), true
	}
	return int64(f), true
}
