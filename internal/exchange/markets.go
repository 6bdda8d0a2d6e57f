package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// MarketsClient reads market lifecycle metadata, order books and
// indicative prices from the central limit order book API. It implements
// MarketDataSource.
type MarketsClient struct {
	http *httpClient
}

func NewMarketsClient(baseURL string, timeout time.Duration, reqsPerSecond float64) *MarketsClient {
	return &MarketsClient{http: newHTTPClient(baseURL, timeout, reqsPerSecond)}
}

// MarketMetadata fetches one market by condition id. The full record is
// retained in Raw because end-date fields vary by upstream revision.
func (c *MarketsClient) MarketMetadata(ctx context.Context, conditionID string) (MarketMeta, error) {
	var raw map[string]any
	path := "/markets/" + url.PathEscape(conditionID)
	if err := c.http.getJSON(ctx, "fetch market metadata", path, &raw); err != nil {
		return MarketMeta{}, err
	}

	meta := MarketMeta{
		ConditionID: stringField(raw, "condition_id"),
		Closed:      boolField(raw, "closed"),
		Archived:    boolField(raw, "archived"),
		Active:      boolField(raw, "active"),
		Category:    stringField(raw, "category"),
		Title:       stringField(raw, "question"),
		NegRisk:     boolField(raw, "neg_risk"),
		Raw:         raw,
	}
	if meta.Title == "" {
		meta.Title = stringField(raw, "title")
	}

	if tokens, ok := raw["tokens"].([]any); ok {
		for _, t := range tokens {
			tm, ok := t.(map[string]any)
			if !ok {
				continue
			}
			meta.Tokens = append(meta.Tokens, Token{
				TokenID: stringField(tm, "token_id"),
				Outcome: stringField(tm, "outcome"),
			})
		}
	}
	return meta, nil
}

// OrderBook fetches the current book for an instrument.
func (c *MarketsClient) OrderBook(ctx context.Context, tokenID string) (OrderBook, error) {
	var book OrderBook
	path := "/book?token_id=" + url.QueryEscape(tokenID)
	if err := c.http.getJSON(ctx, "fetch order book", path, &book); err != nil {
		return OrderBook{}, err
	}
	return book, nil
}

// Price fetches the venue's indicative price for one side. Used as the
// fallback when the book is empty or unusable.
func (c *MarketsClient) Price(ctx context.Context, tokenID string, side Side) (float64, error) {
	var resp struct {
		Price json.Number `json:"price"`
	}
	path := fmt.Sprintf("/price?token_id=%s&side=%s", url.QueryEscape(tokenID), side)
	if err := c.http.getJSON(ctx, "fetch price", path, &resp); err != nil {
		return 0, err
	}
	p, err := resp.Price.Float64()
	if err != nil {
		return 0, fmt.Errorf("fetch price: bad price %q: %w", resp.Price, err)
	}
	return p, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}
