package exchange

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// DataClient reads public wallet activity and positions from the
// exchange's data API. It implements SignalSource and PositionSource.
type DataClient struct {
	http *httpClient
}

func NewDataClient(baseURL string, timeout time.Duration, reqsPerSecond float64) *DataClient {
	return &DataClient{http: newHTTPClient(baseURL, timeout, reqsPerSecond)}
}

// FetchSignals returns the most recent TRADE activity records for a
// wallet. Records come back as raw maps; the normalizer owns validation.
func (c *DataClient) FetchSignals(ctx context.Context, wallet string, limit int) ([]RawSignal, error) {
	if limit <= 0 {
		limit = 100
	}
	path := fmt.Sprintf("/activity?user=%s&type=TRADE&limit=%d", url.QueryEscape(wallet), limit)

	var raw []RawSignal
	if err := c.http.getJSON(ctx, "fetch signals", path, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// FetchClosedPositions returns realized positions for scoring.
func (c *DataClient) FetchClosedPositions(ctx context.Context, wallet string) ([]ClosedPosition, error) {
	path := fmt.Sprintf("/closed-positions?user=%s&limit=500", url.QueryEscape(wallet))

	var out []ClosedPosition
	if err := c.http.getJSON(ctx, "fetch closed positions", path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchOpenPositions returns currently held positions, optionally scoped
// to one market. The SELL clamp queries this fresh on every signal.
func (c *DataClient) FetchOpenPositions(ctx context.Context, wallet, conditionID string) ([]OpenPosition, error) {
	path := fmt.Sprintf("/positions?user=%s&limit=500", url.QueryEscape(wallet))
	if conditionID != "" {
		path += "&market=" + url.QueryEscape(conditionID)
	}

	var out []OpenPosition
	if err := c.http.getJSON(ctx, "fetch open positions", path, &out); err != nil {
		return nil, err
	}
	return out, nil
}
