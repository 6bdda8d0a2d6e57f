package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// httpClient wraps a base URL with a timeout-bound client, a rate limiter
// so upstream APIs are never hammered, and the shared retry policy.
type httpClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	retry   RetryPolicy
}

func newHTTPClient(baseURL string, timeout time.Duration, reqsPerSecond float64) *httpClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if reqsPerSecond <= 0 {
		reqsPerSecond = 10
	}
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(reqsPerSecond), int(reqsPerSecond)+1),
		retry:   DefaultRetryPolicy(),
	}
}

// getJSON fetches baseURL+path and decodes the response into out,
// applying rate limiting and bounded retries.
func (h *httpClient) getJSON(ctx context.Context, op, path string, out any) error {
	return h.retry.Do(ctx, func() error {
		if err := h.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("%s: creating request: %w", op, err)
		}
		resp, err := h.client.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: reading body: %w", op, err)
		}
		if resp.StatusCode != http.StatusOK {
			return &APIError{Op: op, Status: resp.StatusCode, Body: string(body)}
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%s: decoding response: %w", op, err)
		}
		return nil
	})
}
