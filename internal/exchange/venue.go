package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Rajchodisetti/copy-trader/internal/money"
)

// OrderSigner turns an order request into the signed submission payload.
// Signing cryptography lives entirely behind this boundary.
type OrderSigner interface {
	SignOrder(req OrderRequest) ([]byte, error)
	// AuthHeaders returns the authenticated API headers for a request.
	AuthHeaders(method, path string, body []byte) (map[string]string, error)
}

// AllowanceApprover submits an on-chain spending approval and waits for
// confirmation. Nil when the deployment has no network access configured.
type AllowanceApprover interface {
	Approve(ctx context.Context, amount money.Micros) error
}

// VenueClient implements TradingVenue against the order-submission API.
type VenueClient struct {
	http     *httpClient
	signer   OrderSigner
	approver AllowanceApprover
}

func NewVenueClient(baseURL string, timeout time.Duration, reqsPerSecond float64, signer OrderSigner, approver AllowanceApprover) *VenueClient {
	return &VenueClient{
		http:     newHTTPClient(baseURL, timeout, reqsPerSecond),
		signer:   signer,
		approver: approver,
	}
}

// SubmitOrder signs and posts one order. No internal retries here: the
// decision engine owns the GTD-to-GTC fallback and the nonce/fee retry
// budget, so a plain error with classification is the right contract.
func (c *VenueClient) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResponse, error) {
	payload, err := c.signer.SignOrder(req)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("signing order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.http.baseURL+"/order", bytes.NewReader(payload))
	if err != nil {
		return OrderResponse{}, fmt.Errorf("creating order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	headers, err := c.signer.AuthHeaders(http.MethodPost, "/order", payload)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("building auth headers: %w", err)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	if err := c.http.limiter.Wait(ctx); err != nil {
		return OrderResponse{}, err
	}
	resp, err := c.http.client.Do(httpReq)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("submit order: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("submit order: reading body: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return OrderResponse{}, &APIError{Op: "submit order", Status: resp.StatusCode, Body: string(body)}
	}

	var out OrderResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return OrderResponse{}, fmt.Errorf("submit order: decoding response: %w", err)
	}
	return out, nil
}

// BalanceAllowance reads the owner's on-exchange balance and spending
// authorization, both exact micro-unit decimal strings on the wire.
func (c *VenueClient) BalanceAllowance(ctx context.Context, owner string) (BalanceAllowance, error) {
	var resp struct {
		Balance   string `json:"balance"`
		Allowance string `json:"allowance"`
	}
	path := "/balance-allowance?asset_type=COLLATERAL&owner=" + url.QueryEscape(owner)
	if err := c.getSigned(ctx, "fetch balance/allowance", path, &resp); err != nil {
		return BalanceAllowance{}, err
	}

	balance, err := money.Parse(resp.Balance)
	if err != nil {
		return BalanceAllowance{}, fmt.Errorf("fetch balance/allowance: %w", err)
	}
	allowance, err := money.Parse(resp.Allowance)
	if err != nil {
		return BalanceAllowance{}, fmt.Errorf("fetch balance/allowance: %w", err)
	}
	return BalanceAllowance{Balance: balance, Allowance: allowance}, nil
}

// OpenOrders lists the account's own resting orders for collateral math.
func (c *VenueClient) OpenOrders(ctx context.Context, owner string) ([]OpenOrder, error) {
	var out []OpenOrder
	path := "/orders?owner=" + url.QueryEscape(owner)
	if err := c.getSigned(ctx, "fetch open orders", path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveAllowance submits an on-chain approval through the configured
// approver. Callers gate this behind the allowance guard's preconditions.
func (c *VenueClient) ApproveAllowance(ctx context.Context, amount money.Micros) error {
	if c.approver == nil {
		return errors.New("allowance approval not configured")
	}
	return c.approver.Approve(ctx, amount)
}

func (c *VenueClient) getSigned(ctx context.Context, op, path string, out any) error {
	return c.http.retry.Do(ctx, func() error {
		if err := c.http.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.http.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("%s: creating request: %w", op, err)
		}
		headers, err := c.signer.AuthHeaders(http.MethodGet, path, nil)
		if err != nil {
			return fmt.Errorf("%s: building auth headers: %w", op, err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := c.http.client.Do(req)
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
