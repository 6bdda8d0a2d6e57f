package exchange

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError carries the upstream status and body so the decision engine can
// surface them verbatim in failure diagnostics.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, truncate(e.Body, 300))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// IsAuth reports an authentication/authorization failure. These are never
// retried; they trip the auth backoff window instead.
func IsAuth(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden
	}
	return false
}

// IsTransient reports an upstream failure worth a bounded retry: server
// errors, rate limiting, and the venue's nonce/fee race rejections.
func IsTransient(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		// Network-level errors (timeouts, resets) arrive unwrapped.
		return err != nil && !IsAuth(err)
	}
	if ae.Status >= 500 || ae.Status == http.StatusTooManyRequests {
		return true
	}
	return IsNonceOrFee(err)
}

// IsNonceOrFee matches the venue's transient order rejections caused by
// nonce races or stale fee quotes.
func IsNonceOrFee(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	body := strings.ToLower(ae.Body)
	return strings.Contains(body, "invalid nonce") || strings.Contains(body, "fee")
}

// IsExpiration matches rejections of a GTD order whose expiry the venue
// considered already unusable. The engine retries these once as GTC.
func IsExpiration(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	body := strings.ToLower(ae.Body)
	return strings.Contains(body, "expiration") || strings.Contains(body, "expired")
}

// IsBalance matches balance/allowance rejections, which trip the BUY-side
// circuit breaker rather than per-signal retries.
func IsBalance(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	body := strings.ToLower(ae.Body)
	return strings.Contains(body, "not enough balance") ||
		strings.Contains(body, "insufficient") ||
		strings.Contains(body, "allowance")
}
