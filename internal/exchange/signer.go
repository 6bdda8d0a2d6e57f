package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// APISigner authenticates requests with the venue's HMAC header scheme
// and serializes orders for submission. Keys stay inside this type.
type APISigner struct {
	Address       string
	APIKey        string
	Secret        string // base64
	Passphrase    string
	SignatureType int
	now           func() time.Time
}

func NewAPISigner(address, apiKey, secret, passphrase string, signatureType int) *APISigner {
	return &APISigner{
		Address:       address,
		APIKey:        apiKey,
		Secret:        secret,
		Passphrase:    passphrase,
		SignatureType: signatureType,
		now:           time.Now,
	}
}

type orderPayload struct {
	TokenID       string  `json:"tokenID"`
	Side          string  `json:"side"`
	Price         float64 `json:"price"`
	Size          float64 `json:"size"`
	OrderType     string  `json:"orderType"`
	Expiration    int64   `json:"expiration,omitempty"`
	Maker         string  `json:"maker"`
	SignatureType int     `json:"signatureType"`
	NegRisk       bool    `json:"negRisk,omitempty"`
}

// SignOrder serializes the order for the submission endpoint. GTD orders
// carry an absolute unix expiration computed from the TTL.
func (s *APISigner) SignOrder(req OrderRequest) ([]byte, error) {
	p := orderPayload{
		TokenID:       req.TokenID,
		Side:          string(req.Side),
		Price:         req.Price,
		Size:          req.Size,
		OrderType:     string(req.Mode),
		Maker:         s.Address,
		SignatureType: s.SignatureType,
		NegRisk:       req.NegRisk,
	}
	if req.Mode == GTD {
		p.Expiration = s.now().Unix() + req.TTLSeconds
	}
	return json.Marshal(p)
}

// AuthHeaders builds the authenticated header set: an HMAC-SHA256 of
// timestamp, method, path and body under the API secret.
func (s *APISigner) AuthHeaders(method, path string, body []byte) (map[string]string, error) {
	secret, err := base64.URLEncoding.DecodeString(s.Secret)
	if err != nil {
		return nil, fmt.Errorf("decoding api secret: %w", err)
	}
	ts := strconv.FormatInt(s.now().Unix(), 10)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts + method + path))
	mac.Write(body)
	sig := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"POLY_ADDRESS":    s.Address,
		"POLY_API_KEY":    s.APIKey,
		"POLY_PASSPHRASE": s.Passphrase,
		"POLY_TIMESTAMP":  ts,
		"POLY_SIGNATURE":  sig,
	}, nil
}
