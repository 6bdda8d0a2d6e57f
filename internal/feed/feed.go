// Package feed maintains a websocket subscription to the venue's user
// activity channel and turns pushed fills into the same raw signals the
// poller fetches over HTTP. Both paths converge on the normalizer and
// the processed-key dedup, so a fill seen twice costs nothing.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Rajchodisetti/copy-trader/internal/exchange"
	"github.com/Rajchodisetti/copy-trader/internal/observ"
)

const (
	initialBackoff   = 1 * time.Second
	maxBackoff       = 60 * time.Second
	backoffFactor    = 2.0
	jitterPercent    = 0.2
	heartbeatTimeout = 60 * time.Second
	pongTimeout      = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

// FillEvent is one pushed activity record attributed to a followed
// wallet.
type FillEvent struct {
	Wallet string
	Raw    exchange.RawSignal
}

// Listener owns the connection lifecycle: dial, subscribe, read, and
// reconnect with jittered exponential backoff.
type Listener struct {
	url    string
	events chan<- FillEvent

	connMu sync.Mutex
	conn   *websocket.Conn

	walletsMu sync.RWMutex
	wallets   map[string]struct{}

	lastMsgMu sync.RWMutex
	lastMsg   time.Time

	backoff  time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewListener(url string, events chan<- FillEvent) *Listener {
	return &Listener{
		url:      url,
		events:   events,
		wallets:  map[string]struct{}{},
		backoff:  initialBackoff,
		stopChan: make(chan struct{}),
	}
}

// SetWallets replaces the followed wallet set. Takes effect on the next
// (re)subscribe; callers that change selection force a reconnect.
func (l *Listener) SetWallets(wallets []string) {
	set := make(map[string]struct{}, len(wallets))
	for _, w := range wallets {
		set[strings.ToLower(w)] = struct{}{}
	}
	l.walletsMu.Lock()
	l.wallets = set
	l.walletsMu.Unlock()
}

// Start runs the connection loop and the heartbeat monitor until Stop or
// context cancellation.
func (l *Listener) Start(ctx context.Context) {
	l.wg.Add(2)
	go l.runLoop(ctx)
	go l.heartbeatMonitor(ctx)
}

func (l *Listener) Stop() {
	close(l.stopChan)
	l.closeConnection()
	l.wg.Wait()
}

func (l *Listener) runLoop(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		default:
		}

		if err := l.connect(ctx); err != nil {
			observ.IncCounter("feed_connect_errors_total", nil)
			observ.Log("feed_connect_failed", map[string]any{"err": err.Error(), "backoff_ms": l.backoff.Milliseconds()})
			l.waitBackoff(ctx)
			continue
		}

		if err := l.readLoop(ctx); err != nil {
			observ.Log("feed_read_error", map[string]any{"err": err.Error()})
		}
		l.closeConnection()

		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		default:
			l.waitBackoff(ctx)
		}
	}
}

func (l *Listener) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", "https://polymarket.com")

	url := l.url
	if !strings.HasSuffix(url, "/user") {
		url = strings.TrimSuffix(url, "/") + "/user"
	}

	conn, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}

	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()
	l.backoff = initialBackoff

	observ.Log("feed_connected", map[string]any{"endpoint": url})

	if err := l.subscribe(); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}
	l.updateLastMsg()
	return nil
}

func (l *Listener) subscribe() error {
	msg := subscribeMessage(l.walletList())

	l.connMu.Lock()
	defer l.connMu.Unlock()
	if l.conn == nil {
		return fmt.Errorf("connection is nil")
	}
	l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := l.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("sending subscribe message: %w", err)
	}
	observ.Log("feed_subscribed", map[string]any{"wallet_count": len(msg.Markets)})
	return nil
}

// subscription is the user-channel subscribe payload. The venue calls
// the watched addresses "markets" on this channel.
type subscription struct {
	Type    string   `json:"type"`
	Markets []string `json:"markets"`
}

func subscribeMessage(wallets []string) subscription {
	return subscription{Type: "user", Markets: wallets}
}

func (l *Listener) walletList() []string {
	l.walletsMu.RLock()
	defer l.walletsMu.RUnlock()
	out := make([]string, 0, len(l.wallets))
	for w := range l.wallets {
		out = append(out, w)
	}
	return out
}

func (l *Listener) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopChan:
			return nil
		default:
		}

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()
		if conn == nil {
			return fmt.Errorf("connection is nil")
		}

		conn.SetReadDeadline(time.Now().Add(heartbeatTimeout + pongTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		l.updateLastMsg()
		l.handleMessage(message)
	}
}

func (l *Listener) handleMessage(data []byte) {
	events := parseEvents(data, l.isFollowed)
	for _, ev := range events {
		select {
		case l.events <- ev:
			observ.IncCounter("feed_fills_total", nil)
		default:
			observ.IncCounter("feed_dropped_total", nil)
			observ.Log("feed_channel_full", map[string]any{"wallet": ev.Wallet})
		}
	}
}

func (l *Listener) isFollowed(wallet string) bool {
	l.walletsMu.RLock()
	defer l.walletsMu.RUnlock()
	_, ok := l.wallets[strings.ToLower(wallet)]
	return ok
}

// walletKeys are the candidate fields naming the account a pushed record
// belongs to, in precedence order.
var walletKeys = []string{"proxyWallet", "proxy_wallet", "user", "wallet", "maker"}

// parseEvents decodes a pushed frame into the fills of followed wallets.
// Frames arrive as a single record or an array of records; anything else
// (confirmations, heartbeats) decodes to nothing.
func parseEvents(data []byte, followed func(string) bool) []FillEvent {
	var records []exchange.RawSignal
	if err := json.Unmarshal(data, &records); err != nil {
		var single exchange.RawSignal
		if err := json.Unmarshal(data, &single); err != nil || len(single) == 0 {
			return nil
		}
		records = []exchange.RawSignal{single}
	}

	var out []FillEvent
	for _, rec := range records {
		wallet, ok := extractWallet(rec)
		if !ok || !followed(wallet) {
			continue
		}
		out = append(out, FillEvent{Wallet: strings.ToLower(wallet), Raw: rec})
	}
	return out
}

func extractWallet(rec exchange.RawSignal) (string, bool) {
	for _, k := range walletKeys {
		if v, ok := rec[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func (l *Listener) heartbeatMonitor(ctx context.Context) {
	defer l.wg.Done()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.checkHeartbeat()
		}
	}
}

func (l *Listener) checkHeartbeat() {
	l.lastMsgMu.RLock()
	lastMsg := l.lastMsg
	l.lastMsgMu.RUnlock()
	if lastMsg.IsZero() || time.Since(lastMsg) <= heartbeatTimeout {
		return
	}

	observ.Log("feed_heartbeat_timeout", map[string]any{"elapsed_ms": time.Since(lastMsg).Milliseconds()})
	l.connMu.Lock()
	conn := l.conn
	l.connMu.Unlock()
	if conn != nil {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			observ.Log("feed_ping_failed", map[string]any{"err": err.Error()})
			l.closeConnection()
		}
	}
}

func (l *Listener) updateLastMsg() {
	l.lastMsgMu.Lock()
	l.lastMsg = time.Now()
	l.lastMsgMu.Unlock()
}

func (l *Listener) closeConnection() {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
		observ.Log("feed_disconnected", nil)
	}
}

func (l *Listener) waitBackoff(ctx context.Context) {
	jitter := time.Duration(float64(l.backoff) * jitterPercent * (rand.Float64()*2 - 1))
	wait := l.backoff + jitter
	select {
	case <-ctx.Done():
	case <-l.stopChan:
	case <-time.After(wait):
	}
	l.backoff = time.Duration(float64(l.backoff) * backoffFactor)
	if l.backoff > maxBackoff {
		l.backoff = maxBackoff
	}
}
