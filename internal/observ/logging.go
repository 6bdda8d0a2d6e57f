package observ

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

func Log(event string, kv map[string]any) {
	if kv == nil {
		kv = map[string]any{}
	}
	kv["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	kv["event"] = event
	b, _ := json.Marshal(kv)
	fmt.Println(string(b))
}

// RateLimitedLogger suppresses repeats of the same event within a window.
// Used for sustained shortfall conditions (allowance too low, balance
// cooldown active) that would otherwise flood the log on every signal.
type RateLimitedLogger struct {
	mu       sync.Mutex
	window   time.Duration
	lastSeen map[string]time.Time
}

func NewRateLimitedLogger(window time.Duration) *RateLimitedLogger {
	return &RateLimitedLogger{
		window:   window,
		lastSeen: make(map[string]time.Time),
	}
}

// Log emits the event unless the same event was emitted within the window.
// Returns true if the event was actually written.
func (r *RateLimitedLogger) Log(event string, kv map[string]any) bool {
	r.mu.Lock()
	last, ok := r.lastSeen[event]
	now := time.Now()
	if ok && now.Sub(last) < r.window {
		r.mu.Unlock()
		IncCounter("log_suppressed_total", map[string]string{"event": event})
		return false
	}
	r.lastSeen[event] = now
	r.mu.Unlock()
	Log(event, kv)
	return true
}
