// Package ratelimit provides best-effort, per-client request throttling.
//
// FixedWindow keeps its counters in process memory, so in a horizontally
// scaled deployment it only bounds the load on a single instance. A shared
// store can be put behind the Limiter interface without touching callers.
package ratelimit

import (
	"sync"
	"time"
)

// Defaults for the chat endpoint.
const (
	DefaultWindow      = 60 * time.Second
	DefaultMaxRequests = 30
)

// Limiter decides whether a client has exceeded its request quota.
type Limiter interface {
	IsLimited(clientKey string) bool
}

// Record is the counter state for one client.
type Record struct {
	Count       int
	WindowStart time.Time
}

// FixedWindow is a fixed-window request counter keyed by client identifier.
type FixedWindow struct {
	mu      sync.Mutex
	records map[string]*Record
	window  time.Duration
	max     int
	enabled bool
	now     func() time.Time
}

// Option configures a FixedWindow.
type Option func(*FixedWindow)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(l *FixedWindow) { l.now = now }
}

// Disabled turns the limiter into a no-op. Used outside production.
func Disabled() Option {
	return func(l *FixedWindow) { l.enabled = false }
}

// NewFixedWindow creates a limiter allowing max requests per window.
// Non-positive values fall back to the defaults.
func NewFixedWindow(window time.Duration, max int, opts ...Option) *FixedWindow {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMaxRequests
	}
	l := &FixedWindow{
		records: make(map[string]*Record),
		window:  window,
		max:     max,
		enabled: true,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsLimited counts one request for clientKey and reports whether it must be
// rejected. A rejected request does not increment the counter.
func (l *FixedWindow) IsLimited(clientKey string) bool {
	if !l.enabled {
		return false
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[clientKey]
	if !ok || now.Sub(rec.WindowStart) > l.window {
		l.records[clientKey] = &Record{Count: 1, WindowStart: now}
		return false
	}
	if rec.Count >= l.max {
		return true
	}
	rec.Count++
	return false
}

// Lookup returns a copy of the record for clientKey.
func (l *FixedWindow) Lookup(clientKey string) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[clientKey]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Prune drops records whose window has expired and returns how many were
// removed.
func (l *FixedWindow) Prune() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, rec := range l.records {
		if now.Sub(rec.WindowStart) > l.window {
			delete(l.records, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
