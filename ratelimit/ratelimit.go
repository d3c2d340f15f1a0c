// Package ratelimit implements the sliding-window rate limiter: attempts
// are keyed by SHA-256(identifier), counted within a trailing window, and
// trigger a timed block once the window fills.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ragforge/ragforge/rlog"
)

const (
	// DefaultMaxAttempts is the number of attempts allowed per window.
	DefaultMaxAttempts = 5
	// DefaultWindow is the sliding window duration.
	DefaultWindow = 15 * time.Minute
	// DefaultBlockDuration is how long an identifier is blocked once it
	// exceeds DefaultMaxAttempts within DefaultWindow.
	DefaultBlockDuration = time.Hour
	// DefaultCleanupInterval is how often the background cleanup runs.
	DefaultCleanupInterval = 5 * time.Minute
)

// Result is the outcome of an AllowRequest call.
type Result struct {
	Allowed     bool
	Remaining   int
	RetryAfter  time.Duration
}

type record struct {
	attempts     []time.Time
	blockedUntil time.Time
}

// Limiter is a sliding-window rate limiter. It is safe for concurrent use.
type Limiter struct {
	mu            sync.Mutex
	records       map[string]*record
	maxAttempts   int
	window        time.Duration
	blockDuration time.Duration
	now           func() time.Time
	cron          *cron.Cron
}

// Option configures a Limiter at construction time.
type Option func(*Limiter)

func WithMaxAttempts(n int) Option           { return func(l *Limiter) { l.maxAttempts = n } }
func WithWindow(d time.Duration) Option      { return func(l *Limiter) { l.window = d } }
func WithBlockDuration(d time.Duration) Option { return func(l *Limiter) { l.blockDuration = d } }
func WithClock(now func() time.Time) Option  { return func(l *Limiter) { l.now = now } }

// New constructs a Limiter with the documented defaults and starts a
// background cleanup job on cleanupInterval (DefaultCleanupInterval if
// <= 0). The returned Limiter must be closed with Close to stop the
// cleanup job; ordinary process exit is never blocked by it regardless,
// since a bare goroutine does not keep a Go process alive.
func New(cleanupInterval time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		records:       make(map[string]*record),
		maxAttempts:   DefaultMaxAttempts,
		window:        DefaultWindow,
		blockDuration: DefaultBlockDuration,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	l.cron = cron.New()
	spec := "@every " + cleanupInterval.String()
	if _, err := l.cron.AddFunc(spec, l.cleanup); err != nil {
		rlog.RateLimit().Error().Err(err).Str("spec", spec).Msg("failed to schedule rate limiter cleanup")
	} else {
		l.cron.Start()
	}
	return l
}

// Close stops the background cleanup job.
func (l *Limiter) Close() {
	if l.cron != nil {
		l.cron.Stop()
	}
}

func key(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

// AllowRequest applies the sliding-window algorithm for id:
//  1. If a block is active, deny with the remaining retry-after.
//  2. Drop attempts older than now-window.
//  3. If the window is already at maxAttempts, start a block and deny.
//  4. Otherwise record the attempt and allow, reporting the remaining quota.
func (l *Limiter) AllowRequest(id string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := key(id)
	rec, ok := l.records[k]
	if !ok {
		rec = &record{}
		l.records[k] = rec
	}

	if rec.blockedUntil.After(now) {
		return Result{Allowed: false, RetryAfter: rec.blockedUntil.Sub(now)}
	}

	cutoff := now.Add(-l.window)
	kept := rec.attempts[:0:0]
	for _, at := range rec.attempts {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	rec.attempts = kept

	if len(rec.attempts) >= l.maxAttempts {
		rec.blockedUntil = now.Add(l.blockDuration)
		return Result{Allowed: false, RetryAfter: l.blockDuration}
	}

	rec.attempts = append(rec.attempts, now)
	return Result{Allowed: true, Remaining: l.maxAttempts - len(rec.attempts)}
}

// Reset removes id's record entirely.
func (l *Limiter) Reset(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, key(id))
}

// cleanup removes records whose block has expired and whose attempt
// window is empty.
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	removed := 0
	for k, rec := range l.records {
		if rec.blockedUntil.After(now) {
			continue
		}
		windowEmpty := true
		for _, at := range rec.attempts {
			if at.After(cutoff) {
				windowEmpty = false
				break
			}
		}
		if !windowEmpty {
			continue
		}
		delete(l.records, k)
		removed++
	}
	if removed > 0 {
		rlog.RateLimit().Debug().Int("removed", removed).Msg("rate limiter cleanup")
	}
}
