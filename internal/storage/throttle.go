package storage

import (
	"sync"
	"sync/atomic"
	"time"
)

// Throttle adapts the number of parallel object reads to the recent read
// failure rate. Above the threshold the limit halves; with no failures it
// doubles back towards the maximum.
type Throttle struct {
	max       int32
	min       int32
	threshold float64
	window    time.Duration

	limit atomic.Int32

	mu    sync.Mutex
	reads []readRecord
	now   func() time.Time
}

type readRecord struct {
	at time.Time
	ok bool
}

// ThrottleConfig configures a Throttle.
type ThrottleConfig struct {
	// MaxConcurrency is the starting and highest read limit.
	MaxConcurrency int
	MinConcurrency int
	// FailureThreshold is the failure rate above which the limit halves.
	FailureThreshold float64
	Window           time.Duration
}

// NewThrottle creates a throttle. Zero fields take defaults.
func NewThrottle(cfg ThrottleConfig) *Throttle {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.MinConcurrency <= 0 {
		cfg.MinConcurrency = 1
	}
	if cfg.MinConcurrency > cfg.MaxConcurrency {
		cfg.MinConcurrency = cfg.MaxConcurrency
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 0.10
	}
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}

	t := &Throttle{
		max:       int32(cfg.MaxConcurrency),
		min:       int32(cfg.MinConcurrency),
		threshold: cfg.FailureThreshold,
		window:    cfg.Window,
		now:       time.Now,
	}
	t.limit.Store(t.max)
	return t
}

// Record notes the outcome of one read.
func (t *Throttle) Record(ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reads = append(t.reads, readRecord{at: t.now(), ok: ok})
}

// FailureRate returns the share of failed reads within the window.
func (t *Throttle) FailureRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	rate, _ := t.rateLocked()
	return rate
}

// rateLocked prunes expired records and returns the failure rate and the
// number of records left. Caller must hold t.mu.
func (t *Throttle) rateLocked() (float64, int) {
	cutoff := t.now().Add(-t.window)
	i := 0
	for i < len(t.reads) && t.reads[i].at.Before(cutoff) {
		i++
	}
	t.reads = t.reads[i:]

	if len(t.reads) == 0 {
		return 0, 0
	}
	failures := 0
	for _, r := range t.reads {
		if !r.ok {
			failures++
		}
	}
	return float64(failures) / float64(len(t.reads)), len(t.reads)
}

// Adjust recomputes the read limit from the failure rate and returns it.
func (t *Throttle) Adjust() int {
	t.mu.Lock()
	rate, n := t.rateLocked()
	t.mu.Unlock()

	cur := t.limit.Load()
	next := cur
	switch {
	case rate > t.threshold:
		next = cur / 2
	case n > 0 && rate == 0:
		next = cur * 2
	case rate <= t.threshold:
		next = cur + 1
	}
	if next < t.min {
		next = t.min
	}
	if next > t.max {
		next = t.max
	}
	t.limit.Store(next)
	return int(next)
}

// Limit returns the current read limit.
func (t *Throttle) Limit() int {
	return int(t.limit.Load())
}
