// Package limiter enforces per-domain politeness rules for the extraction
// pipeline: a minimum delay between requests to a host, a cap on concurrent
// in-flight requests, and a token-bucket burst limit sized to the
// configured window.
package limiter

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"recipeharvest/internal/config"
)

// Tier labels a traffic classification for a host.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// TierParams holds the throttling parameters applied to one tier.
type TierParams struct {
	MinDelay      time.Duration
	MaxConcurrent int
	Burst         int
}

// DomainLimiter owns per-domain counters shared across all extraction
// requests in the process. All mutation happens under mu; Acquire suspends
// the caller outside the critical section until every constraint is
// satisfiable. State is never reset except by process restart.
type DomainLimiter struct {
	window time.Duration
	params map[Tier]TierParams
	high   map[string]struct{}
	low    map[string]struct{}

	// now and sleep are swapped for fakes in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tier     Tier
	last     time.Time
	inflight int
	burst    *rate.Limiter
	// released is closed and replaced whenever a permit is returned, waking
	// every goroutine blocked on the concurrency cap.
	released chan struct{}
}

// Permit represents one granted request slot. Release must be called on
// every exit path; it is idempotent.
type Permit struct {
	l    *DomainLimiter
	host string
	once sync.Once
}

// Release returns the permit, decrementing the host's in-flight counter.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		p.l.mu.Lock()
		if b, ok := p.l.buckets[p.host]; ok {
			if b.inflight > 0 {
				b.inflight--
			}
			close(b.released)
			b.released = make(chan struct{})
		}
		p.l.mu.Unlock()
	})
}

// New builds a limiter from configuration.
func New(cfg config.LimiterConfig) *DomainLimiter {
	window := cfg.Window.Duration
	if window <= 0 {
		window = time.Minute
	}
	high := make(map[string]struct{}, len(cfg.HighTraffic))
	for _, h := range cfg.HighTraffic {
		high[h] = struct{}{}
	}
	low := make(map[string]struct{}, len(cfg.LowTraffic))
	for _, h := range cfg.LowTraffic {
		low[h] = struct{}{}
	}
	return &DomainLimiter{
		window: window,
		params: map[Tier]TierParams{
			TierHigh:   {MinDelay: cfg.High.MinDelay.Duration, MaxConcurrent: cfg.High.MaxConcurrent, Burst: cfg.High.Burst},
			TierMedium: {MinDelay: cfg.Medium.MinDelay.Duration, MaxConcurrent: cfg.Medium.MaxConcurrent, Burst: cfg.Medium.Burst},
			TierLow:    {MinDelay: cfg.Low.MinDelay.Duration, MaxConcurrent: cfg.Low.MaxConcurrent, Burst: cfg.Low.Burst},
		},
		high:    high,
		low:     low,
		now:     time.Now,
		sleep:   sleepContext,
		buckets: make(map[string]*bucket),
	}
}

// Classify returns the traffic tier for a host.
func (l *DomainLimiter) Classify(host string) Tier {
	host = canonicalHost(host)
	if _, ok := l.high[host]; ok {
		return TierHigh
	}
	if _, ok := l.low[host]; ok {
		return TierLow
	}
	return TierMedium
}

// Acquire blocks until the host's minimum delay, concurrency cap, and burst
// window all permit a request, then returns a scoped permit. It fails only
// when ctx is cancelled; temporary unavailability is always waited out.
func (l *DomainLimiter) Acquire(ctx context.Context, host string) (*Permit, error) {
	host = canonicalHost(host)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		l.mu.Lock()
		b := l.bucketLocked(host)
		p := l.params[b.tier]
		now := l.now()

		var wait time.Duration
		if p.MinDelay > 0 && !b.last.IsZero() {
			if rest := b.last.Add(p.MinDelay).Sub(now); rest > 0 {
				wait = rest
			}
		}

		if wait == 0 && b.inflight >= p.MaxConcurrent {
			ch := b.released
			l.mu.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if wait == 0 {
			res := b.burst.ReserveN(now, 1)
			if delay := res.DelayFrom(now); delay > 0 {
				res.CancelAt(now)
				wait = delay
			}
		}

		if wait == 0 {
			b.inflight++
			b.last = now
			l.mu.Unlock()
			return &Permit{l: l, host: host}, nil
		}

		l.mu.Unlock()
		if err := l.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (l *DomainLimiter) bucketLocked(host string) *bucket {
	b, ok := l.buckets[host]
	if ok {
		return b
	}
	tier := l.Classify(host)
	p := l.params[tier]
	// The burst cap is a token bucket refilling one token per window/burst,
	// not an exact sliding window: a bucket starting full can admit up to
	// twice the burst inside a single window before the refill rate
	// dominates. The min-delay check above bounds the practical excess.
	interval := l.window / time.Duration(p.Burst)
	if interval <= 0 {
		interval = time.Millisecond
	}
	b = &bucket{
		tier:     tier,
		burst:    rate.NewLimiter(rate.Every(interval), p.Burst),
		released: make(chan struct{}),
	}
	l.buckets[host] = b
	return b
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func canonicalHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}
