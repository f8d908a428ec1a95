package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"recipeharvest/pkg/types"
)

// RetryPolicy controls how fetch attempts are repeated.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration
}

// Retrier wraps a PageFetcher with exponential backoff and fingerprint
// rotation. Attempts for one URL are strictly sequential; fatal failures
// abort without consuming the remaining attempts.
type Retrier struct {
	policy  RetryPolicy
	rotator *Rotator
	logger  *slog.Logger

	// sleep is swapped for a fake in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRetrier builds a retrier. A zero seed uses the current time.
func NewRetrier(policy RetryPolicy, rotator *Rotator, logger *slog.Logger, seed int64) *Retrier {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Second
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{
		policy:  policy,
		rotator: rotator,
		logger:  logger,
		sleep:   sleepRetry,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Fetch runs up to MaxAttempts fetches of rawURL, each under a user-agent
// distinct from every earlier attempt in the same call, backing off
// base*2^attempt plus jitter between retryable
// failures. The attempt log is returned alongside the result for
// observability; it is never persisted.
func (r *Retrier) Fetch(ctx context.Context, pf PageFetcher, rawURL string) (*types.Page, []types.ParseAttempt, error) {
	var attempts []types.ParseAttempt
	var lastErr error
	usedAgents := make(map[string]struct{}, r.policy.MaxAttempts)

	for i := 0; i < r.policy.MaxAttempts; i++ {
		var delay time.Duration
		if i > 0 {
			delay = r.backoff(i - 1)
			if err := r.sleep(ctx, delay); err != nil {
				return nil, attempts, err
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, attempts, err
		}

		fp := r.rotator.Next(usedAgents)
		usedAgents[fp.UserAgent] = struct{}{}
		attempt := types.ParseAttempt{
			AttemptNumber: i + 1,
			UserAgent:     fp.UserAgent,
			DelayBefore:   delay,
		}

		page, err := pf.Fetch(ctx, rawURL, fp)
		if err == nil {
			attempt.Outcome = types.AttemptSuccess
			attempts = append(attempts, attempt)
			return page, attempts, nil
		}

		lastErr = err
		var fe *FetchError
		if errors.As(err, &fe) {
			attempt.ErrorKind = string(fe.Kind)
		}
		if !IsRetryable(err) {
			attempt.Outcome = types.AttemptFatalFailure
			attempts = append(attempts, attempt)
			r.logger.Warn("fetch failed permanently", "url", rawURL, "attempt", i+1, "error", err)
			return nil, attempts, err
		}

		attempt.Outcome = types.AttemptRetryableFailure
		attempts = append(attempts, attempt)
		r.logger.Debug("fetch attempt failed", "url", rawURL, "attempt", i+1, "error", err)
	}

	return nil, attempts, fmt.Errorf("all %d fetch attempts failed: %w", r.policy.MaxAttempts, lastErr)
}

// backoff computes base * 2^attemptIndex plus uniform jitter.
func (r *Retrier) backoff(attemptIndex int) time.Duration {
	delay := r.policy.BaseDelay << uint(attemptIndex)
	if r.policy.MaxJitter > 0 {
		r.mu.Lock()
		delay += time.Duration(r.rng.Int63n(int64(r.policy.MaxJitter)))
		r.mu.Unlock()
	}
	return delay
}

func sleepRetry(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
