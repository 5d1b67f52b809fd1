// Package retrylimit couples an adaptive token bucket with a backoff retry
// loop. Errors carrying a status code of 429 or 5xx slow the bucket down.
//
//	lim := retrylimit.NewAdaptiveLimiter(5, 1, 10, 1, 0.5)
//	err := retrylimit.WithRetryConfig(ctx, dial, lim, retrylimit.DefaultRetryConfig())
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter is a token bucket whose rate follows the outcome of the
// calls it guards: successes raise it by a fixed step, failures scale it down.
// The rate stays within [floor, ceil].
type AdaptiveLimiter struct {
	mu          sync.RWMutex
	bucket      *rate.Limiter
	floor, ceil rate.Limit
	step        rate.Limit
	backoff     float64
	lastFailure time.Time
	now         func() time.Time
}

// quietPeriod is how long after a failure successes stop raising the rate.
const quietPeriod = 10 * time.Second

// NewAdaptiveLimiter starts at initial requests per second. Each success adds
// stepUp, each failure multiplies the rate by stepDown. lo is raised to 1.
func NewAdaptiveLimiter(initial, lo, hi rate.Limit, stepUp rate.Limit, stepDown float64) *AdaptiveLimiter {
	floor := max(lo, 1)
	ceil := max(hi, floor)
	start := clamp(initial, floor, ceil)
	return &AdaptiveLimiter{
		bucket:  rate.NewLimiter(start, burstFor(start)),
		floor:   floor,
		ceil:    ceil,
		step:    stepUp,
		backoff: stepDown,
		now:     time.Now,
	}
}

func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.bucket.Wait(ctx)
}

// Success records a completed call.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.now().Sub(a.lastFailure) > quietPeriod {
		a.setLimit(a.bucket.Limit() + a.step)
	}
}

// RateLimited records a call that failed from overload or timed out.
func (a *AdaptiveLimiter) RateLimited() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastFailure = a.now()
	a.setLimit(rate.Limit(float64(a.bucket.Limit()) * a.backoff))
}

// CurrentLimit reports the rate in requests per second.
func (a *AdaptiveLimiter) CurrentLimit() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return float64(a.bucket.Limit())
}

func (a *AdaptiveLimiter) setLimit(l rate.Limit) {
	l = clamp(l, a.floor, a.ceil)
	if l == a.bucket.Limit() {
		return
	}
	a.bucket.SetLimit(l)
	a.bucket.SetBurst(burstFor(l))
}

func clamp(l, lo, hi rate.Limit) rate.Limit {
	return min(max(l, lo), hi)
}

func burstFor(l rate.Limit) int {
	return max(1, int(l))
}

// StatusError is implemented by errors that carry an HTTP-style status code,
// such as a refused websocket handshake.
type StatusError interface {
	error
	StatusCode() int
}

// FatalError ends WithRetryConfig on the spot. Wrap errors no retry can fix.
type FatalError struct {
	Err error
}

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// ErrorClassifier reports whether err should slow the limiter down.
type ErrorClassifier func(error) bool

// DefaultClassifier matches status codes 429 and 5xx.
func DefaultClassifier(err error) bool {
	code, ok := statusOf(err)
	return ok && (code == http.StatusTooManyRequests || code >= 500 && code < 600)
}

type RetryConfig struct {
	MaxAttempts    int // 0 retries until ctx is done
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	RateLimitDelay time.Duration // flat wait after a 429, no growth
	Multiplier     float64
	Jitter         bool // up to +25%

	ErrorClassifier ErrorClassifier // nil means DefaultClassifier
	OnRetry         func(attempt int, err error)
}

// DefaultRetryConfig gives up after 100 attempts, waiting 500ms doubling to 10s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     100,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		RateLimitDelay:  time.Second,
		Multiplier:      2.0,
		Jitter:          true,
		ErrorClassifier: DefaultClassifier,
	}
}

// WithRetryConfig calls fn until it succeeds, returns a FatalError, ctx ends
// or the attempts run out. Every attempt first waits on lim when it is set.
func WithRetryConfig(ctx context.Context, fn func() error, lim *AdaptiveLimiter, cfg RetryConfig) error {
	if cfg.ErrorClassifier == nil {
		cfg.ErrorClassifier = DefaultClassifier
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}

	delay := cfg.InitialDelay
	for attempt := 1; cfg.MaxAttempts <= 0 || attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
		}

		err := fn()
		if err == nil {
			if lim != nil {
				lim.Success()
			}
			if attempt > 1 {
				log.Info().Int("attempts", attempt).Msg("retry succeeded")
			}
			return nil
		}

		var fatal *FatalError
		if errors.As(err, &fatal) {
			return err
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		wait := delay
		if code, _ := statusOf(err); code == http.StatusTooManyRequests {
			wait = cfg.RateLimitDelay
		} else {
			delay = min(time.Duration(float64(delay)*cfg.Multiplier), cfg.MaxDelay)
		}
		if cfg.ErrorClassifier(err) && lim != nil {
			lim.RateLimited()
		}
		if cfg.Jitter {
			wait = jittered(wait)
		}

		log.Warn().Err(err).Int("attempt", attempt).Dur("sleep", wait).Msg("retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("retrylimit: gave up after %d attempts", cfg.MaxAttempts)
}

func jittered(d time.Duration) time.Duration {
	if d < 4 {
		return d
	}
	return d + rand.N(d/4)
}

func statusOf(err error) (int, bool) {
	var se StatusError
	if errors.As(err, &se) {
		return se.StatusCode(), true
	}
	return 0, false
}
