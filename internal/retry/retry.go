// Package retry implements bounded exponential backoff with jitter for calls
// to external services.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ErrMaxAttempts wraps the last error once the attempt budget is exhausted.
var ErrMaxAttempts = errors.New("maximum retry attempts exceeded")

// Config holds retry tuning. MaxRetries counts retries, not total attempts.
type Config struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

// DefaultConfig returns conservative production defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     2,
		InitialDelay:   time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.3,
	}
}

// Retryable decides whether another attempt could succeed for a given error.
type Retryable func(error) bool

// Retrier executes functions with exponential backoff between attempts.
// Whether an error is worth retrying is the caller's domain knowledge, so the
// predicate is injected at construction. Safe for concurrent use.
type Retrier struct {
	cfg       Config
	retryable Retryable
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates a Retrier. retryable may be nil, in which case every error is
// considered terminal and Do degenerates to a single attempt.
func New(cfg Config, retryable Retryable) *Retrier {
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2.0
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if retryable == nil {
		retryable = func(error) bool { return false }
	}
	return &Retrier{
		cfg:       cfg,
		retryable: retryable,
		sleep:     sleepCtx,
	}
}

// Do runs fn until it succeeds, returns a terminal error, exhausts the
// attempt budget, or the context is cancelled.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.retryable(err) {
			return err
		}
		if attempt == r.cfg.MaxRetries {
			break
		}

		if err := r.sleep(ctx, r.delay(attempt)); err != nil {
			return err
		}
	}

	return errors.Join(ErrMaxAttempts, lastErr)
}

// delay computes the backoff for a given attempt with jitter applied.
func (r *Retrier) delay(attempt int) time.Duration {
	d := float64(r.cfg.InitialDelay) * math.Pow(r.cfg.Multiplier, float64(attempt))
	if d > float64(r.cfg.MaxDelay) {
		d = float64(r.cfg.MaxDelay)
	}

	jitterRange := d * r.cfg.JitterFraction
	d += (rand.Float64() * 2 * jitterRange) - jitterRange

	if d < float64(50*time.Millisecond) {
		d = float64(50 * time.Millisecond)
	}
	return time.Duration(d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
