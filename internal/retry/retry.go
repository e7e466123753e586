package retry

import (
	"context"
	"errors"
	"log"
	"math"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Config struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	// Retriable, when set, stops retrying as soon as it returns false.
	// Nil retries every failure within the attempt budget.
	Retriable func(error) bool

	// Sleep waits between attempts. Nil uses the backoff library's timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		BaseDelay:     time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2,
	}
}

// Delay returns the wait after the given 1-based failed attempt:
// min(BaseDelay * BackoffFactor^(attempt-1), MaxDelay).
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	b := c.exponential()
	b.Reset()
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// exponential builds the jitter-free schedule behind Delay and Do.
func (c Config) exponential() *backoff.ExponentialBackOff {
	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	maxDelay := c.MaxDelay
	if maxDelay <= 0 {
		maxDelay = time.Duration(math.MaxInt64)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.BaseDelay
	b.Multiplier = factor
	b.MaxInterval = maxDelay
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return b
}

// Do runs op until it succeeds or the attempt budget is spent. The error of
// the final attempt is returned as is.
func Do[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timer backoff.Timer
	if cfg.Sleep != nil {
		timer = &sleepTimer{ctx: waitCtx, sleep: cfg.Sleep, cancel: cancel}
	}
	schedule := backoff.WithContext(backoff.WithMaxRetries(cfg.exponential(), uint64(attempts-1)), waitCtx)

	attempt := 0
	var lastErr error
	result, err := backoff.RetryNotifyWithTimerAndData(func() (T, error) {
		attempt++
		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.Printf("retry: call succeeded on attempt %d/%d", attempt, attempts)
			}
			return result, nil
		}
		lastErr = err
		log.Printf("retry: attempt %d/%d failed: %v", attempt, attempts, err)
		if attempt < attempts && cfg.Retriable != nil && !cfg.Retriable(err) {
			log.Printf("retry: error is not retriable, giving up")
			return result, backoff.Permanent(err)
		}
		return result, err
	}, schedule, func(err error, delay time.Duration) {
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
	}, timer)
	if err != nil {
		// cancellation surfaces as ctx.Err(); callers get the operation's error
		if lastErr != nil {
			err = lastErr
		}
		var zero T
		return zero, err
	}
	return result, nil
}

// sleepTimer adapts Config.Sleep to backoff.Timer. A failed sleep cancels the
// retry context so the loop stops instead of waiting forever.
type sleepTimer struct {
	ctx    context.Context
	sleep  func(ctx context.Context, d time.Duration) error
	cancel context.CancelFunc
	ch     chan time.Time
}

func (t *sleepTimer) Start(d time.Duration) {
	ch := make(chan time.Time, 1)
	t.ch = ch
	go func() {
		if err := t.sleep(t.ctx, d); err != nil {
			log.Printf("retry: stopped waiting: %v", err)
			t.cancel()
			return
		}
		ch <- time.Now()
	}()
}

func (t *sleepTimer) Stop() {}

func (t *sleepTimer) C() <-chan time.Time { return t.ch }

// StatusCoder is implemented by errors that carry a remote HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// IsRetriable reports whether err looks transient: network resets, timeouts,
// DNS failures, 5xx responses and 429.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		return code >= 500 || code == 429
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()
	for _, marker := range []string{"ECONNRESET", "ENOTFOUND", "ETIMEDOUT", "connection reset", "no content received"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
