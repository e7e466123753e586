package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestDelaySchedule(t *testing.T) {
	cfg := DefaultConfig()
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{9, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := cfg.Delay(tc.attempt); got != tc.want {
			t.Fatalf("Delay(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	rec := &recordedSleeps{}
	cfg := DefaultConfig()
	cfg.Sleep = rec.sleep
	calls := 0
	got, err := Do(context.Background(), cfg, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("ECONNRESET")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Fatalf("unexpected result %q after %d calls", got, calls)
	}
	if len(rec.delays) != 2 || rec.delays[0] != time.Second || rec.delays[1] != 2*time.Second {
		t.Fatalf("unexpected delays: %v", rec.delays)
	}
}

func TestDoReturnsLastErrorUnchanged(t *testing.T) {
	rec := &recordedSleeps{}
	cfg := DefaultConfig()
	cfg.Sleep = rec.sleep
	var errs []error
	calls := 0
	_, err := Do(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		e := fmt.Errorf("attempt %d failed", calls)
		errs = append(errs, e)
		return 0, e
	})
	if calls != cfg.MaxAttempts {
		t.Fatalf("expected %d calls, got %d", cfg.MaxAttempts, calls)
	}
	if err != errs[len(errs)-1] {
		t.Fatalf("expected the final attempt's error, got %v", err)
	}
	if len(rec.delays) != cfg.MaxAttempts-1 {
		t.Fatalf("expected no sleep after the final attempt, got %v", rec.delays)
	}
}

func TestDoStopsOnNonRetriable(t *testing.T) {
	rec := &recordedSleeps{}
	cfg := DefaultConfig()
	cfg.Sleep = rec.sleep
	cfg.Retriable = IsRetriable
	calls := 0
	_, err := Do(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		return 0, statusErr(403)
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected one call and an error, got %d calls, err=%v", calls, err)
	}
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := DefaultConfig()
	cfg.BaseDelay = time.Hour
	calls := 0
	sentinel := errors.New("boom")
	_, err := Do(ctx, cfg, func(context.Context) (int, error) {
		calls++
		return 0, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected last op error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call before the cancelled wait, got %d", calls)
	}
}

func TestDoStopsWhenSleepFails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sleep = func(context.Context, time.Duration) error { return errors.New("shutting down") }
	calls := 0
	sentinel := errors.New("boom")
	_, err := Do(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		return 0, sentinel
	})
	if !errors.Is(err, sentinel) || calls != 1 {
		t.Fatalf("expected one call returning the op error, got %d calls, err=%v", calls, err)
	}
}

func TestDoReportsRetriesWithAttemptNumbers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sleep = (&recordedSleeps{}).sleep
	var attempts []int
	var delays []time.Duration
	cfg.OnRetry = func(attempt int, _ error, delay time.Duration) {
		attempts = append(attempts, attempt)
		delays = append(delays, delay)
	}
	_, _ = Do(context.Background(), cfg, func(context.Context) (int, error) {
		return 0, errors.New("ECONNRESET")
	})
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Fatalf("unexpected retry attempts %v", attempts)
	}
	if delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("unexpected retry delays %v", delays)
	}
}

type statusErr int

func (s statusErr) Error() string   { return fmt.Sprintf("status %d", int(s)) }
func (s statusErr) StatusCode() int { return int(s) }

func TestIsRetriable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", statusErr(503), true},
		{"rate limited", fmt.Errorf("put: %w", statusErr(429)), true},
		{"client error", statusErr(404), false},
		{"reset", fmt.Errorf("dial: %w", syscall.ECONNRESET), true},
		{"dns", &net.DNSError{Err: "no such host", Name: "s3"}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"message", errors.New("socket ETIMEDOUT"), true},
		{"validation", errors.New("missing category"), false},
	}
	for _, tc := range cases {
		if got := IsRetriable(tc.err); got != tc.want {
			t.Fatalf("%s: IsRetriable = %v, want %v", tc.name, got, tc.want)
		}
	}
}
