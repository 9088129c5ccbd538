package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/shubhsaxena/nearby-assistant/internal/apperrors"
	"github.com/shubhsaxena/nearby-assistant/internal/config"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		InitialWait: time.Millisecond,
		MaxWait:     5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func testBreaker(threshold uint32) *gobreaker.CircuitBreaker {
	return NewCircuitBreaker("places-test", config.CircuitBreakerConfig{
		MaxRequests:      1,
		Interval:         10 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: threshold,
	}, zap.NewNop())
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name         string
		attempts     int
		failures     int
		err          error
		wantAttempts int
		wantErr      error
	}{
		{"first attempt succeeds", 3, 0, nil, 1, nil},
		{"succeeds after transient failures", 3, 2, errors.New("connection reset"), 3, nil},
		{"network failure exhausts attempts", 3, 10, apperrors.NetworkFailure("places", errors.New("timeout")), 3, apperrors.ErrNetwork},
		{"validation failure is not retried", 5, 10, apperrors.ValidationFailure("caption is required"), 1, apperrors.ErrValidation},
		{"missing token is not retried", 5, 10, apperrors.NoTokenFound("user id not configured", nil), 1, apperrors.ErrNoToken},
		{"zero attempts runs once", 0, 10, errors.New("fail"), 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Retry(context.Background(), fastRetry(tt.attempts), func() error {
				attempts++
				if attempts <= tt.failures {
					return tt.err
				}
				return nil
			})

			if attempts != tt.wantAttempts {
				t.Errorf("expected %d attempts, got %d", tt.wantAttempts, attempts)
			}
			if tt.failures < tt.wantAttempts && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRetry_WrapsLastError(t *testing.T) {
	target := errors.New("geocoder unreachable")
	err := Retry(context.Background(), fastRetry(2), func() error { return target })
	if !errors.Is(err, target) {
		t.Errorf("expected wrapped %v, got %v", target, err)
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts: 10,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     time.Second,
		Multiplier:  2.0,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	attempts := 0
	err := Retry(ctx, cfg, func() error {
		attempts++
		return errors.New("fail")
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if attempts >= 10 {
		t.Errorf("expected fewer than 10 attempts, got %d", attempts)
	}
}

func TestRetry_BackoffCapped(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts: 4,
		InitialWait: time.Millisecond,
		MaxWait:     5 * time.Millisecond,
		Multiplier:  10.0,
	}

	start := time.Now()
	_ = Retry(context.Background(), cfg, func() error { return errors.New("fail") })
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("backoff seems uncapped, total time: %v", elapsed)
	}
}

func TestRetryConfigFrom(t *testing.T) {
	rc := RetryConfigFrom(config.DefaultConfig().Search.Retry)
	if rc.MaxAttempts != 2 {
		t.Errorf("expected 2 attempts, got %d", rc.MaxAttempts)
	}
	if rc.Multiplier != 2.0 {
		t.Errorf("expected multiplier 2.0, got %f", rc.Multiplier)
	}
}

func TestCall_ReturnsResult(t *testing.T) {
	cb := testBreaker(3)
	got, err := Call(context.Background(), cb, fastRetry(2), "places", func(ctx context.Context) (string, error) {
		return "Blue Bottle", nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != "Blue Bottle" {
		t.Errorf("expected Blue Bottle, got %q", got)
	}
	if cb.Name() != "places-test" {
		t.Errorf("expected breaker name places-test, got %q", cb.Name())
	}
}

func TestCall_OpenBreakerIsNetworkFailure(t *testing.T) {
	cb := testBreaker(2)
	fail := func(ctx context.Context) (int, error) { return 0, errors.New("connection refused") }

	for i := 0; i < 2; i++ {
		_, _ = Call(context.Background(), cb, fastRetry(1), "places", fail)
	}
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", cb.State())
	}

	called := false
	_, err := Call(context.Background(), cb, fastRetry(1), "places", func(ctx context.Context) (int, error) {
		called = true
		return 1, nil
	})
	if called {
		t.Error("expected open breaker to reject the call")
	}
	if !errors.Is(err, apperrors.ErrNetwork) {
		t.Errorf("expected network failure, got %v", err)
	}
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected wrapped open state error, got %v", err)
	}
}

func TestCall_RequestErrorsDoNotTrip(t *testing.T) {
	cb := testBreaker(2)
	for i := 0; i < 5; i++ {
		_, err := Call(context.Background(), cb, fastRetry(3), "places", func(ctx context.Context) (int, error) {
			return 0, apperrors.NotFound("place p1")
		})
		if !errors.Is(err, apperrors.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("expected breaker to stay closed, got %s", cb.State())
	}
}

func TestStateValue(t *testing.T) {
	tests := []struct {
		state gobreaker.State
		want  float64
	}{
		{gobreaker.StateClosed, 0},
		{gobreaker.StateHalfOpen, 1},
		{gobreaker.StateOpen, 2},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := stateValue(tt.state); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
