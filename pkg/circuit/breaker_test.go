package circuit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testConfig(name string) Config {
	return Config{
		Name:         name,
		OpenFor:      time.Hour,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

func TestBreakerOpensAfterFailureRatio(t *testing.T) {
	b := New(testConfig("test_open"), nil)
	boom := errors.New("boom")
	fail := func(context.Context) error { return boom }

	for i := 0; i < 3; i++ {
		if err := b.Do(context.Background(), fail, nil); !errors.Is(err, boom) {
			t.Fatalf("call %d: err = %v, want boom", i, err)
		}
	}
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Do(context.Background(), func(context.Context) error {
		called = true
		return nil
	}, nil)
	if !errors.Is(err, ErrOpen) {
		t.Errorf("err = %v, want ErrOpen", err)
	}
	if called {
		t.Error("op must not run while open")
	}
}

func TestBreakerStaysClosedBelowMinRequests(t *testing.T) {
	b := New(testConfig("test_min"), nil)
	fail := func(context.Context) error { return errors.New("x") }
	_ = b.Do(context.Background(), fail, nil)
	_ = b.Do(context.Background(), fail, nil)
	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b := New(testConfig("test_cancel"), nil)
	for i := 0; i < 5; i++ {
		_ = b.Do(context.Background(), func(context.Context) error { return context.Canceled }, nil)
	}
	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreakerFallback(t *testing.T) {
	b := New(testConfig("test_fallback"), nil)
	boom := errors.New("boom")
	var cause error
	err := b.Do(context.Background(),
		func(context.Context) error { return boom },
		func(_ context.Context, c error) error {
			cause = c
			return nil
		})
	if err != nil {
		t.Errorf("fallback result = %v, want nil", err)
	}
	if !errors.Is(cause, boom) {
		t.Errorf("fallback cause = %v, want boom", cause)
	}
}

func TestBreakerOperationTimeout(t *testing.T) {
	cfg := testConfig("test_timeout")
	cfg.OperationTimeout = 10 * time.Millisecond
	b := New(cfg, nil)
	err := b.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}
