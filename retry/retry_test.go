package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/uptimekit/sitesync/bus"
)

// eventCounter subscribes to all operation lifecycle topics and counts
// deliveries. Run publishes synchronously, so no locking is needed.
type eventCounter struct {
	pending, retried, success, failure int
}

func countEvents(b *bus.Bus) *eventCounter {
	c := &eventCounter{}
	b.Subscribe(bus.TopicOperationPending, func(payload map[string]any, ts time.Time) { c.pending++ })
	b.Subscribe(bus.TopicOperationRetry, func(payload map[string]any, ts time.Time) { c.retried++ })
	b.Subscribe(bus.TopicOperationSuccess, func(payload map[string]any, ts time.Time) { c.success++ })
	b.Subscribe(bus.TopicOperationFailure, func(payload map[string]any, ts time.Time) { c.failure++ })
	return c
}

func TestRunSucceedsFirstAttempt(t *testing.T) {
	b := bus.New(nil, 0)
	counter := countEvents(b)
	r := NewRunner(b, nil)

	result := Run(context.Background(), r, "test-op", func(ctx context.Context) (string, error) {
		return "ok", nil
	}, Policy{MaxAttempts: 3, Backoff: BackoffFixed, BaseDelay: 0}, nil)

	if !result.Succeeded() {
		t.Fatalf("Expected success, got error: %v", result.Err)
	}
	if result.Value != "ok" {
		t.Fatalf("Expected value 'ok', got %q", result.Value)
	}
	if result.Attempts != 1 {
		t.Fatalf("Expected 1 attempt, got %d", result.Attempts)
	}
	if counter.pending != 1 || counter.retried != 0 || counter.success != 1 || counter.failure != 0 {
		t.Fatalf("Unexpected events: %+v", counter)
	}
}

func TestRunRecoversAfterTwoFailures(t *testing.T) {
	b := bus.New(nil, 0)
	counter := countEvents(b)
	r := NewRunner(b, nil)

	calls := 0
	result := Run(context.Background(), r, "load:s1", func(ctx context.Context) (map[string]string, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("transient")
		}
		return map[string]string{"identifier": "s1", "name": "A"}, nil
	}, Policy{MaxAttempts: 3, Backoff: BackoffFixed, BaseDelay: 10 * time.Millisecond}, nil)

	if !result.Succeeded() {
		t.Fatalf("Expected success, got error: %v", result.Err)
	}
	if result.Value["name"] != "A" {
		t.Fatalf("Expected name 'A', got %q", result.Value["name"])
	}
	if result.Attempts != 3 {
		t.Fatalf("Expected 3 attempts, got %d", result.Attempts)
	}
	if counter.pending != 1 || counter.retried != 2 || counter.success != 1 || counter.failure != 0 {
		t.Fatalf("Expected 1 pending, 2 retry, 1 success, got %+v", counter)
	}
}

func TestRunExhaustsAttempts(t *testing.T) {
	b := bus.New(nil, 0)
	counter := countEvents(b)
	r := NewRunner(b, nil)

	calls := 0
	opErr := errors.New("down")
	result := Run(context.Background(), r, "test-op", func(ctx context.Context) (int, error) {
		calls++
		return 0, opErr
	}, Policy{MaxAttempts: 3, Backoff: BackoffFixed, BaseDelay: 0}, nil)

	if result.Succeeded() {
		t.Fatal("Expected failure")
	}
	if !errors.Is(result.Err, opErr) {
		t.Fatalf("Expected the operation error, got %v", result.Err)
	}
	if calls != 3 {
		t.Fatalf("Expected exactly 3 invocations, got %d", calls)
	}
	if result.Attempts != 3 {
		t.Fatalf("Expected 3 attempts, got %d", result.Attempts)
	}
	if counter.retried != 2 || counter.failure != 1 {
		t.Fatalf("Expected 2 retry and 1 failure events, got %+v", counter)
	}
}

func TestRunSingleAttemptStillEmitsLifecycle(t *testing.T) {
	b := bus.New(nil, 0)
	counter := countEvents(b)
	r := NewRunner(b, nil)

	calls := 0
	result := Run(context.Background(), r, "test-op", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("down")
	}, Policy{MaxAttempts: 1, Backoff: BackoffFixed, BaseDelay: 0}, nil)

	if result.Succeeded() || calls != 1 {
		t.Fatalf("Expected a single failing invocation, got calls=%d err=%v", calls, result.Err)
	}
	if counter.pending != 1 || counter.retried != 0 || counter.failure != 1 {
		t.Fatalf("Expected pending and failure only, got %+v", counter)
	}
}

func TestRunRejectsInvalidPolicy(t *testing.T) {
	r := NewRunner(nil, nil)

	result := Run(context.Background(), r, "test-op", func(ctx context.Context) (int, error) {
		t.Fatal("Operation must not run under an invalid policy")
		return 0, nil
	}, Policy{MaxAttempts: 0, Backoff: BackoffFixed}, nil)

	if !errors.Is(result.Err, ErrInvalidPolicy) {
		t.Fatalf("Expected ErrInvalidPolicy, got %v", result.Err)
	}
}

func TestRunContextCancelAbortsWait(t *testing.T) {
	r := NewRunner(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := Run(ctx, r, "test-op", func(ctx context.Context) (int, error) {
		return 0, errors.New("down")
	}, Policy{MaxAttempts: 5, Backoff: BackoffFixed, BaseDelay: time.Second}, nil)

	if result.Succeeded() {
		t.Fatal("Expected failure")
	}
	if !errors.Is(result.Err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", result.Err)
	}
	if result.Attempts != 1 {
		t.Fatalf("Expected cancellation after the first attempt, got %d", result.Attempts)
	}
}

func TestFixedSchedule(t *testing.T) {
	p := Policy{MaxAttempts: 4, Backoff: BackoffFixed, BaseDelay: 10 * time.Millisecond}
	delays := p.schedule()

	for i := 0; i < 3; i++ {
		if d := delays.NextBackOff(); d != 10*time.Millisecond {
			t.Fatalf("Fixed delay %d: expected 10ms, got %v", i, d)
		}
	}
}

func TestExponentialSchedule(t *testing.T) {
	p := Policy{MaxAttempts: 4, Backoff: BackoffExponential, BaseDelay: 10 * time.Millisecond}
	delays := p.schedule()

	expected := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
	}
	for i, want := range expected {
		if d := delays.NextBackOff(); d != want {
			t.Fatalf("Exponential delay %d: expected %v, got %v", i, want, d)
		}
	}
}

func TestPolicyValidate(t *testing.T) {
	valid := Policy{MaxAttempts: 1, Backoff: BackoffFixed, BaseDelay: 0}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Expected valid policy, got %v", err)
	}

	invalid := []Policy{
		{MaxAttempts: 0, Backoff: BackoffFixed},
		{MaxAttempts: 3, Backoff: "linear"},
		{MaxAttempts: 3, Backoff: BackoffFixed, BaseDelay: -time.Second},
	}
	for i, p := range invalid {
		if err := p.Validate(); err == nil {
			t.Fatalf("Policy %d should be invalid: %+v", i, p)
		}
	}
}

func TestRunPassesOperationContextToEvents(t *testing.T) {
	b := bus.New(nil, 0)
	r := NewRunner(b, nil)

	var got map[string]any
	b.Subscribe(bus.TopicOperationPending, func(payload map[string]any, ts time.Time) {
		got = payload
	})

	Run(context.Background(), r, "load:s1", func(ctx context.Context) (int, error) {
		return 1, nil
	}, Policy{MaxAttempts: 1, Backoff: BackoffFixed}, map[string]any{"key": "s1"})

	if got["operationName"] != "load:s1" {
		t.Fatalf("Expected operation name in payload, got %v", got)
	}
	opCtx, ok := got["context"].(map[string]any)
	if !ok || opCtx["key"] != "s1" {
		t.Fatalf("Expected caller context in payload, got %v", got["context"])
	}
}
