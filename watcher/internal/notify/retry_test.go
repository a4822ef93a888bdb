package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/statuswatch/statuswatch/watcher/internal/config"
)

// flakyNotifier fails with errs in order, then succeeds.
type flakyNotifier struct {
	errs  []error
	calls int
}

func (f *flakyNotifier) Name() string { return "flaky" }

func (f *flakyNotifier) Notify(context.Context, Batch) error {
	f.calls++
	if f.calls <= len(f.errs) {
		return f.errs[f.calls-1]
	}
	return nil
}

var (
	errRetryable = &DeliveryError{Channel: "flaky", StatusCode: 503, Retryable: true, Err: errStatus}
	errPermanent = &DeliveryError{Channel: "flaky", StatusCode: 400, Err: errStatus}
)

// newTestRetrier returns a retrier with no jitter that records its sleeps
// instead of sleeping.
func newTestRetrier(n Notifier, maxRetries int) (*retrier, *[]time.Duration) {
	var slept []time.Duration
	r := WithRetry(n, config.RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     300 * time.Millisecond,
	}).(*retrier)
	r.jitter = func() float64 { return 0.5 }
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return r, &slept
}

func TestRetry_SucceedsAfterRetryableFailures(t *testing.T) {
	f := &flakyNotifier{errs: []error{errRetryable, errRetryable}}
	r, slept := newTestRetrier(f, 2)

	if err := r.Notify(context.Background(), sampleBatch()); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if f.calls != 3 {
		t.Errorf("calls = %d, want 3", f.calls)
	}
	if want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}; !equalDurations(*slept, want) {
		t.Errorf("backoffs = %v, want %v", *slept, want)
	}
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	f := &flakyNotifier{errs: []error{errRetryable, errRetryable, errRetryable, errRetryable}}
	r, slept := newTestRetrier(f, 3)

	err := r.Notify(context.Background(), sampleBatch())
	if !errors.Is(err, errRetryable) {
		t.Fatalf("err = %v, want last delivery error", err)
	}
	if f.calls != 4 {
		t.Errorf("calls = %d, want 1 + 3 retries", f.calls)
	}
	// 100ms, 200ms, then capped at 300ms.
	if want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}; !equalDurations(*slept, want) {
		t.Errorf("backoffs = %v, want %v", *slept, want)
	}
}

func TestRetry_PermanentFailureNotRetried(t *testing.T) {
	f := &flakyNotifier{errs: []error{errPermanent}}
	r, slept := newTestRetrier(f, 5)

	if err := r.Notify(context.Background(), sampleBatch()); !errors.Is(err, errPermanent) {
		t.Fatalf("err = %v, want permanent error", err)
	}
	if f.calls != 1 || len(*slept) != 0 {
		t.Errorf("calls = %d sleeps = %d, want 1 and 0", f.calls, len(*slept))
	}
}

func TestRetry_StopsWhenContextDone(t *testing.T) {
	f := &flakyNotifier{errs: []error{errRetryable, errRetryable, errRetryable}}
	r := WithRetry(f, config.RetryConfig{MaxRetries: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Notify(ctx, sampleBatch())
	if !errors.Is(err, errRetryable) {
		t.Fatalf("err = %v, want the delivery error", err)
	}
	if f.calls != 1 {
		t.Errorf("calls = %d, want 1", f.calls)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("retry did not honour context cancellation")
	}
}

func TestRetry_NameAndClose(t *testing.T) {
	w := &fakeWriter{}
	r := WithRetry(&kafkaNotifier{writer: w, topic: "t"}, config.RetryConfig{MaxRetries: 1})
	if r.Name() != "kafka" {
		t.Errorf("Name() = %q, want kafka", r.Name())
	}
	if err := Close(r); err != nil || !w.closed {
		t.Errorf("Close() did not reach the wrapped notifier")
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	for _, j := range []float64{0, 0.5, 0.999} {
		b := newBackoff(time.Second, 10*time.Second, func() float64 { return j })
		d := b.next()
		if d < 750*time.Millisecond || d > 1250*time.Millisecond {
			t.Errorf("jitter %v: backoff %v outside ±25%% of 1s", j, d)
		}
	}
}

func equalDurations(a, b []time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
