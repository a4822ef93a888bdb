package notify

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/statuswatch/statuswatch/watcher/internal/config"
)

const backoffMultiplier = 2.0

// retrier redelivers a batch after retryable failures.
type retrier struct {
	next   Notifier
	cfg    config.RetryConfig
	sleep  func(ctx context.Context, d time.Duration) error // injectable for tests
	jitter func() float64                                   // returns [0, 1)
}

// WithRetry wraps n so that a batch failing with a retryable
// *DeliveryError is redelivered up to cfg.MaxRetries more times. Retries
// stop early when ctx is done.
func WithRetry(n Notifier, cfg config.RetryConfig) Notifier {
	return &retrier{next: n, cfg: cfg, sleep: sleepCtx, jitter: rand.Float64}
}

func (r *retrier) Name() string { return r.next.Name() }

func (r *retrier) Notify(ctx context.Context, batch Batch) error {
	b := newBackoff(r.cfg.InitialBackoff, r.cfg.MaxBackoff, r.jitter)
	var err error
	for attempt := 0; ; attempt++ {
		err = r.next.Notify(ctx, batch)
		if err == nil || attempt >= r.cfg.MaxRetries || !Retryable(err) {
			return err
		}
		d := b.next()
		slog.Warn("notify: delivery failed, retrying",
			"channel", r.next.Name(),
			"cycle_id", batch.CycleID,
			"attempt", attempt+1,
			"backoff", d,
			"err", err,
		)
		if serr := r.sleep(ctx, d); serr != nil {
			return err
		}
	}
}

func (r *retrier) Close() error { return Close(r.next) }

// Retryable reports whether err is a DeliveryError worth retrying.
func Retryable(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Retryable
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

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
	max     time.Duration
	jitter  func() float64
}

func newBackoff(initial, ceiling time.Duration, jitter func() float64) *backoff {
	return &backoff{current: initial, max: ceiling, jitter: jitter}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	d += time.Duration(float64(b.current) * 0.25 * (b.jitter()*2 - 1))
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.max > 0 && b.current > b.max {
		b.current = b.max
	}
	return d
}
