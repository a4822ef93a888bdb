package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/statuswatch/statuswatch/pkg/types"
	"github.com/statuswatch/statuswatch/watcher/internal/config"
	"github.com/statuswatch/statuswatch/watcher/internal/diff"
	"github.com/statuswatch/statuswatch/watcher/internal/feed"
	"github.com/statuswatch/statuswatch/watcher/internal/metrics"
	"github.com/statuswatch/statuswatch/watcher/internal/notify"
	"github.com/statuswatch/statuswatch/watcher/internal/store"
)

// maxHistoryLen caps the number of alert records kept for Recent.
const maxHistoryLen = 200

// ErrAborted is returned by Run when the in-flight cycle did not finish
// within the shutdown timeout.
var ErrAborted = errors.New("poller: in-flight cycle aborted at shutdown")

// Options are the loop timings.
type Options struct {
	Interval        time.Duration
	FetchTimeout    time.Duration
	NotifyTimeout   time.Duration
	StoreTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// OptionsFrom maps the watcher config section to Options.
func OptionsFrom(cfg config.WatcherConfig) Options {
	return Options{
		Interval:        cfg.PollInterval,
		FetchTimeout:    cfg.FetchTimeout,
		NotifyTimeout:   cfg.NotifyTimeout,
		StoreTimeout:    cfg.StoreTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Record is one detected alert and whether its batch was delivered.
type Record struct {
	CycleID    string      `json:"cycle_id"`
	DetectedAt time.Time   `json:"detected_at"`
	Delivered  bool        `json:"delivered"`
	Alert      types.Alert `json:"alert"`
}

// Status summarises the loop for health reporting.
type Status struct {
	Cycles        uint64
	LastCycleAt   time.Time
	LastSuccessAt time.Time
	LastError     string
}

// Poller owns the poll loop. Create one with New.
type Poller struct {
	fetcher feed.Fetcher
	store   store.Store
	metrics *metrics.Metrics
	opts    Options

	mu       sync.RWMutex
	notifier notify.Notifier
	retired  []notify.Notifier
	history  []Record
	status   Status

	sem     *semaphore.Weighted
	resetCh chan time.Duration
	now     func() time.Time // injectable for deterministic tests
	newID   func() string
}

// New returns a Poller. m may be nil.
func New(f feed.Fetcher, n notify.Notifier, s store.Store, m *metrics.Metrics, opts Options) *Poller {
	if m == nil {
		m = metrics.New()
	}
	return &Poller{
		fetcher:  f,
		store:    s,
		metrics:  m,
		opts:     opts,
		notifier: n,
		sem:      semaphore.NewWeighted(1),
		resetCh:  make(chan time.Duration, 1),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SetInterval changes the tick interval of a running loop.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	// Keep only the latest pending value.
	select {
	case <-p.resetCh:
	default:
	}
	p.resetCh <- d
}

// SetNotifier replaces the channel used from the next cycle on. The
// replaced notifier is closed once no cycle can still be using it.
func (p *Poller) SetNotifier(n notify.Notifier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.notifier == n {
		return
	}
	p.retired = append(p.retired, p.notifier)
	p.notifier = n
}

// closeRetired closes notifiers replaced by SetNotifier. The caller must
// hold the cycle semaphore.
func (p *Poller) closeRetired() {
	p.mu.Lock()
	old := p.retired
	p.retired = nil
	p.mu.Unlock()
	for _, n := range old {
		if err := notify.Close(n); err != nil {
			slog.Warn("poller: close replaced notifier failed", "channel", n.Name(), "err", err)
		}
	}
}

// Close closes the current notifier and any replaced ones. Call it after
// Run has returned.
func (p *Poller) Close() error {
	p.closeRetired()
	return notify.Close(p.currentNotifier())
}

func (p *Poller) currentNotifier() notify.Notifier {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.notifier
}

// Recent returns up to the last 200 alert records, newest first.
func (p *Poller) Recent() []Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Record, len(p.history))
	for i, r := range p.history {
		out[len(p.history)-1-i] = r
	}
	return out
}

// Status returns the loop summary.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// outcome is what a background cycle hands back to the loop.
type outcome struct {
	state  types.ObservedState
	loaded bool
}

// Run drives the loop until ctx is cancelled. It returns nil after a clean
// shutdown and ErrAborted if the in-flight cycle had to be cancelled.
func (p *Poller) Run(ctx context.Context) error {
	// Cycles outlive ctx so shutdown can drain them; abort cancels them.
	cycleCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	defer abort()

	var (
		state   types.ObservedState
		loaded  bool
		results = make(chan outcome, 1)
	)

	start := func() {
		if !p.sem.TryAcquire(1) {
			p.metrics.TickSkipped()
			slog.Debug("poller: previous cycle still running, tick dropped")
			return
		}
		// Pick up a result the loop has not consumed yet.
		select {
		case o := <-results:
			state, loaded = o.state, o.loaded
		default:
		}
		go func(prev types.ObservedState, loaded bool) {
			p.closeRetired()
			o := p.runCycle(cycleCtx, prev, loaded)
			results <- o
			p.sem.Release(1)
		}(state, loaded)
	}

	slog.Info("poller: started", "interval", p.opts.Interval)
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	start()
	for {
		select {
		case <-ctx.Done():
			return p.drain(abort)
		case o := <-results:
			state, loaded = o.state, o.loaded
		case d := <-p.resetCh:
			ticker.Reset(d)
			slog.Info("poller: interval changed", "interval", d)
		case <-ticker.C:
			start()
		}
	}
}

// drain waits for the in-flight cycle, if any, for at most the shutdown
// timeout. The semaphore is released only after the cycle has handed back
// its result, so holding it means nothing is left running.
func (p *Poller) drain(abort context.CancelFunc) error {
	if p.sem.TryAcquire(1) {
		p.sem.Release(1)
		slog.Info("poller: stopped")
		return nil
	}

	slog.Info("poller: waiting for in-flight cycle", "timeout", p.opts.ShutdownTimeout)
	waitCtx, cancel := context.WithTimeout(context.Background(), p.opts.ShutdownTimeout)
	defer cancel()

	if err := p.sem.Acquire(waitCtx, 1); err == nil {
		p.sem.Release(1)
		slog.Info("poller: stopped")
		return nil
	}
	slog.Warn("poller: shutdown timeout reached, aborting in-flight cycle")
	abort()
	_ = p.sem.Acquire(context.Background(), 1)
	p.sem.Release(1)
	return ErrAborted
}

// runCycle loads the cursor if needed and runs one cycle.
func (p *Poller) runCycle(ctx context.Context, prev types.ObservedState, loaded bool) outcome {
	if !loaded {
		start := p.now()
		st, err := p.load(ctx)
		if err != nil {
			p.metrics.StageFailed(metrics.StageStore)
			p.finish(start, err)
			slog.Error("poller: load observed state failed, skipping cycle", "err", err)
			return outcome{state: prev, loaded: false}
		}
		prev = st
	}
	next, _ := p.Cycle(ctx, prev)
	return outcome{state: next, loaded: true}
}

func (p *Poller) load(ctx context.Context) (types.ObservedState, error) {
	lctx, cancel := context.WithTimeout(ctx, p.opts.StoreTimeout)
	defer cancel()
	st, err := p.store.Load(lctx)
	if err != nil {
		return types.ObservedState{}, fmt.Errorf("poller: load: %w", err)
	}
	return st, nil
}

// Cycle runs one fetch, diff, notify, save pass against prev. It returns
// the new cursor, or prev and the error when the fetch or the save failed.
// Delivery failures are not returned.
func (p *Poller) Cycle(ctx context.Context, prev types.ObservedState) (types.ObservedState, error) {
	start := p.now()
	id := p.newID()

	next, err := p.cycle(ctx, id, start, prev)
	p.finish(start, err)
	if err != nil {
		slog.Warn("poller: cycle failed", "cycle_id", id, "err", err)
		return prev, err
	}
	slog.Debug("poller: cycle complete", "cycle_id", id,
		"institutions", len(next.Uptime), "timeline_entries", len(next.Timeline))
	return next, nil
}

func (p *Poller) cycle(ctx context.Context, id string, start time.Time, prev types.ObservedState) (types.ObservedState, error) {
	fetched, err := p.fetch(ctx)
	if err != nil {
		p.metrics.StageFailed(metrics.StageFetch)
		return prev, fmt.Errorf("poller: fetch: %w", err)
	}
	if len(fetched.Timeline) == 0 {
		slog.Warn("poller: timeline payload is empty", "cycle_id", id)
	}
	fetched.ObservedAt = start.UTC()

	alerts := diff.State(prev, fetched)
	p.metrics.AlertsDetected(alerts)
	if len(alerts) > 0 {
		delivered := p.deliver(ctx, notify.Batch{CycleID: id, DetectedAt: start.UTC(), Alerts: alerts})
		p.remember(id, start.UTC(), alerts, delivered)
	}

	sctx, cancel := context.WithTimeout(ctx, p.opts.StoreTimeout)
	defer cancel()
	if err := p.store.Save(sctx, fetched); err != nil {
		p.metrics.StageFailed(metrics.StageStore)
		return prev, fmt.Errorf("poller: save: %w", err)
	}
	return fetched, nil
}

// fetch retrieves both feed documents concurrently.
func (p *Poller) fetch(ctx context.Context) (types.ObservedState, error) {
	fctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()

	var (
		uptime   types.UptimeSnapshot
		timeline types.TimelineSnapshot
	)
	g, gctx := errgroup.WithContext(fctx)
	g.Go(func() error {
		var err error
		uptime, err = p.fetcher.FetchUptime(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		timeline, err = p.fetcher.FetchTimeline(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return types.ObservedState{}, err
	}
	return types.ObservedState{Uptime: uptime, Timeline: timeline}.Clone(), nil
}

// deliver sends the batch and reports whether the channel accepted it.
func (p *Poller) deliver(ctx context.Context, batch notify.Batch) bool {
	n := p.currentNotifier()
	nctx, cancel := context.WithTimeout(ctx, p.opts.NotifyTimeout)
	defer cancel()

	if err := n.Notify(nctx, batch); err != nil {
		p.metrics.StageFailed(metrics.StageNotify)
		slog.Error("poller: alert delivery failed",
			"cycle_id", batch.CycleID,
			"channel", n.Name(),
			"alerts", len(batch.Alerts),
			"err", err,
		)
		return false
	}
	p.metrics.AlertsDelivered(len(batch.Alerts))
	slog.Info("poller: alerts delivered",
		"cycle_id", batch.CycleID,
		"channel", n.Name(),
		"alerts", len(batch.Alerts),
	)
	return true
}

func (p *Poller) remember(id string, at time.Time, alerts []types.Alert, delivered bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range alerts {
		p.history = append(p.history, Record{CycleID: id, DetectedAt: at, Delivered: delivered, Alert: a})
	}
	if over := len(p.history) - maxHistoryLen; over > 0 {
		p.history = append(p.history[:0:0], p.history[over:]...)
	}
}

// finish updates metrics and status for a completed or failed cycle.
func (p *Poller) finish(start time.Time, err error) {
	end := p.now()
	p.metrics.ObserveCycle(start, end.Sub(start), err)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Cycles++
	p.status.LastCycleAt = end.UTC()
	if err != nil {
		p.status.LastError = err.Error()
		return
	}
	p.status.LastError = ""
	p.status.LastSuccessAt = end.UTC()
}
