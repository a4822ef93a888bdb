// Package metrics keeps the watcher's operational counters and exposes them
// in the Prometheus text format.
package metrics

import (
	"io"
	"net/http"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/version"
	"google.golang.org/protobuf/proto"

	"github.com/statuswatch/statuswatch/pkg/types"
)

const namespace = "statuswatch_"

// Stage names a step of the poll cycle that can fail.
type Stage string

const (
	StageFetch  Stage = "fetch"
	StageNotify Stage = "notify"
	StageStore  Stage = "store"
)

// Metrics is safe for concurrent use. The zero value is not usable; call New.
type Metrics struct {
	cyclesOK      atomic.Uint64
	cyclesFailed  atomic.Uint64
	ticksSkipped  atomic.Uint64
	fetchErrors   atomic.Uint64
	notifyErrors  atomic.Uint64
	storeErrors   atomic.Uint64
	uptimeAlerts  atomic.Uint64
	timelineAlert atomic.Uint64
	delivered     atomic.Uint64
	lastCycleNS   atomic.Int64
	lastSuccessNS atomic.Int64 // unix nanoseconds, 0 = never
}

// New returns a Metrics with all counters at zero.
func New() *Metrics { return &Metrics{} }

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(start time.Time, d time.Duration, err error) {
	m.lastCycleNS.Store(int64(d))
	if err != nil {
		m.cyclesFailed.Add(1)
		return
	}
	m.cyclesOK.Add(1)
	m.lastSuccessNS.Store(start.Add(d).UnixNano())
}

// TickSkipped records a tick dropped because a cycle was still running.
func (m *Metrics) TickSkipped() { m.ticksSkipped.Add(1) }

// StageFailed records one failure of the given stage.
func (m *Metrics) StageFailed(s Stage) {
	switch s {
	case StageFetch:
		m.fetchErrors.Add(1)
	case StageNotify:
		m.notifyErrors.Add(1)
	case StageStore:
		m.storeErrors.Add(1)
	}
}

// AlertsDetected counts alerts by kind.
func (m *Metrics) AlertsDetected(alerts []types.Alert) {
	for _, a := range alerts {
		switch a.Kind {
		case types.KindUptime:
			m.uptimeAlerts.Add(1)
		case types.KindTimeline:
			m.timelineAlert.Add(1)
		}
	}
}

// AlertsDelivered counts alerts accepted by the notifier.
func (m *Metrics) AlertsDelivered(n int) { m.delivered.Add(uint64(n)) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	CyclesOK        uint64
	CyclesFailed    uint64
	TicksSkipped    uint64
	FetchErrors     uint64
	NotifyErrors    uint64
	StoreErrors     uint64
	UptimeAlerts    uint64
	TimelineAlerts  uint64
	AlertsDelivered uint64
	LastCycle       time.Duration
	LastSuccess     time.Time // zero if no cycle has succeeded
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		CyclesOK:        m.cyclesOK.Load(),
		CyclesFailed:    m.cyclesFailed.Load(),
		TicksSkipped:    m.ticksSkipped.Load(),
		FetchErrors:     m.fetchErrors.Load(),
		NotifyErrors:    m.notifyErrors.Load(),
		StoreErrors:     m.storeErrors.Load(),
		UptimeAlerts:    m.uptimeAlerts.Load(),
		TimelineAlerts:  m.timelineAlert.Load(),
		AlertsDelivered: m.delivered.Load(),
		LastCycle:       time.Duration(m.lastCycleNS.Load()),
	}
	if ns := m.lastSuccessNS.Load(); ns != 0 {
		s.LastSuccess = time.Unix(0, ns).UTC()
	}
	return s
}

// Gather builds the metric families, sorted by name.
func (m *Metrics) Gather() []*dto.MetricFamily {
	s := m.Snapshot()
	var lastSuccess float64
	if !s.LastSuccess.IsZero() {
		lastSuccess = float64(s.LastSuccess.UnixNano()) / 1e9
	}

	mfs := []*dto.MetricFamily{
		counterVec("cycles_total", "Poll cycles by result.", "result",
			map[string]uint64{"success": s.CyclesOK, "failure": s.CyclesFailed}),
		counter("ticks_skipped_total", "Ticks dropped because a cycle was still running.", s.TicksSkipped),
		counterVec("errors_total", "Cycle stage failures.", "stage",
			map[string]uint64{string(StageFetch): s.FetchErrors, string(StageNotify): s.NotifyErrors, string(StageStore): s.StoreErrors}),
		counterVec("alerts_detected_total", "Alerts produced by the differ.", "kind",
			map[string]uint64{string(types.KindUptime): s.UptimeAlerts, string(types.KindTimeline): s.TimelineAlerts}),
		counter("alerts_delivered_total", "Alerts accepted by the notification channel.", s.AlertsDelivered),
		gauge("last_success_timestamp_seconds", "Unix time of the last successful cycle.", lastSuccess),
		gauge("last_cycle_duration_seconds", "Duration of the most recent cycle.", s.LastCycle.Seconds()),
		buildInfo(),
	}
	sort.Slice(mfs, func(i, j int) bool { return mfs[i].GetName() < mfs[j].GetName() })
	return mfs
}

// WriteTo writes the text exposition of all metrics to w.
func (m *Metrics) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	enc := expfmt.NewEncoder(cw, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range m.Gather() {
		if err := enc.Encode(mf); err != nil {
			return cw.n, err
		}
	}
	return cw.n, nil
}

// Handler serves the text exposition.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		_, _ = m.WriteTo(w)
	})
}

func counter(name, help string, v uint64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(namespace + name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(float64(v))}}},
	}
}

func counterVec(name, help, label string, values map[string]uint64) *dto.MetricFamily {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mf := &dto.MetricFamily{
		Name: proto.String(namespace + name),
		Help: proto.String(help),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, k := range keys {
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{{Name: proto.String(label), Value: proto.String(k)}},
			Counter: &dto.Counter{Value: proto.Float64(float64(values[k]))},
		})
	}
	return mf
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(namespace + name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}

func buildInfo() *dto.MetricFamily {
	labels := []*dto.LabelPair{
		{Name: proto.String("goversion"), Value: proto.String(runtime.Version())},
		{Name: proto.String("revision"), Value: proto.String(version.Revision)},
		{Name: proto.String("version"), Value: proto.String(version.Version)},
	}
	return &dto.MetricFamily{
		Name:   proto.String(namespace + "build_info"),
		Help:   proto.String("A metric with a constant '1' value labeled by version, revision and goversion."),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Label: labels, Gauge: &dto.Gauge{Value: proto.Float64(1)}}},
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
