package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/common/version"

	"github.com/statuswatch/statuswatch/pkg/types"
	"github.com/statuswatch/statuswatch/watcher/internal/metrics"
	"github.com/statuswatch/statuswatch/watcher/internal/poller"
)

const (
	defaultAlertLimit = 50
	stateReadTimeout  = 5 * time.Second
)

// StateReader loads the persisted observed state. store.Store satisfies it.
type StateReader interface {
	Load(ctx context.Context) (types.ObservedState, error)
}

// Loop exposes the poll loop's status. *poller.Poller satisfies it.
type Loop interface {
	Status() poller.Status
	Recent() []poller.Record
}

// Handler is the HTTP handler for all status endpoints.
type Handler struct {
	state   StateReader
	loop    Loop
	metrics *metrics.Metrics
	router  chi.Router
}

// New creates a Handler and registers all routes.
func New(state StateReader, loop Loop, m *metrics.Metrics) http.Handler {
	h := &Handler{state: state, loop: loop, metrics: m}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/api/v1/health", h.health)
	r.Get("/api/v1/state", h.observedState)
	r.Get("/api/v1/alerts", h.alerts)
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	st := h.loop.Status()
	resp := HealthResponse{
		Status:        loopState(st),
		Version:       version.Version,
		Revision:      version.Revision,
		Cycles:        st.Cycles,
		LastCycleAt:   formatTime(st.LastCycleAt),
		LastSuccessAt: formatTime(st.LastSuccessAt),
		LastError:     st.LastError,
	}
	jsonResp(w, http.StatusOK, resp)
}

// observedState returns GET /api/v1/state.
func (h *Handler) observedState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), stateReadTimeout)
	defer cancel()

	st, err := h.state.Load(ctx)
	if err != nil {
		slog.Error("api: load observed state", "err", err)
		jsonErr(w, http.StatusServiceUnavailable, "observed state unavailable")
		return
	}
	jsonResp(w, http.StatusOK, toStateResponse(st))
}

// alerts returns GET /api/v1/alerts.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultAlertLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	recs := h.loop.Recent()
	if len(recs) > limit {
		recs = recs[:limit]
	}
	jsonResp(w, http.StatusOK, AlertsResponse{Count: len(recs), Alerts: recs})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// loopState maps the loop status to ok | starting | degraded.
func loopState(st poller.Status) string {
	switch {
	case st.LastError != "":
		return "degraded"
	case st.LastSuccessAt.IsZero():
		return "starting"
	default:
		return "ok"
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// toStateResponse summarises an observed state.
func toStateResponse(st types.ObservedState) StateResponse {
	resp := StateResponse{
		ObservedAt:    formatTime(st.ObservedAt),
		Levels:        make(map[types.Level]int),
		OpenIncidents: make([]types.Incident, 0),
		Uptime:        st.Uptime,
		Timeline:      st.Timeline,
	}
	for _, inst := range st.Uptime {
		resp.Levels[inst.Level]++
	}
	for _, inc := range st.Timeline {
		if inc.IsAllClear() {
			break
		}
		resp.OpenIncidents = append(resp.OpenIncidents, inc)
	}
	return resp
}
