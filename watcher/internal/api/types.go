package api

import (
	"github.com/statuswatch/statuswatch/pkg/types"
	"github.com/statuswatch/statuswatch/watcher/internal/poller"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Revision      string `json:"revision"`
	Cycles        uint64 `json:"cycles"`
	LastCycleAt   string `json:"last_cycle_at,omitempty"`   // RFC3339
	LastSuccessAt string `json:"last_success_at,omitempty"` // RFC3339
	LastError     string `json:"last_error,omitempty"`
}

// StateResponse is the payload for GET /api/v1/state.
type StateResponse struct {
	ObservedAt string `json:"observed_at,omitempty"` // RFC3339
	// Levels counts tracked institutions per uptime level.
	Levels map[types.Level]int `json:"levels"`
	// OpenIncidents are the timeline entries before the first All Clear.
	OpenIncidents []types.Incident       `json:"open_incidents"`
	Uptime        types.UptimeSnapshot   `json:"uptime"`
	Timeline      types.TimelineSnapshot `json:"timeline"`
}

// AlertsResponse is the payload for GET /api/v1/alerts.
type AlertsResponse struct {
	Count  int             `json:"count"`
	Alerts []poller.Record `json:"alerts"`
}

type errorResponse struct {
	Error string `json:"error"`
}
