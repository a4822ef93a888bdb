package types

import (
	"strings"
	"time"
)

// Level is the categorical health state the feed reports for an institution.
type Level string

const (
	LevelClear   Level = "clear"
	LevelWarning Level = "warning"
	LevelError   Level = "error"

	// LevelUnknown is assigned to any wire value outside clear|warning|error.
	// It is neither clear nor a problem level.
	LevelUnknown Level = "unknown"
)

// ParseLevel maps a raw feed value onto a Level. Matching is case-insensitive
// and ignores surrounding whitespace; anything unrecognised is LevelUnknown.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelClear:
		return LevelClear
	case LevelWarning:
		return LevelWarning
	case LevelError:
		return LevelError
	default:
		return LevelUnknown
	}
}

// IsProblem reports whether l is one of the levels that warrants an alert.
func (l Level) IsProblem() bool {
	return l == LevelWarning || l == LevelError
}

// Institution is the current health of one tracked institution.
type Institution struct {
	Title      string  `json:"title"`
	Level      Level   `json:"level"`
	Percentage float64 `json:"percentage"`
}

// UptimeSnapshot maps a stable institution identifier to its health.
type UptimeSnapshot map[string]Institution

// AllClearTitle is the sentinel timeline title marking the end of an
// incident window.
const AllClearTitle = "All Clear"

// Incident is one entry of the status timeline.
type Incident struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ActivatedAt time.Time `json:"activated_at"`
}

// IsAllClear reports whether the entry is the resolution sentinel.
func (i Incident) IsAllClear() bool { return i.Title == AllClearTitle }

// TimelineSnapshot is the incident timeline, newest entry first.
type TimelineSnapshot []Incident

// ObservedState is the cursor the next poll is diffed against: the last
// snapshot whose alerts have already been sent.
type ObservedState struct {
	Uptime     UptimeSnapshot   `json:"uptime"`
	Timeline   TimelineSnapshot `json:"timeline"`
	ObservedAt time.Time        `json:"observed_at"`
}

// EmptyState returns the cursor used before anything has been persisted.
func EmptyState() ObservedState {
	return ObservedState{
		Uptime:   UptimeSnapshot{},
		Timeline: TimelineSnapshot{},
	}
}

// Clone returns a deep copy of s. A nil uptime map or timeline in s becomes
// an empty one in the copy.
func (s ObservedState) Clone() ObservedState {
	out := ObservedState{
		Uptime:     make(UptimeSnapshot, len(s.Uptime)),
		Timeline:   make(TimelineSnapshot, len(s.Timeline)),
		ObservedAt: s.ObservedAt,
	}
	for id, inst := range s.Uptime {
		out.Uptime[id] = inst
	}
	copy(out.Timeline, s.Timeline)
	return out
}

// Kind distinguishes the two alert sources.
type Kind string

const (
	KindUptime   Kind = "uptime"
	KindTimeline Kind = "timeline"
)

// Severity is the notification severity attached to an Alert.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Alert is the unit handed to a notifier.
//
// Uptime alerts carry Institution, Level and Percentage; timeline alerts
// carry Message (the incident description) and ActivatedAt.
type Alert struct {
	Kind        Kind      `json:"kind"`
	Institution string    `json:"institution,omitempty"`
	Title       string    `json:"title"`
	Level       Level     `json:"level,omitempty"`
	Percentage  *float64  `json:"percentage,omitempty"`
	Message     string    `json:"message,omitempty"`
	ActivatedAt time.Time `json:"activated_at,omitzero"`
	Severity    Severity  `json:"severity"`
}

// Key identifies the fact an alert reports on: the institution for uptime
// alerts, the incident title for timeline alerts.
func (a Alert) Key() string {
	if a.Kind == KindUptime {
		return string(a.Kind) + ":" + a.Institution
	}
	return string(a.Kind) + ":" + a.Title
}
