package diff

import (
	"sort"

	"github.com/statuswatch/statuswatch/pkg/types"
)

// Uptime returns one alert per institution in current whose level is
// warning or error and whose previous level was clear or absent.
//
// Alerts are ordered by institution identifier.
func Uptime(previous, current types.UptimeSnapshot) []types.Alert {
	ids := make([]string, 0, len(current))
	for id := range current {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []types.Alert
	for _, id := range ids {
		inst := current[id]
		if !inst.Level.IsProblem() || !wasClear(previous, id) {
			continue
		}
		pct := inst.Percentage
		out = append(out, types.Alert{
			Kind:        types.KindUptime,
			Institution: id,
			Title:       inst.Title,
			Level:       inst.Level,
			Percentage:  &pct,
			Severity:    severityOf(inst.Level),
		})
	}
	return out
}

// wasClear fails open: an institution never seen before was clear.
func wasClear(previous types.UptimeSnapshot, id string) bool {
	prev, ok := previous[id]
	return !ok || prev.Level == types.LevelClear
}

func severityOf(l types.Level) types.Severity {
	if l == types.LevelError {
		return types.SeverityError
	}
	return types.SeverityWarning
}

// Timeline returns the entries of the current open incident window when its
// head differs from the head of previous.
//
// An empty current yields nothing. An empty previous is compared against a
// zero Incident, so the first poll reports the open window.
func Timeline(previous, current types.TimelineSnapshot) []types.Alert {
	if len(current) == 0 {
		return nil
	}
	latest := current[0]
	if latest.IsAllClear() {
		return nil
	}

	var last types.Incident
	if len(previous) > 0 {
		last = previous[0]
	}
	// Titles are the dedup key: the feed does not reuse a title for a
	// distinct incident inside the polling window.
	if latest.Title == last.Title {
		return nil
	}

	var out []types.Alert
	for _, inc := range current {
		if inc.IsAllClear() {
			break
		}
		out = append(out, types.Alert{
			Kind:        types.KindTimeline,
			Title:       inc.Title,
			Message:     inc.Description,
			ActivatedAt: inc.ActivatedAt,
			Severity:    types.SeverityWarning,
		})
	}
	return out
}

// State combines Uptime and Timeline for two observed states: uptime alerts
// first, then timeline alerts.
func State(previous, current types.ObservedState) []types.Alert {
	alerts := Uptime(previous.Uptime, current.Uptime)
	return append(alerts, Timeline(previous.Timeline, current.Timeline)...)
}
