package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/statuswatch/statuswatch/pkg/types"
)

type uptimeEntry struct {
	Current *struct {
		Title      string    `json:"title"`
		Level      string    `json:"level"`
		Percentage flexFloat `json:"percentage"`
	} `json:"current"`
}

type timelineEntry struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ActivatedAt flexTime `json:"activated_at"`
}

// decodeUptime parses the uptime document. An entry without a current block
// is kept at LevelUnknown so a sustained problem does not drop out of the
// cursor and re-alert when the block comes back.
func decodeUptime(body []byte) (types.UptimeSnapshot, error) {
	var raw map[string]uptimeEntry
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode uptime: %w", err)
	}
	snap := make(types.UptimeSnapshot, len(raw))
	for id, e := range raw {
		if e.Current == nil {
			snap[id] = types.Institution{Level: types.LevelUnknown}
			continue
		}
		snap[id] = types.Institution{
			Title:      e.Current.Title,
			Level:      types.ParseLevel(e.Current.Level),
			Percentage: float64(e.Current.Percentage),
		}
	}
	return snap, nil
}

// decodeTimeline parses the timeline array. A JSON null yields an empty
// snapshot.
func decodeTimeline(body []byte) (types.TimelineSnapshot, error) {
	var raw []timelineEntry
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode timeline: %w", err)
	}
	snap := make(types.TimelineSnapshot, 0, len(raw))
	for _, e := range raw {
		snap = append(snap, types.Incident{
			Title:       e.Title,
			Description: e.Description,
			ActivatedAt: time.Time(e.ActivatedAt),
		})
	}
	return snap, nil
}

// flexFloat accepts a JSON number, a numeric string, or null. NaN and
// infinities decode to zero; they cannot be persisted as JSON.
type flexFloat float64

func finite(v float64) flexFloat {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return flexFloat(v)
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("percentage %q: %w", s, err)
		}
		*f = finite(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = finite(v)
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// flexTime accepts RFC3339 and its common variants. Anything else decodes
// to the zero time.
type flexTime time.Time

func (t *flexTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// Non-string values (null, numbers) are not an error.
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			*t = flexTime(v.UTC())
			return nil
		}
	}
	return nil
}
