package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"clear", LevelClear},
		{"warning", LevelWarning},
		{"error", LevelError},
		{" ERROR ", LevelError},
		{"Warning", LevelWarning},
		{"", LevelUnknown},
		{"degraded", LevelUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			if got := ParseLevel(tc.in); got != tc.want {
				t.Errorf("ParseLevel(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestLevel_IsProblem(t *testing.T) {
	if LevelClear.IsProblem() {
		t.Error("clear should not be a problem level")
	}
	if LevelUnknown.IsProblem() {
		t.Error("unknown should not be a problem level")
	}
	if !LevelWarning.IsProblem() || !LevelError.IsProblem() {
		t.Error("warning and error should be problem levels")
	}
}

func TestObservedState_Clone_IsDeep(t *testing.T) {
	orig := ObservedState{
		Uptime:   UptimeSnapshot{"ins_1": {Title: "Bank", Level: LevelClear, Percentage: 99}},
		Timeline: TimelineSnapshot{{Title: "T1"}},
	}
	cp := orig.Clone()

	cp.Uptime["ins_1"] = Institution{Title: "Changed", Level: LevelError}
	cp.Uptime["ins_2"] = Institution{Title: "New"}
	cp.Timeline[0].Title = "T2"

	if orig.Uptime["ins_1"].Title != "Bank" {
		t.Errorf("clone aliased uptime map: %+v", orig.Uptime)
	}
	if len(orig.Uptime) != 1 {
		t.Errorf("clone aliased uptime map: len = %d", len(orig.Uptime))
	}
	if orig.Timeline[0].Title != "T1" {
		t.Errorf("clone aliased timeline: %+v", orig.Timeline)
	}
}

func TestObservedState_Clone_NilFields(t *testing.T) {
	cp := ObservedState{}.Clone()
	if cp.Uptime == nil || cp.Timeline == nil {
		t.Fatalf("Clone of zero state should allocate, got %+v", cp)
	}
}

func TestAlert_JSONOmitsEmptyFields(t *testing.T) {
	a := Alert{Kind: KindTimeline, Title: "Outage", Message: "desc", Severity: SeverityWarning}
	b, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, field := range []string{"institution", "percentage", "level", "activated_at"} {
		if strings.Contains(string(b), field) {
			t.Errorf("expected %q to be omitted, got %s", field, b)
		}
	}

	a.ActivatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b, _ = json.Marshal(a)
	if !strings.Contains(string(b), `"activated_at":"2026-01-01T00:00:00Z"`) {
		t.Errorf("activated_at missing: %s", b)
	}
}

func TestAlert_Key(t *testing.T) {
	up := Alert{Kind: KindUptime, Institution: "ins_1", Title: "Bank"}
	if got := up.Key(); got != "uptime:ins_1" {
		t.Errorf("uptime Key() = %q", got)
	}
	tl := Alert{Kind: KindTimeline, Title: "Outage"}
	if got := tl.Key(); got != "timeline:Outage" {
		t.Errorf("timeline Key() = %q", got)
	}
}
