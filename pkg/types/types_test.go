package types

import (
	"testing"
	"time"
)

func TestEnumValidation(t *testing.T) {
	valid := []bool{
		ContentText.Valid(),
		ContentStructured.Valid(),
		MemoryShortTerm.Valid(),
		MemoryPermanent.Valid(),
		ImportanceLow.Valid(),
		ImportanceCritical.Valid(),
	}
	for i, ok := range valid {
		if !ok {
			t.Errorf("case %d: expected valid", i)
		}
	}

	if ContentType("hologram").Valid() {
		t.Error("unknown content type accepted")
	}
	if MemoryType("weekly").Valid() {
		t.Error("unknown memory type accepted")
	}
	if Importance("urgent").Valid() {
		t.Error("unknown importance accepted")
	}
}

func TestMemoryItemCloneIsolation(t *testing.T) {
	original := &MemoryItem{
		ID:       "a",
		Content:  "original",
		Tags:     []string{"one"},
		Metadata: map[string]any{"key": "value"},
	}

	clone := original.Clone()
	clone.Tags[0] = "mutated"
	clone.Metadata["key"] = "mutated"
	clone.Content = "mutated"

	if original.Tags[0] != "one" {
		t.Error("clone aliases tags")
	}
	if original.Metadata["key"] != "value" {
		t.Error("clone aliases metadata")
	}
	if original.Content != "original" {
		t.Error("clone aliases content")
	}
}

func TestHasTag(t *testing.T) {
	item := MemoryItem{Tags: []string{"work", "urgent"}}
	if !item.HasTag("work") || item.HasTag("personal") {
		t.Error("tag lookup wrong")
	}
}

func TestTimeOfDayBuckets(t *testing.T) {
	cases := []struct {
		hour int
		want TimeOfDay
	}{
		{5, EarlyMorning},
		{7, EarlyMorning},
		{8, Morning},
		{11, Morning},
		{12, Afternoon},
		{16, Afternoon},
		{17, Evening},
		{20, Evening},
		{21, Night},
		{23, Night},
		{0, LateNight},
		{4, LateNight},
	}

	for _, tc := range cases {
		at := time.Date(2026, time.March, 2, tc.hour, 30, 0, 0, time.UTC)
		if got := TimeOfDayAt(at); got != tc.want {
			t.Errorf("hour %d: got %s, want %s", tc.hour, got, tc.want)
		}
	}
}

func TestNewContextStateDefaults(t *testing.T) {
	now := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	state := NewContextState("alice", now)

	if state.SessionID == "" {
		t.Error("session id not assigned")
	}
	if state.UserID != "alice" {
		t.Errorf("user id = %q", state.UserID)
	}
	if state.Environment.TimeOfDay != Morning {
		t.Errorf("time of day = %s", state.Environment.TimeOfDay)
	}
	if state.Environment.DayOfWeek != time.Monday {
		t.Errorf("day of week = %s", state.Environment.DayOfWeek)
	}
	if got := state.UserPreferences.Communication.PreferredTone; len(got) != 2 || got[0] != "helpful" || got[1] != "friendly" {
		t.Errorf("preferred tone = %v", got)
	}
	if state.UserPreferences.Privacy.DataRetentionDays != 365 {
		t.Errorf("retention = %d", state.UserPreferences.Privacy.DataRetentionDays)
	}
}

func TestContextStateCloneIsolation(t *testing.T) {
	state := NewContextState("alice", time.Now())
	state.ShortTermMemory = []MemoryItem{{ID: "a", Content: "x"}}

	clone := state.Clone()
	clone.ShortTermMemory[0].Content = "mutated"
	clone.UserPreferences.Communication.PreferredTone[0] = "mutated"
	clone.UserPreferences.WorkHours.WorkDays[0] = time.Sunday

	if state.ShortTermMemory[0].Content != "x" {
		t.Error("clone aliases short-term memory")
	}
	if state.UserPreferences.Communication.PreferredTone[0] != "helpful" {
		t.Error("clone aliases preferred tone")
	}
	if state.UserPreferences.WorkHours.WorkDays[0] != time.Monday {
		t.Error("clone aliases work days")
	}
}
