package fusion

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/quietlabs/engram/pkg/types"
)

func shortTermItem(i int) types.MemoryItem {
	return types.MemoryItem{
		ID:          fmt.Sprintf("item-%d", i),
		Content:     fmt.Sprintf("content %d", i),
		ContentType: types.ContentText,
		MemoryType:  types.MemoryShortTerm,
		Importance:  types.ImportanceLow,
		CreatedAt:   time.Now(),
	}
}

func TestNewEngineDefaults(t *testing.T) {
	e := NewEngine("alice", nil)
	state := e.Current()

	if state.SessionID == "" {
		t.Error("session id not assigned")
	}
	if state.UserID != "alice" {
		t.Errorf("user id = %q", state.UserID)
	}
	if state.UserPreferences.Language != "en" {
		t.Errorf("language = %q", state.UserPreferences.Language)
	}
	if got := state.UserPreferences.Communication.PreferredTone; len(got) != 2 {
		t.Errorf("preferred tone = %v", got)
	}

	sources := e.Sources()
	if len(sources) != 1 || sources[0].SourceID != "system" {
		t.Fatalf("expected default system source, got %v", sources)
	}
}

func TestShortTermFIFOEviction(t *testing.T) {
	e := NewEngine("", nil)

	for i := 0; i < ShortTermCapacity+1; i++ {
		e.PushShortTerm(shortTermItem(i))
	}

	state := e.Current()
	if len(state.ShortTermMemory) != ShortTermCapacity {
		t.Fatalf("ring length = %d, want %d", len(state.ShortTermMemory), ShortTermCapacity)
	}
	for _, m := range state.ShortTermMemory {
		if m.ID == "item-0" {
			t.Fatal("first-pushed item should have been evicted")
		}
	}
	if state.ShortTermMemory[0].ID != "item-1" {
		t.Errorf("oldest surviving item = %s, want item-1", state.ShortTermMemory[0].ID)
	}
	if state.ShortTermMemory[ShortTermCapacity-1].ID != fmt.Sprintf("item-%d", ShortTermCapacity) {
		t.Errorf("newest item = %s", state.ShortTermMemory[ShortTermCapacity-1].ID)
	}
}

func TestCurrentReturnsIsolatedSnapshot(t *testing.T) {
	e := NewEngine("", nil)
	e.PushShortTerm(shortTermItem(1))

	snap := e.Current()
	snap.ShortTermMemory[0].Content = "mutated"
	snap.UserPreferences.Communication.PreferredTone[0] = "mutated"

	fresh := e.Current()
	if fresh.ShortTermMemory[0].Content == "mutated" {
		t.Error("snapshot aliases engine ring state")
	}
	if fresh.UserPreferences.Communication.PreferredTone[0] == "mutated" {
		t.Error("snapshot aliases engine preference state")
	}
}

func TestUpdateSystemSource(t *testing.T) {
	e := NewEngine("", nil)
	before := e.Current().LastUpdated

	err := e.Update(types.ContextSource{
		SourceID:   "system",
		SourceType: types.SourceSystem,
		Name:       "System Monitor",
		Enabled:    true,
		Priority:   10,
	}, map[string]any{
		"cpu_usage_percent": 42.5,
		"memory_usage_mb":   float64(2048),
		"battery_level":     0.8,
		"network_connected": true,
		"connection_type":   "wifi",
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	state := e.Current()
	if state.SystemState.CPUUsagePercent != 42.5 {
		t.Errorf("cpu = %v", state.SystemState.CPUUsagePercent)
	}
	if state.SystemState.MemoryUsageMB != 2048 {
		t.Errorf("memory = %v", state.SystemState.MemoryUsageMB)
	}
	if state.SystemState.BatteryLevel == nil || *state.SystemState.BatteryLevel != 0.8 {
		t.Errorf("battery = %v", state.SystemState.BatteryLevel)
	}
	if !state.SystemState.Network.Connected || state.SystemState.Network.ConnectionType != "wifi" {
		t.Errorf("network = %+v", state.SystemState.Network)
	}
	if !state.LastUpdated.After(before) && !state.LastUpdated.Equal(before) {
		t.Error("last_updated not bumped")
	}
}

func TestUpdateApplicationSourceFocusHandling(t *testing.T) {
	e := NewEngine("", nil)

	src := types.ContextSource{
		SourceID:   "apps",
		SourceType: types.SourceApplication,
		Enabled:    true,
	}

	if err := e.Update(src, map[string]any{
		"app_id": "editor", "name": "Editor", "focused": true,
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := e.Update(src, map[string]any{
		"app_id": "browser", "name": "Browser", "focused": true,
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	state := e.Current()
	if len(state.ActiveApplications) != 2 {
		t.Fatalf("apps = %d, want 2", len(state.ActiveApplications))
	}
	for _, app := range state.ActiveApplications {
		switch app.AppID {
		case "editor":
			if app.Focused {
				t.Error("editor should have lost focus")
			}
		case "browser":
			if !app.Focused {
				t.Error("browser should be focused")
			}
		}
	}
}

func TestUpdateCalendarSetsCurrentTask(t *testing.T) {
	e := NewEngine("", nil)

	err := e.Update(types.ContextSource{
		SourceID:   "calendar",
		SourceType: types.SourceCalendar,
		Enabled:    true,
	}, map[string]any{"current_task": "write quarterly report"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if got := e.Current().CurrentTask; got != "write quarterly report" {
		t.Errorf("current_task = %q", got)
	}
}

func TestUpdateRequiresSourceID(t *testing.T) {
	e := NewEngine("", nil)
	if err := e.Update(types.ContextSource{}, nil); err == nil {
		t.Fatal("expected error for missing source id")
	}
}

func TestConcurrentUpdatesAndReads(t *testing.T) {
	e := NewEngine("", nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				switch g % 3 {
				case 0:
					_ = e.Update(types.ContextSource{
						SourceID:   fmt.Sprintf("src-%d", g),
						SourceType: types.SourceSystem,
						Enabled:    true,
					}, map[string]any{"cpu_usage_percent": float64(i)})
				case 1:
					e.PushShortTerm(shortTermItem(g*100 + i))
				default:
					state := e.Current()
					if len(state.ShortTermMemory) > ShortTermCapacity {
						t.Errorf("ring exceeded capacity: %d", len(state.ShortTermMemory))
					}
				}
			}
		}(g)
	}
	wg.Wait()

	if got := len(e.Current().ShortTermMemory); got > ShortTermCapacity {
		t.Errorf("ring length = %d", got)
	}
}
