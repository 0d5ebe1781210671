// Package fusion owns the session's context state: one mutable snapshot fed
// by registered context sources, plus the bounded short-term memory ring.
package fusion

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quietlabs/engram/internal/observe"
	"github.com/quietlabs/engram/pkg/types"
)

// ShortTermCapacity bounds the short-term memory ring. Eviction is strict
// FIFO, not importance-weighted.
const ShortTermCapacity = 50

// Engine maintains the current context state and the source registry.
// Readers get consistent copies; writers are serialized by the lock, so
// concurrent updates from different sources never interleave partially.
type Engine struct {
	obs *observe.Observer

	mu      sync.RWMutex
	state   types.ContextState
	sources map[string]types.ContextSource
}

// NewEngine creates an engine with a default context state for userID and a
// pre-registered "system" monitor source.
func NewEngine(userID string, obs *observe.Observer) *Engine {
	now := time.Now()
	e := &Engine{
		obs:     obs,
		state:   types.NewContextState(userID, now),
		sources: make(map[string]types.ContextSource),
	}
	e.sources["system"] = types.ContextSource{
		SourceID:    "system",
		SourceType:  types.SourceSystem,
		Name:        "System Monitor",
		Enabled:     true,
		Priority:    10,
		LastUpdated: now,
	}
	return e
}

// Current returns a consistent deep copy of the context state.
func (e *Engine) Current() types.ContextState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// Update registers or refreshes the named source, folds its payload into
// the context state according to the source type, and bumps last_updated.
// Unknown source types only refresh the registry and the timestamp.
func (e *Engine) Update(source types.ContextSource, payload map[string]any) error {
	if source.SourceID == "" {
		return fmt.Errorf("fusion: source id is required")
	}

	now := time.Now()
	source.LastData = payload
	source.LastUpdated = now

	e.mu.Lock()
	defer e.mu.Unlock()

	e.sources[source.SourceID] = source

	if source.Enabled {
		switch source.SourceType {
		case types.SourceSystem:
			applySystemPayload(&e.state.SystemState, payload)
		case types.SourceApplication:
			applyApplicationPayload(&e.state, payload, now)
		case types.SourceCalendar:
			if task, ok := payload["current_task"].(string); ok {
				e.state.CurrentTask = task
			}
		}
	}

	e.state.Environment.TimeOfDay = types.TimeOfDayAt(now)
	e.state.Environment.DayOfWeek = now.Weekday()
	e.state.LastUpdated = now

	if e.obs != nil {
		e.obs.Log().Debug().
			Str("source", source.SourceID).
			Str("type", string(source.SourceType)).
			Msg("context updated")
	}

	return nil
}

// PushShortTerm appends an item to the short-term ring, evicting the oldest
// entry once capacity is exceeded.
func (e *Engine) PushShortTerm(item types.MemoryItem) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.ShortTermMemory = append(e.state.ShortTermMemory, *item.Clone())
	if len(e.state.ShortTermMemory) > ShortTermCapacity {
		e.state.ShortTermMemory = e.state.ShortTermMemory[1:]
	}
	e.state.LastUpdated = time.Now()
}

// SetCurrentTask records what the user is working on right now.
func (e *Engine) SetCurrentTask(task string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.CurrentTask = task
	e.state.LastUpdated = time.Now()
}

// Sources returns the registered sources ordered by descending priority,
// then by id for a stable listing.
func (e *Engine) Sources() []types.ContextSource {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]types.ContextSource, 0, len(e.sources))
	for _, s := range e.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].SourceID < out[j].SourceID
	})
	return out
}

func applySystemPayload(state *types.SystemState, payload map[string]any) {
	if v, ok := toFloat(payload["cpu_usage_percent"]); ok {
		state.CPUUsagePercent = v
	}
	if v, ok := toFloat(payload["memory_usage_mb"]); ok && v >= 0 {
		state.MemoryUsageMB = uint64(v)
	}
	if v, ok := toFloat(payload["disk_usage_mb"]); ok && v >= 0 {
		state.DiskUsageMB = uint64(v)
	}
	if v, ok := toFloat(payload["battery_level"]); ok {
		state.BatteryLevel = &v
	}
	if v, ok := payload["power_source"].(string); ok {
		state.PowerSource = v
	}
	if v, ok := payload["network_connected"].(bool); ok {
		state.Network.Connected = v
	}
	if v, ok := payload["connection_type"].(string); ok {
		state.Network.ConnectionType = v
	}
}

func applyApplicationPayload(state *types.ContextState, payload map[string]any, now time.Time) {
	appID, _ := payload["app_id"].(string)
	if appID == "" {
		return
	}

	app := types.ApplicationInfo{
		AppID:     appID,
		StartTime: now,
	}
	if v, ok := payload["name"].(string); ok {
		app.Name = v
	}
	if v, ok := payload["window_title"].(string); ok {
		app.WindowTitle = v
	}
	if v, ok := toFloat(payload["process_id"]); ok {
		app.ProcessID = int(v)
	}
	app.Focused, _ = payload["focused"].(bool)

	for i := range state.ActiveApplications {
		if state.ActiveApplications[i].AppID == appID {
			app.StartTime = state.ActiveApplications[i].StartTime
			state.ActiveApplications[i] = app
			if app.Focused {
				unfocusOthers(state.ActiveApplications, appID)
			}
			return
		}
	}

	state.ActiveApplications = append(state.ActiveApplications, app)
	if app.Focused {
		unfocusOthers(state.ActiveApplications, appID)
	}
}

func unfocusOthers(apps []types.ApplicationInfo, focusedID string) {
	for i := range apps {
		if apps[i].AppID != focusedID {
			apps[i].Focused = false
		}
	}
}

// toFloat accepts the numeric types JSON decoding and callers commonly
// produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
