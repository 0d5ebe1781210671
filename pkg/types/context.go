package types

import (
	"time"

	"github.com/google/uuid"
)

// TimeOfDay is a coarse bucket of the local clock, used by the environment
// context and the time-based predictor.
type TimeOfDay string

const (
	EarlyMorning TimeOfDay = "early_morning" // 5-8
	Morning      TimeOfDay = "morning"       // 8-12
	Afternoon    TimeOfDay = "afternoon"     // 12-17
	Evening      TimeOfDay = "evening"       // 17-21
	Night        TimeOfDay = "night"         // 21-24
	LateNight    TimeOfDay = "late_night"    // 0-5
)

// TimeOfDayAt buckets the hour of t.
func TimeOfDayAt(t time.Time) TimeOfDay {
	switch h := t.Hour(); {
	case h >= 5 && h < 8:
		return EarlyMorning
	case h >= 8 && h < 12:
		return Morning
	case h >= 12 && h < 17:
		return Afternoon
	case h >= 17 && h < 21:
		return Evening
	case h >= 21:
		return Night
	default:
		return LateNight
	}
}

// ContextSourceType identifies the kind of feed a context source provides.
type ContextSourceType string

const (
	SourceApplication ContextSourceType = "application"
	SourceSystem      ContextSourceType = "system"
	SourceSensor      ContextSourceType = "sensor"
	SourceBrowser     ContextSourceType = "browser"
	SourceCalendar    ContextSourceType = "calendar"
	SourceEmail       ContextSourceType = "email"
	SourceChat        ContextSourceType = "chat"
	SourceFile        ContextSourceType = "file"
	SourceLocation    ContextSourceType = "location"
	SourceBiometric   ContextSourceType = "biometric"
)

// ContextSource is a named, prioritized input feed. Sources are registered
// once and refreshed repeatedly; they weight context fusion but hold no
// authoritative state of their own.
type ContextSource struct {
	SourceID    string            `json:"source_id"`
	SourceType  ContextSourceType `json:"source_type"`
	Name        string            `json:"name"`
	Enabled     bool              `json:"enabled"`
	Priority    int               `json:"priority"`
	LastData    map[string]any    `json:"last_data,omitempty"`
	LastUpdated time.Time         `json:"last_updated"`
}

// ApplicationInfo describes one running application in the context snapshot.
type ApplicationInfo struct {
	AppID       string    `json:"app_id"`
	Name        string    `json:"name"`
	WindowTitle string    `json:"window_title,omitempty"`
	ProcessID   int       `json:"process_id,omitempty"`
	Focused     bool      `json:"focused"`
	StartTime   time.Time `json:"start_time"`
}

// NetworkStatus is the connectivity portion of the system state.
type NetworkStatus struct {
	Connected      bool     `json:"connected"`
	ConnectionType string   `json:"connection_type"`
	SignalStrength *float64 `json:"signal_strength,omitempty"`
	BandwidthMbps  *float64 `json:"bandwidth_mbps,omitempty"`
}

// SystemState is a CPU/memory/battery/network snapshot.
type SystemState struct {
	CPUUsagePercent float64       `json:"cpu_usage_percent"`
	MemoryUsageMB   uint64        `json:"memory_usage_mb"`
	DiskUsageMB     uint64        `json:"disk_usage_mb"`
	BatteryLevel    *float64      `json:"battery_level,omitempty"`
	PowerSource     string        `json:"power_source"`
	Network         NetworkStatus `json:"network"`
	ActiveDevices   []string      `json:"active_devices,omitempty"`
}

// LocationData is an optional geographic fix.
type LocationData struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Address   string  `json:"address,omitempty"`
}

// AmbientConditions describes the physical environment when sensors report it.
type AmbientConditions struct {
	TemperatureCelsius float64 `json:"temperature_celsius"`
	HumidityPercent    float64 `json:"humidity_percent"`
	NoiseLevelDB       float64 `json:"noise_level_db"`
	LightLevelLux      float64 `json:"light_level_lux"`
}

// NearbyDevice is a device observed in proximity.
type NearbyDevice struct {
	DeviceID       string    `json:"device_id"`
	Name           string    `json:"name"`
	DeviceType     string    `json:"device_type"`
	SignalStrength float64   `json:"signal_strength"`
	LastSeen       time.Time `json:"last_seen"`
}

// EnvironmentContext captures when and where the session is happening.
type EnvironmentContext struct {
	Location      *LocationData      `json:"location,omitempty"`
	TimeOfDay     TimeOfDay          `json:"time_of_day"`
	DayOfWeek     time.Weekday       `json:"day_of_week"`
	Ambient       *AmbientConditions `json:"ambient,omitempty"`
	NearbyDevices []NearbyDevice     `json:"nearby_devices,omitempty"`
}

// BreakPeriod is a recurring break inside the configured work hours.
type BreakPeriod struct {
	StartHour int    `json:"start_hour"`
	EndHour   int    `json:"end_hour"`
	Kind      string `json:"kind"`
}

// WorkHours is the user's working schedule.
type WorkHours struct {
	StartHour int            `json:"start_hour"`
	EndHour   int            `json:"end_hour"`
	WorkDays  []time.Weekday `json:"work_days"`
	Breaks    []BreakPeriod  `json:"breaks,omitempty"`
}

// FocusPreferences configures focus and distraction handling.
type FocusPreferences struct {
	DeepWorkSessionMinutes int    `json:"deep_work_session_minutes"`
	BreakDurationMinutes   int    `json:"break_duration_minutes"`
	PomodoroEnabled        bool   `json:"pomodoro_enabled"`
	DistractionBlocking    bool   `json:"distraction_blocking"`
	BackgroundMusic        string `json:"background_music,omitempty"`
}

// CommunicationStyle tunes how the assistant addresses the user. The
// preferred tone list doubles as the tag vocabulary the relevance scorer
// matches against.
type CommunicationStyle struct {
	Formality     string   `json:"formality"`
	Verbosity     string   `json:"verbosity"`
	PreferredTone []string `json:"preferred_tone,omitempty"`
	ResponseSpeed string   `json:"response_speed"`
}

// PrivacySettings gates what the platform may observe and retain.
type PrivacySettings struct {
	LocationTracking      bool `json:"location_tracking"`
	ActivityTracking      bool `json:"activity_tracking"`
	BiometricTracking     bool `json:"biometric_tracking"`
	ConversationRecording bool `json:"conversation_recording"`
	ScreenshotAnalysis    bool `json:"screenshot_analysis"`
	DataRetentionDays     int  `json:"data_retention_days"`
}

// UserPreferences groups the per-user settings that shape fusion and scoring.
type UserPreferences struct {
	Language      string             `json:"language"`
	Timezone      string             `json:"timezone"`
	WorkHours     WorkHours          `json:"work_hours"`
	Focus         FocusPreferences   `json:"focus"`
	Communication CommunicationStyle `json:"communication"`
	Privacy       PrivacySettings    `json:"privacy"`
}

// ContextState is the current best-known situational state for one session.
// There is one logical instance per active session; the fusion engine owns
// it and hands out copies.
type ContextState struct {
	SessionID          string             `json:"session_id"`
	UserID             string             `json:"user_id"`
	CurrentTask        string             `json:"current_task,omitempty"`
	ActiveApplications []ApplicationInfo  `json:"active_applications,omitempty"`
	SystemState        SystemState        `json:"system_state"`
	Environment        EnvironmentContext `json:"environment"`
	UserPreferences    UserPreferences    `json:"user_preferences"`
	ShortTermMemory    []MemoryItem       `json:"short_term_memory,omitempty"`
	LastUpdated        time.Time          `json:"last_updated"`
}

// NewContextState returns a session context with defaults: a fresh session
// id, English/UTC preferences, a 9-17 Mon-Fri work week, and the time-of-day
// and weekday derived from now.
func NewContextState(userID string, now time.Time) ContextState {
	if userID == "" {
		userID = "default"
	}
	return ContextState{
		SessionID: uuid.NewString(),
		UserID:    userID,
		SystemState: SystemState{
			PowerSource: "ac",
			Network:     NetworkStatus{ConnectionType: "unknown"},
		},
		Environment: EnvironmentContext{
			TimeOfDay: TimeOfDayAt(now),
			DayOfWeek: now.Weekday(),
		},
		UserPreferences: UserPreferences{
			Language: "en",
			Timezone: "UTC",
			WorkHours: WorkHours{
				StartHour: 9,
				EndHour:   17,
				WorkDays: []time.Weekday{
					time.Monday, time.Tuesday, time.Wednesday,
					time.Thursday, time.Friday,
				},
				Breaks: []BreakPeriod{
					{StartHour: 12, EndHour: 13, Kind: "lunch"},
				},
			},
			Focus: FocusPreferences{
				DeepWorkSessionMinutes: 25,
				BreakDurationMinutes:   5,
			},
			Communication: CommunicationStyle{
				Formality:     "professional",
				Verbosity:     "balanced",
				PreferredTone: []string{"helpful", "friendly"},
				ResponseSpeed: "normal",
			},
			Privacy: PrivacySettings{
				ActivityTracking:  true,
				DataRetentionDays: 365,
			},
		},
		LastUpdated: now,
	}
}

// Clone returns a deep copy of the context state so readers never alias the
// engine's live snapshot.
func (c *ContextState) Clone() ContextState {
	out := *c
	if c.ActiveApplications != nil {
		out.ActiveApplications = make([]ApplicationInfo, len(c.ActiveApplications))
		copy(out.ActiveApplications, c.ActiveApplications)
	}
	if c.SystemState.ActiveDevices != nil {
		out.SystemState.ActiveDevices = make([]string, len(c.SystemState.ActiveDevices))
		copy(out.SystemState.ActiveDevices, c.SystemState.ActiveDevices)
	}
	if c.Environment.NearbyDevices != nil {
		out.Environment.NearbyDevices = make([]NearbyDevice, len(c.Environment.NearbyDevices))
		copy(out.Environment.NearbyDevices, c.Environment.NearbyDevices)
	}
	if wd := c.UserPreferences.WorkHours.WorkDays; wd != nil {
		out.UserPreferences.WorkHours.WorkDays = make([]time.Weekday, len(wd))
		copy(out.UserPreferences.WorkHours.WorkDays, wd)
	}
	if br := c.UserPreferences.WorkHours.Breaks; br != nil {
		out.UserPreferences.WorkHours.Breaks = make([]BreakPeriod, len(br))
		copy(out.UserPreferences.WorkHours.Breaks, br)
	}
	if pt := c.UserPreferences.Communication.PreferredTone; pt != nil {
		out.UserPreferences.Communication.PreferredTone = make([]string, len(pt))
		copy(out.UserPreferences.Communication.PreferredTone, pt)
	}
	if c.ShortTermMemory != nil {
		out.ShortTermMemory = make([]MemoryItem, len(c.ShortTermMemory))
		for i := range c.ShortTermMemory {
			out.ShortTermMemory[i] = *c.ShortTermMemory[i].Clone()
		}
	}
	return out
}
