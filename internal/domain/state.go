package domain

import (
	"maps"
	"slices"
	"time"
)

// TimestampLayout is the ISO-8601 form used for every timestamp in the document.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Settings is the schema-less display settings map.
// Values are strings, numbers or booleans; unknown keys pass through untouched.
type Settings map[string]any

// settingsKey is the legacy nesting key that must never survive a write.
const settingsKey = "settings"

// State is the authoritative overlay document.
type State struct {
	Donations          []Donation          `json:"donations"`
	Streamers          []string            `json:"streamers"`
	Emojis             map[string]string   `json:"emojis"`
	Settings           Settings            `json:"settings"`
	Missions           []Mission           `json:"missions"`
	RunningMissions    []Mission           `json:"runningMissions"`
	MissionAdjustments []MissionAdjustment `json:"missionAdjustments"`
	LastUpdated        string              `json:"lastUpdated"`

	// Revision increases with every applied mutation. It orders saves and
	// broadcasts and is never persisted.
	Revision uint64 `json:"-"`
}

// Clone returns a deep copy that shares no mutable memory with s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	return &State{
		Donations:          slices.Clone(s.Donations),
		Streamers:          slices.Clone(s.Streamers),
		Emojis:             maps.Clone(s.Emojis),
		Settings:           s.Settings.Clone(),
		Missions:           slices.Clone(s.Missions),
		RunningMissions:    slices.Clone(s.RunningMissions),
		MissionAdjustments: slices.Clone(s.MissionAdjustments),
		LastUpdated:        s.LastUpdated,
		Revision:           s.Revision,
	}
}

// Normalize replaces nil collections with empty ones so the document always
// serializes arrays and objects, never null.
func (s *State) Normalize() {
	if s.Donations == nil {
		s.Donations = []Donation{}
	}
	if s.Streamers == nil {
		s.Streamers = []string{}
	}
	if s.Emojis == nil {
		s.Emojis = map[string]string{}
	}
	if s.Settings == nil {
		s.Settings = Settings{}
	}
	if s.Missions == nil {
		s.Missions = []Mission{}
	}
	if s.RunningMissions == nil {
		s.RunningMissions = []Mission{}
	}
	if s.MissionAdjustments == nil {
		s.MissionAdjustments = []MissionAdjustment{}
	}
}

// HasStreamer reports whether name is on the roster (exact match).
func (s *State) HasStreamer(name string) bool {
	return slices.Contains(s.Streamers, name)
}

// FindMission returns the index of the mission with id in the master list, or -1.
func (s *State) FindMission(id string) int {
	return slices.IndexFunc(s.Missions, func(m Mission) bool { return m.ID == id })
}

// ReconcileRunningMissions brings the running-missions view back in line with
// the master list: mirrored entries take the master's status and completion
// time, entries whose mission no longer exists are dropped.
func (s *State) ReconcileRunningMissions() {
	kept := s.RunningMissions[:0:0]
	for _, rm := range s.RunningMissions {
		idx := s.FindMission(rm.ID)
		if idx < 0 {
			continue
		}
		kept = append(kept, s.Missions[idx])
	}
	s.RunningMissions = kept
}

// Clone deep-copies the settings map, including nested maps and slices.
func (s Settings) Clone() Settings {
	if s == nil {
		return nil
	}
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[k] = cloneValue(inner)
		}
		return m
	case Settings:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return v
	}
}

// IsNested reports whether s carries the legacy nested "settings" key.
func (s Settings) IsNested() bool {
	_, ok := s[settingsKey]
	return ok
}

// Flatten promotes the contents of a nested "settings" object one level up and
// removes the nested key, repeating until the map is flat. Nested values win
// over top-level ones. A "settings" key holding a non-object is dropped. Flatten reports whether it
// changed anything.
func (s Settings) Flatten() bool {
	changed := false
	for {
		raw, present := s[settingsKey]
		if !present {
			return changed
		}
		delete(s, settingsKey)
		changed = true
		nested, ok := asObject(raw)
		if !ok {
			return changed
		}
		for k, v := range nested {
			s[k] = v
		}
	}
}

func asObject(v any) (map[string]any, bool) {
	switch v := v.(type) {
	case map[string]any:
		return v, true
	case Settings:
		return v, true
	default:
		return nil, false
	}
}
