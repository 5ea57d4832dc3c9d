package store

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/pscheid92/donationpulse/internal/domain"
)

// Decode merges a stored document onto the defaults. It reports ok=false when
// the document is empty, null or an empty object, which callers treat as absent.
//
// Every top-level key the document defines replaces the default, except that an
// empty emoji map keeps the default emojis. Settings are flattened and
// backfilled with default keys. Running missions are reconciled against the
// master mission list.
func Decode(doc []byte, defaults domain.Defaults) (st *domain.State, ok bool, err error) {
	doc = bytes.TrimSpace(doc)
	if len(doc) == 0 || bytes.Equal(doc, []byte("null")) {
		return nil, false, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, false, fmt.Errorf("document is not a JSON object: %w", err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	st = defaults.State()
	targets := map[string]any{
		"donations":          &st.Donations,
		"streamers":          &st.Streamers,
		"missions":           &st.Missions,
		"runningMissions":    &st.RunningMissions,
		"missionAdjustments": &st.MissionAdjustments,
		"lastUpdated":        &st.LastUpdated,
	}
	for key, target := range targets {
		raw, present := fields[key]
		if !present || isNull(raw) {
			continue
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, false, fmt.Errorf("failed to decode %s: %w", key, err)
		}
	}

	if raw, present := fields["emojis"]; present && !isNull(raw) {
		var emojis map[string]string
		if err := json.Unmarshal(raw, &emojis); err != nil {
			return nil, false, fmt.Errorf("failed to decode emojis: %w", err)
		}
		if len(emojis) > 0 {
			st.Emojis = emojis
		}
	}

	if raw, present := fields["settings"]; present && !isNull(raw) {
		var settings domain.Settings
		if err := json.Unmarshal(raw, &settings); err != nil {
			return nil, false, fmt.Errorf("failed to decode settings: %w", err)
		}
		settings.Flatten()
		for k, v := range defaults.Settings {
			if _, set := settings[k]; !set {
				settings[k] = v
			}
		}
		st.Settings = settings
	}

	st.Normalize()
	st.ReconcileRunningMissions()
	return st, true, nil
}

// Encode renders the document the way it is written to every backend.
func Encode(st *domain.State) ([]byte, error) {
	return json.MarshalIndent(st, "", "  ")
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
