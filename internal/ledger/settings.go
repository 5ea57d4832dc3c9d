package ledger

import (
	"maps"
	"reflect"

	"github.com/pscheid92/donationpulse/internal/domain"
)

// MergeSettings overlays partial onto the current settings. It reports false,
// leaving the state untouched, when the merge would not change any value.
func MergeSettings(st *domain.State, partial domain.Settings) bool {
	merged := st.Settings.Clone()
	if merged == nil {
		merged = domain.Settings{}
	}
	maps.Copy(merged, partial.Clone())
	merged.Flatten()

	if reflect.DeepEqual(map[string]any(merged), map[string]any(st.Settings)) {
		return false
	}
	st.Settings = merged
	return true
}

// FixSettingsNesting repairs a settings map that picked up a nested "settings"
// object. It is idempotent and reports whether anything changed.
func FixSettingsNesting(st *domain.State) bool {
	if !st.Settings.IsNested() {
		return false
	}
	fixed := st.Settings.Clone()
	fixed.Flatten()
	st.Settings = fixed
	return true
}

// ForceReset restores the emoji map to the defaults, whatever it holds now.
func ForceReset(st *domain.State, defaults domain.Defaults) {
	st.Emojis = maps.Clone(defaults.Emojis)
	if st.Emojis == nil {
		st.Emojis = map[string]string{}
	}
}
