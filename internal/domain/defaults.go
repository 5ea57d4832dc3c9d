package domain

import (
	"maps"
	"strings"
)

// Defaults seeds a fresh state and backfills whatever a stored document omits.
type Defaults struct {
	Settings Settings
	Emojis   map[string]string
}

// NewDefaults returns the built-in defaults. extraEmojis ("name:glyph,name:glyph")
// adds to or overrides the built-in emoji map.
func NewDefaults(extraEmojis string) Defaults {
	d := Defaults{
		Settings: Settings{
			"fontSize":    28.0,
			"strokeWidth": 2.0,
			"opacity":     0.85,
			"titleText":   "Donation Board",
			"showTitle":   true,
			"showEmojis":  true,
			"showTotals":  true,
		},
		Emojis: map[string]string{},
	}
	for name, glyph := range ParseEmojiList(extraEmojis) {
		d.Emojis[name] = glyph
	}
	return d
}

// ParseEmojiList parses "name:glyph" pairs separated by commas. Malformed pairs are skipped.
func ParseEmojiList(s string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(s, ",") {
		name, glyph, ok := strings.Cut(pair, ":")
		name, glyph = strings.TrimSpace(name), strings.TrimSpace(glyph)
		if !ok || name == "" || glyph == "" {
			continue
		}
		out[name] = glyph
	}
	return out
}

// State returns a new state built from the defaults alone.
func (d Defaults) State() *State {
	s := &State{
		Settings: d.Settings.Clone(),
		Emojis:   maps.Clone(d.Emojis),
	}
	s.Normalize()
	return s
}
