package ledger

import (
	"net/url"
	"slices"
	"strings"

	"github.com/pscheid92/donationpulse/internal/domain"
)

// AddStreamer appends name to the roster and sets its emoji when one is given.
func AddStreamer(st *domain.State, name, emoji string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.Invalid("streamer name is required")
	}
	if st.HasStreamer(name) {
		return "", domain.Conflict("streamer already exists")
	}

	st.Streamers = append(st.Streamers, name)
	if emoji = strings.TrimSpace(emoji); emoji != "" {
		if st.Emojis == nil {
			st.Emojis = map[string]string{}
		}
		st.Emojis[name] = emoji
	}
	return name, nil
}

// RemoveStreamer drops name (URL-encoded or plain) from the roster together
// with its emoji entry.
func RemoveStreamer(st *domain.State, name string) (string, error) {
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	idx := slices.Index(st.Streamers, name)
	if idx < 0 {
		return "", domain.NotFound("streamer not found")
	}
	st.Streamers = slices.Delete(slices.Clone(st.Streamers), idx, idx+1)
	delete(st.Emojis, name)
	return name, nil
}
