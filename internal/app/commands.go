package app

import (
	"context"
	"maps"
	"time"

	"github.com/pscheid92/donationpulse/internal/domain"
	"github.com/pscheid92/donationpulse/internal/ledger"
)

func (s *Service) AddDonation(ctx context.Context, in ledger.DonationInput) (domain.Donation, error) {
	var d domain.Donation
	err := s.mutate(ctx, mutateCmd{
		name:  "add_donation",
		event: domain.EventDataUpdate,
		apply: func(st *domain.State, now time.Time) (bool, error) {
			var err error
			d, err = ledger.AddDonation(st, in, now)
			return err == nil, err
		},
	})
	return d, err
}

func (s *Service) DeleteDonation(ctx context.Context, timestamp string) error {
	return s.mutate(ctx, mutateCmd{
		name:  "delete_donation",
		event: domain.EventDataUpdate,
		apply: func(st *domain.State, _ time.Time) (bool, error) {
			err := ledger.DeleteDonation(st, timestamp)
			return err == nil, err
		},
	})
}

// ReplaceDonations swaps the whole ledger for donations.
func (s *Service) ReplaceDonations(ctx context.Context, donations []domain.Donation) error {
	return s.mutate(ctx, mutateCmd{
		name:  "replace_donations",
		event: domain.EventDataUpdate,
		apply: func(st *domain.State, _ time.Time) (bool, error) {
			ledger.ReplaceDonations(st, donations)
			return true, nil
		},
	})
}

func (s *Service) AddStreamer(ctx context.Context, name, emoji string) (string, error) {
	var added string
	err := s.mutate(ctx, mutateCmd{
		name:  "add_streamer",
		event: domain.EventDataUpdate,
		apply: func(st *domain.State, _ time.Time) (bool, error) {
			var err error
			added, err = ledger.AddStreamer(st, name, emoji)
			return err == nil, err
		},
	})
	return added, err
}

func (s *Service) RemoveStreamer(ctx context.Context, name string) (string, error) {
	var removed string
	err := s.mutate(ctx, mutateCmd{
		name:  "remove_streamer",
		event: domain.EventDataUpdate,
		apply: func(st *domain.State, _ time.Time) (bool, error) {
			var err error
			removed, err = ledger.RemoveStreamer(st, name)
			return err == nil, err
		},
	})
	return removed, err
}

func (s *Service) CreateMission(ctx context.Context, in ledger.MissionInput) (domain.Mission, error) {
	var m domain.Mission
	id := s.newID()
	err := s.mutate(ctx, mutateCmd{
		name:  "create_mission",
		event: domain.EventDataUpdate,
		apply: func(st *domain.State, now time.Time) (bool, error) {
			var err error
			m, err = ledger.CreateMission(st, in, id, now)
			return err == nil, err
		},
	})
	return m, err
}

func (s *Service) CompleteMission(ctx context.Context, id string) (domain.Mission, error) {
	var m domain.Mission
	err := s.mutate(ctx, mutateCmd{
		name:  "complete_mission",
		event: domain.EventDataUpdate,
		apply: func(st *domain.State, now time.Time) (bool, error) {
			var err error
			m, err = ledger.CompleteMission(st, id, now)
			return err == nil, err
		},
	})
	return m, err
}

func (s *Service) DeleteMission(ctx context.Context, id string) error {
	return s.mutate(ctx, mutateCmd{
		name:  "delete_mission",
		event: domain.EventDataUpdate,
		apply: func(st *domain.State, _ time.Time) (bool, error) {
			err := ledger.DeleteMission(st, id)
			return err == nil, err
		},
	})
}

func (s *Service) AddMissionAdjustment(ctx context.Context, missionID string, in ledger.AdjustmentInput) (domain.MissionAdjustment, error) {
	var adj domain.MissionAdjustment
	id := s.newID()
	err := s.mutate(ctx, mutateCmd{
		name:  "add_mission_adjustment",
		event: domain.EventDataUpdate,
		apply: func(st *domain.State, now time.Time) (bool, error) {
			var err error
			adj, err = ledger.AddMissionAdjustment(st, missionID, in, id, now)
			return err == nil, err
		},
	})
	return adj, err
}

// MergeSettings applies partial and returns the resulting settings. changed is
// false when the merge was a no-op; nothing is saved or broadcast then.
// lastUpdated is left alone either way.
func (s *Service) MergeSettings(ctx context.Context, partial domain.Settings) (settings domain.Settings, changed bool, err error) {
	err = s.mutate(ctx, mutateCmd{
		name:          "merge_settings",
		event:         domain.EventSettingsUpdate,
		keepTimestamp: true,
		apply: func(st *domain.State, _ time.Time) (bool, error) {
			changed = ledger.MergeSettings(st, partial)
			settings = st.Settings.Clone()
			return changed, nil
		},
	})
	return settings, changed, err
}

// FixSettingsNesting flattens a nested settings object left by old clients.
func (s *Service) FixSettingsNesting(ctx context.Context) (settings domain.Settings, changed bool, err error) {
	err = s.mutate(ctx, mutateCmd{
		name:          "fix_settings_nesting",
		event:         domain.EventSettingsUpdate,
		keepTimestamp: true,
		apply: func(st *domain.State, _ time.Time) (bool, error) {
			changed = ledger.FixSettingsNesting(st)
			settings = st.Settings.Clone()
			return changed, nil
		},
	})
	return settings, changed, err
}

// ForceReset restores the default emoji map.
func (s *Service) ForceReset(ctx context.Context) (map[string]string, error) {
	var emojis map[string]string
	err := s.mutate(ctx, mutateCmd{
		name:  "force_reset",
		event: domain.EventDataUpdate,
		apply: func(st *domain.State, _ time.Time) (bool, error) {
			ledger.ForceReset(st, s.defaults)
			emojis = maps.Clone(st.Emojis)
			return true, nil
		},
	})
	return emojis, err
}

// Snapshot returns a deep copy of the current state.
func (s *Service) Snapshot(ctx context.Context) (*domain.State, error) {
	var st *domain.State
	err := s.read(ctx, func(live *domain.State) error {
		st = live.Clone()
		return nil
	})
	return st, err
}

func (s *Service) MissionProgress(ctx context.Context, id string) (domain.MissionProgress, error) {
	var p domain.MissionProgress
	err := s.read(ctx, func(live *domain.State) error {
		var err error
		p, err = ledger.Progress(live, id)
		return err
	})
	return p, err
}
