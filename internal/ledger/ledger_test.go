package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pscheid92/donationpulse/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func newState() *domain.State {
	return domain.NewDefaults("Alice:🦊").State()
}

func withStreamers(t *testing.T, names ...string) *domain.State {
	t.Helper()
	st := newState()
	for _, n := range names {
		_, err := AddStreamer(st, n, "")
		require.NoError(t, err)
	}
	return st
}

// --- Donations ---

func TestAddDonation_Prepends(t *testing.T) {
	st := newState()

	first, err := AddDonation(st, DonationInput{Donor: "Bob", Streamer: "Alice", Type: "cash", Amount: "10"}, t0)
	require.NoError(t, err)
	second, err := AddDonation(st, DonationInput{Donor: "Eve", Streamer: "Alice", Type: "superchat", Amount: "5.5"}, t0.Add(time.Second))
	require.NoError(t, err)

	require.Len(t, st.Donations, 2)
	assert.Equal(t, second, st.Donations[0])
	assert.Equal(t, first, st.Donations[1])
	assert.Equal(t, "2026-03-14T18:00:00.000Z", first.Timestamp)
	assert.True(t, decimal.RequireFromString("5.5").Equal(second.Amount))
}

func TestAddDonation_UnknownTypeBecomesOther(t *testing.T) {
	st := newState()

	d, err := AddDonation(st, DonationInput{Donor: "Bob", Type: "crypto", Amount: "1"}, t0)
	require.NoError(t, err)
	assert.Equal(t, domain.DonationOther, d.Type)
}

func TestAddDonation_RejectsBadAmounts(t *testing.T) {
	for _, amount := range []Numeric{"", "abc", "-1"} {
		st := newState()
		_, err := AddDonation(st, DonationInput{Donor: "Bob", Amount: amount}, t0)
		assert.ErrorIs(t, err, domain.ErrValidation, "amount %q", amount)
		assert.Empty(t, st.Donations)
	}
}

func TestNumbersOutOfRangeAreRejected(t *testing.T) {
	huge := []Numeric{"1e50000000", "1e-50000000", "1234567890123456789012345678901", "1e31"}

	for _, n := range huge {
		st := withStreamers(t, "Alice")

		_, err := AddDonation(st, DonationInput{Donor: "Bob", Amount: n}, t0)
		assert.ErrorIs(t, err, domain.ErrValidation, "amount %q", n)
		assert.Empty(t, st.Donations)

		_, err = CreateMission(st, MissionInput{Streamer: "Alice", Target: n}, "m1", t0)
		assert.ErrorIs(t, err, domain.ErrValidation, "target %q", n)
		assert.Empty(t, st.Missions)
	}

	st := withStreamers(t, "Alice")
	_, err := CreateMission(st, MissionInput{Streamer: "Alice", Target: "10"}, "m1", t0)
	require.NoError(t, err)
	_, err = AddMissionAdjustment(st, "m1", AdjustmentInput{Amount: "-1e50000000"}, "a1", t0)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, st.MissionAdjustments)

	_, err = DecodeDonations(json.RawMessage(`[{"donor":"Bob","amount":1e50000000}]`))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNumbersWithinRangeAreAccepted(t *testing.T) {
	for _, n := range []Numeric{"0", "0.01", "123456789012.345678", "1e20", "100000000000000000000000000000"} {
		amount, err := ParseAmount(n)
		require.NoError(t, err, "amount %q", n)
		assert.LessOrEqual(t, len(amount.String()), maxNumericDigits+2)
	}
}

func TestAddDonation_SameInstantGetsDistinctTimestamps(t *testing.T) {
	st := newState()

	a, err := AddDonation(st, DonationInput{Donor: "A", Amount: "1"}, t0)
	require.NoError(t, err)
	b, err := AddDonation(st, DonationInput{Donor: "B", Amount: "1"}, t0)
	require.NoError(t, err)

	assert.NotEqual(t, a.Timestamp, b.Timestamp)
	assert.Equal(t, "2026-03-14T18:00:00.001Z", b.Timestamp)
}

func TestDeleteDonation(t *testing.T) {
	st := newState()
	d, err := AddDonation(st, DonationInput{Donor: "Bob", Amount: "3"}, t0)
	require.NoError(t, err)

	require.NoError(t, DeleteDonation(st, d.Timestamp))
	assert.Empty(t, st.Donations)

	err = DeleteDonation(st, d.Timestamp)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedgerSizeArithmetic(t *testing.T) {
	st := newState()
	var stamps []string
	for i := range 5 {
		d, err := AddDonation(st, DonationInput{Donor: "x", Amount: "1"}, t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		stamps = append(stamps, d.Timestamp)
	}
	require.NoError(t, DeleteDonation(st, stamps[1]))
	require.NoError(t, DeleteDonation(st, stamps[3]))
	assert.Len(t, st.Donations, 3)

	ReplaceDonations(st, []domain.Donation{{Donor: "y", Timestamp: "z"}})
	assert.Len(t, st.Donations, 1)

	ReplaceDonations(st, nil)
	assert.NotNil(t, st.Donations)
	assert.Empty(t, st.Donations)
}

func TestDecodeDonations(t *testing.T) {
	got, err := DecodeDonations(json.RawMessage(`[{"donor":"Bob","amount":4,"time":"2026-01-01T00:00:00.000Z"}]`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2026-01-01T00:00:00.000Z", got[0].Timestamp)

	_, err = DecodeDonations(json.RawMessage(`{"donor":"Bob"}`))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNumeric_AcceptsNumberAndString(t *testing.T) {
	var in DonationInput
	require.NoError(t, json.Unmarshal([]byte(`{"amount": 12.5}`), &in))
	amount, err := ParseAmount(in.Amount)
	require.NoError(t, err)
	assert.Equal(t, "12.5", amount.String())

	require.NoError(t, json.Unmarshal([]byte(`{"amount": " 7 "}`), &in))
	amount, err = ParseAmount(in.Amount)
	require.NoError(t, err)
	assert.Equal(t, "7", amount.String())
}

// --- Streamers ---

func TestAddStreamer(t *testing.T) {
	st := newState()

	name, err := AddStreamer(st, "  Bob  ", "🐻")
	require.NoError(t, err)
	assert.Equal(t, "Bob", name)
	assert.Equal(t, []string{"Bob"}, st.Streamers)
	assert.Equal(t, "🐻", st.Emojis["Bob"])

	_, err = AddStreamer(st, "Bob", "")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Len(t, st.Streamers, 1)

	_, err = AddStreamer(st, "   ", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAddStreamer_CaseSensitive(t *testing.T) {
	st := withStreamers(t, "bob")

	_, err := AddStreamer(st, "Bob", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "Bob"}, st.Streamers)
}

func TestRemoveStreamer_RemovesEmoji(t *testing.T) {
	st := newState()
	_, err := AddStreamer(st, "Big Bob", "🐻")
	require.NoError(t, err)

	name, err := RemoveStreamer(st, "Big%20Bob")
	require.NoError(t, err)
	assert.Equal(t, "Big Bob", name)
	assert.Empty(t, st.Streamers)
	assert.NotContains(t, st.Emojis, "Big Bob")

	_, err = RemoveStreamer(st, "Big Bob")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// --- Missions ---

func TestCreateMission_Validation(t *testing.T) {
	st := withStreamers(t, "Alice")

	tests := []struct {
		name string
		in   MissionInput
		want error
	}{
		{"missing streamer", MissionInput{Target: "10"}, domain.ErrValidation},
		{"missing target", MissionInput{Streamer: "Alice"}, domain.ErrValidation},
		{"zero target", MissionInput{Streamer: "Alice", Target: "0"}, domain.ErrValidation},
		{"unknown streamer", MissionInput{Streamer: "Nobody", Target: "10"}, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateMission(st, tt.in, "m1", t0)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, st.Missions)
		})
	}
}

func TestCreateMission_ConflictWhileRunning(t *testing.T) {
	st := withStreamers(t, "Alice")

	m, err := CreateMission(st, MissionInput{Streamer: " Alice ", Target: "100", Description: "Dye hair"}, "m1", t0)
	require.NoError(t, err)
	assert.Equal(t, domain.MissionRunning, m.Status)
	assert.Equal(t, "Alice", m.Streamer)
	assert.Equal(t, []domain.Mission{m}, st.Missions)
	assert.Equal(t, []domain.Mission{m}, st.RunningMissions)

	_, err = CreateMission(st, MissionInput{Streamer: "Alice", Target: "50"}, "m2", t0)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Len(t, st.Missions, 1)
}

func TestCompleteMission_MirrorsIntoRunningView(t *testing.T) {
	st := withStreamers(t, "Alice")
	_, err := CreateMission(st, MissionInput{Streamer: "Alice", Target: "100"}, "m1", t0)
	require.NoError(t, err)

	done, err := CompleteMission(st, "m1", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.MissionCompleted, done.Status)
	assert.Equal(t, "2026-03-14T19:00:00.000Z", done.CompletedTime)
	assert.Equal(t, done, st.Missions[0])
	require.Len(t, st.RunningMissions, 1)
	assert.Equal(t, done, st.RunningMissions[0])

	_, err = CompleteMission(st, "m1", t0.Add(2*time.Hour))
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, "2026-03-14T19:00:00.000Z", st.Missions[0].CompletedTime)

	_, err = CompleteMission(st, "missing", t0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCompleteMission_AllowsNewMission(t *testing.T) {
	st := withStreamers(t, "Alice")
	_, err := CreateMission(st, MissionInput{Streamer: "Alice", Target: "100"}, "m1", t0)
	require.NoError(t, err)
	_, err = CompleteMission(st, "m1", t0)
	require.NoError(t, err)

	_, err = CreateMission(st, MissionInput{Streamer: "Alice", Target: "20"}, "m2", t0)
	assert.NoError(t, err)
}

func TestDeleteMission(t *testing.T) {
	st := withStreamers(t, "Alice")
	_, err := CreateMission(st, MissionInput{Streamer: "Alice", Target: "100"}, "m1", t0)
	require.NoError(t, err)

	require.NoError(t, DeleteMission(st, "m1"))
	assert.Empty(t, st.Missions)
	assert.Empty(t, st.RunningMissions)

	assert.ErrorIs(t, DeleteMission(st, "m1"), domain.ErrNotFound)
}

func TestProgress_CountsWindowAndIgnoresAdjustments(t *testing.T) {
	st := withStreamers(t, "Alice", "Bob")
	_, err := AddDonation(st, DonationInput{Streamer: "Alice", Amount: "500"}, t0.Add(-time.Minute))
	require.NoError(t, err)
	_, err = CreateMission(st, MissionInput{Streamer: "Alice", Target: "40"}, "m1", t0)
	require.NoError(t, err)
	_, err = AddDonation(st, DonationInput{Streamer: "Alice", Amount: "10"}, t0.Add(time.Minute))
	require.NoError(t, err)
	_, err = AddDonation(st, DonationInput{Streamer: "Bob", Amount: "99"}, t0.Add(time.Minute))
	require.NoError(t, err)
	_, err = AddMissionAdjustment(st, "m1", AdjustmentInput{Amount: "-30", Reason: "refund"}, "a1", t0.Add(time.Minute))
	require.NoError(t, err)

	p, err := Progress(st, "m1")
	require.NoError(t, err)
	assert.Equal(t, "10", p.Raised.String())
	assert.Equal(t, "25", p.Percent.String())
	assert.False(t, p.Reached)

	_, err = CompleteMission(st, "m1", t0.Add(2*time.Minute))
	require.NoError(t, err)
	_, err = AddDonation(st, DonationInput{Streamer: "Alice", Amount: "100"}, t0.Add(time.Hour))
	require.NoError(t, err)

	p, err = Progress(st, "m1")
	require.NoError(t, err)
	assert.Equal(t, "10", p.Raised.String())
}

func TestProgress_CapsAtHundred(t *testing.T) {
	st := withStreamers(t, "Alice")
	_, err := CreateMission(st, MissionInput{Streamer: "Alice", Target: "10"}, "m1", t0)
	require.NoError(t, err)
	_, err = AddDonation(st, DonationInput{Streamer: "Alice", Amount: "25"}, t0)
	require.NoError(t, err)

	p, err := Progress(st, "m1")
	require.NoError(t, err)
	assert.Equal(t, "100", p.Percent.String())
	assert.True(t, p.Reached)
}

func TestAddMissionAdjustment(t *testing.T) {
	st := withStreamers(t, "Alice")

	_, err := AddMissionAdjustment(st, "m1", AdjustmentInput{Amount: "5"}, "a1", t0)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = CreateMission(st, MissionInput{Streamer: "Alice", Target: "10"}, "m1", t0)
	require.NoError(t, err)
	adj, err := AddMissionAdjustment(st, "m1", AdjustmentInput{Amount: "-2.5", Reason: " typo "}, "a1", t0)
	require.NoError(t, err)
	assert.Equal(t, "typo", adj.Reason)
	assert.Equal(t, []domain.MissionAdjustment{adj}, st.MissionAdjustments)
}

// --- Settings ---

func TestMergeSettings_NoOpAndChange(t *testing.T) {
	st := newState()
	before := st.Settings.Clone()

	assert.False(t, MergeSettings(st, domain.Settings{"fontSize": 28.0}))
	assert.Equal(t, before, st.Settings)

	assert.True(t, MergeSettings(st, domain.Settings{"fontSize": 32.0, "theme": "dark"}))
	assert.Equal(t, 32.0, st.Settings["fontSize"])
	assert.Equal(t, "dark", st.Settings["theme"])
	assert.Equal(t, "Donation Board", st.Settings["titleText"])
}

func TestMergeSettings_FlattensNestedPartial(t *testing.T) {
	st := newState()

	partial, err := DecodeSettings(json.RawMessage(`{"settings":{"opacity":0.5,"settings":{"showTitle":false}}}`))
	require.NoError(t, err)
	assert.True(t, MergeSettings(st, partial))

	assert.False(t, st.Settings.IsNested())
	assert.Equal(t, 0.5, st.Settings["opacity"])
	assert.Equal(t, false, st.Settings["showTitle"])
}

func TestDecodeSettings_Rejects(t *testing.T) {
	for _, raw := range []string{`[]`, `"x"`, `{"settings": 3}`, `nope`} {
		_, err := DecodeSettings(json.RawMessage(raw))
		assert.ErrorIs(t, err, domain.ErrValidation, raw)
	}
}

func TestFixSettingsNesting_Idempotent(t *testing.T) {
	st := newState()
	st.Settings["settings"] = map[string]any{
		"fontSize": 40.0,
		"settings": map[string]any{"titleText": "Deep"},
	}

	assert.True(t, FixSettingsNesting(st))
	assert.Equal(t, 40.0, st.Settings["fontSize"])
	assert.Equal(t, "Deep", st.Settings["titleText"])
	assert.False(t, st.Settings.IsNested())

	fixed := st.Settings.Clone()
	assert.False(t, FixSettingsNesting(st))
	assert.Equal(t, fixed, st.Settings)
}

func TestForceReset(t *testing.T) {
	defaults := domain.NewDefaults("Alice:🦊")
	st := defaults.State()
	st.Emojis["Alice"] = "🐍"
	st.Emojis["Zed"] = "⚡"

	ForceReset(st, defaults)
	assert.Equal(t, map[string]string{"Alice": "🦊"}, st.Emojis)

	st.Emojis["Alice"] = "x"
	assert.Equal(t, "🦊", defaults.Emojis["Alice"])
}

// --- End to end ---

func TestScenario_DonationLifecycle(t *testing.T) {
	st := newState()
	_, err := AddStreamer(st, "Alice", "🦊")
	require.NoError(t, err)

	d, err := AddDonation(st, DonationInput{Donor: "Bob", Streamer: "Alice", Type: "cash", Amount: "20"}, t0)
	require.NoError(t, err)
	_, err = AddDonation(st, DonationInput{Donor: "Mallory", Streamer: "Alice", Amount: "-5"}, t0.Add(time.Second))
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = AddDonation(st, DonationInput{Donor: "Carol", Streamer: "Alice", Type: "platform-gift", Amount: "5"}, t0.Add(time.Second))
	require.NoError(t, err)

	require.NoError(t, DeleteDonation(st, d.Timestamp))
	require.Len(t, st.Donations, 1)
	assert.Equal(t, "Carol", st.Donations[0].Donor)
}

func TestScenario_MissionLifecycle(t *testing.T) {
	st := newState()
	_, err := AddStreamer(st, "Alice", "")
	require.NoError(t, err)
	m, err := CreateMission(st, MissionInput{Streamer: "Alice", Target: "30"}, "m1", t0)
	require.NoError(t, err)

	_, err = AddDonation(st, DonationInput{Donor: "Bob", Streamer: "Alice", Amount: "30"}, t0.Add(time.Second))
	require.NoError(t, err)
	p, err := Progress(st, m.ID)
	require.NoError(t, err)
	require.True(t, p.Reached)

	_, err = CompleteMission(st, m.ID, t0.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, DeleteMission(st, m.ID))
	assert.Empty(t, st.Missions)
	assert.Empty(t, st.RunningMissions)
}
