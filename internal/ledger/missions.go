package ledger

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/pscheid92/donationpulse/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// MissionInput is the payload of a create-mission command.
type MissionInput struct {
	Streamer    string  `json:"streamer"`
	Target      Numeric `json:"target"`
	Description string  `json:"description"`
}

// AdjustmentInput is the payload of a mission adjustment.
type AdjustmentInput struct {
	Amount Numeric `json:"amount"`
	Reason string  `json:"reason"`
}

// CreateMission starts a running mission for a rostered streamer. A streamer
// has at most one running mission at a time.
func CreateMission(st *domain.State, in MissionInput, id string, now time.Time) (domain.Mission, error) {
	streamer := strings.TrimSpace(in.Streamer)
	if streamer == "" {
		return domain.Mission{}, domain.Invalid("streamer is required")
	}
	target, ok, err := in.Target.Decimal()
	if errors.Is(err, errOutOfRange) {
		return domain.Mission{}, err
	}
	if err != nil || !ok {
		return domain.Mission{}, domain.Invalid("target is required")
	}
	if !target.IsPositive() {
		return domain.Mission{}, domain.Invalid("target must be greater than zero")
	}
	if !st.HasStreamer(streamer) {
		return domain.Mission{}, domain.Invalid("unknown streamer")
	}
	running := slices.ContainsFunc(st.Missions, func(m domain.Mission) bool {
		return m.Streamer == streamer && m.Status == domain.MissionRunning
	})
	if running {
		return domain.Mission{}, domain.Conflict("streamer already has a running mission")
	}

	m := domain.Mission{
		ID:          id,
		Streamer:    streamer,
		Target:      target,
		Description: strings.TrimSpace(in.Description),
		Status:      domain.MissionRunning,
		StartTime:   domain.FormatTimestamp(now),
	}
	st.Missions = append(st.Missions, m)
	st.RunningMissions = append(st.RunningMissions, m)
	return m, nil
}

// CompleteMission marks a running mission completed on the master list and on
// its running-missions mirror, which is kept.
func CompleteMission(st *domain.State, id string, now time.Time) (domain.Mission, error) {
	idx := st.FindMission(id)
	if idx < 0 {
		return domain.Mission{}, domain.NotFound("mission not found")
	}
	if st.Missions[idx].Status == domain.MissionCompleted {
		return domain.Mission{}, domain.Conflict("mission already completed")
	}

	m := st.Missions[idx]
	m.Status = domain.MissionCompleted
	m.CompletedTime = domain.FormatTimestamp(now)

	st.Missions = slices.Clone(st.Missions)
	st.Missions[idx] = m
	st.RunningMissions = slices.Clone(st.RunningMissions)
	for i := range st.RunningMissions {
		if st.RunningMissions[i].ID == id {
			st.RunningMissions[i] = m
		}
	}
	return m, nil
}

// DeleteMission removes a mission from the master list and the running view.
func DeleteMission(st *domain.State, id string) error {
	if st.FindMission(id) < 0 {
		return domain.NotFound("mission not found")
	}
	byID := func(m domain.Mission) bool { return m.ID == id }
	st.Missions = slices.DeleteFunc(slices.Clone(st.Missions), byID)
	st.RunningMissions = slices.DeleteFunc(slices.Clone(st.RunningMissions), byID)
	return nil
}

// AddMissionAdjustment records a manual correction against a mission. The
// amount may be negative; adjustments never count towards progress.
func AddMissionAdjustment(st *domain.State, missionID string, in AdjustmentInput, id string, now time.Time) (domain.MissionAdjustment, error) {
	if st.FindMission(missionID) < 0 {
		return domain.MissionAdjustment{}, domain.NotFound("mission not found")
	}
	amount, ok, err := in.Amount.Decimal()
	if errors.Is(err, errOutOfRange) {
		return domain.MissionAdjustment{}, err
	}
	if err != nil || !ok {
		return domain.MissionAdjustment{}, domain.Invalid("amount must be a number")
	}

	adj := domain.MissionAdjustment{
		ID:        id,
		MissionID: missionID,
		Amount:    amount,
		Reason:    strings.TrimSpace(in.Reason),
		CreatedAt: domain.FormatTimestamp(now),
	}
	st.MissionAdjustments = append(st.MissionAdjustments, adj)
	return adj, nil
}

// Progress sums the streamer's donations inside the mission window. The window
// opens at the start time and, for completed missions, closes at completion.
func Progress(st *domain.State, id string) (domain.MissionProgress, error) {
	idx := st.FindMission(id)
	if idx < 0 {
		return domain.MissionProgress{}, domain.NotFound("mission not found")
	}
	m := st.Missions[idx]

	start, err := time.Parse(time.RFC3339Nano, m.StartTime)
	if err != nil {
		return domain.MissionProgress{}, domain.Invalid("mission has an invalid start time")
	}
	var end time.Time
	if m.CompletedTime != "" {
		if end, err = time.Parse(time.RFC3339Nano, m.CompletedTime); err != nil {
			return domain.MissionProgress{}, domain.Invalid("mission has an invalid completion time")
		}
	}

	raised := decimal.Zero
	for _, d := range st.Donations {
		if d.Streamer != m.Streamer {
			continue
		}
		at, err := time.Parse(time.RFC3339Nano, d.Timestamp)
		if err != nil || at.Before(start) {
			continue
		}
		if !end.IsZero() && at.After(end) {
			continue
		}
		raised = raised.Add(d.Amount)
	}

	percent := decimal.Zero
	if m.Target.IsPositive() {
		percent = raised.Mul(hundred).Div(m.Target).Round(1)
		if percent.GreaterThan(hundred) {
			percent = hundred
		}
	}

	return domain.MissionProgress{
		Mission: m,
		Raised:  raised,
		Percent: percent,
		Reached: raised.GreaterThanOrEqual(m.Target),
	}, nil
}
