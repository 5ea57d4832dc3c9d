package domain

import "github.com/shopspring/decimal"

type MissionStatus string

const (
	MissionRunning   MissionStatus = "running"
	MissionCompleted MissionStatus = "completed"
)

// Mission is a donation goal for one streamer.
type Mission struct {
	ID            string          `json:"id"`
	Streamer      string          `json:"streamer"`
	Target        decimal.Decimal `json:"target"`
	Description   string          `json:"description"`
	Status        MissionStatus   `json:"status"`
	StartTime     string          `json:"startTime"`
	CompletedTime string          `json:"completedTime,omitempty"`
}

// MissionAdjustment is a manual correction attached to a mission.
// It is kept for audit and never counted towards mission progress.
type MissionAdjustment struct {
	ID        string          `json:"id"`
	MissionID string          `json:"missionId"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	CreatedAt string          `json:"createdAt"`
}

// MissionProgress is the computed state of a mission against the ledger.
type MissionProgress struct {
	Mission Mission         `json:"mission"`
	Raised  decimal.Decimal `json:"raised"`
	Percent decimal.Decimal `json:"percent"`
	Reached bool            `json:"reached"`
}
