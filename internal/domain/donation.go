package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

func init() {
	// Overlay clients expect plain JSON numbers for amounts.
	decimal.MarshalJSONWithoutQuotes = true
}

// DonationType classifies where a donation came from.
type DonationType string

const (
	DonationCash         DonationType = "cash"
	DonationPlatformGift DonationType = "platform-gift"
	DonationSuperchat    DonationType = "superchat"
	DonationOther        DonationType = "other"
)

// ParseDonationType converts a string to a DonationType, defaulting to other.
func ParseDonationType(s string) DonationType {
	switch DonationType(s) {
	case DonationCash, DonationPlatformGift, DonationSuperchat:
		return DonationType(s)
	default:
		return DonationOther
	}
}

// Donation is one ledger entry. Timestamp doubles as its identifier.
type Donation struct {
	Donor     string          `json:"donor"`
	Streamer  string          `json:"streamer"`
	Type      DonationType    `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp string          `json:"timestamp"`
}

// UnmarshalJSON accepts snapshots written before the id field was renamed from "time".
func (d *Donation) UnmarshalJSON(data []byte) error {
	type plain Donation
	var raw struct {
		plain
		Time string `json:"time"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Donation(raw.plain)
	if d.Timestamp == "" {
		d.Timestamp = raw.Time
	}
	return nil
}
