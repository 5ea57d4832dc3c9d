package ledger

import (
	"slices"
	"strings"
	"time"

	"github.com/pscheid92/donationpulse/internal/domain"
)

// DonationInput is the payload of an add-donation command.
type DonationInput struct {
	Donor    string  `json:"donor"`
	Streamer string  `json:"streamer"`
	Type     string  `json:"type"`
	Amount   Numeric `json:"amount"`
}

// AddDonation records a donation at the head of the ledger (most recent first).
// The timestamp is assigned here and nudged forward by a millisecond while it
// collides with an existing one, since it is also the record's identifier.
func AddDonation(st *domain.State, in DonationInput, now time.Time) (domain.Donation, error) {
	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return domain.Donation{}, err
	}

	ts := domain.FormatTimestamp(now)
	for hasDonation(st, ts) {
		now = now.Add(time.Millisecond)
		ts = domain.FormatTimestamp(now)
	}

	d := domain.Donation{
		Donor:     strings.TrimSpace(in.Donor),
		Streamer:  strings.TrimSpace(in.Streamer),
		Type:      domain.ParseDonationType(in.Type),
		Amount:    amount,
		Timestamp: ts,
	}
	st.Donations = slices.Insert(st.Donations, 0, d)
	return d, nil
}

// DeleteDonation removes the donation identified by timestamp.
func DeleteDonation(st *domain.State, timestamp string) error {
	before := len(st.Donations)
	remaining := slices.DeleteFunc(slices.Clone(st.Donations), func(d domain.Donation) bool {
		return d.Timestamp == timestamp
	})
	if len(remaining) == before {
		return domain.NotFound("donation not found")
	}
	st.Donations = remaining
	return nil
}

// ReplaceDonations swaps the whole ledger. Records are taken as given.
func ReplaceDonations(st *domain.State, donations []domain.Donation) {
	if donations == nil {
		donations = []domain.Donation{}
	}
	st.Donations = donations
}

func hasDonation(st *domain.State, timestamp string) bool {
	return slices.ContainsFunc(st.Donations, func(d domain.Donation) bool {
		return d.Timestamp == timestamp
	})
}
