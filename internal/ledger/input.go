package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pscheid92/donationpulse/internal/domain"
	"github.com/shopspring/decimal"
)

// Numeric is a request field that may arrive as a JSON number or a numeric string.
type Numeric string

func (n *Numeric) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("numeric field: %w", err)
		}
		*n = Numeric(strings.TrimSpace(s))
		return nil
	}
	*n = Numeric(b)
	return nil
}

// maxNumericDigits bounds both the significant digits and the rendered width
// of any accepted number, so "1e50000000" cannot become a 50 MB document.
const maxNumericDigits = 30

var errOutOfRange = domain.Invalid("number is out of range")

// Decimal parses n. Empty input reports ok=false without an error.
func (n Numeric) Decimal() (d decimal.Decimal, ok bool, err error) {
	s := strings.TrimSpace(string(n))
	if s == "" {
		return decimal.Zero, false, nil
	}
	d, err = decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, err
	}
	if !inRange(d) {
		return decimal.Zero, false, errOutOfRange
	}
	return d, true, nil
}

func inRange(d decimal.Decimal) bool {
	exp := int(d.Exponent())
	digits := d.NumDigits()
	return digits <= maxNumericDigits && exp >= -maxNumericDigits && digits+exp <= maxNumericDigits
}

// ParseAmount parses a donation amount, which must be a non-negative number.
func ParseAmount(n Numeric) (decimal.Decimal, error) {
	d, ok, err := n.Decimal()
	if errors.Is(err, errOutOfRange) {
		return decimal.Zero, err
	}
	if err != nil || !ok {
		return decimal.Zero, domain.Invalid("amount must be a number")
	}
	if d.IsNegative() {
		return decimal.Zero, domain.Invalid("amount must not be negative")
	}
	return d, nil
}

// DecodeDonations decodes a bulk replacement payload. Only the shape is
// checked: the payload must be a JSON array of donation objects.
func DecodeDonations(raw json.RawMessage) ([]domain.Donation, error) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, domain.Invalid("donations must be an array")
	}
	var donations []domain.Donation
	if err := json.Unmarshal(raw, &donations); err != nil {
		return nil, domain.Invalid("donations must be an array of donation records")
	}
	for _, d := range donations {
		if !inRange(d.Amount) {
			return nil, errOutOfRange
		}
	}
	if donations == nil {
		donations = []domain.Donation{}
	}
	return donations, nil
}

// DecodeSettings decodes a settings payload. Both {"settings": {...}} and a bare
// object are accepted; any nested "settings" left inside is flattened.
func DecodeSettings(raw json.RawMessage) (domain.Settings, error) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		return nil, domain.Invalid("settings must be an object")
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, domain.Invalid("settings must be an object")
	}

	partial := domain.Settings(body)
	if inner, ok := body["settings"]; ok && len(body) == 1 {
		obj, isObj := inner.(map[string]any)
		if !isObj {
			return nil, domain.Invalid("settings must be an object")
		}
		partial = domain.Settings(obj)
	}
	partial.Flatten()
	return partial, nil
}
