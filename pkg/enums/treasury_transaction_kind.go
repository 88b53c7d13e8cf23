package enums

import "fmt"

// TreasuryTransactionKind maps to the treasury_transaction_kind enum in
// Postgres. The treasury balance is only ever the running sum of these rows.
type TreasuryTransactionKind string

const (
	TreasuryTransactionInflow     TreasuryTransactionKind = "inflow"
	TreasuryTransactionOutflow    TreasuryTransactionKind = "outflow"
	TreasuryTransactionAdjustment TreasuryTransactionKind = "adjustment"
)

var validTreasuryTransactionKinds = []TreasuryTransactionKind{
	TreasuryTransactionInflow,
	TreasuryTransactionOutflow,
	TreasuryTransactionAdjustment,
}

// IsValid reports whether the value is a known TreasuryTransactionKind.
func (k TreasuryTransactionKind) IsValid() bool {
	for _, candidate := range validTreasuryTransactionKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseTreasuryTransactionKind converts raw input into a TreasuryTransactionKind.
func ParseTreasuryTransactionKind(value string) (TreasuryTransactionKind, error) {
	for _, candidate := range validTreasuryTransactionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid treasury transaction kind %q", value)
}
