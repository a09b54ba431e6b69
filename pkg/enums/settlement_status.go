package enums

// SettlementStatus records whether a completed group order was converted into orders.
type SettlementStatus string

const (
	SettlementStatusNone    SettlementStatus = "none"
	SettlementStatusSettled SettlementStatus = "settled"
	SettlementStatusFailed  SettlementStatus = "failed"
)

var validSettlementStatuses = []SettlementStatus{
	SettlementStatusNone,
	SettlementStatusSettled,
	SettlementStatusFailed,
}

// String implements fmt.Stringer.
func (s SettlementStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SettlementStatus.
func (s SettlementStatus) IsValid() bool {
	return isKnown(s, validSettlementStatuses)
}

// ParseSettlementStatus converts raw input into a SettlementStatus.
func ParseSettlementStatus(value string) (SettlementStatus, error) {
	return parseEnum(value, validSettlementStatuses, "settlement status")
}
