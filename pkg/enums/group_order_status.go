package enums

// GroupOrderStatus tracks pooled demand for one product.
type GroupOrderStatus string

const (
	GroupOrderStatusActive    GroupOrderStatus = "active"
	GroupOrderStatusCompleted GroupOrderStatus = "completed"
	GroupOrderStatusExpired   GroupOrderStatus = "expired"
	GroupOrderStatusCancelled GroupOrderStatus = "cancelled"
)

var validGroupOrderStatuses = []GroupOrderStatus{
	GroupOrderStatusActive,
	GroupOrderStatusCompleted,
	GroupOrderStatusExpired,
	GroupOrderStatusCancelled,
}

// String implements fmt.Stringer.
func (g GroupOrderStatus) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GroupOrderStatus.
func (g GroupOrderStatus) IsValid() bool {
	return isKnown(g, validGroupOrderStatuses)
}

// ParseGroupOrderStatus converts raw input into a GroupOrderStatus.
func ParseGroupOrderStatus(value string) (GroupOrderStatus, error) {
	return parseEnum(value, validGroupOrderStatuses, "group order status")
}

// IsTerminal reports whether the group order no longer accepts joins.
func (g GroupOrderStatus) IsTerminal() bool {
	return g != GroupOrderStatusActive
}
