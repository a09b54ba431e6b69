package enums

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder      OutboxAggregateType = "order"
	AggregateGroupOrder OutboxAggregateType = "group_order"
	AggregateProduct    OutboxAggregateType = "product"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateGroupOrder,
	AggregateProduct,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return isKnown(a, validAggregateTypes)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parseEnum(value, validAggregateTypes, "aggregate type")
}

// OutboxEventType names a domain event written to the outbox.
type OutboxEventType string

const (
	EventOrderCreated               OutboxEventType = "order_created"
	EventOrderStatusChanged         OutboxEventType = "order_status_changed"
	EventGroupOrderCreated          OutboxEventType = "group_order_created"
	EventGroupOrderJoined           OutboxEventType = "group_order_joined"
	EventGroupOrderCompleted        OutboxEventType = "group_order_completed"
	EventGroupOrderExpired          OutboxEventType = "group_order_expired"
	EventGroupOrderCanceled         OutboxEventType = "group_order_canceled"
	EventGroupOrderSettled          OutboxEventType = "group_order_settled"
	EventGroupOrderSettlementFailed OutboxEventType = "group_order_settlement_failed"
	EventProductStockAdjusted       OutboxEventType = "product_stock_adjusted"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStatusChanged,
	EventGroupOrderCreated,
	EventGroupOrderJoined,
	EventGroupOrderCompleted,
	EventGroupOrderExpired,
	EventGroupOrderCanceled,
	EventGroupOrderSettled,
	EventGroupOrderSettlementFailed,
	EventProductStockAdjusted,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	return isKnown(e, validOutboxEventTypes)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parseEnum(value, validOutboxEventTypes, "event type")
}

// DeadLetterReason records why the publisher stopped retrying an event.
type DeadLetterReason string

const (
	DeadLetterMaxAttempts  DeadLetterReason = "max_attempts"
	DeadLetterNonRetryable DeadLetterReason = "non_retryable"
)

func (r DeadLetterReason) IsValid() bool {
	return r == DeadLetterMaxAttempts || r == DeadLetterNonRetryable
}

func ParseDeadLetterReason(value string) (DeadLetterReason, error) {
	return parseEnum(value, []DeadLetterReason{DeadLetterMaxAttempts, DeadLetterNonRetryable}, "dead letter reason")
}
