package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mandi-backend/pkg/enums"
)

// OrderLine is the item snapshot carried on order events.
type OrderLine struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// OrderCreatedEvent is emitted for every new order, including settlement orders.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	VendorID      uuid.UUID           `json:"vendor_id"`
	SupplierID    uuid.UUID           `json:"supplier_id"`
	GroupOrderID  *uuid.UUID          `json:"group_order_id,omitempty"`
	Total         decimal.Decimal     `json:"total"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Items         []OrderLine         `json:"items"`
	CreatedAt     time.Time           `json:"created_at"`
}

// OrderStatusChangedEvent is emitted on every accepted status transition.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	VendorID   uuid.UUID         `json:"vendor_id"`
	SupplierID uuid.UUID         `json:"supplier_id"`
	From       enums.OrderStatus `json:"from"`
	To         enums.OrderStatus `json:"to"`
	ChangedBy  uuid.UUID         `json:"changed_by"`
	ChangedAt  time.Time         `json:"changed_at"`
}

// GroupOrderCreatedEvent announces a new pool for vendors to join.
type GroupOrderCreatedEvent struct {
	GroupOrderID    uuid.UUID       `json:"group_order_id"`
	ProductID       uuid.UUID       `json:"product_id"`
	CreatorVendorID uuid.UUID       `json:"creator_vendor_id"`
	TargetQuantity  int             `json:"target_quantity"`
	MaxPrice        decimal.Decimal `json:"max_price"`
	EndDate         time.Time       `json:"end_date"`
}

// GroupOrderJoinedEvent reports a participant's new committed quantity.
type GroupOrderJoinedEvent struct {
	GroupOrderID    uuid.UUID `json:"group_order_id"`
	VendorID        uuid.UUID `json:"vendor_id"`
	Quantity        int       `json:"quantity"`
	CurrentQuantity int       `json:"current_quantity"`
	TargetQuantity  int       `json:"target_quantity"`
}

// GroupOrderCompletedEvent fires once, when the target is first crossed.
type GroupOrderCompletedEvent struct {
	GroupOrderID     uuid.UUID       `json:"group_order_id"`
	ProductID        uuid.UUID       `json:"product_id"`
	SupplierID       uuid.UUID       `json:"supplier_id"`
	CurrentQuantity  int             `json:"current_quantity"`
	TargetQuantity   int             `json:"target_quantity"`
	MaxPrice         decimal.Decimal `json:"max_price"`
	ParticipantCount int             `json:"participant_count"`
	CompletedAt      time.Time       `json:"completed_at"`
}

// GroupOrderExpiredEvent fires when a pool passes its end date short of target.
type GroupOrderExpiredEvent struct {
	GroupOrderID    uuid.UUID `json:"group_order_id"`
	CurrentQuantity int       `json:"current_quantity"`
	TargetQuantity  int       `json:"target_quantity"`
	EndDate         time.Time `json:"end_date"`
	ExpiredAt       time.Time `json:"expired_at"`
}

// GroupOrderCanceledEvent fires when the creator withdraws an active pool.
type GroupOrderCanceledEvent struct {
	GroupOrderID uuid.UUID `json:"group_order_id"`
	CanceledBy   uuid.UUID `json:"canceled_by"`
	CanceledAt   time.Time `json:"canceled_at"`
}

// GroupOrderSettledEvent lists the orders created from a completed pool.
type GroupOrderSettledEvent struct {
	GroupOrderID uuid.UUID   `json:"group_order_id"`
	OrderIDs     []uuid.UUID `json:"order_ids"`
	Quantity     int         `json:"quantity"`
	SettledAt    time.Time   `json:"settled_at"`
}

// GroupOrderSettlementFailedEvent asks operators to reconcile a pool by hand.
type GroupOrderSettlementFailedEvent struct {
	GroupOrderID uuid.UUID `json:"group_order_id"`
	FailureID    uuid.UUID `json:"failure_id"`
	ErrorCode    string    `json:"error_code"`
	Error        string    `json:"error"`
	AttemptedAt  time.Time `json:"attempted_at"`
}

// ProductStockAdjustedEvent records a supplier restock or correction.
type ProductStockAdjustedEvent struct {
	ProductID         uuid.UUID `json:"product_id"`
	SupplierID        uuid.UUID `json:"supplier_id"`
	Delta             int       `json:"delta"`
	AvailableQuantity int       `json:"available_quantity"`
}
