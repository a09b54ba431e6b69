package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mandi-backend/pkg/enums"
)

// GroupOrder pools demand from several vendors for one product until a
// target quantity is reached or the end date passes.
type GroupOrder struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ProductID        uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index"`
	ProductName      string                  `gorm:"column:product_name;not null"`
	SupplierID       uuid.UUID               `gorm:"column:supplier_id;type:uuid;not null"`
	CreatorVendorID  uuid.UUID               `gorm:"column:creator_vendor_id;type:uuid;not null"`
	TargetQuantity   int                     `gorm:"column:target_quantity;not null"`
	MaxPrice         decimal.Decimal         `gorm:"column:max_price;type:numeric(12,2);not null"`
	CurrentQuantity  int                     `gorm:"column:current_quantity;not null;default:0"`
	Status           enums.GroupOrderStatus  `gorm:"column:status;type:group_order_status;not null;default:'active';index"`
	SettlementStatus enums.SettlementStatus  `gorm:"column:settlement_status;type:settlement_status;not null;default:'none'"`
	EndDate          time.Time               `gorm:"column:end_date;not null;index"`
	Description      string                  `gorm:"column:description;not null;default:''"`
	CompletedAt      *time.Time              `gorm:"column:completed_at"`
	ExpiredAt        *time.Time              `gorm:"column:expired_at"`
	CancelledAt      *time.Time              `gorm:"column:cancelled_at"`
	Participants     []GroupOrderParticipant `gorm:"foreignKey:GroupOrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// GroupOrderParticipant is one vendor's committed quantity. A vendor holds at
// most one row per group order.
type GroupOrderParticipant struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	GroupOrderID    uuid.UUID            `gorm:"column:group_order_id;type:uuid;not null;uniqueIndex:ux_group_order_participant"`
	VendorID        uuid.UUID            `gorm:"column:vendor_id;type:uuid;not null;uniqueIndex:ux_group_order_participant"`
	Quantity        int                  `gorm:"column:quantity;not null"`
	DeliveryAddress string               `gorm:"column:delivery_address;not null;default:''"`
	PaymentMethod   *enums.PaymentMethod `gorm:"column:payment_method;type:payment_method"`
	JoinedAt        time.Time            `gorm:"column:joined_at;not null"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// SettlementFailure records a completed group order whose conversion into
// orders failed and needs manual reconciliation.
type SettlementFailure struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	GroupOrderID uuid.UUID  `gorm:"column:group_order_id;type:uuid;not null;index"`
	ErrorCode    string     `gorm:"column:error_code;not null"`
	ErrorMessage string     `gorm:"column:error_message;not null"`
	AttemptedAt  time.Time  `gorm:"column:attempted_at;not null"`
	ResolvedAt   *time.Time `gorm:"column:resolved_at"`
}
