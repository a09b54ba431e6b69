package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mandi-backend/pkg/enums"
)

// Order is a vendor's purchase from a single supplier. Totals and item
// prices are snapshots taken at submission.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	VendorID        uuid.UUID           `gorm:"column:vendor_id;type:uuid;not null;index"`
	SupplierID      uuid.UUID           `gorm:"column:supplier_id;type:uuid;not null;index"`
	GroupOrderID    *uuid.UUID          `gorm:"column:group_order_id;type:uuid;index"`
	Status          enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending'"`
	Total           decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	DeliveryAddress string              `gorm:"column:delivery_address;not null;default:''"`
	PaymentMethod   enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null"`
	StatusChangedAt time.Time           `gorm:"column:status_changed_at;not null"`
	Items           []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem captures one line of an order.
type OrderItem struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   uuid.UUID         `gorm:"column:product_id;type:uuid;not null"`
	ProductName string            `gorm:"column:product_name;not null"`
	Unit        enums.ProductUnit `gorm:"column:unit;type:product_unit;not null"`
	UnitPrice   decimal.Decimal   `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity    int               `gorm:"column:quantity;not null"`
	LineTotal   decimal.Decimal   `gorm:"column:line_total;type:numeric(12,2);not null"`
	Position    int               `gorm:"column:position;not null;default:0"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}
