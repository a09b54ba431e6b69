package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/mandi-backend/pkg/enums"
)

// Product is a raw material listed by a supplier. Stock lives on the row and
// only moves through the catalog's stock adjustment.
type Product struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	SupplierID        uuid.UUID             `gorm:"column:supplier_id;type:uuid;not null;index"`
	Name              string                `gorm:"column:name;not null"`
	Category          enums.ProductCategory `gorm:"column:category;type:product_category;not null"`
	UnitPrice         decimal.Decimal       `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Unit              enums.ProductUnit     `gorm:"column:unit;type:product_unit;not null"`
	AvailableQuantity int                   `gorm:"column:available_quantity;not null;default:0"`
	Description       string                `gorm:"column:description;not null;default:''"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt         gorm.DeletedAt        `gorm:"column:deleted_at;index"`
}
