// Package dbtest opens throwaway sqlite databases with the full schema for
// repository and service tests.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/mandi-backend/pkg/db"
	"github.com/angelmondragon/mandi-backend/pkg/db/models"
	"github.com/angelmondragon/mandi-backend/pkg/enums"
)

// Open returns a client over a private in-memory database. The pool is
// pinned to one connection, so callers must not touch the root handle while
// a transaction is open.
func Open(t *testing.T) *db.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:mandi_%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db.FromConn(conn)
}

// ProductOption tweaks a fixture product before insert.
type ProductOption func(*models.Product)

func WithStock(qty int) ProductOption {
	return func(p *models.Product) { p.AvailableQuantity = qty }
}

func WithPrice(price string) ProductOption {
	return func(p *models.Product) { p.UnitPrice = decimal.RequireFromString(price) }
}

func WithSupplier(id uuid.UUID) ProductOption {
	return func(p *models.Product) { p.SupplierID = id }
}

func WithName(name string) ProductOption {
	return func(p *models.Product) { p.Name = name }
}

func WithCategory(category enums.ProductCategory) ProductOption {
	return func(p *models.Product) { p.Category = category }
}

// MustCreateProduct inserts a product owned by a fresh supplier unless
// WithSupplier says otherwise.
func MustCreateProduct(t *testing.T, conn *gorm.DB, opts ...ProductOption) *models.Product {
	t.Helper()
	product := &models.Product{
		SupplierID:        uuid.New(),
		Name:              "Red Onion",
		Category:          enums.ProductCategoryVegetables,
		UnitPrice:         decimal.RequireFromString("25"),
		Unit:              enums.ProductUnitKg,
		AvailableQuantity: 100,
		Description:       "Nashik red onions, medium size",
	}
	for _, opt := range opts {
		opt(product)
	}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

// ReloadProduct reads the product row back, ignoring soft deletes.
func ReloadProduct(t *testing.T, conn *gorm.DB, id uuid.UUID) *models.Product {
	t.Helper()
	var product models.Product
	if err := conn.Unscoped().First(&product, "id = ?", id).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	return &product
}
