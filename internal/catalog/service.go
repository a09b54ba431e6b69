package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/mandi-backend/pkg/auth"
	"github.com/angelmondragon/mandi-backend/pkg/db/models"
	"github.com/angelmondragon/mandi-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mandi-backend/pkg/errors"
	"github.com/angelmondragon/mandi-backend/pkg/locks"
	"github.com/angelmondragon/mandi-backend/pkg/outbox"
	"github.com/angelmondragon/mandi-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/mandi-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockMetrics interface {
	StockRejected(reason string)
}

type noopMetrics struct{}

func (noopMetrics) StockRejected(string) {}

// Service exposes the product catalog. AdjustStock and AdjustStockTx are the
// only paths that change available quantity.
type Service interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, input ListProductsInput) (*ProductList, error)
	CreateProduct(ctx context.Context, actor auth.Actor, input CreateProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, actor auth.Actor, id uuid.UUID, input UpdateProductInput) (*models.Product, error)
	RemoveProduct(ctx context.Context, actor auth.Actor, id uuid.UUID) error
	AdjustStock(ctx context.Context, actor auth.Actor, id uuid.UUID, delta int) (*models.Product, error)

	StockAdjuster
}

// StockAdjuster is the transaction-bound face of the catalog used by the
// order engines. Callers hold the product locks.
type StockAdjuster interface {
	ProductsForUpdate(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	AdjustStockTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, delta int) (*models.Product, error)
}

// ListProductsInput carries browse filters.
type ListProductsInput struct {
	SupplierID *uuid.UUID
	Category   *enums.ProductCategory
	Query      string
	InStock    bool
	Sort       enums.ProductSort
	Limit      int
	Offset     int
}

// ProductList is one page of a product listing.
type ProductList struct {
	Items  []models.Product
	Total  int64
	Limit  int
	Offset int
}

// CreateProductInput holds a new listing. SupplierID is only honoured for
// admins creating on a supplier's behalf.
type CreateProductInput struct {
	SupplierID        *uuid.UUID
	Name              string
	Category          enums.ProductCategory
	UnitPrice         decimal.Decimal
	Unit              enums.ProductUnit
	AvailableQuantity int
	Description       string
}

// UpdateProductInput holds optional field edits. Stock is not editable here.
type UpdateProductInput struct {
	Name        *string
	Category    *enums.ProductCategory
	UnitPrice   *decimal.Decimal
	Unit        *enums.ProductUnit
	Description *string
}

type service struct {
	repo    *Repository
	tx      txRunner
	locker  locks.Locker
	outbox  outbox.Emitter
	metrics stockMetrics
}

// NewService constructs the catalog service.
func NewService(repo *Repository, tx txRunner, locker locks.Locker, emitter outbox.Emitter, metrics stockMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &service{
		repo:    repo,
		tx:      tx,
		locker:  locker,
		outbox:  emitter,
		metrics: metrics,
	}, nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapProductErr(err, id)
	}
	return product, nil
}

func (s *service) ListProducts(ctx context.Context, input ListProductsInput) (*ProductList, error) {
	if input.Category != nil && !input.Category.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
	}
	sort := input.Sort
	if sort == "" {
		sort = enums.ProductSortName
	}
	if !sort.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid sort")
	}
	limit := pagination.NormalizeLimit(input.Limit)
	offset := pagination.NormalizeOffset(input.Offset)

	items, total, err := s.repo.List(ctx, ProductFilter{
		SupplierID: input.SupplierID,
		Category:   input.Category,
		Query:      input.Query,
		InStock:    input.InStock,
		Sort:       sort,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return &ProductList{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *service) CreateProduct(ctx context.Context, actor auth.Actor, input CreateProductInput) (*models.Product, error) {
	if err := actor.RequireRole(enums.ActorRoleSupplier, enums.ActorRoleAdmin); err != nil {
		return nil, err
	}
	supplierID := actor.ID
	if actor.IsAdmin() {
		if input.SupplierID == nil || *input.SupplierID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier_id is required when creating as admin")
		}
		supplierID = *input.SupplierID
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if !input.Category.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
	}
	if !input.Unit.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid unit")
	}
	if err := validatePrice(input.UnitPrice); err != nil {
		return nil, err
	}
	if input.AvailableQuantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNegativeStock, "available quantity cannot be negative")
	}

	product := &models.Product{
		SupplierID:        supplierID,
		Name:              name,
		Category:          input.Category,
		UnitPrice:         input.UnitPrice.Round(2),
		Unit:              input.Unit,
		AvailableQuantity: input.AvailableQuantity,
		Description:       strings.TrimSpace(input.Description),
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert product")
	}
	return product, nil
}

func (s *service) UpdateProduct(ctx context.Context, actor auth.Actor, id uuid.UUID, input UpdateProductInput) (*models.Product, error) {
	if err := actor.RequireRole(enums.ActorRoleSupplier, enums.ActorRoleAdmin); err != nil {
		return nil, err
	}
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureOwner(actor, product); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		updates["name"] = name
	}
	if input.Category != nil {
		if !input.Category.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
		}
		updates["category"] = *input.Category
	}
	if input.UnitPrice != nil {
		if err := validatePrice(*input.UnitPrice); err != nil {
			return nil, err
		}
		updates["unit_price"] = input.UnitPrice.Round(2)
	}
	if input.Unit != nil {
		if !input.Unit.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid unit")
		}
		updates["unit"] = *input.Unit
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if len(updates) == 0 {
		return product, nil
	}

	if err := s.repo.Update(ctx, id, updates); err != nil {
		return nil, mapProductErr(err, id)
	}
	return s.GetProduct(ctx, id)
}

func (s *service) RemoveProduct(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if err := actor.RequireRole(enums.ActorRoleSupplier, enums.ActorRoleAdmin); err != nil {
		return err
	}
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := ensureOwner(actor, product); err != nil {
		return err
	}

	unlock, err := s.locker.Lock(ctx, locks.ProductKey(id.String()))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire product lock")
	}
	defer unlock()

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return mapProductErr(err, id)
	}
	return nil
}

// AdjustStock applies a supplier restock or correction under the product lock.
func (s *service) AdjustStock(ctx context.Context, actor auth.Actor, id uuid.UUID, delta int) (*models.Product, error) {
	if err := actor.RequireRole(enums.ActorRoleSupplier, enums.ActorRoleAdmin); err != nil {
		return nil, err
	}
	if delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureOwner(actor, product); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, locks.ProductKey(id.String()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire product lock")
	}
	defer unlock()

	var updated *models.Product
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		p, err := s.AdjustStockTx(ctx, tx, id, delta)
		if err != nil {
			return err
		}
		updated = p
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProductStockAdjusted,
			AggregateType: enums.AggregateProduct,
			AggregateID:   p.ID,
			Actor:         &outbox.ActorRef{ActorID: actor.ID, Role: actor.Role.String()},
			Data: payloads.ProductStockAdjustedEvent{
				ProductID:         p.ID,
				SupplierID:        p.SupplierID,
				Delta:             delta,
				AvailableQuantity: p.AvailableQuantity,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ProductsForUpdate row-locks the live products among ids, keyed by id.
func (s *service) ProductsForUpdate(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	rows, err := s.repo.WithTx(tx).FindManyForUpdate(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	out := make(map[uuid.UUID]models.Product, len(rows))
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// AdjustStockTx moves stock by delta inside tx. It fails NEGATIVE_STOCK when
// the result would drop below zero and leaves the row untouched.
func (s *service) AdjustStockTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, delta int) (*models.Product, error) {
	repo := s.repo.WithTx(tx)
	ok, err := repo.AddQuantity(ctx, id, delta)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust stock")
	}
	product, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapProductErr(err, id)
	}
	if !ok {
		s.metrics.StockRejected("negative")
		return nil, pkgerrors.Newf(pkgerrors.CodeNegativeStock, "stock for %s cannot go below zero", product.Name).
			WithDetails(map[string]any{
				"product_id": product.ID,
				"available":  product.AvailableQuantity,
				"delta":      delta,
			})
	}
	return product, nil
}

func ensureOwner(actor auth.Actor, product *models.Product) error {
	if actor.IsAdmin() || product.SupplierID == actor.ID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "product belongs to another supplier")
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price cannot be negative")
	}
	return nil
}

func mapProductErr(err error, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Newf(pkgerrors.CodeProductNotFound, "product %s not found", id).
			WithDetails(map[string]any{"product_id": id})
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
}
