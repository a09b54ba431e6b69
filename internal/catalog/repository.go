package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/mandi-backend/pkg/db/models"
	"github.com/angelmondragon/mandi-backend/pkg/enums"
)

// Repository persists products. Removed rows are filtered by gorm's soft
// delete scope unless a method says otherwise.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindByID loads a live product.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindManyForUpdate loads live products by id and row-locks them for the
// rest of the transaction. Missing ids are simply absent from the result.
func (r *Repository) FindManyForUpdate(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	var products []models.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// Update applies column updates to a live product.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SoftDelete stamps deleted_at on a live product.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Product{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AddQuantity moves available_quantity by delta only when the result stays
// non-negative. It reports whether a live row matched.
func (r *Repository) AddQuantity(ctx context.Context, id uuid.UUID, delta int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND available_quantity + ? >= 0", id, delta).
		Updates(map[string]any{
			"available_quantity": gorm.Expr("available_quantity + ?", delta),
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ProductFilter narrows a listing.
type ProductFilter struct {
	SupplierID *uuid.UUID
	Category   *enums.ProductCategory
	Query      string
	InStock    bool
	Sort       enums.ProductSort
	Limit      int
	Offset     int
}

// List returns one page of live products and the total match count.
func (r *Repository) List(ctx context.Context, filter ProductFilter) ([]models.Product, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Product{}).Scopes(filter.scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var products []models.Product
	err := r.db.WithContext(ctx).
		Scopes(filter.scope).
		Order(orderClause(filter.Sort)).
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&products).Error
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (f ProductFilter) scope(query *gorm.DB) *gorm.DB {
	if f.SupplierID != nil {
		query = query.Where("supplier_id = ?", *f.SupplierID)
	}
	if f.Category != nil {
		query = query.Where("category = ?", *f.Category)
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		like := "%" + escapeLike(q) + "%"
		query = query.Where("(LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(description) LIKE ? ESCAPE '\\')", like, like)
	}
	if f.InStock {
		query = query.Where("available_quantity > 0")
	}
	return query
}

func orderClause(sort enums.ProductSort) string {
	switch sort {
	case enums.ProductSortPriceLow:
		return "unit_price ASC, name ASC, id ASC"
	case enums.ProductSortPriceHigh:
		return "unit_price DESC, name ASC, id ASC"
	case enums.ProductSortNewest:
		return "created_at DESC, id DESC"
	default:
		return "name ASC, id ASC"
	}
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
