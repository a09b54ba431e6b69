package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mandi-backend/pkg/db/models"
)

// ProductDTO is the product payload returned to clients.
type ProductDTO struct {
	ID                uuid.UUID       `json:"id"`
	SupplierID        uuid.UUID       `json:"supplier_id"`
	Name              string          `json:"name"`
	Category          string          `json:"category"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Unit              string          `json:"unit"`
	AvailableQuantity int             `json:"available_quantity"`
	InStock           bool            `json:"in_stock"`
	Description       string          `json:"description"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ProductListDTO wraps a page of products with offset paging metadata.
type ProductListDTO struct {
	Items  []ProductDTO `json:"items"`
	Total  int64        `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

func NewProductDTO(product *models.Product) ProductDTO {
	return ProductDTO{
		ID:                product.ID,
		SupplierID:        product.SupplierID,
		Name:              product.Name,
		Category:          string(product.Category),
		UnitPrice:         product.UnitPrice,
		Unit:              string(product.Unit),
		AvailableQuantity: product.AvailableQuantity,
		InStock:           product.AvailableQuantity > 0,
		Description:       product.Description,
		CreatedAt:         product.CreatedAt,
		UpdatedAt:         product.UpdatedAt,
	}
}

func NewProductListDTO(list *ProductList) ProductListDTO {
	items := make([]ProductDTO, 0, len(list.Items))
	for i := range list.Items {
		items = append(items, NewProductDTO(&list.Items[i]))
	}
	return ProductListDTO{
		Items:  items,
		Total:  list.Total,
		Limit:  list.Limit,
		Offset: list.Offset,
	}
}
