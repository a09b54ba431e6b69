package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mandi-backend/pkg/db/models"
	"github.com/angelmondragon/mandi-backend/pkg/pagination"
)

// OrderDTO is the order payload returned to clients.
type OrderDTO struct {
	ID              uuid.UUID       `json:"id"`
	VendorID        uuid.UUID       `json:"vendor_id"`
	SupplierID      uuid.UUID       `json:"supplier_id"`
	GroupOrderID    *uuid.UUID      `json:"group_order_id,omitempty"`
	Status          string          `json:"status"`
	NextStatuses    []string        `json:"next_statuses"`
	Total           decimal.Decimal `json:"total"`
	DeliveryAddress string          `json:"delivery_address"`
	PaymentMethod   string          `json:"payment_method"`
	Items           []OrderItemDTO  `json:"items"`
	StatusChangedAt time.Time       `json:"status_changed_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type OrderItemDTO struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

func NewOrderDTO(order *models.Order) OrderDTO {
	next := NextStatuses(order.Status)
	nextNames := make([]string, 0, len(next))
	for _, status := range next {
		nextNames = append(nextNames, status.String())
	}
	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDTO{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Unit:        string(item.Unit),
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			LineTotal:   item.LineTotal,
		})
	}
	return OrderDTO{
		ID:              order.ID,
		VendorID:        order.VendorID,
		SupplierID:      order.SupplierID,
		GroupOrderID:    order.GroupOrderID,
		Status:          order.Status.String(),
		NextStatuses:    nextNames,
		Total:           order.Total,
		DeliveryAddress: order.DeliveryAddress,
		PaymentMethod:   string(order.PaymentMethod),
		Items:           items,
		StatusChangedAt: order.StatusChangedAt,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func NewOrderDTOs(orders []models.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(orders))
	for i := range orders {
		out = append(out, NewOrderDTO(&orders[i]))
	}
	return out
}

func NewOrderPageDTO(page *pagination.Page[models.Order]) pagination.Page[OrderDTO] {
	return pagination.Page[OrderDTO]{
		Items:      NewOrderDTOs(page.Items),
		NextCursor: page.NextCursor,
	}
}
