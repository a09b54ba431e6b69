package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/mandi-backend/api/responses"
	"github.com/angelmondragon/mandi-backend/api/validators"
	"github.com/angelmondragon/mandi-backend/internal/orders"
	"github.com/angelmondragon/mandi-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mandi-backend/pkg/errors"
	"github.com/angelmondragon/mandi-backend/pkg/logger"
	"github.com/angelmondragon/mandi-backend/pkg/pagination"
)

// Quantities are left to the order engine so that non-positive values
// surface as INVALID_QUANTITY rather than a generic validation error.
type cartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity"`
}

type submitOrderRequest struct {
	Items           []cartItemRequest `json:"items" validate:"dive"`
	DeliveryAddress string            `json:"delivery_address" validate:"max=500"`
	PaymentMethod   string            `json:"payment_method"`
}

func (p submitOrderRequest) toInput() orders.SubmitInput {
	items := make([]orders.CartItem, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, orders.CartItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return orders.SubmitInput{
		Items:           items,
		DeliveryAddress: validators.SanitizeText(p.DeliveryAddress, 500),
		PaymentMethod:   enums.PaymentMethod(strings.TrimSpace(p.PaymentMethod)),
	}
}

type advanceStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// SubmitOrder places a single-supplier order from the vendor's cart.
func SubmitOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload submitOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.SubmitOrder(r.Context(), actor, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, orders.NewOrderDTO(order))
	}
}

// Checkout splits a multi-supplier cart into one order per supplier.
func Checkout(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload submitOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		placed, err := svc.SubmitCart(r.Context(), actor, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"orders": orders.NewOrderDTOs(placed),
		})
	}
}

func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := parseListOrders(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListOrders(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.NewOrderPageDTO(page))
	}
}

func parseListOrders(r *http.Request) (orders.ListInput, error) {
	var input orders.ListInput
	var err error

	if input.Limit, err = validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit); err != nil {
		return input, err
	}
	if input.Status, err = validators.ParseQueryEnum(r, "status", enums.ParseOrderStatus); err != nil {
		return input, err
	}
	if input.GroupOrderID, err = validators.ParseQueryUUID(r, "group_order_id"); err != nil {
		return input, err
	}
	if input.VendorID, err = validators.ParseQueryUUID(r, "vendor_id"); err != nil {
		return input, err
	}
	if input.SupplierID, err = validators.ParseQueryUUID(r, "supplier_id"); err != nil {
		return input, err
	}
	input.Cursor = strings.TrimSpace(r.URL.Query().Get("cursor"))
	return input, nil
}

func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.NewOrderDTO(order))
	}
}

// AdvanceOrderStatus moves an order along the lifecycle.
func AdvanceOrderStatus(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload advanceStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(strings.TrimSpace(payload.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").
				WithDetails(map[string]any{"status": payload.Status}))
			return
		}

		order, err := svc.AdvanceStatus(r.Context(), actor, orderID, target)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.NewOrderDTO(order))
	}
}
