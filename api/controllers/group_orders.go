package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mandi-backend/api/responses"
	"github.com/angelmondragon/mandi-backend/api/validators"
	"github.com/angelmondragon/mandi-backend/internal/grouporders"
	"github.com/angelmondragon/mandi-backend/pkg/enums"
	"github.com/angelmondragon/mandi-backend/pkg/logger"
	"github.com/angelmondragon/mandi-backend/pkg/pagination"
)

type createGroupOrderRequest struct {
	ProductID      uuid.UUID       `json:"product_id"`
	TargetQuantity int             `json:"target_quantity"`
	MaxPrice       decimal.Decimal `json:"max_price"`
	EndDate        time.Time       `json:"end_date" validate:"required"`
	Description    string          `json:"description" validate:"max=2000"`
}

type joinGroupOrderRequest struct {
	Quantity        int    `json:"quantity"`
	DeliveryAddress string `json:"delivery_address" validate:"max=500"`
	PaymentMethod   string `json:"payment_method"`
}

func (p joinGroupOrderRequest) toInput() grouporders.JoinInput {
	input := grouporders.JoinInput{
		Quantity:        p.Quantity,
		DeliveryAddress: validators.SanitizeText(p.DeliveryAddress, 500),
	}
	if method := strings.TrimSpace(p.PaymentMethod); method != "" {
		pm := enums.PaymentMethod(method)
		input.PaymentMethod = &pm
	}
	return input
}

func CreateGroupOrder(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload createGroupOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		group, err := svc.Create(r.Context(), actor, grouporders.CreateInput{
			ProductID:      payload.ProductID,
			TargetQuantity: payload.TargetQuantity,
			MaxPrice:       payload.MaxPrice,
			EndDate:        payload.EndDate,
			Description:    validators.SanitizeText(payload.Description, 2000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, grouporders.NewGroupOrderDTO(group))
	}
}

// JoinGroupOrder records or replaces the vendor's commitment. A join that
// completes the group returns it already settled when settlement succeeds.
func JoinGroupOrder(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		groupID, err := validators.ParseUUIDParam(r, "groupOrderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload joinGroupOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		group, err := svc.Join(r.Context(), actor, groupID, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, grouporders.NewGroupOrderDTO(group))
	}
}

func CancelGroupOrder(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		groupID, err := validators.ParseUUIDParam(r, "groupOrderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		group, err := svc.Cancel(r.Context(), actor, groupID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, grouporders.NewGroupOrderDTO(group))
	}
}

func GetGroupOrder(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		groupID, err := validators.ParseUUIDParam(r, "groupOrderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		group, err := svc.Get(r.Context(), actor, groupID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, grouporders.NewGroupOrderDTO(group))
	}
}

func ListGroupOrders(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := parseListGroupOrders(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, grouporders.NewGroupOrderPageDTO(page))
	}
}

func parseListGroupOrders(r *http.Request) (grouporders.ListInput, error) {
	var input grouporders.ListInput
	var err error

	if input.Limit, err = validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit); err != nil {
		return input, err
	}
	if input.Status, err = validators.ParseQueryEnum(r, "status", enums.ParseGroupOrderStatus); err != nil {
		return input, err
	}
	if input.ProductID, err = validators.ParseQueryUUID(r, "product_id"); err != nil {
		return input, err
	}
	if input.CreatorVendorID, err = validators.ParseQueryUUID(r, "creator_vendor_id"); err != nil {
		return input, err
	}
	if input.SupplierID, err = validators.ParseQueryUUID(r, "supplier_id"); err != nil {
		return input, err
	}
	input.Cursor = strings.TrimSpace(r.URL.Query().Get("cursor"))
	return input, nil
}

// RetrySettlement re-runs a failed settlement. Admin only.
func RetrySettlement(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		groupID, err := validators.ParseUUIDParam(r, "groupOrderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		group, err := svc.RetrySettlement(r.Context(), actor, groupID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, grouporders.NewGroupOrderDTO(group))
	}
}

func ListSettlementFailures(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		groupID, err := validators.ParseUUIDParam(r, "groupOrderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		failures, err := svc.ListSettlementFailures(r.Context(), actor, groupID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"failures": grouporders.NewSettlementFailureDTOs(failures),
		})
	}
}
