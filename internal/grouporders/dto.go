package grouporders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mandi-backend/pkg/db/models"
	"github.com/angelmondragon/mandi-backend/pkg/pagination"
)

// GroupOrderDTO is the pool payload returned to clients.
type GroupOrderDTO struct {
	ID                uuid.UUID        `json:"id"`
	ProductID         uuid.UUID        `json:"product_id"`
	ProductName       string           `json:"product_name"`
	SupplierID        uuid.UUID        `json:"supplier_id"`
	CreatorVendorID   uuid.UUID        `json:"creator_vendor_id"`
	TargetQuantity    int              `json:"target_quantity"`
	CurrentQuantity   int              `json:"current_quantity"`
	RemainingQuantity int              `json:"remaining_quantity"`
	MaxPrice          decimal.Decimal  `json:"max_price"`
	Status            string           `json:"status"`
	SettlementStatus  string           `json:"settlement_status"`
	EndDate           time.Time        `json:"end_date"`
	Description       string           `json:"description"`
	Participants      []ParticipantDTO `json:"participants"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	ExpiredAt         *time.Time       `json:"expired_at,omitempty"`
	CancelledAt       *time.Time       `json:"cancelled_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

type ParticipantDTO struct {
	VendorID uuid.UUID `json:"vendor_id"`
	Quantity int       `json:"quantity"`
	JoinedAt time.Time `json:"joined_at"`
}

type SettlementFailureDTO struct {
	ID           uuid.UUID  `json:"id"`
	ErrorCode    string     `json:"error_code"`
	ErrorMessage string     `json:"error_message"`
	AttemptedAt  time.Time  `json:"attempted_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

func NewGroupOrderDTO(group *models.GroupOrder) GroupOrderDTO {
	participants := make([]ParticipantDTO, 0, len(group.Participants))
	for _, p := range group.Participants {
		participants = append(participants, ParticipantDTO{
			VendorID: p.VendorID,
			Quantity: p.Quantity,
			JoinedAt: p.JoinedAt,
		})
	}
	remaining := group.TargetQuantity - group.CurrentQuantity
	if remaining < 0 {
		remaining = 0
	}
	return GroupOrderDTO{
		ID:                group.ID,
		ProductID:         group.ProductID,
		ProductName:       group.ProductName,
		SupplierID:        group.SupplierID,
		CreatorVendorID:   group.CreatorVendorID,
		TargetQuantity:    group.TargetQuantity,
		CurrentQuantity:   group.CurrentQuantity,
		RemainingQuantity: remaining,
		MaxPrice:          group.MaxPrice,
		Status:            group.Status.String(),
		SettlementStatus:  group.SettlementStatus.String(),
		EndDate:           group.EndDate,
		Description:       group.Description,
		Participants:      participants,
		CompletedAt:       group.CompletedAt,
		ExpiredAt:         group.ExpiredAt,
		CancelledAt:       group.CancelledAt,
		CreatedAt:         group.CreatedAt,
		UpdatedAt:         group.UpdatedAt,
	}
}

func NewGroupOrderPageDTO(page *pagination.Page[models.GroupOrder]) pagination.Page[GroupOrderDTO] {
	items := make([]GroupOrderDTO, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, NewGroupOrderDTO(&page.Items[i]))
	}
	return pagination.Page[GroupOrderDTO]{Items: items, NextCursor: page.NextCursor}
}

func NewSettlementFailureDTOs(failures []models.SettlementFailure) []SettlementFailureDTO {
	out := make([]SettlementFailureDTO, 0, len(failures))
	for _, f := range failures {
		out = append(out, SettlementFailureDTO{
			ID:           f.ID,
			ErrorCode:    f.ErrorCode,
			ErrorMessage: f.ErrorMessage,
			AttemptedAt:  f.AttemptedAt,
			ResolvedAt:   f.ResolvedAt,
		})
	}
	return out
}
