package grouporders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/mandi-backend/pkg/db"
	"github.com/angelmondragon/mandi-backend/pkg/db/models"
	"github.com/angelmondragon/mandi-backend/pkg/enums"
	"github.com/angelmondragon/mandi-backend/pkg/pagination"
)

// ErrParticipantExists means another writer enrolled the vendor between
// the lookup and the insert.
var ErrParticipantExists = errors.New("group order participant already exists")

// Repository persists group orders, their participants and settlement
// failures.
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

func (r *Repository) Create(ctx context.Context, group *models.GroupOrder) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(group).Error
}

// FindByID loads the group order with participants in join order.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.GroupOrder, error) {
	var group models.GroupOrder
	err := r.db.WithContext(ctx).
		Preload("Participants", orderedParticipants).
		Where("id = ?", id).
		First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.GroupOrder, error) {
	var group models.GroupOrder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Participants", orderedParticipants).
		Where("id = ?", id).
		First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// UpsertParticipant records the vendor's quantity, replacing any earlier
// commitment to the same group order.
func (r *Repository) UpsertParticipant(ctx context.Context, participant *models.GroupOrderParticipant) error {
	var existing models.GroupOrderParticipant
	err := r.db.WithContext(ctx).
		Where("group_order_id = ? AND vendor_id = ?", participant.GroupOrderID, participant.VendorID).
		First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]any{
			"quantity":   participant.Quantity,
			"updated_at": participant.UpdatedAt,
		}
		if participant.DeliveryAddress != "" {
			updates["delivery_address"] = participant.DeliveryAddress
		}
		if participant.PaymentMethod != nil {
			updates["payment_method"] = *participant.PaymentMethod
		}
		return r.db.WithContext(ctx).Model(&models.GroupOrderParticipant{}).
			Where("id = ?", existing.ID).
			Updates(updates).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := r.db.WithContext(ctx).Create(participant).Error; err != nil {
			if db.IsUniqueViolation(err, "") {
				return ErrParticipantExists
			}
			return err
		}
		return nil
	default:
		return err
	}
}

// SumQuantity adds up every participant's committed quantity.
func (r *Repository) SumQuantity(ctx context.Context, groupID uuid.UUID) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.GroupOrderParticipant{}).
		Where("group_order_id = ?", groupID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

// UpdateWhereStatus applies updates only while the group is still in the
// expected status. It reports whether the row matched.
func (r *Repository) UpdateWhereStatus(ctx context.Context, id uuid.UUID, status enums.GroupOrderStatus, updates map[string]any) (bool, error) {
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.GroupOrder{}).
		Where("id = ? AND status = ?", id, status).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListStaleActiveIDs returns active group orders whose end date is before now.
func (r *Repository) ListStaleActiveIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.GroupOrder{}).
		Where("status = ? AND end_date < ?", enums.GroupOrderStatusActive, now).
		Order("end_date ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListFilter narrows a group order listing.
type ListFilter struct {
	Status          *enums.GroupOrderStatus
	ProductID       *uuid.UUID
	CreatorVendorID *uuid.UUID
	SupplierID      *uuid.UUID
}

// List returns up to limit group orders, newest first, strictly after cursor.
func (r *Repository) List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor, limit int) ([]models.GroupOrder, error) {
	query := r.db.WithContext(ctx).Model(&models.GroupOrder{}).Preload("Participants", orderedParticipants)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.CreatorVendorID != nil {
		query = query.Where("creator_vendor_id = ?", *filter.CreatorVendorID)
	}
	if filter.SupplierID != nil {
		query = query.Where("supplier_id = ?", *filter.SupplierID)
	}

	var groups []models.GroupOrder
	if err := query.Scopes(pagination.Newest(cursor, limit)).Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *Repository) InsertFailure(ctx context.Context, failure *models.SettlementFailure) error {
	return r.db.WithContext(ctx).Create(failure).Error
}

// ResolveFailures stamps resolved_at on every open failure of the group.
func (r *Repository) ResolveFailures(ctx context.Context, groupID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.SettlementFailure{}).
		Where("group_order_id = ? AND resolved_at IS NULL", groupID).
		Update("resolved_at", at).Error
}

func (r *Repository) ListFailures(ctx context.Context, groupID uuid.UUID) ([]models.SettlementFailure, error) {
	var failures []models.SettlementFailure
	err := r.db.WithContext(ctx).
		Where("group_order_id = ?", groupID).
		Order("attempted_at ASC").
		Find(&failures).Error
	if err != nil {
		return nil, err
	}
	return failures, nil
}

func orderedParticipants(db *gorm.DB) *gorm.DB {
	return db.Order("joined_at ASC").Order("id ASC")
}

// ListUnsettledIDs returns completed group orders that never reached the
// settlement phase, for example after a crash between the two commits.
func (r *Repository) ListUnsettledIDs(ctx context.Context, completedBefore time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.GroupOrder{}).
		Where("status = ? AND settlement_status = ? AND completed_at < ?",
			enums.GroupOrderStatusCompleted, enums.SettlementStatusNone, completedBefore).
		Order("completed_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
