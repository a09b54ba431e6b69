package grouporders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/mandi-backend/internal/orders"
	"github.com/angelmondragon/mandi-backend/pkg/auth"
	"github.com/angelmondragon/mandi-backend/pkg/db/models"
	"github.com/angelmondragon/mandi-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mandi-backend/pkg/errors"
	"github.com/angelmondragon/mandi-backend/pkg/locks"
	"github.com/angelmondragon/mandi-backend/pkg/logger"
	"github.com/angelmondragon/mandi-backend/pkg/outbox"
	"github.com/angelmondragon/mandi-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/mandi-backend/pkg/pagination"
)

const defaultSweepBatch = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Catalog is the slice of the catalog used to snapshot products and move
// stock at settlement.
type Catalog interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ProductsForUpdate(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	AdjustStockTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, delta int) (*models.Product, error)
}

type groupMetrics interface {
	GroupOrderTransition(status string)
	SettlementFailed()
	OrderCreated(source string)
}

type noopMetrics struct{}

func (noopMetrics) GroupOrderTransition(string) {}
func (noopMetrics) SettlementFailed()           {}
func (noopMetrics) OrderCreated(string)         {}

// Service defines the group-order engine.
type Service interface {
	Create(ctx context.Context, actor auth.Actor, input CreateInput) (*models.GroupOrder, error)
	Join(ctx context.Context, actor auth.Actor, groupOrderID uuid.UUID, input JoinInput) (*models.GroupOrder, error)
	Cancel(ctx context.Context, actor auth.Actor, groupOrderID uuid.UUID) (*models.GroupOrder, error)
	Get(ctx context.Context, actor auth.Actor, groupOrderID uuid.UUID) (*models.GroupOrder, error)
	List(ctx context.Context, actor auth.Actor, input ListInput) (*pagination.Page[models.GroupOrder], error)
	ExpireStaleGroupOrders(ctx context.Context, now time.Time) (int, error)
	SettleStranded(ctx context.Context, completedBefore time.Time) (int, error)
	RetrySettlement(ctx context.Context, actor auth.Actor, groupOrderID uuid.UUID) (*models.GroupOrder, error)
	ListSettlementFailures(ctx context.Context, actor auth.Actor, groupOrderID uuid.UUID) ([]models.SettlementFailure, error)
}

// CreateInput describes a new pool.
type CreateInput struct {
	ProductID      uuid.UUID
	TargetQuantity int
	MaxPrice       decimal.Decimal
	EndDate        time.Time
	Description    string
}

// JoinInput is a vendor's commitment. Joining again replaces the quantity.
type JoinInput struct {
	Quantity        int
	DeliveryAddress string
	PaymentMethod   *enums.PaymentMethod
}

type ListInput struct {
	Status          *enums.GroupOrderStatus
	ProductID       *uuid.UUID
	CreatorVendorID *uuid.UUID
	SupplierID      *uuid.UUID
	Limit           int
	Cursor          string
}

// ServiceParams wires the engine's collaborators.
type ServiceParams struct {
	Repo       *Repository
	Tx         txRunner
	Locker     locks.Locker
	Catalog    Catalog
	Orders     orders.Placer
	Outbox     outbox.Emitter
	Metrics    groupMetrics
	Logger     *logger.Logger
	SweepBatch int
}

type service struct {
	repo       *Repository
	tx         txRunner
	locker     locks.Locker
	catalog    Catalog
	orders     orders.Placer
	outbox     outbox.Emitter
	metrics    groupMetrics
	logg       *logger.Logger
	sweepBatch int
	now        func() time.Time
}

// NewService builds the group-order engine.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("group orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order placer required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	metrics := params.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	batch := params.SweepBatch
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &service{
		repo:       params.Repo,
		tx:         params.Tx,
		locker:     params.Locker,
		catalog:    params.Catalog,
		orders:     params.Orders,
		outbox:     params.Outbox,
		metrics:    metrics,
		logg:       logg,
		sweepBatch: batch,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, actor auth.Actor, input CreateInput) (*models.GroupOrder, error) {
	if err := actor.RequireRole(enums.ActorRoleVendor); err != nil {
		return nil, err
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.TargetQuantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "target quantity must be greater than zero").
			WithDetails(map[string]any{"target_quantity": input.TargetQuantity})
	}
	if input.MaxPrice.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "max price cannot be negative")
	}
	now := s.now()
	if !input.EndDate.After(now) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidEndDate, "end date must be in the future").
			WithDetails(map[string]any{"end_date": input.EndDate})
	}

	product, err := s.catalog.GetProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}

	group := &models.GroupOrder{
		ID:               uuid.New(),
		ProductID:        product.ID,
		ProductName:      product.Name,
		SupplierID:       product.SupplierID,
		CreatorVendorID:  actor.ID,
		TargetQuantity:   input.TargetQuantity,
		MaxPrice:         input.MaxPrice.Round(2),
		Status:           enums.GroupOrderStatusActive,
		SettlementStatus: enums.SettlementStatusNone,
		EndDate:          input.EndDate.UTC(),
		Description:      strings.TrimSpace(input.Description),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, group); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert group order")
		}
		return s.emit(ctx, tx, actor, group.ID, enums.EventGroupOrderCreated, now, payloads.GroupOrderCreatedEvent{
			GroupOrderID:    group.ID,
			ProductID:       group.ProductID,
			CreatorVendorID: group.CreatorVendorID,
			TargetQuantity:  group.TargetQuantity,
			MaxPrice:        group.MaxPrice,
			EndDate:         group.EndDate,
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.GroupOrderTransition(enums.GroupOrderStatusActive.String())
	group.Participants = []models.GroupOrderParticipant{}
	return group, nil
}

// Join records a vendor's quantity. The join that first reaches the target
// completes the pool and triggers settlement after its own commit; a
// settlement failure is reported on the returned group, not as an error.
func (s *service) Join(ctx context.Context, actor auth.Actor, groupOrderID uuid.UUID, input JoinInput) (*models.GroupOrder, error) {
	if err := actor.RequireRole(enums.ActorRoleVendor); err != nil {
		return nil, err
	}
	if input.PaymentMethod != nil && !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown payment method %q", *input.PaymentMethod)
	}

	unlock, err := s.locker.Lock(ctx, locks.GroupOrderKey(groupOrderID.String()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire group order lock")
	}
	defer unlock()

	var expired, completed bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		group, err := repo.FindByIDForUpdate(ctx, groupOrderID)
		if err != nil {
			return mapGroupErr(err, groupOrderID)
		}
		if group.Status != enums.GroupOrderStatusActive {
			return closedErr(group.Status)
		}
		now := s.now()
		if now.After(group.EndDate) {
			expired = true
			_, err := s.expireTx(ctx, tx, group, now)
			return err
		}
		if input.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be greater than zero").
				WithDetails(map[string]any{"quantity": input.Quantity})
		}

		err = repo.UpsertParticipant(ctx, &models.GroupOrderParticipant{
			ID:              uuid.New(),
			GroupOrderID:    group.ID,
			VendorID:        actor.ID,
			Quantity:        input.Quantity,
			DeliveryAddress: strings.TrimSpace(input.DeliveryAddress),
			PaymentMethod:   input.PaymentMethod,
			JoinedAt:        now,
			UpdatedAt:       now,
		})
		if errors.Is(err, ErrParticipantExists) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "concurrent join for this vendor, retry")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save participant")
		}
		total, err := repo.SumQuantity(ctx, group.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum participant quantities")
		}

		updates := map[string]any{"current_quantity": total}
		if total >= group.TargetQuantity {
			completed = true
			updates["status"] = enums.GroupOrderStatusCompleted
			updates["completed_at"] = now
		}
		ok, err := repo.UpdateWhereStatus(ctx, group.ID, enums.GroupOrderStatusActive, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update group order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "group order changed concurrently")
		}

		err = s.emit(ctx, tx, actor, group.ID, enums.EventGroupOrderJoined, now, payloads.GroupOrderJoinedEvent{
			GroupOrderID:    group.ID,
			VendorID:        actor.ID,
			Quantity:        input.Quantity,
			CurrentQuantity: total,
			TargetQuantity:  group.TargetQuantity,
		})
		if err != nil || !completed {
			return err
		}

		current, err := repo.FindByID(ctx, group.ID)
		if err != nil {
			return mapGroupErr(err, group.ID)
		}
		return s.emit(ctx, tx, actor, group.ID, enums.EventGroupOrderCompleted, now, payloads.GroupOrderCompletedEvent{
			GroupOrderID:     group.ID,
			ProductID:        group.ProductID,
			SupplierID:       group.SupplierID,
			CurrentQuantity:  total,
			TargetQuantity:   group.TargetQuantity,
			MaxPrice:         group.MaxPrice,
			ParticipantCount: len(current.Participants),
			CompletedAt:      now,
		})
	})
	if err != nil {
		return nil, err
	}

	if expired {
		s.metrics.GroupOrderTransition(enums.GroupOrderStatusExpired.String())
		return nil, closedErr(enums.GroupOrderStatusExpired)
	}
	if completed {
		s.metrics.GroupOrderTransition(enums.GroupOrderStatusCompleted.String())
		if group, _ := s.settle(ctx, actor, groupOrderID); group != nil {
			return group, nil
		}
	}
	return s.load(ctx, groupOrderID)
}

// Cancel withdraws an active pool. Only its creator or an admin may do so.
func (s *service) Cancel(ctx context.Context, actor auth.Actor, groupOrderID uuid.UUID) (*models.GroupOrder, error) {
	if err := actor.RequireRole(enums.ActorRoleVendor, enums.ActorRoleAdmin); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, locks.GroupOrderKey(groupOrderID.String()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire group order lock")
	}
	defer unlock()

	var expired bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		group, err := repo.FindByIDForUpdate(ctx, groupOrderID)
		if err != nil {
			return mapGroupErr(err, groupOrderID)
		}
		if !actor.IsAdmin() && group.CreatorVendorID != actor.ID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the creator can cancel a group order")
		}
		if group.Status != enums.GroupOrderStatusActive {
			return closedErr(group.Status)
		}
		now := s.now()
		if now.After(group.EndDate) {
			expired = true
			_, err := s.expireTx(ctx, tx, group, now)
			return err
		}

		ok, err := repo.UpdateWhereStatus(ctx, group.ID, enums.GroupOrderStatusActive, map[string]any{
			"status":       enums.GroupOrderStatusCancelled,
			"cancelled_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel group order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "group order changed concurrently")
		}
		return s.emit(ctx, tx, actor, group.ID, enums.EventGroupOrderCanceled, now, payloads.GroupOrderCanceledEvent{
			GroupOrderID: group.ID,
			CanceledBy:   actor.ID,
			CanceledAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}
	if expired {
		s.metrics.GroupOrderTransition(enums.GroupOrderStatusExpired.String())
		return nil, closedErr(enums.GroupOrderStatusExpired)
	}
	s.metrics.GroupOrderTransition(enums.GroupOrderStatusCancelled.String())
	return s.load(ctx, groupOrderID)
}

func (s *service) Get(ctx context.Context, actor auth.Actor, groupOrderID uuid.UUID) (*models.GroupOrder, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	group, err := s.load(ctx, groupOrderID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if group.Status != enums.GroupOrderStatusActive || !now.After(group.EndDate) {
		return group, nil
	}
	if _, err := s.expireOne(ctx, groupOrderID, now); err != nil {
		return nil, err
	}
	return s.load(ctx, groupOrderID)
}

func (s *service) List(ctx context.Context, actor auth.Actor, input ListInput) (*pagination.Page[models.GroupOrder], error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid group order status filter")
	}
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	if _, err := s.ExpireStaleGroupOrders(ctx, s.now()); err != nil {
		s.logg.Error(ctx, "lazy group order expiry failed", err)
	}

	filter := ListFilter{
		Status:          input.Status,
		ProductID:       input.ProductID,
		CreatorVendorID: input.CreatorVendorID,
		SupplierID:      input.SupplierID,
	}
	rows, err := s.repo.List(ctx, filter, cursor, pagination.LimitWithBuffer(input.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list group orders")
	}
	page := pagination.BuildPage(rows, input.Limit, func(g models.GroupOrder) pagination.Cursor {
		return pagination.Cursor{CreatedAt: g.CreatedAt, ID: g.ID}
	})
	return &page, nil
}

// ExpireStaleGroupOrders moves every active pool past its end date to
// expired and returns how many transitioned. Running it twice is harmless.
func (s *service) ExpireStaleGroupOrders(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.repo.ListStaleActiveIDs(ctx, now.UTC(), s.sweepBatch)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale group orders")
	}
	var (
		count int
		errs  error
	)
	for _, id := range ids {
		expired, err := s.expireOne(ctx, id, now.UTC())
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire group order %s: %w", id, err))
			continue
		}
		if expired {
			count++
		}
	}
	return count, errs
}

// SettleStranded settles completed pools whose settlement phase never ran.
// Pools with a recorded failure are left for RetrySettlement.
func (s *service) SettleStranded(ctx context.Context, completedBefore time.Time) (int, error) {
	ids, err := s.repo.ListUnsettledIDs(ctx, completedBefore.UTC(), s.sweepBatch)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unsettled group orders")
	}
	system := auth.Actor{Role: enums.ActorRoleAdmin}
	var (
		count int
		errs  error
	)
	for _, id := range ids {
		err := s.withGroupLock(ctx, id, func() error {
			_, err := s.settle(ctx, system, id)
			return err
		})
		if err != nil {
			if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				errs = multierr.Append(errs, fmt.Errorf("settle group order %s: %w", id, err))
			}
			continue
		}
		count++
	}
	return count, errs
}

// RetrySettlement re-runs settlement for a completed pool whose previous
// attempt failed.
func (s *service) RetrySettlement(ctx context.Context, actor auth.Actor, groupOrderID uuid.UUID) (*models.GroupOrder, error) {
	if err := actor.RequireRole(enums.ActorRoleAdmin); err != nil {
		return nil, err
	}
	var settled *models.GroupOrder
	err := s.withGroupLock(ctx, groupOrderID, func() error {
		group, err := s.load(ctx, groupOrderID)
		if err != nil {
			return err
		}
		if group.Status != enums.GroupOrderStatusCompleted || group.SettlementStatus != enums.SettlementStatusFailed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "group order has no failed settlement").
				WithDetails(map[string]any{"status": group.Status, "settlement_status": group.SettlementStatus})
		}
		settled, err = s.settle(ctx, actor, groupOrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeSettlementFailed, err, "settlement retry failed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

func (s *service) ListSettlementFailures(ctx context.Context, actor auth.Actor, groupOrderID uuid.UUID) ([]models.SettlementFailure, error) {
	if err := actor.RequireRole(enums.ActorRoleAdmin); err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, groupOrderID); err != nil {
		return nil, err
	}
	failures, err := s.repo.ListFailures(ctx, groupOrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settlement failures")
	}
	return failures, nil
}

func (s *service) withGroupLock(ctx context.Context, id uuid.UUID, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, locks.GroupOrderKey(id.String()))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire group order lock")
	}
	defer unlock()
	return fn()
}

// expireOne re-checks the pool under its lock before expiring it.
func (s *service) expireOne(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	var expired bool
	err := s.withGroupLock(ctx, id, func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			group, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, id)
			if err != nil {
				return mapGroupErr(err, id)
			}
			if group.Status != enums.GroupOrderStatusActive || !now.After(group.EndDate) {
				return nil
			}
			expired, err = s.expireTx(ctx, tx, group, now)
			return err
		})
	})
	if err != nil {
		return false, err
	}
	if expired {
		s.metrics.GroupOrderTransition(enums.GroupOrderStatusExpired.String())
	}
	return expired, nil
}

func (s *service) expireTx(ctx context.Context, tx *gorm.DB, group *models.GroupOrder, now time.Time) (bool, error) {
	ok, err := s.repo.WithTx(tx).UpdateWhereStatus(ctx, group.ID, enums.GroupOrderStatusActive, map[string]any{
		"status":     enums.GroupOrderStatusExpired,
		"expired_at": now,
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire group order")
	}
	if !ok {
		return false, nil
	}
	err = s.emit(ctx, tx, auth.Actor{}, group.ID, enums.EventGroupOrderExpired, now, payloads.GroupOrderExpiredEvent{
		GroupOrderID:    group.ID,
		CurrentQuantity: group.CurrentQuantity,
		TargetQuantity:  group.TargetQuantity,
		EndDate:         group.EndDate,
		ExpiredAt:       now,
	})
	return err == nil, err
}

// settle converts a completed pool into one order per participant. The caller
// holds the group lock. Failures are recorded on the pool and returned along
// with the reloaded group.
func (s *service) settle(ctx context.Context, actor auth.Actor, groupOrderID uuid.UUID) (*models.GroupOrder, error) {
	settleErr := s.attemptSettlement(ctx, actor, groupOrderID)
	if settleErr != nil && !pkgerrors.IsCode(settleErr, pkgerrors.CodeStateConflict) {
		s.metrics.SettlementFailed()
		logCtx := s.logg.WithField(ctx, "group_order_id", groupOrderID.String())
		s.logg.Error(logCtx, "group order settlement failed", settleErr)
		if err := s.recordFailure(ctx, actor, groupOrderID, settleErr); err != nil {
			s.logg.Error(logCtx, "record settlement failure", err)
		}
	}
	group, err := s.load(ctx, groupOrderID)
	if err != nil {
		if settleErr != nil {
			return nil, settleErr
		}
		return nil, err
	}
	return group, settleErr
}

func (s *service) attemptSettlement(ctx context.Context, actor auth.Actor, groupOrderID uuid.UUID) error {
	snapshot, err := s.load(ctx, groupOrderID)
	if err != nil {
		return err
	}
	unlock, err := s.locker.Lock(ctx, locks.ProductKey(snapshot.ProductID.String()))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire product lock")
	}
	defer unlock()

	var orderIDs []uuid.UUID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		group, err := repo.FindByIDForUpdate(ctx, groupOrderID)
		if err != nil {
			return mapGroupErr(err, groupOrderID)
		}
		if group.Status != enums.GroupOrderStatusCompleted || group.SettlementStatus == enums.SettlementStatusSettled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "group order is not awaiting settlement").
				WithDetails(map[string]any{"status": group.Status, "settlement_status": group.SettlementStatus})
		}

		products, err := s.catalog.ProductsForUpdate(ctx, tx, []uuid.UUID{group.ProductID})
		if err != nil {
			return err
		}
		product, ok := products[group.ProductID]
		if !ok {
			return pkgerrors.Newf(pkgerrors.CodeProductNotFound, "product %s not found", group.ProductID).
				WithDetails(map[string]any{"product_id": group.ProductID})
		}
		if product.AvailableQuantity < group.CurrentQuantity {
			return pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "insufficient stock for %s", product.Name).
				WithDetails(map[string]any{
					"product_id":   product.ID,
					"product_name": product.Name,
					"available":    product.AvailableQuantity,
					"requested":    group.CurrentQuantity,
				})
		}
		if _, err := s.catalog.AdjustStockTx(ctx, tx, product.ID, -group.CurrentQuantity); err != nil {
			return err
		}

		groupID := group.ID
		for _, participant := range group.Participants {
			payment := enums.PaymentMethodCashOnDelivery
			if participant.PaymentMethod != nil {
				payment = *participant.PaymentMethod
			}
			order, err := s.orders.PlaceTx(ctx, tx, actor, orders.Draft{
				VendorID:        participant.VendorID,
				SupplierID:      group.SupplierID,
				GroupOrderID:    &groupID,
				DeliveryAddress: participant.DeliveryAddress,
				PaymentMethod:   payment,
				Lines: []orders.DraftLine{{
					ProductID:   group.ProductID,
					ProductName: group.ProductName,
					Unit:        product.Unit,
					UnitPrice:   group.MaxPrice,
					Quantity:    participant.Quantity,
				}},
			})
			if err != nil {
				return err
			}
			orderIDs = append(orderIDs, order.ID)
		}

		now := s.now()
		ok, err = repo.UpdateWhereStatus(ctx, group.ID, enums.GroupOrderStatusCompleted, map[string]any{
			"settlement_status": enums.SettlementStatusSettled,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark group order settled")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "group order changed concurrently")
		}
		if err := repo.ResolveFailures(ctx, group.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve settlement failures")
		}
		return s.emit(ctx, tx, actor, group.ID, enums.EventGroupOrderSettled, now, payloads.GroupOrderSettledEvent{
			GroupOrderID: group.ID,
			OrderIDs:     orderIDs,
			Quantity:     group.CurrentQuantity,
			SettledAt:    now,
		})
	})
	if err != nil {
		return err
	}
	for range orderIDs {
		s.metrics.OrderCreated("settlement")
	}
	return nil
}

func (s *service) recordFailure(ctx context.Context, actor auth.Actor, groupOrderID uuid.UUID, cause error) error {
	now := s.now()
	failure := &models.SettlementFailure{
		ID:           uuid.New(),
		GroupOrderID: groupOrderID,
		ErrorCode:    string(pkgerrors.CodeOf(cause)),
		ErrorMessage: cause.Error(),
		AttemptedAt:  now,
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.InsertFailure(ctx, failure); err != nil {
			return err
		}
		if _, err := repo.UpdateWhereStatus(ctx, groupOrderID, enums.GroupOrderStatusCompleted, map[string]any{
			"settlement_status": enums.SettlementStatusFailed,
		}); err != nil {
			return err
		}
		return s.emit(ctx, tx, actor, groupOrderID, enums.EventGroupOrderSettlementFailed, now, payloads.GroupOrderSettlementFailedEvent{
			GroupOrderID: groupOrderID,
			FailureID:    failure.ID,
			ErrorCode:    failure.ErrorCode,
			Error:        failure.ErrorMessage,
			AttemptedAt:  now,
		})
	})
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.GroupOrder, error) {
	group, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapGroupErr(err, id)
	}
	return group, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, actor auth.Actor, id uuid.UUID, eventType enums.OutboxEventType, at time.Time, data any) error {
	var ref *outbox.ActorRef
	if actor.ID != uuid.Nil {
		ref = &outbox.ActorRef{ActorID: actor.ID, Role: actor.Role.String()}
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateGroupOrder,
		AggregateID:   id,
		Actor:         ref,
		OccurredAt:    at,
		Data:          data,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+string(eventType))
	}
	return nil
}

func closedErr(status enums.GroupOrderStatus) error {
	return pkgerrors.Newf(pkgerrors.CodeGroupOrderClosed, "group order is %s", status).
		WithDetails(map[string]any{"status": status})
}

func mapGroupErr(err error, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "group order %s not found", id)
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group order")
}
