package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

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

// StockCatalog is the slice of the catalog the order engine needs. Callers
// hold the product locks before invoking either method.
type StockCatalog interface {
	ProductsForUpdate(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	AdjustStockTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, delta int) (*models.Product, error)
}

type orderMetrics interface {
	OrderCreated(source string)
	OrderTransition(from, to string)
	StockRejected(reason string)
}

type noopMetrics struct{}

func (noopMetrics) OrderCreated(string)            {}
func (noopMetrics) OrderTransition(string, string) {}
func (noopMetrics) StockRejected(string)           {}

// Service defines the order engine.
type Service interface {
	SubmitOrder(ctx context.Context, actor auth.Actor, input SubmitInput) (*models.Order, error)
	SubmitCart(ctx context.Context, actor auth.Actor, input SubmitInput) ([]models.Order, error)
	AdvanceStatus(ctx context.Context, actor auth.Actor, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error)
	GetOrder(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, actor auth.Actor, input ListInput) (*pagination.Page[models.Order], error)

	Placer
}

// Placer writes a priced order and its OrderCreated event inside the
// caller's transaction. Stock is the caller's responsibility.
type Placer interface {
	PlaceTx(ctx context.Context, tx *gorm.DB, actor auth.Actor, draft Draft) (*models.Order, error)
}

// CartItem is one requested line of a vendor's cart.
type CartItem struct {
	ProductID uuid.UUID
	Quantity  int
}

// SubmitInput carries a cart checkout.
type SubmitInput struct {
	Items           []CartItem
	DeliveryAddress string
	PaymentMethod   enums.PaymentMethod
}

// Draft is an order ready to be written with snapshot prices.
type Draft struct {
	VendorID        uuid.UUID
	SupplierID      uuid.UUID
	GroupOrderID    *uuid.UUID
	DeliveryAddress string
	PaymentMethod   enums.PaymentMethod
	Lines           []DraftLine
}

type DraftLine struct {
	ProductID   uuid.UUID
	ProductName string
	Unit        enums.ProductUnit
	UnitPrice   decimal.Decimal
	Quantity    int
}

// ListInput filters an order listing. VendorID and SupplierID only apply to
// admins; other roles are scoped to their own orders.
type ListInput struct {
	Status       *enums.OrderStatus
	GroupOrderID *uuid.UUID
	VendorID     *uuid.UUID
	SupplierID   *uuid.UUID
	Limit        int
	Cursor       string
}

type service struct {
	repo    Repository
	tx      txRunner
	locker  locks.Locker
	catalog StockCatalog
	outbox  outbox.Emitter
	metrics orderMetrics
	now     func() time.Time
}

// NewService builds the order engine with its collaborators.
func NewService(repo Repository, tx txRunner, locker locks.Locker, catalog StockCatalog, emitter outbox.Emitter, metrics orderMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("stock catalog required")
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
		catalog: catalog,
		outbox:  emitter,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// SubmitOrder turns a single-supplier cart into one pending order.
func (s *service) SubmitOrder(ctx context.Context, actor auth.Actor, input SubmitInput) (*models.Order, error) {
	created, err := s.submit(ctx, actor, input, false)
	if err != nil {
		return nil, err
	}
	return &created[0], nil
}

// SubmitCart splits a cart per supplier and creates every order or none.
func (s *service) SubmitCart(ctx context.Context, actor auth.Actor, input SubmitInput) ([]models.Order, error) {
	return s.submit(ctx, actor, input, true)
}

type cartLine struct {
	productID uuid.UUID
	quantity  int
}

func (s *service) submit(ctx context.Context, actor auth.Actor, input SubmitInput, splitBySupplier bool) ([]models.Order, error) {
	if err := actor.RequireRole(enums.ActorRoleVendor); err != nil {
		return nil, err
	}
	lines, err := mergeCart(input.Items)
	if err != nil {
		return nil, err
	}
	payment, err := normalizePayment(input.PaymentMethod)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(lines))
	keys := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.productID)
		keys = append(keys, locks.ProductKey(line.productID.String()))
	}
	unlock, err := s.locker.Lock(ctx, keys...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire product locks")
	}
	defer unlock()

	var created []models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		products, err := s.catalog.ProductsForUpdate(ctx, tx, ids)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if _, ok := products[line.productID]; !ok {
				return pkgerrors.Newf(pkgerrors.CodeProductNotFound, "product %s not found", line.productID).
					WithDetails(map[string]any{"product_id": line.productID})
			}
		}

		groups := groupBySupplier(lines, products)
		if !splitBySupplier && len(groups) > 1 {
			return pkgerrors.New(pkgerrors.CodeMixedSuppliers, "cart items belong to more than one supplier").
				WithDetails(map[string]any{"supplier_count": len(groups)})
		}

		for _, line := range lines {
			product := products[line.productID]
			if product.AvailableQuantity < line.quantity {
				s.metrics.StockRejected("insufficient")
				return pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "insufficient stock for %s", product.Name).
					WithDetails(map[string]any{
						"product_id":   product.ID,
						"product_name": product.Name,
						"available":    product.AvailableQuantity,
						"requested":    line.quantity,
					})
			}
		}

		for _, group := range groups {
			draft := Draft{
				VendorID:        actor.ID,
				SupplierID:      group.supplierID,
				DeliveryAddress: strings.TrimSpace(input.DeliveryAddress),
				PaymentMethod:   payment,
			}
			for _, line := range group.lines {
				product := products[line.productID]
				if _, err := s.catalog.AdjustStockTx(ctx, tx, product.ID, -line.quantity); err != nil {
					return err
				}
				draft.Lines = append(draft.Lines, DraftLine{
					ProductID:   product.ID,
					ProductName: product.Name,
					Unit:        product.Unit,
					UnitPrice:   product.UnitPrice,
					Quantity:    line.quantity,
				})
			}
			order, err := s.PlaceTx(ctx, tx, actor, draft)
			if err != nil {
				return err
			}
			created = append(created, *order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	source := "order"
	if splitBySupplier {
		source = "cart"
	}
	for range created {
		s.metrics.OrderCreated(source)
	}
	return created, nil
}

func (s *service) PlaceTx(ctx context.Context, tx *gorm.DB, actor auth.Actor, draft Draft) (*models.Order, error) {
	if len(draft.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "order has no items")
	}
	payment, err := normalizePayment(draft.PaymentMethod)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := &models.Order{
		ID:              uuid.New(),
		VendorID:        draft.VendorID,
		SupplierID:      draft.SupplierID,
		GroupOrderID:    draft.GroupOrderID,
		Status:          enums.OrderStatusPending,
		DeliveryAddress: draft.DeliveryAddress,
		PaymentMethod:   payment,
		StatusChangedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	total := decimal.Zero
	eventLines := make([]payloads.OrderLine, 0, len(draft.Lines))
	for i, line := range draft.Lines {
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be greater than zero")
		}
		price := line.UnitPrice.Round(2)
		lineTotal := price.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2)
		total = total.Add(lineTotal)
		order.Items = append(order.Items, models.OrderItem{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Unit:        line.Unit,
			UnitPrice:   price,
			Quantity:    line.Quantity,
			LineTotal:   lineTotal,
			Position:    i,
		})
		eventLines = append(eventLines, payloads.OrderLine{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			UnitPrice:   price,
			Quantity:    line.Quantity,
			LineTotal:   lineTotal,
		})
	}
	order.Total = total

	if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order")
	}

	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(actor),
		OccurredAt:    now,
		Data: payloads.OrderCreatedEvent{
			OrderID:       order.ID,
			VendorID:      order.VendorID,
			SupplierID:    order.SupplierID,
			GroupOrderID:  order.GroupOrderID,
			Total:         order.Total,
			PaymentMethod: order.PaymentMethod,
			Items:         eventLines,
			CreatedAt:     now,
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created")
	}
	return order, nil
}

// AdvanceStatus moves an order one step along the workflow.
func (s *service) AdvanceStatus(ctx context.Context, actor auth.Actor, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderErr(err, orderID)
	}
	keys := []string{locks.OrderKey(orderID.String())}
	if target == enums.OrderStatusCancelled {
		for _, item := range existing.Items {
			keys = append(keys, locks.ProductKey(item.ProductID.String()))
		}
	}
	unlock, err := s.locker.Lock(ctx, keys...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire order lock")
	}
	defer unlock()

	var (
		updated *models.Order
		from    enums.OrderStatus
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return mapOrderErr(err, orderID)
		}
		if err := authorizeParty(actor, order); err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return pkgerrors.Newf(pkgerrors.CodeOrderClosed, "order is already %s", order.Status).
				WithDetails(map[string]any{"current": order.Status})
		}
		if !target.IsValid() {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown order status %q", target)
		}
		if !CanTransition(order.Status, target) {
			return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "cannot move order from %s to %s", order.Status, target).
				WithDetails(map[string]any{"current": order.Status, "requested": target})
		}
		if err := authorizeTransition(actor, target); err != nil {
			return err
		}

		now := s.now()
		ok, err := repo.UpdateStatus(ctx, orderID, order.Status, target, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
		}

		if target == enums.OrderStatusCancelled {
			for _, item := range order.Items {
				_, err := s.catalog.AdjustStockTx(ctx, tx, item.ProductID, item.Quantity)
				if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeProductNotFound) {
					return err
				}
			}
		}

		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(actor),
			OccurredAt:    now,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:    order.ID,
				VendorID:   order.VendorID,
				SupplierID: order.SupplierID,
				From:       order.Status,
				To:         target,
				ChangedBy:  actor.ID,
				ChangedAt:  now,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status changed")
		}

		from = order.Status
		order.Status = target
		order.StatusChangedAt = now
		order.UpdatedAt = now
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderTransition(from.String(), target.String())
	return updated, nil
}

func (s *service) GetOrder(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderErr(err, orderID)
	}
	if err := authorizeParty(actor, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, actor auth.Actor, input ListInput) (*pagination.Page[models.Order], error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status filter")
	}
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	filter := ListFilter{Status: input.Status, GroupOrderID: input.GroupOrderID}
	switch {
	case actor.IsVendor():
		filter.VendorID = &actor.ID
	case actor.IsSupplier():
		filter.SupplierID = &actor.ID
	default:
		filter.VendorID = input.VendorID
		filter.SupplierID = input.SupplierID
	}

	rows, err := s.repo.List(ctx, filter, cursor, pagination.LimitWithBuffer(input.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page := pagination.BuildPage(rows, input.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &page, nil
}

// mergeCart validates the cart and sums quantities per product, keeping the
// order in which products first appear.
func mergeCart(items []CartItem) ([]cartLine, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}
	index := make(map[uuid.UUID]int, len(items))
	lines := make([]cartLine, 0, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be greater than zero").
				WithDetails(map[string]any{"product_id": item.ProductID, "quantity": item.Quantity})
		}
		if i, ok := index[item.ProductID]; ok {
			lines[i].quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(lines)
		lines = append(lines, cartLine{productID: item.ProductID, quantity: item.Quantity})
	}
	return lines, nil
}

type supplierGroup struct {
	supplierID uuid.UUID
	lines      []cartLine
}

func groupBySupplier(lines []cartLine, products map[uuid.UUID]models.Product) []supplierGroup {
	index := map[uuid.UUID]int{}
	var groups []supplierGroup
	for _, line := range lines {
		supplierID := products[line.productID].SupplierID
		i, ok := index[supplierID]
		if !ok {
			i = len(groups)
			index[supplierID] = i
			groups = append(groups, supplierGroup{supplierID: supplierID})
		}
		groups[i].lines = append(groups[i].lines, line)
	}
	return groups
}

func normalizePayment(method enums.PaymentMethod) (enums.PaymentMethod, error) {
	if method == "" {
		return enums.PaymentMethodCashOnDelivery, nil
	}
	if !method.IsValid() {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "unknown payment method %q", method)
	}
	return method, nil
}

// authorizeParty lets admins and the order's vendor or supplier through.
func authorizeParty(actor auth.Actor, order *models.Order) error {
	switch {
	case actor.IsAdmin():
		return nil
	case actor.IsVendor() && order.VendorID == actor.ID:
		return nil
	case actor.IsSupplier() && order.SupplierID == actor.ID:
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another party")
}

// authorizeTransition assumes authorizeParty passed. Either party may cancel;
// only the supplier moves an order forward.
func authorizeTransition(actor auth.Actor, target enums.OrderStatus) error {
	if actor.IsAdmin() || target == enums.OrderStatusCancelled || actor.IsSupplier() {
		return nil
	}
	return pkgerrors.Newf(pkgerrors.CodeForbidden, "only the supplier can move an order to %s", target)
}

func mapOrderErr(err error, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "order %s not found", id)
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func actorRef(actor auth.Actor) *outbox.ActorRef {
	return &outbox.ActorRef{ActorID: actor.ID, Role: actor.Role.String()}
}
