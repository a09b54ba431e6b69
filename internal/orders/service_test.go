package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/mandi-backend/internal/catalog"
	"github.com/angelmondragon/mandi-backend/pkg/auth"
	"github.com/angelmondragon/mandi-backend/pkg/db"
	"github.com/angelmondragon/mandi-backend/pkg/db/dbtest"
	"github.com/angelmondragon/mandi-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mandi-backend/pkg/errors"
	"github.com/angelmondragon/mandi-backend/pkg/locks"
	"github.com/angelmondragon/mandi-backend/pkg/outbox"
)

type fixture struct {
	client  *db.Client
	catalog catalog.Service
	svc     Service
	outbox  *outbox.Repository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Open(t)
	locker := locks.NewLocal()
	outboxRepo := outbox.NewRepository(client.DB())
	emitter := outbox.NewService(outboxRepo, nil)

	catalogSvc, err := catalog.NewService(catalog.NewRepository(client.DB()), client, locker, emitter, nil)
	require.NoError(t, err)
	svc, err := NewService(NewRepository(client.DB()), client, locker, catalogSvc, emitter, nil)
	require.NoError(t, err)
	return fixture{client: client, catalog: catalogSvc, svc: svc, outbox: outboxRepo}
}

func vendor() auth.Actor {
	return auth.NewActor(uuid.New(), enums.ActorRoleVendor)
}

func supplierOf(id uuid.UUID) auth.Actor {
	return auth.NewActor(id, enums.ActorRoleSupplier)
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, pkgerrors.CodeOf(err), "unexpected error: %v", err)
}

func cart(items ...CartItem) SubmitInput {
	return SubmitInput{Items: items, DeliveryAddress: "Stall 12, Chandni Chowk", PaymentMethod: enums.PaymentMethodUPI}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestSubmitOrderSnapshotsPriceAndDecrementsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := dbtest.MustCreateProduct(t, f.client.DB(), dbtest.WithStock(100), dbtest.WithPrice("25"))

	order, err := f.svc.SubmitOrder(ctx, vendor(), cart(CartItem{ProductID: product.ID, Quantity: 30}))
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.True(t, decimal.RequireFromString("750").Equal(order.Total), "total %s", order.Total)
	assert.Equal(t, product.SupplierID, order.SupplierID)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Red Onion", order.Items[0].ProductName)
	assert.Equal(t, 70, dbtest.ReloadProduct(t, f.client.DB(), product.ID).AvailableQuantity)

	events, err := f.outbox.ListByAggregate(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderCreated, events[0].EventType)
}

func TestSubmitOrderTotalsIgnoreLaterPriceChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplierID := uuid.New()
	onion := dbtest.MustCreateProduct(t, f.client.DB(), dbtest.WithSupplier(supplierID), dbtest.WithPrice("25.50"))
	chilli := dbtest.MustCreateProduct(t, f.client.DB(), dbtest.WithSupplier(supplierID), dbtest.WithName("Green Chilli"), dbtest.WithPrice("12.25"))
	buyer := vendor()

	order, err := f.svc.SubmitOrder(ctx, buyer, cart(
		CartItem{ProductID: onion.ID, Quantity: 3},
		CartItem{ProductID: chilli.ID, Quantity: 4},
		CartItem{ProductID: onion.ID, Quantity: 1},
	))
	require.NoError(t, err)
	require.Len(t, order.Items, 2)

	newPrice := decimal.RequireFromString("99")
	_, err = f.catalog.UpdateProduct(ctx, supplierOf(supplierID), onion.ID, catalog.UpdateProductInput{UnitPrice: &newPrice})
	require.NoError(t, err)

	stored, err := f.svc.GetOrder(ctx, buyer, order.ID)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, item := range stored.Items {
		assert.True(t, item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Equal(item.LineTotal))
		sum = sum.Add(item.LineTotal)
	}
	assert.True(t, sum.Equal(stored.Total))
	assert.True(t, decimal.RequireFromString("151").Equal(stored.Total), "total %s", stored.Total)
	assert.Equal(t, 4, stored.Items[0].Quantity)
	assert.True(t, decimal.RequireFromString("25.50").Equal(stored.Items[0].UnitPrice))
}

func TestSubmitOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := dbtest.MustCreateProduct(t, f.client.DB(), dbtest.WithStock(10))
	other := dbtest.MustCreateProduct(t, f.client.DB(), dbtest.WithStock(10))

	_, err := f.svc.SubmitOrder(ctx, vendor(), cart())
	requireCode(t, err, pkgerrors.CodeEmptyCart)

	_, err = f.svc.SubmitOrder(ctx, vendor(), cart(CartItem{ProductID: product.ID, Quantity: 0}))
	requireCode(t, err, pkgerrors.CodeInvalidQuantity)

	_, err = f.svc.SubmitOrder(ctx, vendor(), cart(CartItem{ProductID: uuid.New(), Quantity: 1}))
	requireCode(t, err, pkgerrors.CodeProductNotFound)

	_, err = f.svc.SubmitOrder(ctx, vendor(), cart(
		CartItem{ProductID: product.ID, Quantity: 1},
		CartItem{ProductID: other.ID, Quantity: 1},
	))
	requireCode(t, err, pkgerrors.CodeMixedSuppliers)

	_, err = f.svc.SubmitOrder(ctx, auth.NewActor(uuid.New(), enums.ActorRoleSupplier), cart(CartItem{ProductID: product.ID, Quantity: 1}))
	requireCode(t, err, pkgerrors.CodeForbidden)

	input := cart(CartItem{ProductID: product.ID, Quantity: 1})
	input.PaymentMethod = "barter"
	_, err = f.svc.SubmitOrder(ctx, vendor(), input)
	requireCode(t, err, pkgerrors.CodeValidation)

	assert.Equal(t, 10, dbtest.ReloadProduct(t, f.client.DB(), product.ID).AvailableQuantity)
	assert.Equal(t, 10, dbtest.ReloadProduct(t, f.client.DB(), other.ID).AvailableQuantity)
}

func TestSubmitOrderInsufficientStockLeavesStockUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplierID := uuid.New()
	plenty := dbtest.MustCreateProduct(t, f.client.DB(), dbtest.WithSupplier(supplierID), dbtest.WithStock(50))
	scarce := dbtest.MustCreateProduct(t, f.client.DB(), dbtest.WithSupplier(supplierID), dbtest.WithName("Saffron"), dbtest.WithStock(2))

	_, err := f.svc.SubmitOrder(ctx, vendor(), cart(
		CartItem{ProductID: plenty.ID, Quantity: 5},
		CartItem{ProductID: scarce.ID, Quantity: 3},
	))
	requireCode(t, err, pkgerrors.CodeInsufficientStock)
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Saffron", details["product_name"])

	assert.Equal(t, 50, dbtest.ReloadProduct(t, f.client.DB(), plenty.ID).AvailableQuantity)
	assert.Equal(t, 2, dbtest.ReloadProduct(t, f.client.DB(), scarce.ID).AvailableQuantity)
}

func TestSubmitOrderSumsRepeatedProductsBeforeStockCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := dbtest.MustCreateProduct(t, f.client.DB(), dbtest.WithStock(5))

	_, err := f.svc.SubmitOrder(ctx, vendor(), cart(
		CartItem{ProductID: product.ID, Quantity: 3},
		CartItem{ProductID: product.ID, Quantity: 3},
	))
	requireCode(t, err, pkgerrors.CodeInsufficientStock)
	assert.Equal(t, 5, dbtest.ReloadProduct(t, f.client.DB(), product.ID).AvailableQuantity)
}

func TestSubmitOrderRejectsRemovedProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplierID := uuid.New()
	product := dbtest.MustCreateProduct(t, f.client.DB(), dbtest.WithSupplier(supplierID))
	require.NoError(t, f.catalog.RemoveProduct(ctx, supplierOf(supplierID), product.ID))

	_, err := f.svc.SubmitOrder(ctx, vendor(), cart(CartItem{ProductID: product.ID, Quantity: 1}))
	requireCode(t, err, pkgerrors.CodeProductNotFound)
}

func TestSubmitCartSplitsPerSupplier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := dbtest.MustCreateProduct(t, f.client.DB(), dbtest.WithStock(10), dbtest.WithPrice("10"))
	b := dbtest.MustCreateProduct(t, f.client.DB(), dbtest.WithStock(10), dbtest.WithPrice("20"))

	created, err := f.svc.SubmitCart(ctx, vendor(), cart(
		CartItem{ProductID: a.ID, Quantity: 2},
		CartItem{ProductID: b.ID, Quantity: 1},
	))
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, a.SupplierID, created[0].SupplierID)
	assert.True(t, decimal.RequireFromString("20").Equal(created[0].Total))
	assert.Equal(t, b.SupplierID, created[1].SupplierID)
	assert.True(t, decimal.RequireFromString("20").Equal(created[1].Total))
	assert.Equal(t, 8, dbtest.ReloadProduct(t, f.client.DB(), a.ID).AvailableQuantity)
	assert.Equal(t, 9, dbtest.ReloadProduct(t, f.client.DB(), b.ID).AvailableQuantity)
}

func TestSubmitCartIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := dbtest.MustCreateProduct(t, f.client.DB(), dbtest.WithStock(10))
	b := dbtest.MustCreateProduct(t, f.client.DB(), dbtest.WithStock(1))
	buyer := vendor()

	_, err := f.svc.SubmitCart(ctx, buyer, cart(
		CartItem{ProductID: a.ID, Quantity: 2},
		CartItem{ProductID: b.ID, Quantity: 2},
	))
	requireCode(t, err, pkgerrors.CodeInsufficientStock)
	assert.Equal(t, 10, dbtest.ReloadProduct(t, f.client.DB(), a.ID).AvailableQuantity)

	page, err := f.svc.ListOrders(ctx, buyer, ListInput{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestAdvanceStatusWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := dbtest.MustCreateProduct(t, f.client.DB())
	buyer := vendor()
	seller := supplierOf(product.SupplierID)

	order, err := f.svc.SubmitOrder(ctx, buyer, cart(CartItem{ProductID: product.ID, Quantity: 30}))
	require.NoError(t, err)

	confirmed, err := f.svc.AdvanceStatus(ctx, seller, order.ID, enums.OrderStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, confirmed.Status)

	_, err = f.svc.AdvanceStatus(ctx, seller, order.ID, enums.OrderStatusCancelled)
	requireCode(t, err, pkgerrors.CodeInvalidTransition)
	details := pkgerrors.As(err).Details().(map[string]any)
	assert.Equal(t, enums.OrderStatusConfirmed, details["current"])
	assert.Equal(t, enums.OrderStatusCancelled, details["requested"])

	_, err = f.svc.AdvanceStatus(ctx, seller, order.ID, enums.OrderStatusShipped)
	requireCode(t, err, pkgerrors.CodeInvalidTransition)

	_, err = f.svc.AdvanceStatus(ctx, buyer, order.ID, enums.OrderStatusProcessing)
	requireCode(t, err, pkgerrors.CodeForbidden)

	for _, next := range []enums.OrderStatus{enums.OrderStatusProcessing, enums.OrderStatusShipped, enums.OrderStatusDelivered} {
		_, err = f.svc.AdvanceStatus(ctx, seller, order.ID, next)
		require.NoError(t, err)
	}

	_, err = f.svc.AdvanceStatus(ctx, seller, order.ID, enums.OrderStatusCancelled)
	requireCode(t, err, pkgerrors.CodeOrderClosed)

	events, err := f.outbox.ListByAggregate(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestAdvanceStatusCancelRestocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := dbtest.MustCreateProduct(t, f.client.DB(), dbtest.WithStock(40))
	buyer := vendor()

	order, err := f.svc.SubmitOrder(ctx, buyer, cart(CartItem{ProductID: product.ID, Quantity: 15}))
	require.NoError(t, err)
	assert.Equal(t, 25, dbtest.ReloadProduct(t, f.client.DB(), product.ID).AvailableQuantity)

	cancelled, err := f.svc.AdvanceStatus(ctx, buyer, order.ID, enums.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 40, dbtest.ReloadProduct(t, f.client.DB(), product.ID).AvailableQuantity)

	_, err = f.svc.AdvanceStatus(ctx, buyer, order.ID, enums.OrderStatusConfirmed)
	requireCode(t, err, pkgerrors.CodeOrderClosed)
}

func TestAdvanceStatusRejectsStrangers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := dbtest.MustCreateProduct(t, f.client.DB())
	order, err := f.svc.SubmitOrder(ctx, vendor(), cart(CartItem{ProductID: product.ID, Quantity: 1}))
	require.NoError(t, err)

	_, err = f.svc.AdvanceStatus(ctx, supplierOf(uuid.New()), order.ID, enums.OrderStatusConfirmed)
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.AdvanceStatus(ctx, vendor(), order.ID, enums.OrderStatusCancelled)
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.AdvanceStatus(ctx, supplierOf(product.SupplierID), uuid.New(), enums.OrderStatusConfirmed)
	requireCode(t, err, pkgerrors.CodeNotFound)

	admin := auth.NewActor(uuid.New(), enums.ActorRoleAdmin)
	confirmed, err := f.svc.AdvanceStatus(ctx, admin, order.ID, enums.OrderStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, confirmed.Status)
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := dbtest.MustCreateProduct(t, f.client.DB(), dbtest.WithStock(100))

	const workers = 10
	results := make([]error, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			_, results[i] = f.svc.SubmitOrder(ctx, vendor(), cart(CartItem{ProductID: product.ID, Quantity: 15}))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "unexpected error: %v", err)
	}
	assert.Equal(t, 6, succeeded)
	assert.Equal(t, 10, dbtest.ReloadProduct(t, f.client.DB(), product.ID).AvailableQuantity)
}

func TestListOrdersScopesAndPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := dbtest.MustCreateProduct(t, f.client.DB())
	buyer := vendor()
	for i := 0; i < 3; i++ {
		_, err := f.svc.SubmitOrder(ctx, buyer, cart(CartItem{ProductID: product.ID, Quantity: 1}))
		require.NoError(t, err)
	}
	_, err := f.svc.SubmitOrder(ctx, vendor(), cart(CartItem{ProductID: product.ID, Quantity: 1}))
	require.NoError(t, err)

	first, err := f.svc.ListOrders(ctx, buyer, ListInput{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := f.svc.ListOrders(ctx, buyer, ListInput{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.NextCursor)

	seen := map[uuid.UUID]bool{}
	for _, o := range append(first.Items, second.Items...) {
		assert.Equal(t, buyer.ID, o.VendorID)
		assert.False(t, seen[o.ID])
		seen[o.ID] = true
	}

	supplierPage, err := f.svc.ListOrders(ctx, supplierOf(product.SupplierID), ListInput{})
	require.NoError(t, err)
	assert.Len(t, supplierPage.Items, 4)

	pending := enums.OrderStatusPending
	filtered, err := f.svc.ListOrders(ctx, supplierOf(uuid.New()), ListInput{Status: &pending})
	require.NoError(t, err)
	assert.Empty(t, filtered.Items)

	_, err = f.svc.ListOrders(ctx, buyer, ListInput{Cursor: "%%%"})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestGetOrderRequiresParty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := dbtest.MustCreateProduct(t, f.client.DB())
	order, err := f.svc.SubmitOrder(ctx, vendor(), cart(CartItem{ProductID: product.ID, Quantity: 1}))
	require.NoError(t, err)

	_, err = f.svc.GetOrder(ctx, vendor(), order.ID)
	requireCode(t, err, pkgerrors.CodeForbidden)

	got, err := f.svc.GetOrder(ctx, supplierOf(product.SupplierID), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = f.svc.GetOrder(ctx, auth.Actor{}, order.ID)
	requireCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestAdvanceStatusOnClosedOrderReportsClosedBeforeValidatingTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := dbtest.MustCreateProduct(t, f.client.DB())
	buyer := vendor()

	order, err := f.svc.SubmitOrder(ctx, buyer, cart(CartItem{ProductID: product.ID, Quantity: 2}))
	require.NoError(t, err)

	_, err = f.svc.AdvanceStatus(ctx, buyer, order.ID, enums.OrderStatus("teleported"))
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.AdvanceStatus(ctx, buyer, order.ID, enums.OrderStatusCancelled)
	require.NoError(t, err)

	_, err = f.svc.AdvanceStatus(ctx, buyer, order.ID, enums.OrderStatus("teleported"))
	requireCode(t, err, pkgerrors.CodeOrderClosed)
}

type orderRecorder struct {
	created     []string
	transitions []string
	rejected    []string
}

func (r *orderRecorder) OrderCreated(source string) { r.created = append(r.created, source) }
func (r *orderRecorder) OrderTransition(from, to string) {
	r.transitions = append(r.transitions, from+"->"+to)
}
func (r *orderRecorder) StockRejected(reason string) { r.rejected = append(r.rejected, reason) }

func TestNewServiceDefaultsMetrics(t *testing.T) {
	f := newFixture(t)
	assert.IsType(t, noopMetrics{}, f.svc.(*service).metrics)
}

func TestOrderMetricsRecordOutcomes(t *testing.T) {
	client := dbtest.Open(t)
	locker := locks.NewLocal()
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	catalogSvc, err := catalog.NewService(catalog.NewRepository(client.DB()), client, locker, emitter, nil)
	require.NoError(t, err)
	recorder := &orderRecorder{}
	svc, err := NewService(NewRepository(client.DB()), client, locker, catalogSvc, emitter, recorder)
	require.NoError(t, err)
	ctx := context.Background()

	first := dbtest.MustCreateProduct(t, client.DB(), dbtest.WithStock(10))
	second := dbtest.MustCreateProduct(t, client.DB(), dbtest.WithStock(10))

	order, err := svc.SubmitOrder(ctx, vendor(), cart(CartItem{ProductID: first.ID, Quantity: 1}))
	require.NoError(t, err)
	_, err = svc.SubmitCart(ctx, vendor(), cart(
		CartItem{ProductID: first.ID, Quantity: 1},
		CartItem{ProductID: second.ID, Quantity: 1},
	))
	require.NoError(t, err)
	_, err = svc.SubmitOrder(ctx, vendor(), cart(CartItem{ProductID: second.ID, Quantity: 50}))
	requireCode(t, err, pkgerrors.CodeInsufficientStock)
	_, err = svc.AdvanceStatus(ctx, supplierOf(first.SupplierID), order.ID, enums.OrderStatusConfirmed)
	require.NoError(t, err)

	assert.Equal(t, []string{"order", "cart", "cart"}, recorder.created)
	assert.Equal(t, []string{"insufficient"}, recorder.rejected)
	assert.Equal(t, []string{"pending->confirmed"}, recorder.transitions)
}
