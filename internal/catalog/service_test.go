package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mandi-backend/pkg/auth"
	"github.com/angelmondragon/mandi-backend/pkg/db"
	"github.com/angelmondragon/mandi-backend/pkg/db/dbtest"
	"github.com/angelmondragon/mandi-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mandi-backend/pkg/errors"
	"github.com/angelmondragon/mandi-backend/pkg/locks"
	"github.com/angelmondragon/mandi-backend/pkg/outbox"
)

type fixture struct {
	client *db.Client
	svc    Service
	outbox *outbox.Repository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Open(t)
	outboxRepo := outbox.NewRepository(client.DB())
	svc, err := NewService(NewRepository(client.DB()), client, locks.NewLocal(), outbox.NewService(outboxRepo, nil), nil)
	require.NoError(t, err)
	return fixture{client: client, svc: svc, outbox: outboxRepo}
}

func supplier(id uuid.UUID) auth.Actor {
	return auth.NewActor(id, enums.ActorRoleSupplier)
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, pkgerrors.CodeOf(err), "unexpected error: %v", err)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestGetProductHidesRemoved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplierID := uuid.New()
	product := dbtest.MustCreateProduct(t, f.client.DB(), dbtest.WithSupplier(supplierID))

	got, err := f.svc.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, "Red Onion", got.Name)

	require.NoError(t, f.svc.RemoveProduct(ctx, supplier(supplierID), product.ID))

	_, err = f.svc.GetProduct(ctx, product.ID)
	requireCode(t, err, pkgerrors.CodeProductNotFound)

	removed := dbtest.ReloadProduct(t, f.client.DB(), product.ID)
	assert.True(t, removed.DeletedAt.Valid)
}

func TestAdjustStockRejectsNegativeResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplierID := uuid.New()
	product := dbtest.MustCreateProduct(t, f.client.DB(), dbtest.WithSupplier(supplierID), dbtest.WithStock(5))

	_, err := f.svc.AdjustStock(ctx, supplier(supplierID), product.ID, -6)
	requireCode(t, err, pkgerrors.CodeNegativeStock)
	assert.Equal(t, 5, dbtest.ReloadProduct(t, f.client.DB(), product.ID).AvailableQuantity)

	events, err := f.outbox.ListByAggregate(ctx, product.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAdjustStockRestockEmitsEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplierID := uuid.New()
	product := dbtest.MustCreateProduct(t, f.client.DB(), dbtest.WithSupplier(supplierID), dbtest.WithStock(5))

	updated, err := f.svc.AdjustStock(ctx, supplier(supplierID), product.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, 25, updated.AvailableQuantity)

	events, err := f.outbox.ListByAggregate(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventProductStockAdjusted, events[0].EventType)
}

func TestAdjustStockOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := dbtest.MustCreateProduct(t, f.client.DB())

	_, err := f.svc.AdjustStock(ctx, supplier(uuid.New()), product.ID, 1)
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.AdjustStock(ctx, auth.NewActor(uuid.New(), enums.ActorRoleVendor), product.ID, 1)
	requireCode(t, err, pkgerrors.CodeForbidden)

	admin := auth.NewActor(uuid.New(), enums.ActorRoleAdmin)
	updated, err := f.svc.AdjustStock(ctx, admin, product.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 101, updated.AvailableQuantity)
}

func TestAdjustStockTxAppliesDeltaWithinTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := dbtest.MustCreateProduct(t, f.client.DB(), dbtest.WithStock(3))

	_, err := f.svc.AdjustStockTx(ctx, f.client.DB(), uuid.New(), -1)
	requireCode(t, err, pkgerrors.CodeProductNotFound)

	updated, err := f.svc.AdjustStockTx(ctx, f.client.DB(), product.ID, -3)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.AvailableQuantity)

	_, err = f.svc.AdjustStockTx(ctx, f.client.DB(), product.ID, -1)
	requireCode(t, err, pkgerrors.CodeNegativeStock)
}

func TestCreateProductValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplierID := uuid.New()

	base := CreateProductInput{
		Name:              "  Basmati Rice ",
		Category:          enums.ProductCategoryGrains,
		UnitPrice:         decimal.RequireFromString("89.5"),
		Unit:              enums.ProductUnitKg,
		AvailableQuantity: 40,
	}

	created, err := f.svc.CreateProduct(ctx, supplier(supplierID), base)
	require.NoError(t, err)
	assert.Equal(t, "Basmati Rice", created.Name)
	assert.Equal(t, supplierID, created.SupplierID)

	bad := base
	bad.UnitPrice = decimal.RequireFromString("-1")
	_, err = f.svc.CreateProduct(ctx, supplier(supplierID), bad)
	requireCode(t, err, pkgerrors.CodeValidation)

	bad = base
	bad.Category = "furniture"
	_, err = f.svc.CreateProduct(ctx, supplier(supplierID), bad)
	requireCode(t, err, pkgerrors.CodeValidation)

	bad = base
	bad.AvailableQuantity = -1
	_, err = f.svc.CreateProduct(ctx, supplier(supplierID), bad)
	requireCode(t, err, pkgerrors.CodeNegativeStock)

	_, err = f.svc.CreateProduct(ctx, auth.NewActor(uuid.New(), enums.ActorRoleVendor), base)
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.CreateProduct(ctx, auth.NewActor(uuid.New(), enums.ActorRoleAdmin), base)
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestUpdateProductChangesPriceOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplierID := uuid.New()
	product := dbtest.MustCreateProduct(t, f.client.DB(), dbtest.WithSupplier(supplierID))

	price := decimal.RequireFromString("30")
	updated, err := f.svc.UpdateProduct(ctx, supplier(supplierID), product.ID, UpdateProductInput{UnitPrice: &price})
	require.NoError(t, err)
	assert.True(t, price.Equal(updated.UnitPrice))
	assert.Equal(t, product.Name, updated.Name)
	assert.Equal(t, product.AvailableQuantity, updated.AvailableQuantity)

	_, err = f.svc.UpdateProduct(ctx, supplier(uuid.New()), product.ID, UpdateProductInput{UnitPrice: &price})
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestListProductsFiltersAndSorts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.client.DB()
	supplierID := uuid.New()

	dbtest.MustCreateProduct(t, conn, dbtest.WithName("Tomato"), dbtest.WithPrice("30"), dbtest.WithSupplier(supplierID))
	dbtest.MustCreateProduct(t, conn, dbtest.WithName("Onion"), dbtest.WithPrice("25"), dbtest.WithSupplier(supplierID))
	dbtest.MustCreateProduct(t, conn, dbtest.WithName("Cumin"), dbtest.WithPrice("120"), dbtest.WithCategory(enums.ProductCategorySpices))
	dbtest.MustCreateProduct(t, conn, dbtest.WithName("Sold Out Chilli"), dbtest.WithPrice("60"), dbtest.WithStock(0), dbtest.WithCategory(enums.ProductCategorySpices))

	all, err := f.svc.ListProducts(ctx, ListProductsInput{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, all.Total)
	assert.Equal(t, []string{"Cumin", "Onion", "Sold Out Chilli", "Tomato"}, names(all))

	cheap, err := f.svc.ListProducts(ctx, ListProductsInput{Sort: enums.ProductSortPriceLow})
	require.NoError(t, err)
	assert.Equal(t, "Onion", cheap.Items[0].Name)

	dear, err := f.svc.ListProducts(ctx, ListProductsInput{Sort: enums.ProductSortPriceHigh})
	require.NoError(t, err)
	assert.Equal(t, "Cumin", dear.Items[0].Name)

	spices := enums.ProductCategorySpices
	inStock, err := f.svc.ListProducts(ctx, ListProductsInput{Category: &spices, InStock: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Cumin"}, names(inStock))

	bySupplier, err := f.svc.ListProducts(ctx, ListProductsInput{SupplierID: &supplierID, Query: "TOM"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Tomato"}, names(bySupplier))

	paged, err := f.svc.ListProducts(ctx, ListProductsInput{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 4, paged.Total)
	assert.Equal(t, []string{"Sold Out Chilli", "Tomato"}, names(paged))

	_, err = f.svc.ListProducts(ctx, ListProductsInput{Sort: "random"})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func names(list *ProductList) []string {
	out := make([]string, 0, len(list.Items))
	for _, item := range list.Items {
		out = append(out, item.Name)
	}
	return out
}

type stockRecorder struct {
	rejected []string
}

func (r *stockRecorder) StockRejected(reason string) { r.rejected = append(r.rejected, reason) }

func TestNewServiceDefaultsMetrics(t *testing.T) {
	f := newFixture(t)
	assert.IsType(t, noopMetrics{}, f.svc.(*service).metrics)
}

func TestAdjustStockCountsNegativeRejection(t *testing.T) {
	client := dbtest.Open(t)
	recorder := &stockRecorder{}
	svc, err := NewService(NewRepository(client.DB()), client, locks.NewLocal(), outbox.NewService(outbox.NewRepository(client.DB()), nil), recorder)
	require.NoError(t, err)
	supplierID := uuid.New()
	product := dbtest.MustCreateProduct(t, client.DB(), dbtest.WithSupplier(supplierID), dbtest.WithStock(1))

	_, err = svc.AdjustStock(context.Background(), supplier(supplierID), product.ID, -2)
	requireCode(t, err, pkgerrors.CodeNegativeStock)
	assert.Equal(t, []string{"negative"}, recorder.rejected)
}
