package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mandi-backend/internal/grouporders"
	"github.com/angelmondragon/mandi-backend/internal/orders"
	"github.com/angelmondragon/mandi-backend/pkg/auth"
	"github.com/angelmondragon/mandi-backend/pkg/config"
	"github.com/angelmondragon/mandi-backend/pkg/db/dbtest"
	"github.com/angelmondragon/mandi-backend/pkg/db/models"
	"github.com/angelmondragon/mandi-backend/pkg/enums"
	"github.com/angelmondragon/mandi-backend/pkg/locks"
	"github.com/angelmondragon/mandi-backend/pkg/metrics"
)

func TestNewServicesRequiresCollaborators(t *testing.T) {
	client := dbtest.Open(t)

	_, err := NewServices(Params{DB: client, Locker: locks.NewLocal()})
	assert.Error(t, err)
	_, err = NewServices(Params{Config: &config.Config{}, Locker: locks.NewLocal()})
	assert.Error(t, err)
	_, err = NewServices(Params{Config: &config.Config{}, DB: client})
	assert.Error(t, err)
}

func TestNewServicesSharesStockAcrossEngines(t *testing.T) {
	client := dbtest.Open(t)
	reg := prometheus.NewRegistry()
	domainMetrics := metrics.NewDomainMetrics(reg)

	svcs, err := NewServices(Params{
		Config:  &config.Config{},
		DB:      client,
		Locker:  locks.NewLocal(),
		Metrics: domainMetrics,
	})
	require.NoError(t, err)

	product := dbtest.MustCreateProduct(t, client.DB(), dbtest.WithStock(10), dbtest.WithPrice("40"))
	ctx := context.Background()
	vendor := auth.NewActor(uuid.New(), enums.ActorRoleVendor)

	order, err := svcs.Orders.SubmitOrder(ctx, vendor, orders.SubmitInput{
		Items:         []orders.CartItem{{ProductID: product.ID, Quantity: 4}},
		PaymentMethod: enums.PaymentMethodUPI,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)

	group, err := svcs.GroupOrders.Create(ctx, vendor, grouporders.CreateInput{
		ProductID:      product.ID,
		TargetQuantity: 6,
		MaxPrice:       decimal.RequireFromString("45"),
		EndDate:        time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.GroupOrderStatusActive, group.Status)

	reloaded, err := svcs.Catalog.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, reloaded.AvailableQuantity)

	var events int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&events).Error)
	assert.GreaterOrEqual(t, events, int64(2))

	families, err := reg.Gather()
	require.NoError(t, err)
	var created float64
	for _, family := range families {
		if family.GetName() != "mandi_orders_created_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			created += metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), created)
}
