// Package app assembles the catalog, order and group-order engines over one
// database, locker and outbox so every binary wires them the same way.
package app

import (
	"fmt"

	"github.com/angelmondragon/mandi-backend/internal/catalog"
	"github.com/angelmondragon/mandi-backend/internal/grouporders"
	"github.com/angelmondragon/mandi-backend/internal/orders"
	"github.com/angelmondragon/mandi-backend/pkg/config"
	"github.com/angelmondragon/mandi-backend/pkg/db"
	"github.com/angelmondragon/mandi-backend/pkg/locks"
	"github.com/angelmondragon/mandi-backend/pkg/logger"
	"github.com/angelmondragon/mandi-backend/pkg/metrics"
	"github.com/angelmondragon/mandi-backend/pkg/outbox"
)

type Params struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	Locker  locks.Locker
	Metrics *metrics.DomainMetrics
}

type Services struct {
	Catalog     catalog.Service
	Orders      orders.Service
	GroupOrders grouporders.Service
}

func NewServices(params Params) (*Services, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	conn := params.DB.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	catalogSvc, err := catalog.NewService(catalog.NewRepository(conn), params.DB, params.Locker, emitter, params.Metrics)
	if err != nil {
		return nil, fmt.Errorf("catalog service: %w", err)
	}
	orderSvc, err := orders.NewService(orders.NewRepository(conn), params.DB, params.Locker, catalogSvc, emitter, params.Metrics)
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}
	groupSvc, err := grouporders.NewService(grouporders.ServiceParams{
		Repo:       grouporders.NewRepository(conn),
		Tx:         params.DB,
		Locker:     params.Locker,
		Catalog:    catalogSvc,
		Orders:     orderSvc,
		Outbox:     emitter,
		Metrics:    params.Metrics,
		Logger:     logg,
		SweepBatch: params.Config.GroupOrders.ExpirySweepBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("group orders service: %w", err)
	}

	return &Services{
		Catalog:     catalogSvc,
		Orders:      orderSvc,
		GroupOrders: groupSvc,
	}, nil
}
