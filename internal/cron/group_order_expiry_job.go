package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/mandi-backend/pkg/logger"
)

type groupOrderExpirer interface {
	ExpireStaleGroupOrders(ctx context.Context, now time.Time) (int, error)
}

type GroupOrderExpiryJobParams struct {
	Logger  *logger.Logger
	Expirer groupOrderExpirer
}

// NewGroupOrderExpiryJob sweeps active group orders past their end date.
func NewGroupOrderExpiryJob(params GroupOrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("group order expirer required")
	}
	return &groupOrderExpiryJob{
		logg:    params.Logger,
		expirer: params.Expirer,
		now:     time.Now,
	}, nil
}

type groupOrderExpiryJob struct {
	logg    *logger.Logger
	expirer groupOrderExpirer
	now     func() time.Time
}

func (j *groupOrderExpiryJob) Name() string { return "group-order-expiry" }

func (j *groupOrderExpiryJob) Run(ctx context.Context) error {
	count, err := j.expirer.ExpireStaleGroupOrders(ctx, j.now().UTC())
	if count > 0 {
		j.logg.Info(j.logg.WithField(ctx, "expired", count), "group orders expired")
	}
	if err != nil {
		return fmt.Errorf("expire group orders: %w", err)
	}
	return nil
}
