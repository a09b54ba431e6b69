package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/mandi-backend/pkg/logger"
)

const defaultSettlementGrace = 5 * time.Minute

type strandedSettler interface {
	SettleStranded(ctx context.Context, completedBefore time.Time) (int, error)
}

type SettlementScanJobParams struct {
	Logger  *logger.Logger
	Settler strandedSettler
	Grace   time.Duration
}

// NewSettlementScanJob settles completed group orders whose settlement
// phase never ran. Grace keeps it clear of settlements still in flight.
func NewSettlementScanJob(params SettlementScanJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Settler == nil {
		return nil, fmt.Errorf("settler required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultSettlementGrace
	}
	return &settlementScanJob{
		logg:    params.Logger,
		settler: params.Settler,
		grace:   grace,
		now:     time.Now,
	}, nil
}

type settlementScanJob struct {
	logg    *logger.Logger
	settler strandedSettler
	grace   time.Duration
	now     func() time.Time
}

func (j *settlementScanJob) Name() string { return "group-order-settlement-scan" }

func (j *settlementScanJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	settled, err := j.settler.SettleStranded(ctx, cutoff)
	if settled > 0 {
		j.logg.Warn(j.logg.WithField(ctx, "settled", settled), "settled stranded group orders")
	}
	if err != nil {
		return fmt.Errorf("settle stranded group orders: %w", err)
	}
	return nil
}
