package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mandi-backend/pkg/logger"
)

type stubExpirer struct {
	at    time.Time
	count int
	err   error
}

func (s *stubExpirer) ExpireStaleGroupOrders(_ context.Context, now time.Time) (int, error) {
	s.at = now
	return s.count, s.err
}

type stubSettler struct {
	before time.Time
	count  int
	err    error
}

func (s *stubSettler) SettleStranded(_ context.Context, completedBefore time.Time) (int, error) {
	s.before = completedBefore
	return s.count, s.err
}

func TestGroupOrderExpiryJobPassesCurrentTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expirer := &stubExpirer{count: 3}
	job, err := NewGroupOrderExpiryJob(GroupOrderExpiryJobParams{Logger: logger.Nop(), Expirer: expirer})
	require.NoError(t, err)
	job.(*groupOrderExpiryJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now, expirer.at)
	assert.Equal(t, "group-order-expiry", job.Name())
}

func TestGroupOrderExpiryJobWrapsError(t *testing.T) {
	job, err := NewGroupOrderExpiryJob(GroupOrderExpiryJobParams{
		Logger:  logger.Nop(),
		Expirer: &stubExpirer{count: 1, err: errors.New("db down")},
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestSettlementScanJobAppliesGrace(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	settler := &stubSettler{}
	job, err := NewSettlementScanJob(SettlementScanJobParams{
		Logger:  logger.Nop(),
		Settler: settler,
		Grace:   10 * time.Minute,
	})
	require.NoError(t, err)
	job.(*settlementScanJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.Add(-10*time.Minute), settler.before)
}

func TestJobConstructorsRequireDependencies(t *testing.T) {
	_, err := NewGroupOrderExpiryJob(GroupOrderExpiryJobParams{Logger: logger.Nop()})
	require.Error(t, err)
	_, err = NewSettlementScanJob(SettlementScanJobParams{Logger: logger.Nop()})
	require.Error(t, err)
	_, err = NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop()})
	require.Error(t, err)
}
