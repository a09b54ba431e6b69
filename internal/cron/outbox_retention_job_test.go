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

type fakeEventDeleter struct {
	pending     int64
	cutoff      time.Time
	minAttempts int
	limits      []int
	err         error
}

func (f *fakeEventDeleter) DeleteExpired(_ context.Context, cutoff time.Time, minAttemptCount, limit int) (int64, error) {
	f.cutoff = cutoff
	f.minAttempts = minAttemptCount
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return 0, f.err
	}
	n := min(f.pending, int64(limit))
	f.pending -= n
	return n, nil
}

type fakeDeadLetterPruner struct {
	cutoff time.Time
	calls  int
	err    error
}

func (f *fakeDeadLetterPruner) DeleteFailedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	return 2, f.err
}

var retentionNow = time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

func newRetentionJob(t *testing.T, params OutboxRetentionJobParams) *outboxRetentionJob {
	t.Helper()
	params.Logger = logger.Nop()
	job, err := NewOutboxRetentionJob(params)
	require.NoError(t, err)
	rj := job.(*outboxRetentionJob)
	rj.now = func() time.Time { return retentionNow }
	return rj
}

func TestOutboxRetentionJobDefaults(t *testing.T) {
	events := &fakeEventDeleter{}
	letters := &fakeDeadLetterPruner{}
	job := newRetentionJob(t, OutboxRetentionJobParams{Events: events, DeadLetters: letters})

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, retentionNow.AddDate(0, 0, -defaultEventRetentionDays), events.cutoff)
	assert.Equal(t, defaultRetentionMinAttempts, events.minAttempts)
	assert.Equal(t, []int{defaultRetentionBatch}, events.limits)
	assert.Equal(t, retentionNow.AddDate(0, 0, -defaultDeadLetterRetentionDays), letters.cutoff)
}

func TestOutboxRetentionJobDrainsInBatches(t *testing.T) {
	events := &fakeEventDeleter{pending: 25}
	job := newRetentionJob(t, OutboxRetentionJobParams{Events: events, Batch: 10, RetentionDays: 7})

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []int{10, 10, 10}, events.limits)
	assert.Zero(t, events.pending)
	assert.Equal(t, time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC), events.cutoff)
}

func TestOutboxRetentionJobExactMultipleStopsOnEmptyBatch(t *testing.T) {
	events := &fakeEventDeleter{pending: 20}
	job := newRetentionJob(t, OutboxRetentionJobParams{Events: events, Batch: 10})

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, events.limits, 3)
}

func TestOutboxRetentionJobPropagatesErrors(t *testing.T) {
	job := newRetentionJob(t, OutboxRetentionJobParams{Events: &fakeEventDeleter{err: errors.New("boom")}})
	require.ErrorContains(t, job.Run(context.Background()), "outbox retention")

	letters := &fakeDeadLetterPruner{err: errors.New("boom")}
	job = newRetentionJob(t, OutboxRetentionJobParams{Events: &fakeEventDeleter{}, DeadLetters: letters})
	require.ErrorContains(t, job.Run(context.Background()), "dead letter retention")
	assert.Equal(t, 1, letters.calls)
}

func TestOutboxRetentionJobStopsWhenCancelled(t *testing.T) {
	events := &fakeEventDeleter{pending: 100}
	job := newRetentionJob(t, OutboxRetentionJobParams{Events: events})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, job.Run(ctx), context.Canceled)
	assert.Empty(t, events.limits)
}
