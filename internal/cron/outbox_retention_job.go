package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/mandi-backend/pkg/logger"
)

const (
	defaultEventRetentionDays      = 30
	defaultDeadLetterRetentionDays = 90
	defaultRetentionMinAttempts    = 5
	defaultRetentionBatch          = 500
)

type expiredEventDeleter interface {
	DeleteExpired(ctx context.Context, cutoff time.Time, minAttemptCount, limit int) (int64, error)
}

type deadLetterPruner interface {
	DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configures outbox housekeeping. Zero values fall
// back to package defaults; a nil DeadLetters skips dead-letter pruning.
type OutboxRetentionJobParams struct {
	Logger              *logger.Logger
	Events              expiredEventDeleter
	DeadLetters         deadLetterPruner
	RetentionDays       int
	DeadLetterRetention int
	MinAttempts         int
	Batch               int
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	events      expiredEventDeleter
	deadLetters deadLetterPruner
	eventDays   int
	letterDays  int
	minAttempts int
	batch       int
	now         func() time.Time
}

// NewOutboxRetentionJob deletes finished outbox rows in batches and prunes
// old dead letters.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Events == nil {
		return nil, errors.New("outbox event repository required")
	}
	return &outboxRetentionJob{
		logg:        params.Logger,
		events:      params.Events,
		deadLetters: params.DeadLetters,
		eventDays:   positiveOr(params.RetentionDays, defaultEventRetentionDays),
		letterDays:  positiveOr(params.DeadLetterRetention, defaultDeadLetterRetentionDays),
		minAttempts: positiveOr(params.MinAttempts, defaultRetentionMinAttempts),
		batch:       positiveOr(params.Batch, defaultRetentionBatch),
		now:         time.Now,
	}, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	eventCutoff := now.AddDate(0, 0, -j.eventDays)

	var events int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := j.events.DeleteExpired(ctx, eventCutoff, j.minAttempts, j.batch)
		if err != nil {
			return fmt.Errorf("outbox retention: %w", err)
		}
		events += n
		if n < int64(j.batch) {
			break
		}
	}

	var letters int64
	if j.deadLetters != nil {
		n, err := j.deadLetters.DeleteFailedBefore(ctx, now.AddDate(0, 0, -j.letterDays))
		if err != nil {
			return fmt.Errorf("dead letter retention: %w", err)
		}
		letters = n
	}

	if events > 0 || letters > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"event_cutoff":         eventCutoff,
			"events_deleted":       events,
			"dead_letters_deleted": letters,
		}), "outbox retention pass complete")
	}
	return nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
