package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/mandi-backend/pkg/config"
	"github.com/angelmondragon/mandi-backend/pkg/db/models"
	"github.com/angelmondragon/mandi-backend/pkg/enums"
	"github.com/angelmondragon/mandi-backend/pkg/logger"
	"github.com/angelmondragon/mandi-backend/pkg/metrics"
	"github.com/angelmondragon/mandi-backend/pkg/outbox/registry"
)

const (
	fallbackBatchSize   = 50
	fallbackMaxAttempts = 10
	publishTimeout      = 15 * time.Second
	maxIdleBackoff      = 10 * time.Second
)

type database interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubsubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterWriter interface {
	InsertTx(tx *gorm.DB, entry models.DeadLetter) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config      config.OutboxConfig
	Logger      *logger.Logger
	DB          database
	PubSub      pubsubClient
	Events      eventStore
	Registry    resolver
	DeadLetters deadLetterWriter
	Metrics     *metrics.OutboxMetrics
	// Publishers overrides the Pub/Sub publisher per topic; tests use it.
	Publishers publisherFactory
}

// Service drains outbox_events to Pub/Sub. The aggregate id is the ordering
// key, so one order's or group order's events reach consumers in commit order.
type Service struct {
	logg        *logger.Logger
	db          database
	pubsub      pubsubClient
	events      eventStore
	registry    resolver
	deadLetters deadLetterWriter
	metrics     *metrics.OutboxMetrics
	topics      *topicPublishers

	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Events == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DeadLetters == nil:
		return nil, errors.New("dead letter writer is required")
	}

	factory := params.Publishers
	if factory == nil {
		factory = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic))
		}
	}

	s := &Service{
		logg:        params.Logger,
		db:          params.DB,
		pubsub:      params.PubSub,
		events:      params.Events,
		registry:    params.Registry,
		deadLetters: params.DeadLetters,
		metrics:     params.Metrics,
		topics:      newTopicPublishers(factory),
		batchSize:   params.Config.BatchSize,
		maxAttempts: params.Config.MaxAttempts,
		poll:        params.Config.PollInterval(),
	}
	if s.batchSize <= 0 {
		s.batchSize = fallbackBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = fallbackMaxAttempts
	}
	return s, nil
}

// Run polls until ctx is cancelled. Empty polls wait one interval; failed
// batches back off exponentially up to maxIdleBackoff.
func (s *Service) Run(ctx context.Context) error {
	defer s.topics.stopAll()

	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping: %w", err)
	}

	wait := newBackoff(s.poll, maxIdleBackoff)
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		claimed, err := s.drainOnce(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			err = sleepCtx(ctx, wait.next())
		case claimed > 0:
			wait.reset()
			continue
		default:
			wait.reset()
			err = sleepCtx(ctx, wait.jittered(s.poll))
		}
		if err != nil {
			return err
		}
	}
}

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDead
)

func (o outcome) label() string {
	switch o {
	case outcomePublished:
		return metrics.OutboxPublished
	case outcomeRetry:
		return metrics.OutboxRetried
	default:
		return metrics.OutboxDeadLettered
	}
}

// drainOnce claims and publishes one batch inside a transaction. After an
// aggregate's event fails for retry, its later events in the batch wait for
// the next poll so they cannot overtake it.
func (s *Service) drainOnce(ctx context.Context) (int, error) {
	claimed := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.events.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		claimed = len(rows)
		s.metrics.Batch(claimed)

		stalled := make(map[uuid.UUID]bool)
		for _, row := range rows {
			if stalled[row.AggregateID] {
				s.metrics.Event(string(row.EventType), metrics.OutboxHeldBack)
				continue
			}
			result, err := s.dispatch(ctx, tx, row)
			if err != nil {
				return err
			}
			s.metrics.Event(string(row.EventType), result.label())
			if result == outcomeRetry {
				stalled[row.AggregateID] = true
			}
		}
		return nil
	})
	return claimed, err
}

// dispatch publishes one row and records what happened to it. The returned
// error is only for bookkeeping failures, which abort the batch.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (outcome, error) {
	ctx = s.logg.WithFields(ctx, rowFields(row))

	resolved, err := s.registry.Resolve(row)
	if err != nil {
		return outcomeDead, s.deadLetter(ctx, tx, row, enums.DeadLetterNonRetryable, err)
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"topic":    resolved.Descriptor.Topic,
		"event_id": resolved.Envelope.EventID,
	})

	pubErr := s.publish(ctx, row, resolved)
	if pubErr == nil {
		if err := s.events.MarkPublishedTx(tx, row.ID); err != nil {
			return outcomePublished, fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		s.logg.Debug(ctx, "outbox event published")
		return outcomePublished, nil
	}

	var permanent registry.NonRetryableError
	if errors.As(pubErr, &permanent) {
		return outcomeDead, s.deadLetter(ctx, tx, row, enums.DeadLetterNonRetryable, pubErr)
	}
	if row.AttemptCount+1 >= s.maxAttempts {
		exhausted := fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, pubErr)
		return outcomeDead, s.deadLetter(ctx, tx, row, enums.DeadLetterMaxAttempts, exhausted)
	}

	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"attempt_count": row.AttemptCount + 1,
		"error":         pubErr.Error(),
	}), "outbox publish failed, will retry")
	if err := s.events.MarkFailedTx(tx, row.ID, pubErr); err != nil {
		return outcomeRetry, fmt.Errorf("mark failed %s: %w", row.ID, err)
	}
	return outcomeRetry, nil
}

// deadLetter copies row into outbox_dlq and parks it so it is never claimed
// again.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.DeadLetterReason, cause error) error {
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"dead_letter_reason": reason,
		"error":              cause.Error(),
	}), "outbox event dead-lettered")

	msg := cause.Error()
	if err := s.deadLetters.InsertTx(tx, models.DeadLetter{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		Reason:        reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("insert dead letter %s: %w", row.ID, err)
	}
	if err := s.events.MarkTerminalTx(tx, row.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}

func rowFields(row models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return fields
}
