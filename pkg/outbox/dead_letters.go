package outbox

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/angelmondragon/mandi-backend/pkg/db/models"
	"github.com/angelmondragon/mandi-backend/pkg/enums"
)

const (
	maxDeadLetterMessage  = 1024
	defaultDeadLetterPage = 50
	maxDeadLetterPage     = 200
)

// DeadLetterFilter narrows ListDeadLetters. Zero values match everything.
type DeadLetterFilter struct {
	EventType *enums.OutboxEventType
	Reason    *enums.DeadLetterReason
	Limit     int
}

// DeadLetterRepository stores events the publisher stopped retrying.
type DeadLetterRepository struct {
	db *gorm.DB
}

func NewDeadLetterRepository(db *gorm.DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

// InsertTx writes entry inside the publisher's batch transaction, capping the
// stored error message.
func (r *DeadLetterRepository) InsertTx(tx *gorm.DB, entry models.DeadLetter) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := clipMessage(*entry.ErrorMessage, maxDeadLetterMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// ListDeadLetters returns the newest dead letters first.
func (r *DeadLetterRepository) ListDeadLetters(ctx context.Context, filter DeadLetterFilter) ([]models.DeadLetter, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDeadLetterPage
	}
	if limit > maxDeadLetterPage {
		limit = maxDeadLetterPage
	}
	q := r.db.WithContext(ctx).Model(&models.DeadLetter{})
	if filter.EventType != nil {
		q = q.Where("event_type = ?", *filter.EventType)
	}
	if filter.Reason != nil {
		q = q.Where("error_reason = ?", *filter.Reason)
	}
	var rows []models.DeadLetter
	err := q.Order("failed_at DESC").Order("id").Limit(limit).Find(&rows).Error
	return rows, err
}

// DeleteFailedBefore prunes dead letters older than cutoff.
func (r *DeadLetterRepository) DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("failed_at < ?", cutoff).Delete(&models.DeadLetter{})
	return res.RowsAffected, res.Error
}

// clipMessage cuts msg to at most max bytes without splitting a rune.
func clipMessage(msg string, max int) string {
	if len(msg) <= max {
		return msg
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
