package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/mandi-backend/api/responses"
	"github.com/angelmondragon/mandi-backend/api/validators"
	"github.com/angelmondragon/mandi-backend/pkg/db/models"
	"github.com/angelmondragon/mandi-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mandi-backend/pkg/errors"
	"github.com/angelmondragon/mandi-backend/pkg/logger"
	"github.com/angelmondragon/mandi-backend/pkg/outbox"
)

// DeadLetterLister reads the outbox dead-letter table.
type DeadLetterLister interface {
	ListDeadLetters(ctx context.Context, filter outbox.DeadLetterFilter) ([]models.DeadLetter, error)
}

type deadLetterDTO struct {
	EventID       uuid.UUID                 `json:"event_id"`
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   uuid.UUID                 `json:"aggregate_id"`
	Reason        enums.DeadLetterReason    `json:"reason"`
	ErrorMessage  *string                   `json:"error_message,omitempty"`
	AttemptCount  int                       `json:"attempt_count"`
	FailedAt      time.Time                 `json:"failed_at"`
	Payload       json.RawMessage           `json:"payload"`
}

// ListDeadLetters serves GET /admin/outbox/dead-letters.
func ListDeadLetters(lister DeadLetterLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if lister == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dead letter store unavailable"))
			return
		}
		var (
			filter outbox.DeadLetterFilter
			err    error
		)
		if filter.Limit, err = validators.ParseQueryInt(r, "limit", 50, 1, 200); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.EventType, err = validators.ParseQueryEnum(r, "event_type", enums.ParseOutboxEventType); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.Reason, err = validators.ParseQueryEnum(r, "reason", enums.ParseDeadLetterReason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := lister.ListDeadLetters(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list dead letters"))
			return
		}
		out := make([]deadLetterDTO, 0, len(rows))
		for _, row := range rows {
			out = append(out, deadLetterDTO{
				EventID:       row.EventID,
				EventType:     row.EventType,
				AggregateType: row.AggregateType,
				AggregateID:   row.AggregateID,
				Reason:        row.Reason,
				ErrorMessage:  row.ErrorMessage,
				AttemptCount:  row.AttemptCount,
				FailedAt:      row.FailedAt,
				Payload:       row.Payload,
			})
		}
		responses.WriteSuccess(w, map[string]any{"dead_letters": out})
	}
}
