package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
)

// maxDLQErrorLen bounds stored error text; gRPC errors from Pub/Sub can be long.
const maxDLQErrorLen = 1024

func clip(msg string) string {
	if len(msg) <= maxDLQErrorLen {
		return msg
	}
	return msg[:maxDLQErrorLen]
}

// DLQRepository keeps a copy of every outbox row the publisher stopped retrying.
type DLQRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db, now: time.Now}
}

// DeadLetterTx copies event into outbox_dlq inside tx, together with why
// publishing stopped.
func (r *DLQRepository) DeadLetterTx(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) (*models.OutboxDLQ, error) {
	if tx == nil {
		return nil, errTxRequired
	}
	if !reason.IsValid() {
		return nil, fmt.Errorf("outbox: unknown dlq reason %q", reason)
	}
	entry := &models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		AttemptCount:  event.AttemptCount,
		FailedAt:      r.now().UTC(),
	}
	if cause != nil {
		msg := clip(cause.Error())
		entry.ErrorMessage = &msg
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("outbox: dead letter %s: %w", event.ID, err)
	}
	return entry, nil
}

// FindByEventID returns nil without error when the event never reached the DLQ.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&entry).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &entry, nil
}

// DeleteFailedBefore removes DLQ entries that failed before cutoff, at most
// limit per call.
func (r *DLQRepository) DeleteFailedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("outbox: dlq delete limit must be positive, got %d", limit)
	}
	oldest := r.db.WithContext(ctx).
		Model(&models.OutboxDLQ{}).
		Select("id").
		Where("failed_at < ?", cutoff).
		Order("failed_at ASC").
		Limit(limit)
	res := r.db.WithContext(ctx).Where("id IN (?)", oldest).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}
