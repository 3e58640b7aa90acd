package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
)

var errTxRequired = errors.New("outbox: transaction required")

// DomainEvent is what callers hand to Emit. Data is marshalled into the
// envelope's data field.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	if !e.EventType.IsValid() {
		return fmt.Errorf("outbox: unknown event type %q", e.EventType)
	}
	if !e.AggregateType.IsValid() {
		return fmt.Errorf("outbox: unknown aggregate type %q", e.AggregateType)
	}
	if e.AggregateID == uuid.Nil {
		return errors.New("outbox: aggregate id required")
	}
	return nil
}

// row renders the event as an outbox_events row with a fresh envelope id.
func (e DomainEvent) row(now time.Time) (models.OutboxEvent, PayloadEnvelope, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("outbox: encode %s data: %w", e.EventType, err)
	}
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	version := e.Version
	if version == 0 {
		version = 1
	}
	envelope := PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: occurred.UTC(),
		Actor:      e.Actor,
		Data:       data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("outbox: encode envelope: %w", err)
	}
	return models.OutboxEvent{
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       payload,
	}, envelope, nil
}

// Service writes domain events into the caller's transaction so the event
// commits or rolls back together with the state change that produced it.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit fails if the aggregate already carries this event type.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	_, err := s.write(ctx, tx, event, false)
	return err
}

// EmitIfNotExists is Emit for paths that may run more than once for the same
// aggregate, such as webhook redelivery or a cron retry. A duplicate is a no-op.
func (s *Service) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	_, err := s.write(ctx, tx, event, true)
	return err
}

func (s *Service) write(ctx context.Context, tx *gorm.DB, event DomainEvent, skipDuplicate bool) (bool, error) {
	if tx == nil {
		return false, errTxRequired
	}
	if err := event.validate(); err != nil {
		return false, err
	}
	row, envelope, err := event.row(s.now())
	if err != nil {
		return false, err
	}
	if ctx != nil {
		tx = tx.WithContext(ctx)
	}

	inserted := true
	if skipDuplicate {
		inserted, err = s.repo.InsertIfAbsent(tx, row)
	} else {
		err = s.repo.Insert(tx, row)
	}
	if err != nil {
		return false, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
		})
		if inserted {
			s.logg.Info(logCtx, "outbox.queued")
		} else {
			s.logg.Debug(logCtx, "outbox.duplicate_skipped")
		}
	}
	return inserted, nil
}
