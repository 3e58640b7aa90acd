package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventpass-backend/internal/fulfillment"
	"github.com/angelmondragon/eventpass-backend/internal/inventory"
	"github.com/angelmondragon/eventpass-backend/internal/payments"
	"github.com/angelmondragon/eventpass-backend/internal/snapshot"
	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
	"github.com/angelmondragon/eventpass-backend/pkg/metrics"
	"github.com/angelmondragon/eventpass-backend/pkg/outbox"
	"github.com/angelmondragon/eventpass-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type releaser interface {
	Release(ctx context.Context, tx *gorm.DB, eventID int64, requests []inventory.ReservationRequest) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	TransactionRunner txRunner
	Snapshots         *snapshot.Repository
	Records           *payments.Repository
	Confirmed         *payments.ConfirmedRepository
	Ledger            releaser
	Outbox            outboxPublisher
	Trigger           fulfillment.Trigger
	Logger            *logger.Logger
	Metrics           *metrics.PipelineMetrics
}

// Service reconciles processor notifications into terminal snapshot states
// and at most one ConfirmedPayment per payment handle.
type Service struct {
	txRunner  txRunner
	snapshots *snapshot.Repository
	records   *payments.Repository
	confirmed *payments.ConfirmedRepository
	ledger    releaser
	outbox    outboxPublisher
	trigger   fulfillment.Trigger
	logg      *logger.Logger
	metrics   *metrics.PipelineMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Snapshots == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "snapshot repository required")
	}
	if params.Records == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment record repository required")
	}
	if params.Confirmed == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "confirmed payment repository required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory ledger required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	if params.Trigger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment trigger required")
	}
	return &Service{
		txRunner:  params.TransactionRunner,
		snapshots: params.Snapshots,
		records:   params.Records,
		confirmed: params.Confirmed,
		ledger:    params.Ledger,
		outbox:    params.Outbox,
		trigger:   params.Trigger,
		logg:      params.Logger,
		metrics:   params.Metrics,
	}, nil
}

// HandleEvent applies one verified processor event. Event types this service
// does not act on are acknowledged without side effects.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	var (
		outcome string
		err     error
	)
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		outcome, err = s.handleSucceeded(ctx, event)
	case stripe.EventTypePaymentIntentPaymentFailed:
		outcome, err = s.handleFailed(ctx, event)
	default:
		outcome = metrics.OutcomeIgnored
	}
	if err != nil {
		outcome = metrics.OutcomeError
	}
	s.metrics.WebhookEvent(string(event.Type), outcome)
	return err
}

// correlation is what a payment handle resolves to on our side.
type correlation struct {
	record     *models.PaymentIntentRecord
	checkoutID uuid.UUID
	userID     int64
	eventID    int64
	ids        []int64
}

// ReconcileSucceeded settles a payment the processor reports as succeeded
// when it is observed outside a webhook, for example by the expiry sweep.
// It shares the webhook path, so a later or concurrent delivery of the same
// success is still a no-op.
func (s *Service) ReconcileSucceeded(ctx context.Context, handle string, amountMinor int64, currency string) error {
	if strings.TrimSpace(handle) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment handle is required")
	}
	intent := &stripe.PaymentIntent{
		ID:             handle,
		Amount:         amountMinor,
		AmountReceived: amountMinor,
		Currency:       stripe.Currency(strings.ToLower(currency)),
	}
	outcome, err := s.settleSucceeded(ctx, intent)
	if err != nil {
		outcome = metrics.OutcomeError
	}
	s.metrics.WebhookEvent(SweepEventType, outcome)
	return err
}

// SweepEventType labels successes reconciled without a webhook.
const SweepEventType = "sweep.payment_intent.succeeded"

func (s *Service) handleSucceeded(ctx context.Context, event *stripe.Event) (string, error) {
	intent, err := decodeIntent(event)
	if err != nil {
		return "", err
	}
	return s.settleSucceeded(ctx, intent)
}

func (s *Service) settleSucceeded(ctx context.Context, intent *stripe.PaymentIntent) (string, error) {
	ctx = s.withHandle(ctx, intent.ID)

	var (
		payment  models.ConfirmedPayment
		lines    []models.SnapshotLine
		inserted bool
		orphaned bool
	)
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		corr, err := s.resolve(ctx, tx, intent)
		if err != nil {
			return err
		}
		if corr == nil {
			orphaned = true
			return s.emitOrphaned(ctx, tx, intent, "no snapshot lines correlate to this payment")
		}

		payment = models.ConfirmedPayment{
			ExternalHandle: intent.ID,
			CheckoutID:     corr.checkoutID,
			UserID:         corr.userID,
			EventID:        corr.eventID,
			AmountMinor:    chargedAmount(intent),
			Currency:       intentCurrency(intent, corr.record),
			Status:         enums.ConfirmedPaymentStatusConfirmed,
		}
		if payment.AmountMinor == 0 && corr.record != nil {
			payment.AmountMinor = corr.record.AmountMinor
		}
		confirmed := s.confirmed.WithTx(tx)
		inserted, err = confirmed.InsertIfAbsent(ctx, &payment)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert confirmed payment")
		}
		if !inserted {
			return nil
		}

		lines, err = s.snapshots.WithTx(tx).TransitionPending(ctx, corr.ids, enums.SnapshotStatePaid)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark snapshot lines paid")
		}
		if len(lines) != len(corr.ids) {
			payment.Status = enums.ConfirmedPaymentStatusNeedsReview
			if err := confirmed.SetStatus(ctx, payment.ID, payment.Status); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flag payment for review")
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentConfirmed,
			AggregateType: enums.AggregateConfirmedPayment,
			AggregateID:   payment.ID,
			Actor:         &outbox.ActorRef{UserID: payment.UserID, Source: outbox.ActorSourceWebhook},
			Data: payloads.PaymentConfirmedEvent{
				ConfirmedPaymentID: payment.ID,
				CheckoutID:         payment.CheckoutID,
				ExternalHandle:     payment.ExternalHandle,
				UserID:             payment.UserID,
				EventID:            payment.EventID,
				AmountMinor:        payment.AmountMinor,
				Currency:           payment.Currency,
				Status:             payment.Status,
				SnapshotIDs:        corr.ids,
			},
		})
	})
	if err != nil {
		return "", err
	}

	switch {
	case orphaned:
		s.logError(ctx, "payment.orphaned", errors.New("succeeded payment has no snapshot lines"))
		return metrics.OutcomeProcessed, nil
	case !inserted:
		s.logInfo(ctx, "payment already reconciled")
		return metrics.OutcomeDuplicate, nil
	case payment.Status == enums.ConfirmedPaymentStatusNeedsReview:
		s.metrics.NeedsReview()
		s.logError(ctx, "payment.needs_review",
			fmt.Errorf("%d of the paid snapshot lines were no longer pending", len(lines)))
		return metrics.OutcomeProcessed, nil
	}

	s.fulfil(ctx, payment, lines, intent.Metadata)
	return metrics.OutcomeProcessed, nil
}

// fulfil runs once, only for the delivery that created the payment row. A
// failure is recorded and alarmed but never turned into a webhook retry: the
// money has been taken and the replay would be short-circuited anyway.
func (s *Service) fulfil(ctx context.Context, payment models.ConfirmedPayment, lines []models.SnapshotLine, metadata map[string]string) {
	order, err := s.trigger.Fulfil(ctx, payment, lines, metadata)
	if err == nil && order != nil {
		if markErr := s.confirmed.MarkFulfilled(ctx, payment.ID, order.Reference); markErr != nil {
			s.logError(ctx, "fulfillment.mark_failed", markErr)
		}
		return
	}
	if err == nil {
		err = errors.New("fulfillment returned no order")
	}

	s.metrics.FulfillmentFailure()
	s.logError(ctx, "fulfillment.trigger_failed", err)
	txErr := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.confirmed.WithTx(tx).MarkFulfillmentFailed(ctx, payment.ID, err); err != nil {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFulfillmentFailed,
			AggregateType: enums.AggregateConfirmedPayment,
			AggregateID:   payment.ID,
			Actor:         &outbox.ActorRef{UserID: payment.UserID, Source: outbox.ActorSourceWebhook},
			Data: payloads.FulfillmentFailedEvent{
				ConfirmedPaymentID: payment.ID,
				ExternalHandle:     payment.ExternalHandle,
				UserID:             payment.UserID,
				EventID:            payment.EventID,
				Error:              err.Error(),
			},
		})
	})
	if txErr != nil {
		s.logError(ctx, "fulfillment.record_failed", txErr)
	}
}

func (s *Service) handleFailed(ctx context.Context, event *stripe.Event) (string, error) {
	intent, err := decodeIntent(event)
	if err != nil {
		return "", err
	}
	ctx = s.withHandle(ctx, intent.ID)

	var moved []models.SnapshotLine
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		corr, err := s.resolve(ctx, tx, intent)
		if err != nil || corr == nil {
			return err
		}
		moved, err = s.snapshots.WithTx(tx).TransitionPending(ctx, corr.ids, enums.SnapshotStateFailed)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark snapshot lines failed")
		}
		if len(moved) == 0 {
			return nil
		}
		if err := s.ledger.Release(ctx, tx, corr.eventID, releaseRequests(moved)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release inventory")
		}

		data := payloads.PaymentFailedEvent{
			CheckoutID:     corr.checkoutID,
			ExternalHandle: intent.ID,
			UserID:         corr.userID,
			EventID:        corr.eventID,
			Lines:          payloads.LineRefs(moved),
		}
		if intent.LastPaymentError != nil {
			data.FailureCode = string(intent.LastPaymentError.Code)
			data.FailureMessage = intent.LastPaymentError.Msg
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregateCheckout,
			AggregateID:   corr.checkoutID,
			Actor:         &outbox.ActorRef{UserID: corr.userID, Source: outbox.ActorSourceWebhook},
			Data:          data,
		})
	})
	if err != nil {
		return "", err
	}
	if len(moved) == 0 {
		s.logInfo(ctx, "payment failure had no pending lines to settle")
	}
	return metrics.OutcomeProcessed, nil
}

// resolve maps a payment handle to snapshot line ids. The stored intent record
// wins; the intent metadata is the fallback for records that were never
// written. nil means nothing on our side matches the payment.
func (s *Service) resolve(ctx context.Context, tx *gorm.DB, intent *stripe.PaymentIntent) (*correlation, error) {
	record, err := s.records.WithTx(tx).FindByHandle(ctx, intent.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment intent record")
	}

	token := payments.TokenFromMetadata(intent.Metadata)
	if record != nil {
		token = record.CorrelationToken
	}
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	ids, err := snapshot.ParseToken(token)
	if err != nil {
		return nil, err
	}

	if record != nil {
		return &correlation{
			record:     record,
			checkoutID: record.CheckoutID,
			userID:     record.UserID,
			eventID:    record.EventID,
			ids:        ids,
		}, nil
	}

	lines, err := s.snapshots.WithTx(tx).FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load snapshot lines")
	}
	if len(lines) == 0 {
		return nil, nil
	}
	corr := &correlation{
		checkoutID: lines[0].CheckoutID,
		userID:     lines[0].UserID,
		eventID:    lines[0].EventID,
		ids:        ids,
	}
	if raw := intent.Metadata[payments.MetaCheckoutID]; raw != "" {
		if parsed, err := uuid.Parse(raw); err == nil {
			corr.checkoutID = parsed
		}
	}
	if raw := intent.Metadata[payments.MetaUserID]; raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			corr.userID = parsed
		}
	}
	return corr, nil
}

func (s *Service) emitOrphaned(ctx context.Context, tx *gorm.DB, intent *stripe.PaymentIntent, reason string) error {
	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentOrphaned,
		AggregateType: enums.AggregateCheckout,
		AggregateID:   OrphanAggregateID(intent.ID),
		Actor:         &outbox.ActorRef{Source: outbox.ActorSourceWebhook},
		Data: payloads.PaymentOrphanedEvent{
			ExternalHandle: intent.ID,
			AmountMinor:    chargedAmount(intent),
			Currency:       intentCurrency(intent, nil),
			Reason:         reason,
		},
	})
}

// OrphanAggregateID is stable per handle so repeated orphan reports collapse.
func OrphanAggregateID(handle string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("stripe:payment_intent:"+handle))
}

func decodeIntent(event *stripe.Event) (*stripe.PaymentIntent, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	if intent.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	return &intent, nil
}

func chargedAmount(intent *stripe.PaymentIntent) int64 {
	if intent.AmountReceived > 0 {
		return intent.AmountReceived
	}
	return intent.Amount
}

func intentCurrency(intent *stripe.PaymentIntent, record *models.PaymentIntentRecord) enums.Currency {
	if currency, err := enums.ParseCurrency(string(intent.Currency)); err == nil {
		return currency
	}
	if record != nil {
		return record.Currency
	}
	return ""
}

func releaseRequests(lines []models.SnapshotLine) []inventory.ReservationRequest {
	requests := make([]inventory.ReservationRequest, len(lines))
	for i, line := range lines {
		requests[i] = inventory.ReservationRequest{ItemType: line.ItemType, ItemID: line.ItemID, Quantity: line.Quantity}
	}
	return requests
}

func (s *Service) withHandle(ctx context.Context, handle string) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithPaymentHandle(ctx, handle)
}

func (s *Service) logInfo(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func (s *Service) logError(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
}
