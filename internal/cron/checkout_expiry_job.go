package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventpass-backend/internal/inventory"
	"github.com/angelmondragon/eventpass-backend/internal/payments"
	"github.com/angelmondragon/eventpass-backend/internal/snapshot"
	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
	"github.com/angelmondragon/eventpass-backend/pkg/metrics"
	"github.com/angelmondragon/eventpass-backend/pkg/outbox"
	"github.com/angelmondragon/eventpass-backend/pkg/outbox/payloads"
)

const (
	defaultStaleAfter = 30 * time.Minute
	defaultSweepBatch = 200
	// maxSweepPages bounds one run; the cursor carries the rest to the next run.
	maxSweepPages = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type intentCanceler interface {
	CancelIntent(ctx context.Context, handle string) (*payments.CancelOutcome, error)
}

type successReconciler interface {
	ReconcileSucceeded(ctx context.Context, handle string, amountMinor int64, currency string) error
}

type unitReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, eventID int64, requests []inventory.ReservationRequest) error
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CheckoutExpiryJobParams configure the stale checkout sweep.
type CheckoutExpiryJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Snapshots  *snapshot.Repository
	Records    *payments.Repository
	Payments   intentCanceler
	Reconciler successReconciler
	Ledger     unitReleaser
	Outbox     outboxEmitter
	Metrics    *metrics.PipelineMetrics
	StaleAfter time.Duration
	BatchSize  int
}

// NewCheckoutExpiryJob builds the job that fails pending lines nobody paid for
// and hands their units back to the ledger.
func NewCheckoutExpiryJob(params CheckoutExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Snapshots == nil {
		return nil, fmt.Errorf("snapshot repository required")
	}
	if params.Records == nil {
		return nil, fmt.Errorf("payment record repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("payment reconciler required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &checkoutExpiryJob{
		logg:       params.Logger,
		db:         params.DB,
		snapshots:  params.Snapshots,
		records:    params.Records,
		payments:   params.Payments,
		reconciler: params.Reconciler,
		ledger:     params.Ledger,
		outbox:     params.Outbox,
		metrics:    params.Metrics,
		staleAfter: staleAfter,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type checkoutExpiryJob struct {
	logg       *logger.Logger
	db         txRunner
	snapshots  *snapshot.Repository
	records    *payments.Repository
	payments   intentCanceler
	reconciler successReconciler
	ledger     unitReleaser
	outbox     outboxEmitter
	metrics    *metrics.PipelineMetrics
	staleAfter time.Duration
	batch      int
	now        func() time.Time

	// cursor is the last snapshot line id handed out, so lines left pending
	// on purpose are passed over until the scan wraps around.
	cursor int64
}

func (j *checkoutExpiryJob) Name() string { return "checkout-expiry" }

type checkoutOutcome int

const (
	checkoutExpired checkoutOutcome = iota
	checkoutSkipped
	checkoutReconciled
)

func (j *checkoutExpiryJob) Run(ctx context.Context) error {
	now := j.now()
	cutoff := now.Add(-j.staleAfter)

	var (
		errs       error
		checkouts  int
		expired    int
		skipped    int
		reconciled int
		seen       = map[uuid.UUID]struct{}{}
	)
	for page := 0; page < maxSweepPages; page++ {
		stale, err := j.snapshots.ListStalePending(ctx, cutoff, j.cursor, j.batch)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list stale pending lines: %w", err))
		}
		if len(stale) == 0 {
			j.cursor = 0
			break
		}
		j.cursor = stale[len(stale)-1].ID

		for _, checkoutID := range checkoutIDs(stale) {
			if _, done := seen[checkoutID]; done {
				continue
			}
			seen[checkoutID] = struct{}{}
			checkouts++

			checkoutCtx := j.logg.WithCheckout(ctx, checkoutID.String())
			n, outcome, err := j.expireCheckout(checkoutCtx, checkoutID, now)
			if err != nil {
				j.logg.Error(checkoutCtx, "cron.checkout_expiry_failed", err)
				errs = multierr.Append(errs, fmt.Errorf("checkout %s: %w", checkoutID, err))
				continue
			}
			switch outcome {
			case checkoutSkipped:
				skipped++
			case checkoutReconciled:
				reconciled++
			}
			expired += n
		}
		if len(stale) < j.batch {
			j.cursor = 0
			break
		}
	}
	if checkouts == 0 {
		return errs
	}
	j.metrics.ExpiredLines(expired)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":               cutoff,
		"checkouts":            checkouts,
		"checkouts_skipped":    skipped,
		"checkouts_reconciled": reconciled,
		"lines_expired":        expired,
	})
	j.logg.Info(logCtx, "checkout expiry sweep complete")
	return errs
}

// expireCheckout cancels the checkout's payment intent and, unless money can
// still arrive for it, fails its pending lines and releases their units. An
// intent that already succeeded is settled as paid right here instead of
// waiting for a webhook that may never come.
func (j *checkoutExpiryJob) expireCheckout(ctx context.Context, checkoutID uuid.UUID, now time.Time) (int, checkoutOutcome, error) {
	record, err := j.records.FindByCheckoutID(ctx, checkoutID)
	if err != nil {
		return 0, checkoutSkipped, fmt.Errorf("load payment record: %w", err)
	}
	handle := ""
	if record != nil {
		handle = record.ExternalHandle
		ctx = j.logg.WithPaymentHandle(ctx, handle)
		outcome, err := j.payments.CancelIntent(ctx, handle)
		if err != nil {
			return 0, checkoutSkipped, fmt.Errorf("cancel intent: %w", err)
		}
		if outcome != nil && outcome.Succeeded() {
			amount := outcome.AmountReceived
			if amount == 0 {
				amount = record.AmountMinor
			}
			currency := outcome.Currency
			if currency == "" {
				currency = record.Currency.String()
			}
			if err := j.reconciler.ReconcileSucceeded(ctx, handle, amount, currency); err != nil {
				return 0, checkoutSkipped, fmt.Errorf("reconcile succeeded intent: %w", err)
			}
			j.logg.Warn(ctx, "cron.checkout_expiry_reconciled")
			return 0, checkoutReconciled, nil
		}
		if outcome != nil && outcome.MayStillCharge() {
			j.logg.Warn(j.logg.WithField(ctx, "intent_status", outcome.Status), "cron.checkout_expiry_skipped")
			return 0, checkoutSkipped, nil
		}
	}

	var moved []models.SnapshotLine
	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.snapshots.WithTx(tx)
		lines, err := repo.FindByCheckoutID(ctx, checkoutID)
		if err != nil {
			return err
		}
		ids := snapshot.IDs(lines)
		moved, err = repo.TransitionPending(ctx, ids, enums.SnapshotStateFailed)
		if err != nil {
			return err
		}
		if len(moved) == 0 {
			return nil
		}
		for eventID, reqs := range releaseByEvent(moved) {
			if err := j.ledger.Release(ctx, tx, eventID, reqs); err != nil {
				return err
			}
		}
		first := moved[0]
		return j.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckoutExpired,
			AggregateType: enums.AggregateCheckout,
			AggregateID:   checkoutID,
			Actor:         &outbox.ActorRef{UserID: first.UserID, Source: outbox.ActorSourceCron},
			Data: payloads.CheckoutExpiredEvent{
				CheckoutID:     checkoutID,
				UserID:         first.UserID,
				EventID:        first.EventID,
				ExternalHandle: handle,
				Lines:          payloads.LineRefs(moved),
				ExpiredAt:      now.UTC(),
			},
		})
	})
	if err != nil {
		return 0, checkoutSkipped, err
	}
	return len(moved), checkoutExpired, nil
}

// checkoutIDs returns the distinct checkouts in first-seen order.
func checkoutIDs(lines []models.SnapshotLine) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	var ids []uuid.UUID
	for _, line := range lines {
		if _, ok := seen[line.CheckoutID]; ok {
			continue
		}
		seen[line.CheckoutID] = struct{}{}
		ids = append(ids, line.CheckoutID)
	}
	return ids
}

func releaseByEvent(lines []models.SnapshotLine) map[int64][]inventory.ReservationRequest {
	out := make(map[int64][]inventory.ReservationRequest)
	for _, line := range lines {
		out[line.EventID] = append(out[line.EventID], inventory.ReservationRequest{
			ItemType: line.ItemType,
			ItemID:   line.ItemID,
			Quantity: line.Quantity,
		})
	}
	return out
}
