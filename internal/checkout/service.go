package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventpass-backend/internal/inventory"
	"github.com/angelmondragon/eventpass-backend/internal/payments"
	"github.com/angelmondragon/eventpass-backend/internal/snapshot"
	dbpkg "github.com/angelmondragon/eventpass-backend/pkg/db"
	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
	"github.com/angelmondragon/eventpass-backend/pkg/metrics"
	"github.com/angelmondragon/eventpass-backend/pkg/outbox"
	"github.com/angelmondragon/eventpass-backend/pkg/outbox/payloads"
)

const defaultMaxLines = 50

const checkoutInitiatedConstraint = "ux_outbox_events_event_aggregate"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type reserver interface {
	CheckAndReserve(ctx context.Context, tx *gorm.DB, eventID int64, requests []inventory.ReservationRequest) ([]inventory.Reservation, error)
}

type snapshotCreator interface {
	Create(ctx context.Context, tx *gorm.DB, input snapshot.CreateInput) ([]models.SnapshotLine, error)
}

type snapshotFinder interface {
	FindByCheckoutID(ctx context.Context, checkoutID uuid.UUID) ([]models.SnapshotLine, error)
}

type intentCreator interface {
	CreateIntent(ctx context.Context, input payments.IntentInput) (*payments.IntentResult, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Line is one cart line as submitted by the buyer.
type Line struct {
	ItemType enums.ItemType
	ItemID   int64
	Quantity int
	Price    decimal.Decimal
}

// Request is a checkout intent request. Discounts arrive already applied.
type Request struct {
	CheckoutID     uuid.UUID
	UserID         int64
	EventID        int64
	TaxTotal       decimal.Decimal
	SubTotal       decimal.Decimal
	GrandTotal     decimal.Decimal
	DiscountAmount decimal.Decimal
	DiscountCode   string
	Currency       enums.Currency
	Lines          []Line
}

type Result struct {
	CheckoutID      uuid.UUID
	ClientSecret    string
	PaymentIntentID string
	AmountMinor     int64
	SnapshotIDs     []int64
}

type ServiceParams struct {
	TxRunner  txRunner
	Ledger    reserver
	Snapshots snapshotCreator
	Lines     snapshotFinder
	Payments  intentCreator
	Outbox    outboxPublisher
	Logger    *logger.Logger
	Metrics   *metrics.PipelineMetrics
	MaxLines  int
}

// Service turns a cart into reserved inventory, pending snapshot lines and a
// payment intent.
type Service struct {
	tx        txRunner
	ledger    reserver
	snapshots snapshotCreator
	lines     snapshotFinder
	payments  intentCreator
	outbox    outboxPublisher
	logg      *logger.Logger
	metrics   *metrics.PipelineMetrics
	maxLines  int
}

func NewService(params ServiceParams) (*Service, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if params.Snapshots == nil {
		return nil, fmt.Errorf("snapshot builder required")
	}
	if params.Lines == nil {
		return nil, fmt.Errorf("snapshot repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	maxLines := params.MaxLines
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}
	return &Service{
		tx:        params.TxRunner,
		ledger:    params.Ledger,
		snapshots: params.Snapshots,
		lines:     params.Lines,
		payments:  params.Payments,
		outbox:    params.Outbox,
		logg:      params.Logger,
		metrics:   params.Metrics,
		maxLines:  maxLines,
	}, nil
}

// CreateIntent reserves every line and captures the snapshot in one
// transaction, then asks the processor for an intent. A processor failure
// leaves the pending lines in place; the expiry sweep releases them. Retrying
// with the same checkout id picks those lines back up instead of reserving
// again, and the processor returns the same intent for the same checkout.
func (s *Service) CreateIntent(ctx context.Context, req Request) (*Result, error) {
	if err := s.validate(req); err != nil {
		s.metrics.CheckoutIntent(metrics.OutcomeRejected)
		return nil, err
	}
	checkoutID := req.CheckoutID
	if checkoutID == uuid.Nil {
		checkoutID = uuid.New()
	}
	if s.logg != nil {
		ctx = s.logg.WithCheckout(s.logg.WithEventID(s.logg.WithUserID(ctx, req.UserID), req.EventID), checkoutID.String())
	}

	totals := payments.Totals{
		UserID:         req.UserID,
		EventID:        req.EventID,
		CheckoutID:     checkoutID.String(),
		TaxTotal:       req.TaxTotal,
		DiscountAmount: req.DiscountAmount,
		SubTotal:       req.SubTotal,
		GrandTotal:     req.GrandTotal,
		DiscountCode:   strings.TrimSpace(req.DiscountCode),
	}
	amount, err := payments.ToMinorUnits(req.GrandTotal)
	if err != nil {
		s.metrics.CheckoutIntent(metrics.OutcomeRejected)
		return nil, err
	}

	var (
		lines []models.SnapshotLine
		token string
	)
	if req.CheckoutID != uuid.Nil {
		existing, err := s.lines.FindByCheckoutID(ctx, checkoutID)
		if err != nil {
			s.recordFailure(ctx, err)
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout lines")
		}
		if len(existing) > 0 {
			if err := sameCart(req, existing); err != nil {
				s.recordFailure(ctx, err)
				return nil, err
			}
			if s.logg != nil {
				s.logg.Info(ctx, "resuming checkout after earlier attempt")
			}
			lines = existing
			token = snapshot.EncodeToken(snapshot.IDs(lines))
			return s.requestIntent(ctx, req, checkoutID, totals, token, lines)
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		requests := make([]inventory.ReservationRequest, len(req.Lines))
		for i, line := range req.Lines {
			requests[i] = inventory.ReservationRequest{ItemType: line.ItemType, ItemID: line.ItemID, Quantity: line.Quantity}
		}
		reservations, err := s.ledger.CheckAndReserve(ctx, tx, req.EventID, requests)
		if err != nil {
			return err
		}

		inputs := make([]snapshot.LineInput, len(reservations))
		for i, r := range reservations {
			inputs[i] = snapshot.LineInput{
				ItemType:  r.Item.Kind(),
				ItemID:    r.Item.ItemID(),
				ItemName:  r.Item.DisplayName(),
				Quantity:  r.Quantity,
				UnitPrice: req.Lines[i].Price,
			}
		}
		lines, err = s.snapshots.Create(ctx, tx, snapshot.CreateInput{
			CheckoutID: checkoutID,
			UserID:     req.UserID,
			EventID:    req.EventID,
			Lines:      inputs,
		})
		if err != nil {
			return err
		}

		token = snapshot.EncodeToken(snapshot.IDs(lines))
		// Oversized carts are rejected here so nothing commits that could
		// never be correlated back from the processor.
		if _, err := payments.BuildMetadata(totals, token); err != nil {
			if pkgerrors.As(err) == nil {
				err = pkgerrors.Wrap(pkgerrors.CodeValidation, err, "cart has too many lines for a single payment")
			}
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckoutInitiated,
			AggregateType: enums.AggregateCheckout,
			AggregateID:   checkoutID,
			Actor:         &outbox.ActorRef{UserID: req.UserID, Source: outbox.ActorSourceCheckout},
			Data: payloads.CheckoutInitiatedEvent{
				CheckoutID:  checkoutID,
				UserID:      req.UserID,
				EventID:     req.EventID,
				Currency:    req.Currency,
				AmountMinor: amount,
				Lines:       payloads.LineRefs(lines),
			},
		})
	})
	if err != nil {
		if dbpkg.IsUniqueViolation(err, checkoutInitiatedConstraint) {
			err = pkgerrors.Wrap(pkgerrors.CodeConflict, err, "checkout is already being created")
		}
		s.recordFailure(ctx, err)
		return nil, err
	}
	return s.requestIntent(ctx, req, checkoutID, totals, token, lines)
}

func (s *Service) requestIntent(ctx context.Context, req Request, checkoutID uuid.UUID, totals payments.Totals, token string, lines []models.SnapshotLine) (*Result, error) {
	intent, err := s.payments.CreateIntent(ctx, payments.IntentInput{
		CheckoutID: checkoutID,
		Currency:   req.Currency,
		Totals:     totals,
		Token:      token,
	})
	if err != nil {
		s.recordFailure(ctx, err)
		return nil, err
	}

	s.metrics.CheckoutIntent(metrics.OutcomeCreated)
	if s.logg != nil {
		s.logg.Info(s.logg.WithPaymentHandle(ctx, intent.Handle), "checkout intent created")
	}
	return &Result{
		CheckoutID:      checkoutID,
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.Handle,
		AmountMinor:     intent.AmountMinor,
		SnapshotIDs:     snapshot.IDs(lines),
	}, nil
}

// sameCart accepts a retried request only while its lines are still pending
// and describe the same cart the first attempt reserved.
func sameCart(req Request, existing []models.SnapshotLine) error {
	first := existing[0]
	if first.UserID != req.UserID || first.EventID != req.EventID || len(existing) != len(req.Lines) {
		return pkgerrors.New(pkgerrors.CodeConflict, "checkout id was already used for a different cart")
	}
	for i, line := range existing {
		want := req.Lines[i]
		if line.ItemType != want.ItemType || line.ItemID != want.ItemID || line.Quantity != want.Quantity {
			return pkgerrors.New(pkgerrors.CodeConflict, "checkout id was already used for a different cart")
		}
		if line.State != enums.SnapshotStatePending {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("checkout is already %s", line.State))
		}
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, err error) {
	typed := pkgerrors.As(err)
	switch {
	case typed != nil && typed.Code() == pkgerrors.CodeSoldOut:
		s.metrics.CheckoutIntent(metrics.OutcomeSoldOut)
		if details, ok := typed.Details().(map[string]any); ok {
			s.metrics.SoldOut(fmt.Sprint(details["item_type"]))
		}
	case typed != nil && typed.Code() == pkgerrors.CodeValidation:
		s.metrics.CheckoutIntent(metrics.OutcomeRejected)
	default:
		s.metrics.CheckoutIntent(metrics.OutcomeError)
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "checkout intent failed")
		}
	}
}

func (s *Service) validate(req Request) error {
	if req.UserID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if req.EventID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	if !req.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported currency %q", req.Currency))
	}
	if !req.GrandTotal.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "grand total must be greater than zero")
	}
	for name, v := range map[string]decimal.Decimal{
		"tax total":       req.TaxTotal,
		"sub total":       req.SubTotal,
		"discount amount": req.DiscountAmount,
	} {
		if v.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, name+" cannot be negative")
		}
	}
	if len(req.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
	}
	if len(req.Lines) > s.maxLines {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cart exceeds %d lines", s.maxLines))
	}
	for i, line := range req.Lines {
		if !line.ItemType.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d has unsupported item type %q", i, line.ItemType))
		}
		if line.ItemID <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d is missing an item id", i))
		}
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d quantity must be positive", i))
		}
		if line.Price.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d price cannot be negative", i))
		}
	}
	return nil
}
