package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	dbpkg "github.com/angelmondragon/eventpass-backend/pkg/db"
	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
)

const recordCheckoutConstraint = "payment_intent_records_checkout_id_key"

// IntentInput describes one checkout attempt that needs a payment intent.
type IntentInput struct {
	CheckoutID uuid.UUID
	Currency   enums.Currency
	Totals     Totals
	Token      string
}

type IntentResult struct {
	Handle       string
	ClientSecret string
	AmountMinor  int64
	Record       *models.PaymentIntentRecord
}

type recordStore interface {
	Create(ctx context.Context, record *models.PaymentIntentRecord) error
	FindByCheckoutID(ctx context.Context, checkoutID uuid.UUID) (*models.PaymentIntentRecord, error)
}

type ServiceParams struct {
	Gateway    Gateway
	Repository recordStore
	Logger     *logger.Logger
}

type Service struct {
	gateway Gateway
	repo    recordStore
	logg    *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Gateway == nil {
		return nil, errors.New("payment gateway is required")
	}
	if params.Repository == nil {
		return nil, errors.New("payment intent repository is required")
	}
	return &Service{gateway: params.Gateway, repo: params.Repository, logg: params.Logger}, nil
}

// CreateIntent opens a processor intent for the checkout and records the
// handle to correlation token mapping the webhook later resolves.
func (s *Service) CreateIntent(ctx context.Context, input IntentInput) (*IntentResult, error) {
	if input.CheckoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout id is required")
	}
	if strings.TrimSpace(input.Token) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "correlation token is required")
	}
	amount, err := ToMinorUnits(input.Totals.GrandTotal)
	if err != nil {
		return nil, err
	}
	totals := input.Totals
	totals.CheckoutID = input.CheckoutID.String()
	meta, err := BuildMetadata(totals, input.Token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build payment metadata")
	}

	intent, err := s.gateway.CreateIntent(ctx, IntentRequest{
		AmountMinor:    amount,
		Currency:       input.Currency,
		Metadata:       meta,
		IdempotencyKey: "checkout-" + input.CheckoutID.String(),
		Description:    fmt.Sprintf("event %d checkout", totals.EventID),
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
		}
		return nil, err
	}

	record := &models.PaymentIntentRecord{
		CheckoutID:       input.CheckoutID,
		ExternalHandle:   intent.Handle,
		UserID:           totals.UserID,
		EventID:          totals.EventID,
		CorrelationToken: input.Token,
		Currency:         input.Currency,
		AmountMinor:      amount,
		TaxTotal:         totals.TaxTotal,
		DiscountAmount:   totals.DiscountAmount,
		SubTotal:         totals.SubTotal,
		GrandTotal:       totals.GrandTotal,
	}
	if code := strings.TrimSpace(totals.DiscountCode); code != "" {
		record.DiscountCode = &code
	}
	if err := s.repo.Create(ctx, record); err != nil {
		// The gateway idempotency key makes a retried checkout return the same
		// intent, so an existing row for the checkout is the same answer.
		if dbpkg.IsUniqueViolation(err, recordCheckoutConstraint) {
			existing, findErr := s.repo.FindByCheckoutID(ctx, input.CheckoutID)
			if findErr == nil && existing != nil && existing.ExternalHandle == intent.Handle {
				record = existing
			} else {
				return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "checkout already has a payment intent")
			}
		} else {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment intent record")
		}
	}

	if s.logg != nil {
		logCtx := s.logg.WithPaymentHandle(s.logg.WithCheckout(ctx, input.CheckoutID.String()), intent.Handle)
		s.logg.Info(s.logg.WithField(logCtx, "amount_minor", amount), "payment intent created")
	}
	return &IntentResult{
		Handle:       intent.Handle,
		ClientSecret: intent.ClientSecret,
		AmountMinor:  amount,
		Record:       record,
	}, nil
}

// CancelIntent passes through to the gateway for the expiry sweep.
func (s *Service) CancelIntent(ctx context.Context, handle string) (*CancelOutcome, error) {
	return s.gateway.CancelIntent(ctx, handle)
}
