package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/eventpass-backend/api/responses"
	"github.com/angelmondragon/eventpass-backend/api/validators"
	"github.com/angelmondragon/eventpass-backend/internal/checkout"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
)

const maxDiscountCodeLen = 64

type checkoutIntentCreator interface {
	CreateIntent(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

// CheckoutIntent reserves the cart and returns the client secret the buyer
// uses to complete payment with the processor.
func CheckoutIntent(svc checkoutIntentCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutIntentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req, err := payload.toRequest()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateIntent(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutIntentResponse{
			CheckoutID:      result.CheckoutID,
			ClientSecret:    result.ClientSecret,
			PaymentIntentID: result.PaymentIntentID,
			AmountMinor:     result.AmountMinor,
			SnapshotIDs:     result.SnapshotIDs,
		})
	}
}

type checkoutIntentRequest struct {
	CheckoutID     *uuid.UUID            `json:"checkout_id,omitempty"`
	UserID         int64                 `json:"user_id" validate:"required,gt=0"`
	EventID        int64                 `json:"event_id" validate:"required,gt=0"`
	TaxTotal       decimal.Decimal       `json:"tax_total"`
	SubTotal       decimal.Decimal       `json:"sub_total"`
	GrandTotal     decimal.Decimal       `json:"grand_total"`
	DiscountAmount decimal.Decimal       `json:"discount_amount"`
	DiscountCode   string                `json:"discount_code,omitempty"`
	Currency       string                `json:"currency" validate:"required,len=3"`
	Lines          []checkoutLineRequest `json:"cart_lines" validate:"required,min=1,dive"`
}

type checkoutLineRequest struct {
	ItemType string          `json:"item_type" validate:"required,oneof=ticket addon package slot_pricing appointment"`
	ItemID   int64           `json:"item_id" validate:"required,gt=0"`
	Quantity int             `json:"quantity" validate:"required,gt=0"`
	Price    decimal.Decimal `json:"price"`
}

type checkoutIntentResponse struct {
	CheckoutID      uuid.UUID `json:"checkout_id"`
	ClientSecret    string    `json:"client_secret"`
	PaymentIntentID string    `json:"payment_intent_id"`
	AmountMinor     int64     `json:"amount_minor"`
	SnapshotIDs     []int64   `json:"snapshot_ids"`
}

func (p checkoutIntentRequest) toRequest() (checkout.Request, error) {
	currency, err := enums.ParseCurrency(p.Currency)
	if err != nil {
		return checkout.Request{}, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency").
			WithDetails(map[string]string{"currency": "is not supported"})
	}
	req := checkout.Request{
		UserID:         p.UserID,
		EventID:        p.EventID,
		TaxTotal:       p.TaxTotal,
		SubTotal:       p.SubTotal,
		GrandTotal:     p.GrandTotal,
		DiscountAmount: p.DiscountAmount,
		DiscountCode:   validators.SanitizeString(p.DiscountCode, maxDiscountCodeLen),
		Currency:       currency,
		Lines:          make([]checkout.Line, len(p.Lines)),
	}
	if p.CheckoutID != nil {
		req.CheckoutID = *p.CheckoutID
	}
	for i, line := range p.Lines {
		req.Lines[i] = checkout.Line{
			ItemType: enums.ItemType(line.ItemType),
			ItemID:   line.ItemID,
			Quantity: line.Quantity,
			Price:    line.Price,
		}
	}
	return req, nil
}
