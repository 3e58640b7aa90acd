package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
)

// LineInput is one priced cart line, already resolved against the catalog.
type LineInput struct {
	ItemType  enums.ItemType
	ItemID    int64
	ItemName  string
	Quantity  int
	UnitPrice decimal.Decimal
}

type CreateInput struct {
	CheckoutID uuid.UUID
	UserID     int64
	EventID    int64
	Lines      []LineInput
}

// Builder captures cart lines as pending snapshot lines.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// Create bulk inserts one pending line per cart line inside tx and returns the
// rows in input order with their generated ids.
func (b *Builder) Create(ctx context.Context, tx *gorm.DB, input CreateInput) ([]models.SnapshotLine, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	lines := make([]models.SnapshotLine, len(input.Lines))
	for i, line := range input.Lines {
		lines[i] = models.SnapshotLine{
			CheckoutID: input.CheckoutID,
			UserID:     input.UserID,
			EventID:    input.EventID,
			ItemType:   line.ItemType,
			ItemID:     line.ItemID,
			ItemName:   line.ItemName,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice.Round(2),
			State:      enums.SnapshotStatePending,
		}
	}
	if err := NewRepository(tx).InsertBatch(ctx, lines); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist checkout snapshot")
	}
	return lines, nil
}

// IDs returns the ids of lines in order.
func IDs(lines []models.SnapshotLine) []int64 {
	ids := make([]int64, len(lines))
	for i := range lines {
		ids[i] = lines[i].ID
	}
	return ids
}

func validateCreate(input CreateInput) error {
	if input.CheckoutID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout id is required")
	}
	if input.UserID <= 0 || input.EventID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id and event id are required")
	}
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one cart line is required")
	}
	for i, line := range input.Lines {
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d quantity must be positive", i))
		}
		if line.UnitPrice.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d price cannot be negative", i))
		}
	}
	return nil
}
