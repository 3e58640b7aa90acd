package inventory

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
)

// Catalog reads sellable items from the variant tables owned by catalog management.
type Catalog struct {
	db *gorm.DB
}

func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// Load resolves one item scoped to eventID. tx may be nil to use the base connection.
func (c *Catalog) Load(ctx context.Context, tx *gorm.DB, eventID int64, itemType enums.ItemType, itemID int64) (Item, error) {
	conn := c.db
	if tx != nil {
		conn = tx
	}
	if conn == nil {
		return nil, errors.New("catalog database is required")
	}
	conn = conn.WithContext(ctx)
	scope := conn.Where("id = ? AND event_id = ?", itemID, eventID)

	var (
		item Item
		err  error
	)
	switch itemType {
	case enums.ItemTypeTicket:
		var row models.Ticket
		err = scope.Take(&row).Error
		item = ticketItem{row: row}
	case enums.ItemTypeAddon:
		var row models.Addon
		err = scope.Take(&row).Error
		item = addonItem{row: row}
	case enums.ItemTypePackage:
		var row models.Package
		err = scope.Take(&row).Error
		item = packageItem{row: row}
	case enums.ItemTypeSlotPricing:
		var row models.SlotPricing
		err = scope.Take(&row).Error
		item = slotPricingItem{row: row}
	case enums.ItemTypeAppointment:
		var row models.Appointment
		err = scope.Take(&row).Error
		item = appointmentItem{row: row}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported item type %q", itemType))
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s %d does not belong to event %d", itemType, itemID, eventID)).
				WithDetails(map[string]any{"item_type": itemType, "item_id": itemID, "event_id": eventID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load catalog item")
	}
	return item, nil
}
