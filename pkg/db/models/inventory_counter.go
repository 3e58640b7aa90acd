package models

import (
	"time"

	"github.com/angelmondragon/eventpass-backend/pkg/enums"
)

// InventoryCounter is the reservation ledger row for one sellable item within one event.
// ReservedUnits covers paid lines plus pending lines that have not been expired yet.
type InventoryCounter struct {
	EventID       int64          `gorm:"column:event_id;primaryKey"`
	ItemType      enums.ItemType `gorm:"column:item_type;type:item_type_enum;primaryKey"`
	ItemID        int64          `gorm:"column:item_id;primaryKey"`
	ReservedUnits int            `gorm:"column:reserved_units;not null;default:0"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
