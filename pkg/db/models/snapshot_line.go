package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/eventpass-backend/pkg/enums"
)

// SnapshotLine is one cart line frozen at checkout time. Only State (and SettledAt) ever change.
type SnapshotLine struct {
	ID         int64               `gorm:"column:id;primaryKey;autoIncrement"`
	CheckoutID uuid.UUID           `gorm:"column:checkout_id;type:uuid;not null;index"`
	UserID     int64               `gorm:"column:user_id;not null"`
	EventID    int64               `gorm:"column:event_id;not null"`
	ItemType   enums.ItemType      `gorm:"column:item_type;type:item_type_enum;not null"`
	ItemID     int64               `gorm:"column:item_id;not null"`
	ItemName   string              `gorm:"column:item_name;not null"`
	Quantity   int                 `gorm:"column:quantity;not null"`
	UnitPrice  decimal.Decimal     `gorm:"column:unit_price;type:numeric(12,2);not null"`
	State      enums.SnapshotState `gorm:"column:state;type:snapshot_state_enum;not null;default:'pending'"`
	CreatedAt  time.Time           `gorm:"column:created_at;autoCreateTime"`
	SettledAt  *time.Time          `gorm:"column:settled_at"`
}

func (SnapshotLine) TableName() string { return "checkout_snapshot_lines" }
