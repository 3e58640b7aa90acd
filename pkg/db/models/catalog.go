package models

// Catalog tables are owned by catalog management. This service only reads them.

type Ticket struct {
	ID      int64  `gorm:"column:id;primaryKey"`
	EventID int64  `gorm:"column:event_id;not null;index"`
	Name    string `gorm:"column:name;not null"`
	Count   *int   `gorm:"column:count"`
}

func (Ticket) TableName() string { return "tickets" }

type Addon struct {
	ID      int64  `gorm:"column:id;primaryKey"`
	EventID int64  `gorm:"column:event_id;not null;index"`
	Name    string `gorm:"column:name;not null"`
	Count   *int   `gorm:"column:count"`
}

func (Addon) TableName() string { return "addons" }

type Package struct {
	ID           int64  `gorm:"column:id;primaryKey"`
	EventID      int64  `gorm:"column:event_id;not null;index"`
	Name         string `gorm:"column:name;not null"`
	TotalPackage *int   `gorm:"column:total_package"`
}

func (Package) TableName() string { return "packages" }

type SlotPricing struct {
	ID        int64  `gorm:"column:id;primaryKey"`
	EventID   int64  `gorm:"column:event_id;not null;index"`
	Name      string `gorm:"column:name;not null"`
	TotalSlot *int   `gorm:"column:total_slot"`
}

func (SlotPricing) TableName() string { return "slot_pricings" }

// Appointment items carry no capacity column at all.
type Appointment struct {
	ID      int64  `gorm:"column:id;primaryKey"`
	EventID int64  `gorm:"column:event_id;not null;index"`
	Name    string `gorm:"column:name;not null"`
}

func (Appointment) TableName() string { return "appointments" }
