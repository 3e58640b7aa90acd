package inventory

import (
	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
)

// Item is a sellable catalog entry of any variant, scoped to one event.
type Item interface {
	Kind() enums.ItemType
	ItemID() int64
	EventID() int64
	DisplayName() string
	// Capacity returns the unit limit. limited is false for exempt variants and
	// for a capacity that is unset or not positive.
	Capacity() (limit int, limited bool)
}

type ticketItem struct{ row models.Ticket }

func (t ticketItem) Kind() enums.ItemType  { return enums.ItemTypeTicket }
func (t ticketItem) ItemID() int64         { return t.row.ID }
func (t ticketItem) EventID() int64        { return t.row.EventID }
func (t ticketItem) DisplayName() string   { return t.row.Name }
func (t ticketItem) Capacity() (int, bool) { return capacityOf(t.row.Count) }

type addonItem struct{ row models.Addon }

func (a addonItem) Kind() enums.ItemType  { return enums.ItemTypeAddon }
func (a addonItem) ItemID() int64         { return a.row.ID }
func (a addonItem) EventID() int64        { return a.row.EventID }
func (a addonItem) DisplayName() string   { return a.row.Name }
func (a addonItem) Capacity() (int, bool) { return capacityOf(a.row.Count) }

type packageItem struct{ row models.Package }

func (p packageItem) Kind() enums.ItemType  { return enums.ItemTypePackage }
func (p packageItem) ItemID() int64         { return p.row.ID }
func (p packageItem) EventID() int64        { return p.row.EventID }
func (p packageItem) DisplayName() string   { return p.row.Name }
func (p packageItem) Capacity() (int, bool) { return capacityOf(p.row.TotalPackage) }

type slotPricingItem struct{ row models.SlotPricing }

func (s slotPricingItem) Kind() enums.ItemType  { return enums.ItemTypeSlotPricing }
func (s slotPricingItem) ItemID() int64         { return s.row.ID }
func (s slotPricingItem) EventID() int64        { return s.row.EventID }
func (s slotPricingItem) DisplayName() string   { return s.row.Name }
func (s slotPricingItem) Capacity() (int, bool) { return capacityOf(s.row.TotalSlot) }

type appointmentItem struct{ row models.Appointment }

func (a appointmentItem) Kind() enums.ItemType  { return enums.ItemTypeAppointment }
func (a appointmentItem) ItemID() int64         { return a.row.ID }
func (a appointmentItem) EventID() int64        { return a.row.EventID }
func (a appointmentItem) DisplayName() string   { return a.row.Name }
func (a appointmentItem) Capacity() (int, bool) { return 0, false }

// capacityOf treats nil and non-positive capacities as unlimited.
func capacityOf(value *int) (int, bool) {
	if value == nil || *value <= 0 {
		return 0, false
	}
	return *value, true
}
