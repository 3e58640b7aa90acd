package enums

// ItemType identifies the catalog variant a cart line refers to.
type ItemType string

const (
	ItemTypeTicket      ItemType = "ticket"
	ItemTypeAddon       ItemType = "addon"
	ItemTypePackage     ItemType = "package"
	ItemTypeSlotPricing ItemType = "slot_pricing"
	ItemTypeAppointment ItemType = "appointment"
)

var itemTypes = members[ItemType]{
	ItemTypeTicket,
	ItemTypeAddon,
	ItemTypePackage,
	ItemTypeSlotPricing,
	ItemTypeAppointment,
}

func (i ItemType) String() string { return string(i) }

func (i ItemType) IsValid() bool { return itemTypes.has(i) }

// CapacityExempt reports whether the variant is never checked against a capacity.
// Appointments are bounded by their slot, not by a unit count.
func (i ItemType) CapacityExempt() bool {
	return i == ItemTypeAppointment
}

func ParseItemType(value string) (ItemType, error) {
	return itemTypes.parse("item type", value)
}
