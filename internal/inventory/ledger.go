package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
)

// ReservationRequest asks for quantity units of one catalog item.
type ReservationRequest struct {
	ItemType enums.ItemType
	ItemID   int64
	Quantity int
}

// Reservation is the resolved outcome for one request, in request order.
type Reservation struct {
	Item     Item
	Quantity int
}

type catalogReader interface {
	Load(ctx context.Context, tx *gorm.DB, eventID int64, itemType enums.ItemType, itemID int64) (Item, error)
}

// Ledger owns every mutation of inventory_counters.
type Ledger struct {
	catalog catalogReader
	now     func() time.Time
}

func NewLedger(catalog catalogReader) (*Ledger, error) {
	if catalog == nil {
		return nil, errors.New("catalog reader is required")
	}
	return &Ledger{catalog: catalog, now: time.Now}, nil
}

type itemKey struct {
	itemType enums.ItemType
	itemID   int64
}

type aggregate struct {
	key      itemKey
	item     Item
	quantity int
	position int
}

// CheckAndReserve resolves every request and books its units inside tx.
// A limited item is booked with a conditional increment that only succeeds while
// reserved_units + quantity <= capacity, so concurrent checkouts serialize on the
// counter row. If any item is sold out the caller must roll tx back; nothing is
// booked for any line in that case.
func (l *Ledger) CheckAndReserve(ctx context.Context, tx *gorm.DB, eventID int64, requests []ReservationRequest) ([]Reservation, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if err := validateRequests(eventID, requests); err != nil {
		return nil, err
	}

	reservations := make([]Reservation, len(requests))
	resolved := map[itemKey]Item{}
	aggregates := map[itemKey]*aggregate{}
	for i, req := range requests {
		key := itemKey{itemType: req.ItemType, itemID: req.ItemID}
		item, ok := resolved[key]
		if !ok {
			loaded, err := l.catalog.Load(ctx, tx, eventID, req.ItemType, req.ItemID)
			if err != nil {
				return nil, err
			}
			item = loaded
			resolved[key] = item
		}
		reservations[i] = Reservation{Item: item, Quantity: req.Quantity}

		if req.ItemType.CapacityExempt() {
			continue
		}
		agg, ok := aggregates[key]
		if !ok {
			agg = &aggregate{key: key, item: item, position: i}
			aggregates[key] = agg
		}
		agg.quantity += req.Quantity
	}

	ordered := make([]*aggregate, 0, len(aggregates))
	for _, agg := range aggregates {
		ordered = append(ordered, agg)
	}
	// A fixed lock order keeps two multi-item carts from deadlocking each other.
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].key.itemType != ordered[j].key.itemType {
			return ordered[i].key.itemType < ordered[j].key.itemType
		}
		return ordered[i].key.itemID < ordered[j].key.itemID
	})

	var soldOut []*aggregate
	for _, agg := range ordered {
		if err := l.ensureCounter(ctx, tx, eventID, agg.key); err != nil {
			return nil, err
		}
		ok, err := l.increment(ctx, tx, eventID, agg)
		if err != nil {
			return nil, err
		}
		if !ok {
			soldOut = append(soldOut, agg)
		}
	}
	if len(soldOut) > 0 {
		return nil, soldOutError(soldOut)
	}
	return reservations, nil
}

// Release gives back units for lines that left pending without being paid.
// Counters never drop below zero.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, eventID int64, requests []ReservationRequest) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	totals := map[itemKey]int{}
	keys := []itemKey{}
	for _, req := range requests {
		if req.Quantity <= 0 || req.ItemType.CapacityExempt() {
			continue
		}
		key := itemKey{itemType: req.ItemType, itemID: req.ItemID}
		if _, ok := totals[key]; !ok {
			keys = append(keys, key)
		}
		totals[key] += req.Quantity
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].itemType != keys[j].itemType {
			return keys[i].itemType < keys[j].itemType
		}
		return keys[i].itemID < keys[j].itemID
	})

	for _, key := range keys {
		qty := totals[key]
		err := tx.WithContext(ctx).
			Model(&models.InventoryCounter{}).
			Where("event_id = ? AND item_type = ? AND item_id = ?", eventID, key.itemType, key.itemID).
			Updates(map[string]any{
				"reserved_units": gorm.Expr("CASE WHEN reserved_units > ? THEN reserved_units - ? ELSE 0 END", qty, qty),
				"updated_at":     l.now().UTC(),
			}).Error
		if err != nil {
			return fmt.Errorf("release %s %d: %w", key.itemType, key.itemID, err)
		}
	}
	return nil
}

// Booked reports the units currently held against an item within an event.
func (l *Ledger) Booked(ctx context.Context, db *gorm.DB, eventID int64, itemType enums.ItemType, itemID int64) (int, error) {
	var counter models.InventoryCounter
	err := db.WithContext(ctx).
		Where("event_id = ? AND item_type = ? AND item_id = ?", eventID, itemType, itemID).
		Take(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return counter.ReservedUnits, nil
}

// ensureCounter creates the ledger row on first use, seeded from the snapshot
// lines that already hold units for the item.
func (l *Ledger) ensureCounter(ctx context.Context, tx *gorm.DB, eventID int64, key itemKey) error {
	var seed int64
	err := tx.WithContext(ctx).
		Model(&models.SnapshotLine{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("event_id = ? AND item_type = ? AND item_id = ? AND state IN ?",
			eventID, key.itemType, key.itemID,
			[]enums.SnapshotState{enums.SnapshotStatePending, enums.SnapshotStatePaid}).
		Scan(&seed).Error
	if err != nil {
		return fmt.Errorf("seed counter %s %d: %w", key.itemType, key.itemID, err)
	}
	row := models.InventoryCounter{
		EventID:       eventID,
		ItemType:      key.itemType,
		ItemID:        key.itemID,
		ReservedUnits: int(seed),
	}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("create counter %s %d: %w", key.itemType, key.itemID, err)
	}
	return nil
}

func (l *Ledger) increment(ctx context.Context, tx *gorm.DB, eventID int64, agg *aggregate) (bool, error) {
	query := tx.WithContext(ctx).
		Model(&models.InventoryCounter{}).
		Where("event_id = ? AND item_type = ? AND item_id = ?", eventID, agg.key.itemType, agg.key.itemID)
	if limit, limited := agg.item.Capacity(); limited {
		query = query.Where("reserved_units + ? <= ?", agg.quantity, limit)
	}
	res := query.Updates(map[string]any{
		"reserved_units": gorm.Expr("reserved_units + ?", agg.quantity),
		"updated_at":     l.now().UTC(),
	})
	if res.Error != nil {
		return false, fmt.Errorf("reserve %s %d: %w", agg.key.itemType, agg.key.itemID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func validateRequests(eventID int64, requests []ReservationRequest) error {
	if eventID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	if len(requests) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	for i, req := range requests {
		if !req.ItemType.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d has unsupported item type %q", i, req.ItemType))
		}
		if req.ItemID <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d is missing an item id", i))
		}
		if req.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d quantity must be positive", i))
		}
	}
	return nil
}

// soldOutError names the sold out item that appears first in the cart and lists the rest.
func soldOutError(soldOut []*aggregate) error {
	sort.Slice(soldOut, func(i, j int) bool { return soldOut[i].position < soldOut[j].position })
	first := soldOut[0]
	all := make([]map[string]any, 0, len(soldOut))
	for _, agg := range soldOut {
		all = append(all, map[string]any{
			"item_type": agg.item.Kind(),
			"item_id":   agg.item.ItemID(),
			"item_name": agg.item.DisplayName(),
			"requested": agg.quantity,
		})
	}
	return pkgerrors.New(pkgerrors.CodeSoldOut, fmt.Sprintf("%s %q is sold out", first.item.Kind(), first.item.DisplayName())).
		WithDetails(map[string]any{
			"item_type": first.item.Kind(),
			"item_id":   first.item.ItemID(),
			"item_name": first.item.DisplayName(),
			"sold_out":  all,
		})
}
