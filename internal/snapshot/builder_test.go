package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventpass-backend/pkg/db/dbtest"
	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
)

func createLines(t *testing.T, db *gorm.DB, checkoutID uuid.UUID, lines ...LineInput) []models.SnapshotLine {
	t.Helper()
	var out []models.SnapshotLine
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = NewBuilder().Create(context.Background(), tx, CreateInput{
			CheckoutID: checkoutID,
			UserID:     42,
			EventID:    9,
			Lines:      lines,
		})
		return err
	})
	require.NoError(t, err)
	return out
}

func TestBuilderCreatesPendingLinesInOrder(t *testing.T) {
	db := dbtest.Open(t)
	checkoutID := uuid.New()

	lines := createLines(t, db, checkoutID,
		LineInput{ItemType: enums.ItemTypeTicket, ItemID: 1, ItemName: "GA", Quantity: 2, UnitPrice: decimal.RequireFromString("25.00")},
		LineInput{ItemType: enums.ItemTypeAddon, ItemID: 3, ItemName: "Parking", Quantity: 1, UnitPrice: decimal.RequireFromString("10.50")},
	)
	require.Len(t, lines, 2)
	assert.NotZero(t, lines[0].ID)
	assert.Less(t, lines[0].ID, lines[1].ID)
	assert.Equal(t, "GA", lines[0].ItemName)
	assert.Equal(t, "Parking", lines[1].ItemName)

	stored, err := NewRepository(db).FindByCheckoutID(context.Background(), checkoutID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, line := range stored {
		assert.Equal(t, enums.SnapshotStatePending, line.State)
		assert.Equal(t, int64(42), line.UserID)
		assert.Nil(t, line.SettledAt)
	}
	assert.True(t, stored[1].UnitPrice.Equal(decimal.RequireFromString("10.5")))
	assert.Equal(t, []int64{lines[0].ID, lines[1].ID}, IDs(lines))
}

func TestBuilderRejectsInvalidInput(t *testing.T) {
	db := dbtest.Open(t)
	builder := NewBuilder()
	ctx := context.Background()

	_, err := builder.Create(ctx, db, CreateInput{UserID: 1, EventID: 1, Lines: []LineInput{{Quantity: 1}}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = builder.Create(ctx, db, CreateInput{CheckoutID: uuid.New(), UserID: 1, EventID: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = builder.Create(ctx, db, CreateInput{CheckoutID: uuid.New(), UserID: 1, EventID: 1, Lines: []LineInput{
		{ItemType: enums.ItemTypeTicket, ItemID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(-1)},
	}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	var count int64
	require.NoError(t, db.Model(&models.SnapshotLine{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTransitionPendingOnlyMovesPendingLines(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	lines := createLines(t, db, uuid.New(),
		LineInput{ItemType: enums.ItemTypeTicket, ItemID: 1, ItemName: "GA", Quantity: 1, UnitPrice: decimal.NewFromInt(5)},
		LineInput{ItemType: enums.ItemTypeTicket, ItemID: 2, ItemName: "VIP", Quantity: 1, UnitPrice: decimal.NewFromInt(50)},
	)
	repo := NewRepository(db)

	moved, err := repo.TransitionPending(ctx, []int64{lines[0].ID}, enums.SnapshotStateFailed)
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.Equal(t, enums.SnapshotStateFailed, moved[0].State)

	moved, err = repo.TransitionPending(ctx, IDs(lines), enums.SnapshotStatePaid)
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.Equal(t, lines[1].ID, moved[0].ID)

	moved, err = repo.TransitionPending(ctx, IDs(lines), enums.SnapshotStatePaid)
	require.NoError(t, err)
	assert.Empty(t, moved)

	stored, err := repo.FindByIDs(ctx, IDs(lines))
	require.NoError(t, err)
	assert.Equal(t, enums.SnapshotStateFailed, stored[0].State)
	assert.Equal(t, enums.SnapshotStatePaid, stored[1].State)
	assert.NotNil(t, stored[1].SettledAt)
}

func TestTransitionPendingRejectsPendingTarget(t *testing.T) {
	_, err := NewRepository(dbtest.Open(t)).TransitionPending(context.Background(), []int64{1}, enums.SnapshotStatePending)
	require.Error(t, err)
}

func TestListStalePending(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	old := createLines(t, db, uuid.New(),
		LineInput{ItemType: enums.ItemTypeTicket, ItemID: 1, ItemName: "GA", Quantity: 1, UnitPrice: decimal.NewFromInt(5)},
	)
	fresh := createLines(t, db, uuid.New(),
		LineInput{ItemType: enums.ItemTypeTicket, ItemID: 1, ItemName: "GA", Quantity: 1, UnitPrice: decimal.NewFromInt(5)},
	)
	settled := createLines(t, db, uuid.New(),
		LineInput{ItemType: enums.ItemTypeTicket, ItemID: 1, ItemName: "GA", Quantity: 1, UnitPrice: decimal.NewFromInt(5)},
	)
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, db.Model(&models.SnapshotLine{}).Where("id IN ?", []int64{old[0].ID, settled[0].ID}).Update("created_at", past).Error)
	_, err := NewRepository(db).TransitionPending(ctx, IDs(settled), enums.SnapshotStatePaid)
	require.NoError(t, err)

	stale, err := NewRepository(db).ListStalePending(ctx, time.Now().Add(-time.Hour), 0, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old[0].ID, stale[0].ID)
	assert.NotEqual(t, fresh[0].ID, stale[0].ID)
}

func TestListStalePendingPagesAfterCursor(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	var ids []int64
	for i := 0; i < 3; i++ {
		lines := createLines(t, db, uuid.New(),
			LineInput{ItemType: enums.ItemTypeTicket, ItemID: 1, ItemName: "GA", Quantity: 1, UnitPrice: decimal.NewFromInt(5)},
		)
		ids = append(ids, lines[0].ID)
	}
	require.NoError(t, db.Model(&models.SnapshotLine{}).Where("id IN ?", ids).
		Update("created_at", time.Now().Add(-2*time.Hour)).Error)
	repo := NewRepository(db)
	cutoff := time.Now().Add(-time.Hour)

	page, err := repo.ListStalePending(ctx, cutoff, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, ids[:2], IDs(page))

	page, err = repo.ListStalePending(ctx, cutoff, page[len(page)-1].ID, 2)
	require.NoError(t, err)
	assert.Equal(t, ids[2:], IDs(page))

	page, err = repo.ListStalePending(ctx, cutoff, ids[2], 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}
