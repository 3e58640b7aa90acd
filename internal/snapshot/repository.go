package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
)

// Repository persists snapshot lines. Only the state column is ever updated.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// WithTx binds the repository to an existing transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx, now: r.now}
}

// InsertBatch inserts lines in one statement and fills their generated ids.
func (r *Repository) InsertBatch(ctx context.Context, lines []models.SnapshotLine) error {
	if len(lines) == 0 {
		return errors.New("no snapshot lines to insert")
	}
	return r.db.WithContext(ctx).Create(&lines).Error
}

// FindByIDs returns the lines for ids ordered by id.
func (r *Repository) FindByIDs(ctx context.Context, ids []int64) ([]models.SnapshotLine, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var lines []models.SnapshotLine
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&lines).Error
	return lines, err
}

// FindByCheckoutID returns every line captured by one checkout attempt.
func (r *Repository) FindByCheckoutID(ctx context.Context, checkoutID uuid.UUID) ([]models.SnapshotLine, error) {
	var lines []models.SnapshotLine
	err := r.db.WithContext(ctx).
		Where("checkout_id = ?", checkoutID).
		Order("id ASC").
		Find(&lines).Error
	return lines, err
}

// TransitionPending moves the still pending lines among ids to state and
// returns exactly the lines that moved. Lines already in a terminal state are
// left alone, which makes replays and out of order deliveries harmless.
func (r *Repository) TransitionPending(ctx context.Context, ids []int64, to enums.SnapshotState) ([]models.SnapshotLine, error) {
	if !to.IsTerminal() {
		return nil, errors.New("target state must be terminal")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	conn := r.db.WithContext(ctx)

	var pending []models.SnapshotLine
	err := conn.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ? AND state = ?", ids, enums.SnapshotStatePending).
		Order("id ASC").
		Find(&pending).Error
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	moving := make([]int64, len(pending))
	for i := range pending {
		moving[i] = pending[i].ID
	}
	settledAt := r.now().UTC()
	err = conn.Model(&models.SnapshotLine{}).
		Where("id IN ? AND state = ?", moving, enums.SnapshotStatePending).
		Updates(map[string]any{"state": to, "settled_at": settledAt}).Error
	if err != nil {
		return nil, err
	}
	for i := range pending {
		pending[i].State = to
		pending[i].SettledAt = &settledAt
	}
	return pending, nil
}

// ListStalePending returns up to limit pending lines created before cutoff
// with an id greater than afterID, in id order. Callers page by passing the
// last id they saw, so rows they chose to leave pending never hide newer ones.
func (r *Repository) ListStalePending(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]models.SnapshotLine, error) {
	if limit <= 0 {
		limit = 200
	}
	var lines []models.SnapshotLine
	err := r.db.WithContext(ctx).
		Where("state = ? AND created_at < ? AND id > ?", enums.SnapshotStatePending, cutoff, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&lines).Error
	return lines, err
}
