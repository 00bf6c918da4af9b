package sqlite

import (
	"context"
	"errors"

	"fundledger/internal/store/model"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const upsertBatchSize = 200

type snapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepo(db *gorm.DB) *snapshotRepository {
	return &snapshotRepository{db: db}
}

var snapshotKey = []clause.Column{{Name: "account_id"}, {Name: "day"}}

func (r *snapshotRepository) UpsertPositions(ctx context.Context, snaps []types.PositionSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	rows := make([]model.PositionSnapshotModel, 0, len(snaps))
	for _, s := range snaps {
		m, err := model.FromPositionSnapshot(s)
		if err != nil {
			return err
		}
		rows = append(rows, m)
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: snapshotKey, UpdateAll: true}).
		CreateInBatches(&rows, upsertBatchSize).Error
}

func (r *snapshotRepository) UpsertAssets(ctx context.Context, snaps []types.AssetSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	rows := make([]model.AssetSnapshotModel, 0, len(snaps))
	for _, s := range snaps {
		rows = append(rows, model.FromAssetSnapshot(s))
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: snapshotKey, UpdateAll: true}).
		CreateInBatches(&rows, upsertBatchSize).Error
}

func (r *snapshotRepository) GetPositions(ctx context.Context, accountID string, day tradingday.Date) (*types.PositionSnapshot, error) {
	var m model.PositionSnapshotModel
	err := r.db.WithContext(ctx).Where("account_id = ? AND day = ?", accountID, day.String()).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap, err := m.ToPositionSnapshot()
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (r *snapshotRepository) GetAssets(ctx context.Context, accountID string, day tradingday.Date) (*types.AssetSnapshot, error) {
	var m model.AssetSnapshotModel
	err := r.db.WithContext(ctx).Where("account_id = ? AND day = ?", accountID, day.String()).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap := m.ToAssetSnapshot()
	return &snap, nil
}

func (r *snapshotRepository) ListPositions(ctx context.Context, accountID string, from, to tradingday.Date) ([]types.PositionSnapshot, error) {
	var rows []model.PositionSnapshotModel
	if err := r.dayRange(ctx, accountID, from, to).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.PositionSnapshot, 0, len(rows))
	for _, m := range rows {
		snap, err := m.ToPositionSnapshot()
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func (r *snapshotRepository) ListAssets(ctx context.Context, accountID string, from, to tradingday.Date) ([]types.AssetSnapshot, error) {
	var rows []model.AssetSnapshotModel
	if err := r.dayRange(ctx, accountID, from, to).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.AssetSnapshot, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.ToAssetSnapshot())
	}
	return out, nil
}

func (r *snapshotRepository) dayRange(ctx context.Context, accountID string, from, to tradingday.Date) *gorm.DB {
	tx := r.db.WithContext(ctx).Where("account_id = ?", accountID)
	if !from.IsZero() {
		tx = tx.Where("day >= ?", from.String())
	}
	if !to.IsZero() {
		tx = tx.Where("day <= ?", to.String())
	}
	return tx.Order("day ASC")
}
