package sqlite

import (
	"context"
	"errors"

	"fundledger/internal/store/model"
	"fundledger/internal/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type positionRepository struct {
	db *gorm.DB
}

func NewPositionRepo(db *gorm.DB) *positionRepository {
	return &positionRepository{db: db}
}

func (r *positionRepository) Get(ctx context.Context, accountID string, key types.PositionKey) (*types.Position, error) {
	var m model.PositionModel
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND symbol = ? AND market = ?", accountID, key.Symbol, key.Market).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := m.ToPosition()
	return &p, nil
}

func (r *positionRepository) List(ctx context.Context, accountID string) ([]types.Position, error) {
	var rows []model.PositionModel
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("symbol ASC, market ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.Position, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.ToPosition())
	}
	return out, nil
}

func (r *positionRepository) Save(ctx context.Context, position *types.Position) error {
	if position == nil {
		return errors.New("position cannot be nil")
	}
	m := model.FromPosition(*position)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "symbol"}, {Name: "market"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func (r *positionRepository) Delete(ctx context.Context, accountID string, key types.PositionKey) error {
	return r.db.WithContext(ctx).
		Where("account_id = ? AND symbol = ? AND market = ?", accountID, key.Symbol, key.Market).
		Delete(&model.PositionModel{}).Error
}
