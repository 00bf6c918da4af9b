package sqlite

import (
	"context"
	"errors"
	"fmt"

	"fundledger/internal/store"
	"fundledger/internal/store/model"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"gorm.io/gorm"
)

type flowRepository struct {
	db *gorm.DB
}

func NewFlowRepo(db *gorm.DB) *flowRepository {
	return &flowRepository{db: db}
}

func (r *flowRepository) Insert(ctx context.Context, flow *types.Flow) error {
	if flow == nil {
		return errors.New("flow cannot be nil")
	}
	m := model.FromFlow(*flow)
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *flowRepository) Get(ctx context.Context, id string) (*types.Flow, error) {
	var m model.FlowModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("flow %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	f := m.ToFlow()
	return &f, nil
}

func (r *flowRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.FlowModel{}).Error
}

func (r *flowRepository) List(ctx context.Context, q store.FlowQuery) ([]types.Flow, error) {
	tx := r.db.WithContext(ctx).Model(&model.FlowModel{})
	if q.AccountID != "" {
		tx = tx.Where("account_id = ?", q.AccountID)
	}
	if !q.From.IsZero() {
		tx = tx.Where("tdate >= ?", q.From.String())
	}
	if !q.To.IsZero() {
		tx = tx.Where("tdate <= ?", q.To.String())
	}
	if q.Symbol != "" {
		tx = tx.Where("symbol = ?", q.Symbol)
	}
	if q.Market != "" {
		tx = tx.Where("market = ?", q.Market)
	}
	if q.Synthetic != nil {
		tx = tx.Where("synthetic = ?", *q.Synthetic)
	}
	if len(q.Types) > 0 {
		names := make([]string, 0, len(q.Types))
		for _, t := range q.Types {
			names = append(names, string(t))
		}
		tx = tx.Where("type IN ?", names)
	}
	var rows []model.FlowModel
	if err := tx.Order("tdate ASC, seq ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.Flow, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.ToFlow())
	}
	return out, nil
}

func (r *flowRepository) Earliest(ctx context.Context, accountID string) (tradingday.Date, error) {
	var m model.FlowModel
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("tdate ASC, seq ASC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tradingday.Date{}, nil
	}
	if err != nil {
		return tradingday.Date{}, err
	}
	return tradingday.Parse(m.TDate)
}
