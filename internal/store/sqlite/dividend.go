package sqlite

import (
	"context"

	"fundledger/internal/store/model"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type dividendRepository struct {
	db *gorm.DB
}

func NewDividendRepo(db *gorm.DB) *dividendRepository {
	return &dividendRepository{db: db}
}

func (r *dividendRepository) Upsert(ctx context.Context, details []types.DividendDetail) error {
	if len(details) == 0 {
		return nil
	}
	rows := make([]model.DividendDetailModel, 0, len(details))
	for _, d := range details {
		rows = append(rows, model.FromDividendDetail(d))
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "market"}, {Name: "ex_dividend_date"}},
		UpdateAll: true,
	}).CreateInBatches(&rows, upsertBatchSize).Error
}

func (r *dividendRepository) List(ctx context.Context, symbol, market string, from, to tradingday.Date) ([]types.DividendDetail, error) {
	tx := r.db.WithContext(ctx).Where("symbol = ? AND market = ?", symbol, market)
	if !from.IsZero() {
		tx = tx.Where("ex_dividend_date >= ?", from.String())
	}
	if !to.IsZero() {
		tx = tx.Where("ex_dividend_date <= ?", to.String())
	}
	var rows []model.DividendDetailModel
	if err := tx.Order("ex_dividend_date ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.DividendDetail, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.ToDividendDetail())
	}
	return out, nil
}
