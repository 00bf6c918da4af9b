package sqlite

import (
	"context"

	"fundledger/internal/store/model"
	"fundledger/internal/types"

	"gorm.io/gorm"
)

type runLogRepo struct {
	db *gorm.DB
}

func NewRunLogRepo(db *gorm.DB) *runLogRepo {
	return &runLogRepo{db: db}
}

func (r *runLogRepo) List(ctx context.Context, limit int) ([]types.RunRecord, error) {
	var rows []model.RunLogModel
	q := r.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.RunRecord, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.ToRunRecord())
	}
	return out, nil
}

func (r *runLogRepo) Insert(ctx context.Context, rec *types.RunRecord) error {
	row := model.FromRunRecord(*rec)
	return r.db.WithContext(ctx).Create(&row).Error
}
