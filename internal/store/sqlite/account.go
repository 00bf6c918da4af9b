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
	"gorm.io/gorm/clause"
)

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepo(db *gorm.DB) *accountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Get(ctx context.Context, id string) (*types.Account, error) {
	var m model.AccountModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("account %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	acc := m.ToAccount()
	return &acc, nil
}

// Save inserts or replaces the account row.
func (r *accountRepository) Save(ctx context.Context, account *types.Account) error {
	if account == nil {
		return errors.New("account cannot be nil")
	}
	m := model.FromAccount(*account)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func (r *accountRepository) List(ctx context.Context) ([]types.Account, error) {
	var rows []model.AccountModel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toAccounts(rows), nil
}

func (r *accountRepository) ListBehind(ctx context.Context, day tradingday.Date) ([]types.Account, error) {
	var rows []model.AccountModel
	if err := r.db.WithContext(ctx).
		Where("ts_data_sync_date = '' OR ts_data_sync_date < ?", day.String()).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toAccounts(rows), nil
}

func toAccounts(rows []model.AccountModel) []types.Account {
	out := make([]types.Account, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.ToAccount())
	}
	return out
}
