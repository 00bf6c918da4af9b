package model

import (
	"encoding/json"
	"fmt"
	"time"

	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Money and volume columns are TEXT so SQLite keeps the exact decimal string.

type AccountModel struct {
	ID             string          `gorm:"column:id;primaryKey"`
	Name           string          `gorm:"column:name"`
	Capital        decimal.Decimal `gorm:"column:capital;type:TEXT"`
	Cash           decimal.Decimal `gorm:"column:cash;type:TEXT"`
	Securities     decimal.Decimal `gorm:"column:securities;type:TEXT"`
	Assets         decimal.Decimal `gorm:"column:assets;type:TEXT"`
	CommissionRate decimal.Decimal `gorm:"column:commission_rate;type:TEXT"`
	TaxRate        decimal.Decimal `gorm:"column:tax_rate;type:TEXT"`
	Currency       string          `gorm:"column:currency"`
	ImportDate     string          `gorm:"column:import_date"`
	TSDataSyncDate string          `gorm:"column:ts_data_sync_date;index"`
	UpdatedAtUnix  int64           `gorm:"column:updated_at"`
}

func (AccountModel) TableName() string { return "accounts" }

type PositionModel struct {
	AccountID       string          `gorm:"column:account_id;primaryKey"`
	Symbol          string          `gorm:"column:symbol;primaryKey"`
	Market          string          `gorm:"column:market;primaryKey"`
	Volume          decimal.Decimal `gorm:"column:volume;type:TEXT"`
	AvailableVolume decimal.Decimal `gorm:"column:available_volume;type:TEXT"`
	Cost            decimal.Decimal `gorm:"column:cost;type:TEXT"`
	FirstBuyDate    string          `gorm:"column:first_buy_date"`
	UpdatedAtUnix   int64           `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "positions" }

type FlowModel struct {
	ID            string          `gorm:"column:id;primaryKey"`
	AccountID     string          `gorm:"column:account_id;index:idx_flow_account_day,priority:1"`
	TDate         string          `gorm:"column:tdate;index:idx_flow_account_day,priority:2"`
	Seq           int64           `gorm:"column:seq"`
	Symbol        string          `gorm:"column:symbol;index"`
	Market        string          `gorm:"column:market"`
	Type          string          `gorm:"column:type"`
	StkEffect     decimal.Decimal `gorm:"column:stkeffect;type:TEXT"`
	FundEffect    decimal.Decimal `gorm:"column:fundeffect;type:TEXT"`
	Cost          decimal.Decimal `gorm:"column:cost;type:TEXT"`
	Price         decimal.Decimal `gorm:"column:price;type:TEXT"`
	Commission    decimal.Decimal `gorm:"column:commission;type:TEXT"`
	Tax           decimal.Decimal `gorm:"column:tax;type:TEXT"`
	Fee           decimal.Decimal `gorm:"column:fee;type:TEXT"`
	Currency      string          `gorm:"column:currency"`
	Synthetic     bool            `gorm:"column:synthetic"`
	CreatedAtUnix int64           `gorm:"column:created_at"`

	PrevCost         decimal.Decimal `gorm:"column:prev_cost;type:TEXT;default:'0'"`
	PrevFirstBuyDate string          `gorm:"column:prev_first_buy_date;default:''"`
	CostAdjustment   decimal.Decimal `gorm:"column:cost_adjustment;type:TEXT;default:'0'"`
}

func (FlowModel) TableName() string { return "flows" }

type PositionSnapshotModel struct {
	AccountID     string         `gorm:"column:account_id;primaryKey"`
	Day           string         `gorm:"column:day;primaryKey"`
	HoldingsJSON  datatypes.JSON `gorm:"column:holdings_json;type:TEXT"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (PositionSnapshotModel) TableName() string { return "position_snapshots" }

type AssetSnapshotModel struct {
	AccountID     string          `gorm:"column:account_id;primaryKey"`
	Day           string          `gorm:"column:day;primaryKey"`
	Cash          decimal.Decimal `gorm:"column:cash;type:TEXT"`
	Securities    decimal.Decimal `gorm:"column:securities;type:TEXT"`
	Assets        decimal.Decimal `gorm:"column:assets;type:TEXT"`
	UpdatedAtUnix int64           `gorm:"column:updated_at"`
}

func (AssetSnapshotModel) TableName() string { return "asset_snapshots" }

type DividendDetailModel struct {
	Symbol         string          `gorm:"column:symbol;primaryKey"`
	Market         string          `gorm:"column:market;primaryKey"`
	ExDividendDate string          `gorm:"column:ex_dividend_date;primaryKey"`
	RecordDate     string          `gorm:"column:record_date"`
	PayDate        string          `gorm:"column:pay_date"`
	CashPerShare   decimal.Decimal `gorm:"column:cash_per_share;type:TEXT"`
	SharesPerShare decimal.Decimal `gorm:"column:shares_per_share;type:TEXT"`
	UpdatedAtUnix  int64           `gorm:"column:updated_at"`
}

func (DividendDetailModel) TableName() string { return "dividend_details" }

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&AccountModel{},
		&PositionModel{},
		&FlowModel{},
		&PositionSnapshotModel{},
		&AssetSnapshotModel{},
		&DividendDetailModel{},
		&RunLogModel{},
	}
}

func parseDay(s string) tradingday.Date {
	d, err := tradingday.Parse(s)
	if err != nil {
		return tradingday.Date{}
	}
	return d
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().Unix()
	}
	return t.Unix()
}

func FromAccount(a types.Account) AccountModel {
	return AccountModel{
		ID:             a.ID,
		Name:           a.Name,
		Capital:        a.Capital,
		Cash:           a.Cash,
		Securities:     a.Securities,
		Assets:         a.Assets,
		CommissionRate: a.CommissionRate,
		TaxRate:        a.TaxRate,
		Currency:       a.Currency,
		ImportDate:     a.ImportDate.String(),
		TSDataSyncDate: a.TSDataSyncDate.String(),
		UpdatedAtUnix:  unix(a.UpdatedAt),
	}
}

func (m AccountModel) ToAccount() types.Account {
	return types.Account{
		ID:             m.ID,
		Name:           m.Name,
		Capital:        m.Capital,
		Cash:           m.Cash,
		Securities:     m.Securities,
		Assets:         m.Assets,
		CommissionRate: m.CommissionRate,
		TaxRate:        m.TaxRate,
		Currency:       m.Currency,
		ImportDate:     parseDay(m.ImportDate),
		TSDataSyncDate: parseDay(m.TSDataSyncDate),
		UpdatedAt:      time.Unix(m.UpdatedAtUnix, 0).UTC(),
	}
}

func FromPosition(p types.Position) PositionModel {
	return PositionModel{
		AccountID:       p.AccountID,
		Symbol:          p.Symbol,
		Market:          p.Market,
		Volume:          p.Volume,
		AvailableVolume: p.AvailableVolume,
		Cost:            p.Cost,
		FirstBuyDate:    p.FirstBuyDate.String(),
		UpdatedAtUnix:   unix(p.UpdatedAt),
	}
}

func (m PositionModel) ToPosition() types.Position {
	return types.Position{
		AccountID:       m.AccountID,
		Symbol:          m.Symbol,
		Market:          m.Market,
		Volume:          m.Volume,
		AvailableVolume: m.AvailableVolume,
		Cost:            m.Cost,
		FirstBuyDate:    parseDay(m.FirstBuyDate),
		UpdatedAt:       time.Unix(m.UpdatedAtUnix, 0).UTC(),
	}
}

func FromFlow(f types.Flow) FlowModel {
	return FlowModel{
		ID:            f.ID,
		AccountID:     f.AccountID,
		TDate:         f.TDate.String(),
		Seq:           f.Seq,
		Symbol:        f.Symbol,
		Market:        f.Market,
		Type:          string(f.Type),
		StkEffect:     f.StkEffect,
		FundEffect:    f.FundEffect,
		Cost:          f.Cost,
		Price:         f.Price,
		Commission:    f.Commission,
		Tax:           f.Tax,
		Fee:           f.Fee,
		Currency:      f.Currency,
		Synthetic:     f.Synthetic,
		CreatedAtUnix: unix(f.CreatedAt),

		PrevCost:         f.PrevCost,
		PrevFirstBuyDate: f.PrevFirstBuyDate.String(),
		CostAdjustment:   f.CostAdjustment,
	}
}

func (m FlowModel) ToFlow() types.Flow {
	return types.Flow{
		ID:         m.ID,
		AccountID:  m.AccountID,
		TDate:      parseDay(m.TDate),
		Seq:        m.Seq,
		Symbol:     m.Symbol,
		Market:     m.Market,
		Type:       types.FlowType(m.Type),
		StkEffect:  m.StkEffect,
		FundEffect: m.FundEffect,
		Cost:       m.Cost,
		Price:      m.Price,
		Commission: m.Commission,
		Tax:        m.Tax,
		Fee:        m.Fee,
		Currency:   m.Currency,
		Synthetic:  m.Synthetic,
		CreatedAt:  time.Unix(m.CreatedAtUnix, 0).UTC(),

		PrevCost:         m.PrevCost,
		PrevFirstBuyDate: parseDay(m.PrevFirstBuyDate),
		CostAdjustment:   m.CostAdjustment,
	}
}

func FromPositionSnapshot(s types.PositionSnapshot) (PositionSnapshotModel, error) {
	holdings := s.Holdings
	if holdings == nil {
		holdings = []types.Holding{}
	}
	raw, err := json.Marshal(holdings)
	if err != nil {
		return PositionSnapshotModel{}, fmt.Errorf("encode holdings %s@%s: %w", s.AccountID, s.Day, err)
	}
	return PositionSnapshotModel{
		AccountID:     s.AccountID,
		Day:           s.Day.String(),
		HoldingsJSON:  datatypes.JSON(raw),
		UpdatedAtUnix: time.Now().Unix(),
	}, nil
}

func (m PositionSnapshotModel) ToPositionSnapshot() (types.PositionSnapshot, error) {
	out := types.PositionSnapshot{AccountID: m.AccountID, Day: parseDay(m.Day), Holdings: []types.Holding{}}
	if len(m.HoldingsJSON) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(m.HoldingsJSON, &out.Holdings); err != nil {
		return out, fmt.Errorf("decode holdings %s@%s: %w", m.AccountID, m.Day, err)
	}
	return out, nil
}

func FromAssetSnapshot(s types.AssetSnapshot) AssetSnapshotModel {
	return AssetSnapshotModel{
		AccountID:     s.AccountID,
		Day:           s.Day.String(),
		Cash:          s.Cash,
		Securities:    s.Securities,
		Assets:        s.Assets,
		UpdatedAtUnix: time.Now().Unix(),
	}
}

func (m AssetSnapshotModel) ToAssetSnapshot() types.AssetSnapshot {
	return types.AssetSnapshot{
		AccountID:  m.AccountID,
		Day:        parseDay(m.Day),
		Cash:       m.Cash,
		Securities: m.Securities,
		Assets:     m.Assets,
	}
}

func FromDividendDetail(d types.DividendDetail) DividendDetailModel {
	return DividendDetailModel{
		Symbol:         d.Symbol,
		Market:         d.Market,
		ExDividendDate: d.ExDividendDate.String(),
		RecordDate:     d.RecordDate.String(),
		PayDate:        d.PayDate.String(),
		CashPerShare:   d.CashPerShare,
		SharesPerShare: d.SharesPerShare,
		UpdatedAtUnix:  time.Now().Unix(),
	}
}

func (m DividendDetailModel) ToDividendDetail() types.DividendDetail {
	return types.DividendDetail{
		Symbol:         m.Symbol,
		Market:         m.Market,
		ExDividendDate: parseDay(m.ExDividendDate),
		RecordDate:     parseDay(m.RecordDate),
		PayDate:        parseDay(m.PayDate),
		CashPerShare:   m.CashPerShare,
		SharesPerShare: m.SharesPerShare,
	}
}
