package types

import (
	"strings"
	"sync/atomic"
	"time"

	"fundledger/internal/money"
	"fundledger/internal/tradingday"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type FlowType string

const (
	FlowDeposit  FlowType = "deposit"
	FlowWithdraw FlowType = "withdraw"
	FlowBuy      FlowType = "buy"
	FlowSell     FlowType = "sell"
	FlowDividend FlowType = "dividend"
	FlowTax      FlowType = "tax"
)

var flowTypes = []FlowType{FlowDeposit, FlowWithdraw, FlowBuy, FlowSell, FlowDividend, FlowTax}

// FlowTypes lists every flow type in declaration order.
func FlowTypes() []FlowType {
	return append([]FlowType(nil), flowTypes...)
}

func ParseFlowType(s string) (FlowType, error) {
	t := FlowType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", invalid("type", "unknown flow type "+strings.TrimSpace(s))
	}
	return t, nil
}

func (t FlowType) Valid() bool {
	for _, v := range flowTypes {
		if v == t {
			return true
		}
	}
	return false
}

// IsTrade reports whether the flow goes through the fee calculator.
func (t FlowType) IsTrade() bool { return t == FlowBuy || t == FlowSell }

// NeedsSymbol reports whether the flow is tied to a security.
func (t FlowType) NeedsSymbol() bool {
	return t == FlowBuy || t == FlowSell || t == FlowDividend || t == FlowTax
}

// Flow is one cash/security movement. Flows are never edited: a correction deletes
// the flow and inserts a new one.
type Flow struct {
	ID         string          `json:"id"`
	AccountID  string          `json:"account_id"`
	Symbol     string          `json:"symbol,omitempty"`
	Market     string          `json:"market,omitempty"`
	Type       FlowType        `json:"type"`
	StkEffect  decimal.Decimal `json:"stkeffect"`
	FundEffect decimal.Decimal `json:"fundeffect"`
	Cost       decimal.Decimal `json:"cost"`
	Price      decimal.Decimal `json:"price"`
	Commission decimal.Decimal `json:"commission"`
	Tax        decimal.Decimal `json:"tax"`
	Fee        decimal.Decimal `json:"fee"`
	Currency   string          `json:"currency,omitempty"`
	TDate      tradingday.Date `json:"tdate"`
	Seq        int64           `json:"seq"`
	Synthetic  bool            `json:"synthetic,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`

	// PrevCost and PrevFirstBuyDate hold the position a reduction closed, so that
	// undoing the flow can reopen it as it was.
	PrevCost         decimal.Decimal `json:"prev_cost"`
	PrevFirstBuyDate tradingday.Date `json:"prev_first_buy_date"`
	// CostAdjustment is the total amount a tax flow added to the cost basis.
	CostAdjustment decimal.Decimal `json:"cost_adjustment"`

	// Reversal marks the exact negation of a stored flow. It is never persisted.
	Reversal bool `json:"-"`
}

var lastSeq atomic.Int64

// NextSeq returns a strictly increasing tie-break value based on the wall clock.
func NextSeq() int64 {
	for {
		prev := lastSeq.Load()
		next := time.Now().UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if lastSeq.CompareAndSwap(prev, next) {
			return next
		}
	}
}

func newFlow(accountID string, t FlowType, tdate tradingday.Date) Flow {
	f := Flow{AccountID: accountID, Type: t, TDate: tdate}
	f.Stamp()
	return f
}

// Stamp fills in the identity fields a flow gets when it is created.
func (f *Flow) Stamp() {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Seq == 0 {
		f.Seq = NextSeq()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
}

// NewDeposit builds a deposit of a positive amount.
func NewDeposit(accountID string, amount decimal.Decimal, tdate tradingday.Date) (Flow, error) {
	if !amount.IsPositive() {
		return Flow{}, invalid("amount", "must be positive")
	}
	f := newFlow(accountID, FlowDeposit, tdate)
	f.FundEffect = money.Round(amount)
	return f, f.Validate()
}

// NewWithdraw builds a withdrawal; amount is the positive sum leaving the account.
func NewWithdraw(accountID string, amount decimal.Decimal, tdate tradingday.Date) (Flow, error) {
	if !amount.IsPositive() {
		return Flow{}, invalid("amount", "must be positive")
	}
	f := newFlow(accountID, FlowWithdraw, tdate)
	f.FundEffect = money.Round(amount).Neg()
	return f, f.Validate()
}

// NewDividend builds a cash and/or bonus-share dividend. Bonus shares come in at zero cost.
func NewDividend(accountID, symbol, market string, cash, shares decimal.Decimal, tdate tradingday.Date) (Flow, error) {
	f := newFlow(accountID, FlowDividend, tdate)
	f.Symbol = symbol
	f.Market = market
	f.FundEffect = money.Round(cash)
	f.StkEffect = shares
	return f, f.Validate()
}

// NewTax builds a dividend-tax charge. perShare is added to the cost of the position
// still held when the tax is applied; the ledger records the resulting total in
// CostAdjustment.
func NewTax(accountID, symbol, market string, amount, perShare decimal.Decimal, tdate tradingday.Date) (Flow, error) {
	if !amount.IsPositive() {
		return Flow{}, invalid("amount", "must be positive")
	}
	f := newFlow(accountID, FlowTax, tdate)
	f.Symbol = symbol
	f.Market = market
	f.FundEffect = money.Round(amount).Neg()
	f.Tax = money.Round(amount)
	f.Fee = f.Tax
	f.Cost = perShare
	return f, f.Validate()
}

// Validate enforces the sign rules of each flow type.
func (f Flow) Validate() error {
	if strings.TrimSpace(f.AccountID) == "" {
		return invalid("account_id", "is required")
	}
	if !f.Type.Valid() {
		return invalid("type", "unknown flow type "+string(f.Type))
	}
	if f.TDate.IsZero() {
		return invalid("tdate", "is required")
	}
	if f.Type.NeedsSymbol() && strings.TrimSpace(f.Symbol) == "" {
		return invalid("symbol", "is required for "+string(f.Type))
	}
	stk, fund := f.StkEffect.Sign(), f.FundEffect.Sign()
	switch f.Type {
	case FlowDeposit:
		if fund <= 0 || stk != 0 {
			return invalid("fundeffect", "deposit must add cash only")
		}
	case FlowWithdraw:
		if fund >= 0 || stk != 0 {
			return invalid("fundeffect", "withdraw must remove cash only")
		}
	case FlowBuy:
		if stk <= 0 {
			return invalid("stkeffect", "buy must add shares")
		}
		if fund >= 0 {
			return invalid("fundeffect", "buy must spend cash")
		}
		if !f.Cost.IsPositive() {
			return invalid("cost", "must be positive")
		}
	case FlowSell:
		if stk >= 0 {
			return invalid("stkeffect", "sell must remove shares")
		}
		if fund <= 0 {
			return invalid("fundeffect", "sell must add cash")
		}
	case FlowDividend:
		if stk < 0 || fund < 0 {
			return invalid("fundeffect", "dividend cannot remove cash or shares")
		}
		if stk == 0 && fund == 0 {
			return invalid("fundeffect", "dividend is empty")
		}
	case FlowTax:
		if fund >= 0 || stk != 0 {
			return invalid("fundeffect", "tax must remove cash only")
		}
	}
	return nil
}

// HasSymbol reports whether the flow touches a position.
func (f Flow) HasSymbol() bool { return strings.TrimSpace(f.Symbol) != "" }

// Negate returns the exact inverse of f. Applying f and then f.Negate() restores the
// previous position and account state.
func (f Flow) Negate() Flow {
	out := f
	out.StkEffect = f.StkEffect.Neg()
	out.FundEffect = f.FundEffect.Neg()
	out.Reversal = !f.Reversal
	return out
}

// FlowRequest is the caller-facing input of ApplyFlow. Trades carry Quantity and the
// all-in unit Cost; cash flows carry Amount; a manual dividend may carry both Amount
// and bonus-share Quantity.
type FlowRequest struct {
	Type     FlowType        `json:"type"`
	Symbol   string          `json:"symbol,omitempty"`
	Market   string          `json:"market,omitempty"`
	Quantity decimal.Decimal `json:"quantity"`
	Cost     decimal.Decimal `json:"cost"`
	Amount   decimal.Decimal `json:"amount"`
	TDate    tradingday.Date `json:"tdate"`
}

// Normalize trims identifiers and upper-cases symbol and market.
func (r FlowRequest) Normalize() FlowRequest {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	r.Market = strings.ToUpper(strings.TrimSpace(r.Market))
	return r
}

// PositionKey identifies a holding within one account.
type PositionKey struct {
	Symbol string
	Market string
}

func (f Flow) Key() PositionKey { return PositionKey{Symbol: f.Symbol, Market: f.Market} }

func (k PositionKey) String() string {
	if k.Market == "" {
		return k.Symbol
	}
	return k.Symbol + "." + k.Market
}
