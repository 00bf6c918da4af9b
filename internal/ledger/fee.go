package ledger

import (
	"fundledger/internal/money"
	"fundledger/internal/types"
)

// FeeCalculator turns a buy/sell request into a fully priced flow. It is pure.
//
// The request cost is the all-in unit cost, so gross = |cost × quantity| already
// contains commission (and tax for sells). The security amount is backed out of it:
//
//	buy:  security = gross / (1 + commission_rate)
//	sell: security = gross / (1 + commission_rate + tax_rate)
type FeeCalculator struct{}

func (FeeCalculator) Calculate(account types.Account, req types.FlowRequest) (types.Flow, error) {
	if !req.Type.IsTrade() {
		return types.Flow{}, &types.InvalidFlowError{Field: "type", Reason: "fee calculation needs buy or sell, got " + string(req.Type)}
	}
	if !req.Quantity.IsPositive() {
		return types.Flow{}, &types.InvalidFlowError{Field: "quantity", Reason: "must be positive"}
	}
	if !req.Cost.IsPositive() {
		return types.Flow{}, &types.InvalidFlowError{Field: "cost", Reason: "must be positive"}
	}

	gross := req.Cost.Mul(req.Quantity).Abs()
	commRate := account.CommissionRate
	taxRate := money.Zero
	if req.Type == types.FlowSell {
		taxRate = account.TaxRate
	}
	security := gross.Div(money.One.Add(commRate).Add(taxRate))
	commission := money.Round(security.Mul(commRate))
	tax := money.Round(security.Mul(taxRate))

	f := types.Flow{
		AccountID:  account.ID,
		Symbol:     req.Symbol,
		Market:     req.Market,
		Type:       req.Type,
		Cost:       req.Cost,
		Price:      money.Round(security.Div(req.Quantity)),
		Commission: commission,
		Tax:        tax,
		Fee:        commission.Add(tax),
		Currency:   account.Currency,
		TDate:      req.TDate,
	}
	if req.Type == types.FlowBuy {
		f.StkEffect = req.Quantity
		f.FundEffect = money.Round(gross).Neg()
	} else {
		f.StkEffect = req.Quantity.Neg()
		f.FundEffect = money.Round(gross)
	}
	return f, nil
}
