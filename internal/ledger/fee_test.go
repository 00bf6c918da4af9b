package ledger

import (
	"testing"

	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dec = decimal.RequireFromString

func feeAccount() types.Account {
	return types.Account{ID: "acc", CommissionRate: dec("0.0003"), TaxRate: dec("0.001"), Currency: "CNY"}
}

func TestFeeCalculator_Buy(t *testing.T) {
	flow, err := FeeCalculator{}.Calculate(feeAccount(), types.FlowRequest{
		Type: types.FlowBuy, Symbol: "SYM", Market: "SH", Quantity: dec("10000"), Cost: dec("10.003"),
		TDate: tradingday.MustParse("2025-03-04"),
	})
	require.NoError(t, err)
	assert.Equal(t, "-100030", flow.FundEffect.String())
	assert.Equal(t, "10000", flow.StkEffect.String())
	assert.Equal(t, "30", flow.Commission.String())
	assert.True(t, flow.Tax.IsZero())
	assert.Equal(t, "30", flow.Fee.String())
	assert.Equal(t, "10", flow.Price.String())
	assert.True(t, flow.Cost.Equal(dec("10.003")))
	assert.Equal(t, "CNY", flow.Currency)
	assert.NoError(t, flow.Validate())
}

func TestFeeCalculator_Sell(t *testing.T) {
	flow, err := FeeCalculator{}.Calculate(feeAccount(), types.FlowRequest{
		Type: types.FlowSell, Symbol: "SYM", Market: "SH", Quantity: dec("5000"), Cost: dec("9.989"),
		TDate: tradingday.MustParse("2025-03-05"),
	})
	require.NoError(t, err)
	assert.Equal(t, "49945", flow.FundEffect.String())
	assert.Equal(t, "-5000", flow.StkEffect.String())
	assert.Equal(t, "14.964", flow.Commission.String())
	assert.Equal(t, "49.8802", flow.Tax.String())
	assert.Equal(t, "64.8442", flow.Fee.String())
	assert.Equal(t, "9.976", flow.Price.String())

	// security + fees add back up to the gross amount
	security := flow.Price.Mul(dec("5000"))
	assert.True(t, security.Add(flow.Fee).Sub(flow.FundEffect).Abs().LessThan(dec("0.5")))
}

func TestFeeCalculator_Invalid(t *testing.T) {
	day := tradingday.MustParse("2025-03-04")
	cases := []struct {
		name string
		req  types.FlowRequest
	}{
		{"zero quantity", types.FlowRequest{Type: types.FlowBuy, Symbol: "SYM", Cost: dec("1"), TDate: day}},
		{"negative cost", types.FlowRequest{Type: types.FlowSell, Symbol: "SYM", Quantity: dec("1"), Cost: dec("-1"), TDate: day}},
		{"not a trade", types.FlowRequest{Type: types.FlowDeposit, Amount: dec("1"), TDate: day}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FeeCalculator{}.Calculate(feeAccount(), tc.req)
			assert.ErrorIs(t, err, types.ErrInvalidFlow)
		})
	}
}
