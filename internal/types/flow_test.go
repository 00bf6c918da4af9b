package types

import (
	"errors"
	"testing"

	"fundledger/internal/tradingday"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowValidate(t *testing.T) {
	day := tradingday.MustParse("2025-03-03")
	d := decimal.RequireFromString

	t.Run("deposit must add cash", func(t *testing.T) {
		_, err := NewDeposit("acc", d("-1"), day)
		assert.True(t, errors.Is(err, ErrInvalidFlow))

		f, err := NewDeposit("acc", d("100.123456"), day)
		require.NoError(t, err)
		assert.Equal(t, "100.1235", f.FundEffect.String())
		assert.NotEmpty(t, f.ID)
	})

	t.Run("withdraw stores negative fund effect", func(t *testing.T) {
		f, err := NewWithdraw("acc", d("10"), day)
		require.NoError(t, err)
		assert.True(t, f.FundEffect.Equal(d("-10")))
	})

	t.Run("buy sign rules", func(t *testing.T) {
		f := Flow{AccountID: "acc", Symbol: "SYM", Type: FlowBuy, TDate: day,
			StkEffect: d("100"), FundEffect: d("-1000"), Cost: d("10")}
		assert.NoError(t, f.Validate())

		f.FundEffect = d("1000")
		var invalidErr *InvalidFlowError
		require.ErrorAs(t, f.Validate(), &invalidErr)
		assert.Equal(t, "fundeffect", invalidErr.Field)
	})

	t.Run("sell requires symbol", func(t *testing.T) {
		f := Flow{AccountID: "acc", Type: FlowSell, TDate: day, StkEffect: d("-1"), FundEffect: d("1")}
		assert.Error(t, f.Validate())
	})

	t.Run("empty dividend rejected", func(t *testing.T) {
		_, err := NewDividend("acc", "SYM", "SH", decimal.Zero, decimal.Zero, day)
		assert.Error(t, err)
		_, err = NewDividend("acc", "SYM", "SH", d("45"), decimal.Zero, day)
		assert.NoError(t, err)
	})

	t.Run("tax removes cash and carries adjustment", func(t *testing.T) {
		f, err := NewTax("acc", "SYM", "SH", d("9"), d("0.0018"), day)
		require.NoError(t, err)
		assert.True(t, f.FundEffect.Equal(d("-9")))
		assert.True(t, f.Cost.Equal(d("0.0018")))
	})

	t.Run("missing trade date", func(t *testing.T) {
		_, err := NewDeposit("acc", d("1"), tradingday.Date{})
		assert.Error(t, err)
	})
}

func TestFlowNegate(t *testing.T) {
	f := Flow{Type: FlowBuy, StkEffect: decimal.NewFromInt(10), FundEffect: decimal.NewFromInt(-100)}
	n := f.Negate()
	assert.True(t, n.Reversal)
	assert.True(t, n.StkEffect.Equal(decimal.NewFromInt(-10)))
	assert.True(t, n.FundEffect.Equal(decimal.NewFromInt(100)))
	assert.False(t, n.Negate().Reversal)
}

func TestNextSeqIsMonotonic(t *testing.T) {
	prev := NextSeq()
	for i := 0; i < 1000; i++ {
		next := NextSeq()
		assert.Greater(t, next, prev)
		prev = next
	}
}

func TestParseFlowType(t *testing.T) {
	ft, err := ParseFlowType(" Dividend ")
	require.NoError(t, err)
	assert.Equal(t, FlowDividend, ft)
	_, err = ParseFlowType("transfer")
	assert.ErrorIs(t, err, ErrInvalidFlow)
}
