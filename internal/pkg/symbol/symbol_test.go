package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	assert.Equal(t, Symbol{Code: "600000", Market: "SH"}, Parse("600000.sh"))
	assert.Equal(t, Symbol{Code: "000001", Market: "SZ"}, Parse(" sz000001 "))
	assert.Equal(t, Symbol{Code: "510300"}, Parse("510300"))
	assert.Equal(t, Symbol{Code: "AAPL"}, Parse("aapl"))
	assert.Equal(t, Symbol{}, Parse(""))
}

func TestConverters(t *testing.T) {
	s := Symbol{Code: "600000", Market: "SH"}
	cases := map[string]string{"": "600000", "plain": "600000", "suffix": "600000.SH", "PREFIX": "sh600000"}
	for format, want := range cases {
		c, ok := For(format)
		assert.True(t, ok, format)
		assert.Equal(t, want, c.ToVendor(s), format)
	}
	_, ok := For("binance")
	assert.False(t, ok)

	assert.Equal(t, "600000", Suffix.ToVendor(Symbol{Code: "600000"}))
}
