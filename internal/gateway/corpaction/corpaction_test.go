package corpaction

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"fundledger/internal/config"
	"fundledger/internal/store/memory"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	from = tradingday.MustParse("2025-01-01")
	to   = tradingday.MustParse("2025-12-31")
)

func corpConfig(url string) config.CorpActionConfig {
	return config.CorpActionConfig{
		Source:    "http",
		ListPath:  "data.items",
		FromParam: "from",
		ToParam:   "to",
		HTTP: config.HTTPSourceConfig{
			BaseURL:     url,
			Path:        "/dividends",
			SymbolParam: "code",
		},
	}
}

func TestHTTP_ParsesFiltersAndPersists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "600000", r.URL.Query().Get("code"))
		assert.Equal(t, "2025-01-01", r.URL.Query().Get("from"))
		assert.Equal(t, "2025-12-31", r.URL.Query().Get("to"))
		_, _ = w.Write([]byte(`{"data":{"items":[
			{"ex_dividend_date":"2025-07-10","record_date":"2025-07-09","pay_date":"2025-07-10","cash_per_share":"0.45"},
			{"ex_dividend_date":"2025-03-05","record_date":"2025-03-04","pay_date":"2025-03-10","cash_per_share":0.3,"shares_per_share":"0.2"},
			{"ex_dividend_date":"2024-06-01","cash_per_share":"1"}
		]}}`))
	}))
	defer srv.Close()

	st := memory.New()
	h, err := NewHTTP(corpConfig(srv.URL), st.Dividends())
	require.NoError(t, err)

	details, err := h.GetDividendDetail(context.Background(), "600000", "SH", from, to)
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, "2025-03-05", details[0].ExDividendDate.String())
	assert.Equal(t, "SH", details[0].Market)
	assert.True(t, details[0].CashPerShare.Equal(decimal.RequireFromString("0.3")))
	assert.True(t, details[0].SharesPerShare.Equal(decimal.RequireFromString("0.2")))
	assert.True(t, details[1].SharesPerShare.IsZero())

	stored, err := NewStore(st.Dividends()).GetDividendDetail(context.Background(), "600000", "SH", from, to)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestHTTP_NotFoundIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	h, err := NewHTTP(corpConfig(srv.URL), nil)
	require.NoError(t, err)
	details, err := h.GetDividendDetail(context.Background(), "600000", "SH", from, to)
	require.NoError(t, err)
	assert.Empty(t, details)
}

func TestHTTP_BadPayloadIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"items":[{"ex_dividend_date":"2025-07-10","cash_per_share":"-1"}]}}`))
	}))
	defer srv.Close()
	h, err := NewHTTP(corpConfig(srv.URL), nil)
	require.NoError(t, err)
	_, err = h.GetDividendDetail(context.Background(), "600000", "SH", from, to)
	assert.ErrorIs(t, err, types.ErrExternalData)
}

func TestImporter(t *testing.T) {
	st := memory.New()
	im, err := NewImporter(st.Dividends())
	require.NoError(t, err)

	n, err := im.Import(context.Background(), []byte(`[
		{"symbol":"600000","market":"SH","ex_dividend_date":"2025-03-05","record_date":"2025-03-04","pay_date":"2025-03-10","cash_per_share":"0.3"}
	]`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	details, err := st.Dividends().List(context.Background(), "600000", "SH", from, to)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "2025-03-10", details[0].PayDate.String())

	_, err = im.Import(context.Background(), []byte(`[{"symbol":"600000","ex_dividend_date":"2025-03-05"}]`))
	assert.ErrorContains(t, err, "schema")
	_, err = im.Import(context.Background(), []byte(`[{"symbol":"600000","market":"SH","ex_dividend_date":"03/05/2025"}]`))
	assert.Error(t, err)
	_, err = im.Import(context.Background(), []byte(`[{"symbol":"600000","market":"SH","ex_dividend_date":"2025-03-05","cash_per_share":"-0.1"}]`))
	assert.Error(t, err)
}
