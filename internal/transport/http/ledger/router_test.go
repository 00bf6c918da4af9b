package ledgerhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fundledger/internal/gateway/corpaction"
	"fundledger/internal/gateway/quote"
	"fundledger/internal/ledger"
	"fundledger/internal/reconcile"
	"fundledger/internal/store/memory"
	"fundledger/internal/timeseries"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	st := memory.New()
	prices := quote.NewStatic()
	prices.Set("600000", "SH", decimal.NewFromInt(10))
	svc := ledger.NewService(st, prices, tradingday.NewWeekdayCalendar(), ledger.NewLocker(),
		ledger.Options{DefaultCurrency: "CNY", Location: time.UTC})
	syncer := timeseries.NewSyncer(svc)
	importer, err := corpaction.NewImporter(st.Dividends())
	require.NoError(t, err)
	srv, err := NewServer(ServerConfig{Deps: Deps{
		Ledger:     svc,
		Syncer:     syncer,
		Reconciler: reconcile.New(svc, syncer, corpaction.NewStore(st.Dividends()), reconcile.DefaultConfig()),
		Dividends:  importer,
		Runs:       st.RunLogs(),
	}})
	require.NoError(t, st.RunLogs().Insert(context.Background(), &types.RunRecord{
		TraceID: "trace-1", Pipeline: "daily", Day: tradingday.MustParse("2025-03-03"),
		StartedAt: time.Date(2025, 3, 3, 16, 30, 0, 0, time.UTC),
	}))
	require.NoError(t, err)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body)).WithContext(context.Background())
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

const openBody = `{"id":"acc","name":"main","capital":"1000000","import_date":"2025-03-03"}`

func TestHealthz(t *testing.T) {
	code, out := do(t, newTestServer(t), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", out["status"])
}

func TestAccounts(t *testing.T) {
	h := newTestServer(t)

	code, out := do(t, h, http.MethodPost, "/api/accounts", openBody)
	require.Equal(t, http.StatusCreated, code, out)
	assert.Equal(t, "1000000", out["cash"])
	assert.Equal(t, "CNY", out["currency"])

	code, _ = do(t, h, http.MethodPost, "/api/accounts", openBody)
	assert.Equal(t, http.StatusConflict, code)

	code, out = do(t, h, http.MethodGet, "/api/accounts/acc", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "main", out["name"])

	code, _ = do(t, h, http.MethodGet, "/api/accounts/nope", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, out = do(t, h, http.MethodGet, "/api/accounts", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, out["accounts"], 1)
}

func TestFlows(t *testing.T) {
	h := newTestServer(t)
	code, _ := do(t, h, http.MethodPost, "/api/accounts", openBody)
	require.Equal(t, http.StatusCreated, code)

	buy := `{"type":"buy","symbol":"600000","market":"sh","quantity":100,"cost":"10","tdate":"2025-03-03"}`
	code, out := do(t, h, http.MethodPost, "/api/accounts/acc/flows", buy)
	require.Equal(t, http.StatusCreated, code, out)
	assert.Equal(t, "SH", out["market"])
	flowID, _ := out["id"].(string)
	require.NotEmpty(t, flowID)

	code, out = do(t, h, http.MethodPost, "/api/accounts/acc/flows", `{"type":"buy","symbol":"600000","market":"SH","quantity":"1"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, out["error"], "invalid flow request")

	code, _ = do(t, h, http.MethodPost, "/api/accounts/acc/flows", `{"type":"gift","amount":"1"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	sell := `{"type":"sell","symbol":"600000","market":"SH","quantity":"1000","cost":"10","tdate":"2025-03-04"}`
	code, _ = do(t, h, http.MethodPost, "/api/accounts/acc/flows", sell)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, out = do(t, h, http.MethodGet, "/api/accounts/acc/flows?type=buy", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, out["flows"], 1)

	code, _ = do(t, h, http.MethodDelete, "/api/accounts/other/flows/"+flowID, "")
	assert.Equal(t, http.StatusNotFound, code)

	code, out = do(t, h, http.MethodDelete, "/api/accounts/acc/flows/"+flowID, "")
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "1000000", out["cash"])
}

func TestRevertSpentDepositIsRejected(t *testing.T) {
	h := newTestServer(t)
	code, _ := do(t, h, http.MethodPost, "/api/accounts", openBody)
	require.Equal(t, http.StatusCreated, code)

	code, out := do(t, h, http.MethodPost, "/api/accounts/acc/flows", `{"type":"deposit","amount":"100","tdate":"2025-03-04"}`)
	require.Equal(t, http.StatusCreated, code, out)
	depositID, _ := out["id"].(string)
	code, out = do(t, h, http.MethodPost, "/api/accounts/acc/flows", `{"type":"withdraw","amount":"1000100","tdate":"2025-03-04"}`)
	require.Equal(t, http.StatusCreated, code, out)

	code, out = do(t, h, http.MethodDelete, "/api/accounts/acc/flows/"+depositID, "")
	assert.Equal(t, http.StatusUnprocessableEntity, code, out)

	code, out = do(t, h, http.MethodGet, "/api/accounts/acc", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0", out["cash"])
}

func TestSyncAndSnapshot(t *testing.T) {
	h := newTestServer(t)
	code, _ := do(t, h, http.MethodPost, "/api/accounts", openBody)
	require.Equal(t, http.StatusCreated, code)

	code, out := do(t, h, http.MethodPost, "/api/accounts/acc/sync?through=2025-03-05", "")
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "2025-03-05", out["to"])

	code, out = do(t, h, http.MethodGet, "/api/accounts/acc/snapshots/2025-03-04", "")
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "acc", out["account_id"])

	code, _ = do(t, h, http.MethodGet, "/api/accounts/acc/snapshots/bad-day", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, h, http.MethodPost, "/api/accounts/acc/sync?through=03/05", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestImportDividendsAndReconcile(t *testing.T) {
	h := newTestServer(t)
	code, _ := do(t, h, http.MethodPost, "/api/accounts", openBody)
	require.Equal(t, http.StatusCreated, code)

	code, out := do(t, h, http.MethodPost, "/api/dividends",
		`[{"symbol":"600000","market":"SH","ex_dividend_date":"2025-03-05","record_date":"2025-03-04","pay_date":"2025-03-05","cash_per_share":"0.5"}]`)
	require.Equal(t, http.StatusOK, code, out)
	assert.EqualValues(t, 1, out["imported"])

	code, _ = do(t, h, http.MethodPost, "/api/dividends", `[{"symbol":"600000"}]`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, out = do(t, h, http.MethodPost, "/api/accounts/acc/reconcile?through=2025-03-06", "")
	require.Equal(t, http.StatusOK, code, out)
	assert.Len(t, out["reports"], 3)
}

func TestRuns(t *testing.T) {
	h := newTestServer(t)
	code, body := do(t, h, http.MethodGet, "/api/runs?limit=5", "")
	require.Equal(t, http.StatusOK, code)
	runs := body["runs"].([]any)
	require.Len(t, runs, 1)
	assert.Equal(t, "trace-1", runs[0].(map[string]any)["trace_id"])

	code, _ = do(t, h, http.MethodGet, "/api/runs?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, code)
}
