package corpaction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"fundledger/internal/config"
	"fundledger/internal/gateway/httpsource"
	"fundledger/internal/logger"
	"fundledger/internal/pkg/symbol"
	"fundledger/internal/store"
	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// HTTP fetches dividend details from a JSON endpoint. Each element of the list at
// ListPath carries record_date, ex_dividend_date, pay_date, cash_per_share and
// shares_per_share. Fetched details are written through to sink when set, so later
// runs can fall back to the store.
type HTTP struct {
	client *httpsource.Client
	cfg    config.CorpActionConfig
	sink   store.DividendRepository
}

func NewHTTP(cfg config.CorpActionConfig, sink store.DividendRepository) (*HTTP, error) {
	client, err := httpsource.New("corp_action", cfg.HTTP)
	if err != nil {
		return nil, err
	}
	return &HTTP{client: client, cfg: cfg, sink: sink}, nil
}

func (h *HTTP) GetDividendDetail(ctx context.Context, code, market string, from, to tradingday.Date) ([]types.DividendDetail, error) {
	q := httpsource.Query(h.cfg.HTTP, code, market, h.cfg.FromParam, from.String(), h.cfg.ToParam, to.String())
	body, err := h.client.Get(ctx, h.cfg.HTTP.Path, q)
	if errors.Is(err, httpsource.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, types.Unavailable("corp_action", code, err)
	}
	list := body
	if h.cfg.ListPath != "" {
		list = body.Get(h.cfg.ListPath)
	}
	if !list.Exists() {
		return nil, nil
	}
	if !list.IsArray() {
		return nil, types.Unavailable("corp_action", code, fmt.Errorf("%s is not an array", h.cfg.ListPath))
	}
	var out []types.DividendDetail
	var parseErr error
	list.ForEach(func(_, item gjson.Result) bool {
		d, err := parseDetail(item, code, market)
		if err != nil {
			parseErr = err
			return false
		}
		if d.ExDividendDate.Within(from, to) {
			out = append(out, d)
		}
		return true
	})
	if parseErr != nil {
		return nil, types.Unavailable("corp_action", code, parseErr)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExDividendDate.Before(out[j].ExDividendDate) })
	if h.sink != nil && len(out) > 0 {
		if err := h.sink.Upsert(ctx, out); err != nil {
			logger.Warnf("corp_action: persist %d details for %s failed: %v", len(out), code, err)
		}
	}
	return out, nil
}

func parseDetail(item gjson.Result, code, market string) (types.DividendDetail, error) {
	d := types.DividendDetail{Symbol: code, Market: market}
	if raw := strings.TrimSpace(item.Get("symbol").String()); raw != "" {
		sym := symbol.Parse(raw)
		d.Symbol = sym.Code
		if sym.Market != "" {
			d.Market = sym.Market
		}
	}
	if m := strings.TrimSpace(item.Get("market").String()); m != "" {
		d.Market = m
	}
	var err error
	if d.ExDividendDate, err = tradingday.Parse(item.Get("ex_dividend_date").String()); err != nil {
		return d, err
	}
	if d.ExDividendDate.IsZero() {
		return d, fmt.Errorf("ex_dividend_date is required")
	}
	if d.RecordDate, err = tradingday.Parse(item.Get("record_date").String()); err != nil {
		return d, err
	}
	if d.PayDate, err = tradingday.Parse(item.Get("pay_date").String()); err != nil {
		return d, err
	}
	if d.CashPerShare, err = decimalField(item, "cash_per_share"); err != nil {
		return d, err
	}
	if d.SharesPerShare, err = decimalField(item, "shares_per_share"); err != nil {
		return d, err
	}
	return d, nil
}

func decimalField(item gjson.Result, name string) (decimal.Decimal, error) {
	v := item.Get(name)
	if !v.Exists() || v.Type == gjson.Null || strings.TrimSpace(v.String()) == "" {
		return decimal.Zero, nil
	}
	out, err := decimal.NewFromString(strings.TrimSpace(v.String()))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", name, err)
	}
	if out.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must be >= 0", name)
	}
	return out, nil
}
