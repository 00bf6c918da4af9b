package quote

import (
	"context"
	"fmt"
	"strings"

	"fundledger/internal/config"
	"fundledger/internal/gateway/httpsource"
	"fundledger/internal/types"

	"github.com/shopspring/decimal"
)

// HTTP reads the latest price of a security from a JSON endpoint. The price is
// picked out of the body with a gjson path such as "data.price".
type HTTP struct {
	client    *httpsource.Client
	cfg       config.HTTPSourceConfig
	pricePath string
}

func NewHTTP(cfg config.QuoteConfig) (*HTTP, error) {
	client, err := httpsource.New("quote", cfg.HTTP)
	if err != nil {
		return nil, err
	}
	path := strings.TrimSpace(cfg.PricePath)
	if path == "" {
		return nil, fmt.Errorf("quote: price_path cannot be empty")
	}
	return &HTTP{client: client, cfg: cfg.HTTP, pricePath: path}, nil
}

func (h *HTTP) GetPrice(ctx context.Context, symbol, market string) (decimal.Decimal, error) {
	body, err := h.client.Get(ctx, h.cfg.Path, httpsource.Query(h.cfg, symbol, market))
	if err != nil {
		return decimal.Zero, types.Unavailable("quote", symbol, err)
	}
	field := body.Get(h.pricePath)
	if !field.Exists() {
		return decimal.Zero, types.Unavailable("quote", symbol, fmt.Errorf("%s missing from response", h.pricePath))
	}
	price, err := decimal.NewFromString(strings.TrimSpace(field.String()))
	if err != nil {
		return decimal.Zero, types.Unavailable("quote", symbol, fmt.Errorf("parse %s: %w", h.pricePath, err))
	}
	if !price.IsPositive() {
		return decimal.Zero, types.Unavailable("quote", symbol, fmt.Errorf("non-positive price %s", price))
	}
	return price, nil
}
