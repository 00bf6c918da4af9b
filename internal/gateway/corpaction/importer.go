package corpaction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"fundledger/internal/store"
	"fundledger/internal/types"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const detailSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["symbol", "market", "ex_dividend_date"],
    "properties": {
      "symbol": {"type": "string", "minLength": 1},
      "market": {"type": "string", "minLength": 1},
      "record_date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
      "ex_dividend_date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
      "pay_date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
      "cash_per_share": {"type": ["string", "number"]},
      "shares_per_share": {"type": ["string", "number"]}
    }
  }
}`

// Importer loads dividend details from a JSON array into the store.
type Importer struct {
	repo   store.DividendRepository
	schema *jsonschema.Schema
}

func NewImporter(repo store.DividendRepository) (*Importer, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("dividends.json", strings.NewReader(detailSchema)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile("dividends.json")
	if err != nil {
		return nil, err
	}
	return &Importer{repo: repo, schema: schema}, nil
}

// Validate checks raw against the detail schema and decodes it.
func (im *Importer) Validate(raw []byte) ([]types.DividendDetail, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse dividends failed: %w", err)
	}
	if err := im.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("dividends do not match schema: %w", err)
	}
	var details []types.DividendDetail
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, fmt.Errorf("decode dividends failed: %w", err)
	}
	for i, d := range details {
		if d.CashPerShare.IsNegative() || d.SharesPerShare.IsNegative() {
			return nil, fmt.Errorf("dividend #%d (%s): per-share amounts must be >= 0", i, d.Key())
		}
	}
	return details, nil
}

// Import validates raw and upserts it. It returns the number of details stored.
func (im *Importer) Import(ctx context.Context, raw []byte) (int, error) {
	details, err := im.Validate(raw)
	if err != nil {
		return 0, err
	}
	if len(details) == 0 {
		return 0, nil
	}
	if err := im.repo.Upsert(ctx, details); err != nil {
		return 0, err
	}
	return len(details), nil
}
