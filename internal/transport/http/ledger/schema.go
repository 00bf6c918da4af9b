package ledgerhttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"fundledger/internal/types"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const flowRequestSchema = `{
  "type": "object",
  "required": ["type"],
  "additionalProperties": false,
  "properties": {
    "type": {"enum": ["deposit", "withdraw", "buy", "sell", "dividend", "tax"]},
    "symbol": {"type": "string"},
    "market": {"type": "string"},
    "quantity": {"type": ["string", "number"]},
    "cost": {"type": ["string", "number"]},
    "amount": {"type": ["string", "number"]},
    "tdate": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}"}
  },
  "allOf": [
    {
      "if": {"properties": {"type": {"enum": ["buy", "sell"]}}},
      "then": {"required": ["symbol", "market", "quantity", "cost"]}
    },
    {
      "if": {"properties": {"type": {"enum": ["deposit", "withdraw", "tax"]}}},
      "then": {"required": ["amount"]}
    }
  ]
}`

func compileSchema(name, raw string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(name)
}

// decodeFlowRequest validates body against the flow schema before decoding it.
func decodeFlowRequest(schema *jsonschema.Schema, body []byte) (types.FlowRequest, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return types.FlowRequest{}, fmt.Errorf("invalid json: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return types.FlowRequest{}, fmt.Errorf("invalid flow request: %w", err)
	}
	var req types.FlowRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return types.FlowRequest{}, fmt.Errorf("invalid flow request: %w", err)
	}
	return req, nil
}
