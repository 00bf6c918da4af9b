package types

import (
	"encoding/json"
	"time"

	"fundledger/internal/tradingday"
)

// RunRecord is the persisted outcome of one daily pipeline run. Stages holds the
// per-stage results as JSON so the store does not depend on the pipeline package.
type RunRecord struct {
	TraceID    string          `json:"trace_id"`
	Pipeline   string          `json:"pipeline"`
	Day        tradingday.Date `json:"day"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Error      string          `json:"error,omitempty"`
	Stages     json.RawMessage `json:"stages,omitempty"`
	Warnings   []string        `json:"warnings,omitempty"`
}

func (r RunRecord) Failed() bool { return r.Error != "" }
