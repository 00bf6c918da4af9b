package pipeline

import (
	"encoding/json"
	"sync"
	"time"

	"fundledger/internal/tradingday"
	"fundledger/internal/types"

	"github.com/google/uuid"
)

// StageResult summarizes one stage of a run.
type StageResult struct {
	Name     string        `json:"name"`
	Skipped  bool          `json:"skipped"`
	Accounts int           `json:"accounts"`
	Failed   int           `json:"failed"`
	Elapsed  time.Duration `json:"elapsed"`
}

// RunContext collects what happened during one pipeline run.
type RunContext struct {
	Day       tradingday.Date
	TraceID   string
	StartedAt time.Time

	mu       sync.RWMutex
	results  []StageResult
	warnings []string
}

func NewRunContext(day tradingday.Date) *RunContext {
	return &RunContext{Day: day, TraceID: uuid.NewString(), StartedAt: time.Now()}
}

func (rc *RunContext) AddWarning(msg string) {
	if msg == "" {
		return
	}
	rc.mu.Lock()
	rc.warnings = append(rc.warnings, msg)
	rc.mu.Unlock()
}

func (rc *RunContext) Warnings() []string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return append([]string(nil), rc.warnings...)
}

func (rc *RunContext) addResult(r StageResult) {
	rc.mu.Lock()
	rc.results = append(rc.results, r)
	rc.mu.Unlock()
}

// Results lists the stage results in execution order.
func (rc *RunContext) Results() []StageResult {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return append([]StageResult(nil), rc.results...)
}

// Record renders the run for the run log. runErr is the error Run returned.
func (rc *RunContext) Record(pipelineName string, runErr error) types.RunRecord {
	rec := types.RunRecord{
		TraceID:    rc.TraceID,
		Pipeline:   pipelineName,
		Day:        rc.Day,
		StartedAt:  rc.StartedAt,
		FinishedAt: time.Now(),
		Warnings:   rc.Warnings(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if results := rc.Results(); len(results) > 0 {
		rec.Stages, _ = json.Marshal(results)
	}
	return rec
}
