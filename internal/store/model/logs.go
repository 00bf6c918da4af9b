package model

import (
	"encoding/json"
	"time"

	"fundledger/internal/types"

	"gorm.io/datatypes"
)

// RunLogModel maps to 'pipeline_run_log' table.
type RunLogModel struct {
	TraceID      string         `gorm:"column:trace_id;primaryKey"`
	Pipeline     string         `gorm:"column:pipeline"`
	Day          string         `gorm:"column:day;index"`
	StartedAt    int64          `gorm:"column:started_at;index"`
	FinishedAt   int64          `gorm:"column:finished_at"`
	Error        string         `gorm:"column:error"`
	Stages       datatypes.JSON `gorm:"column:stages;type:TEXT"`
	WarningsJSON datatypes.JSON `gorm:"column:warnings;type:TEXT"`
}

func (RunLogModel) TableName() string { return "pipeline_run_log" }

func FromRunRecord(r types.RunRecord) RunLogModel {
	m := RunLogModel{
		TraceID:    r.TraceID,
		Pipeline:   r.Pipeline,
		Day:        r.Day.String(),
		StartedAt:  r.StartedAt.UnixMilli(),
		FinishedAt: r.FinishedAt.UnixMilli(),
		Error:      r.Error,
		Stages:     datatypes.JSON("[]"),
		// NULL does not scan into datatypes.JSON
		WarningsJSON: datatypes.JSON("[]"),
	}
	if len(r.Stages) > 0 {
		m.Stages = datatypes.JSON(r.Stages)
	}
	if len(r.Warnings) > 0 {
		m.WarningsJSON, _ = json.Marshal(r.Warnings)
	}
	return m
}

func (m RunLogModel) ToRunRecord() types.RunRecord {
	r := types.RunRecord{
		TraceID:    m.TraceID,
		Pipeline:   m.Pipeline,
		Day:        parseDay(m.Day),
		StartedAt:  time.UnixMilli(m.StartedAt),
		FinishedAt: time.UnixMilli(m.FinishedAt),
		Error:      m.Error,
	}
	if len(m.Stages) > 0 && string(m.Stages) != "[]" {
		r.Stages = json.RawMessage(m.Stages)
	}
	if len(m.WarningsJSON) > 0 && string(m.WarningsJSON) != "[]" {
		_ = json.Unmarshal(m.WarningsJSON, &r.Warnings)
	}
	return r
}
